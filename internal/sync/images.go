package sync

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/sstent/stravasync/internal/logging"
	"github.com/sstent/stravasync/internal/metrics"
	"github.com/sstent/stravasync/internal/strava"
)

const (
	DefaultPhotoRefreshInterval = 24 * time.Hour
	DefaultMaxImages            = 100
)

// ImageThrottle keeps activity photos cached so each activity is asked for
// its photos at most once per interval, and caps the total kept.
type ImageThrottle struct {
	api       PhotoAPI
	repo      strava.ImageCacheRepository
	interval  time.Duration
	maxImages int
	now       func() time.Time
	log       zerolog.Logger

	mu    sync.Mutex
	cache strava.ImageCache
}

// ImageThrottleOption configures an ImageThrottle.
type ImageThrottleOption func(*ImageThrottle)

// WithImageClock replaces time.Now.
func WithImageClock(now func() time.Time) ImageThrottleOption {
	return func(t *ImageThrottle) { t.now = now }
}

// NewImageThrottle creates an empty throttle; call Load to restore state.
func NewImageThrottle(api PhotoAPI, repo strava.ImageCacheRepository, interval time.Duration, maxImages int, opts ...ImageThrottleOption) *ImageThrottle {
	if interval <= 0 {
		interval = DefaultPhotoRefreshInterval
	}
	if maxImages <= 0 {
		maxImages = DefaultMaxImages
	}
	t := &ImageThrottle{
		api:       api,
		repo:      repo,
		interval:  interval,
		maxImages: maxImages,
		now:       time.Now,
		log:       logging.With().Str("component", "images").Logger(),
		cache:     make(strava.ImageCache),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load replaces the in-memory cache with the persisted one.
func (t *ImageThrottle) Load(ctx context.Context) error {
	if t.repo == nil {
		return nil
	}
	cache, err := t.repo.LoadImageCache(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load image cache")
	}
	if cache == nil {
		cache = make(strava.ImageCache)
	}

	t.mu.Lock()
	t.cache = cache
	t.mu.Unlock()
	t.log.Info().Int("activities", len(cache)).Int("images", cache.Count()).Msg("Image cache loaded")
	return nil
}

// Images returns the cached images, oldest capture first.
func (t *ImageThrottle) Images() []strava.Image {
	t.mu.Lock()
	defer t.mu.Unlock()
	return flatten(t.cache)
}

// Refresh fetches photos for the activities whose entry is missing or due,
// enforces the cap and persists the cache when it changed. The returned
// list, oldest capture first, is valid even when err reports a persistence
// failure.
func (t *ImageThrottle) Refresh(ctx context.Context, activities []strava.Activity) ([]strava.Image, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	changed := false
	refreshed := 0

	for _, a := range activities {
		if entry, ok := t.cache[a.ID]; ok && now.Sub(entry.LastRefreshed) < t.interval {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		photos, err := t.api.GetActivityPhotos(ctx, a.ID)
		if err != nil {
			if errors.Is(err, strava.ErrRateLimited) {
				t.log.Warn().Err(err).Msg("Rate limited while refreshing photos, deferring the rest")
				break
			}
			t.log.Warn().Err(err).Int64("activity_id", a.ID).Msg("Skipping photo refresh")
			continue
		}

		t.cache[a.ID] = strava.ImageEntry{LastRefreshed: now, Images: imagesFrom(photos)}
		changed = true
		refreshed++
	}

	if evicted := enforceCap(t.cache, t.maxImages); evicted > 0 {
		t.log.Debug().Int("evicted", evicted).Msg("Evicted oldest images")
		changed = true
	}

	images := flatten(t.cache)
	metrics.ImagesCached.Set(float64(len(images)))

	if !changed {
		return images, nil
	}
	t.log.Debug().Int("refreshed", refreshed).Int("images", len(images)).Msg("Image cache updated")
	if t.repo != nil {
		if err := t.repo.SaveImageCache(ctx, t.cache.Clone()); err != nil {
			return images, errors.Wrap(err, "failed to persist image cache")
		}
	}
	return images, nil
}

// imagesFrom converts photos, oldest capture first. Photos without a URL are
// dropped.
func imagesFrom(photos []strava.Photo) []strava.Image {
	images := make([]strava.Image, 0, len(photos))
	for _, p := range photos {
		url := photoURL(p)
		if url == "" {
			continue
		}
		captured := p.CreatedAt.Time
		if captured.IsZero() {
			captured = p.UploadedAt.Time
		}
		images = append(images, strava.Image{URL: url, CapturedAt: captured})
	}
	sort.SliceStable(images, func(i, j int) bool {
		return images[i].CapturedAt.Before(images[j].CapturedAt)
	})
	return images
}

// photoURL prefers the requested size, else the largest size offered.
func photoURL(p strava.Photo) string {
	if url := p.URLs[strconv.Itoa(strava.PhotoSize)]; url != "" {
		return url
	}
	best, bestSize := "", -1
	for size, url := range p.URLs {
		n, err := strconv.Atoi(size)
		if err != nil {
			n = 0
		}
		if url != "" && (n > bestSize || (n == bestSize && url < best)) {
			best, bestSize = url, n
		}
	}
	return best
}

type cachedImage struct {
	activityID int64
	position   int
	image      strava.Image
}

func collect(cache strava.ImageCache) []cachedImage {
	all := make([]cachedImage, 0, cache.Count())
	for id, entry := range cache {
		for pos, img := range entry.Images {
			all = append(all, cachedImage{activityID: id, position: pos, image: img})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if !a.image.CapturedAt.Equal(b.image.CapturedAt) {
			return a.image.CapturedAt.Before(b.image.CapturedAt)
		}
		if a.activityID != b.activityID {
			return a.activityID < b.activityID
		}
		return a.position < b.position
	})
	return all
}

// enforceCap keeps the newest limit images and rebuilds the entries in place.
// Entries stay even when emptied so their refresh time is remembered.
func enforceCap(cache strava.ImageCache, limit int) int {
	all := collect(cache)
	if len(all) <= limit {
		return 0
	}
	evicted := len(all) - limit
	kept := all[evicted:]

	rebuilt := make(map[int64][]strava.Image, len(cache))
	for _, c := range kept {
		rebuilt[c.activityID] = append(rebuilt[c.activityID], c.image)
	}
	for id, entry := range cache {
		images := rebuilt[id]
		if images == nil {
			images = []strava.Image{}
		}
		cache[id] = strava.ImageEntry{LastRefreshed: entry.LastRefreshed, Images: images}
	}
	return evicted
}

func flatten(cache strava.ImageCache) []strava.Image {
	all := collect(cache)
	images := make([]strava.Image, len(all))
	for i, c := range all {
		images[i] = c.image
	}
	return images
}
