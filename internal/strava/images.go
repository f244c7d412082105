package strava

import (
	"context"
	"time"
)

// Image is one activity photo.
type Image struct {
	URL        string    `json:"url"`
	CapturedAt time.Time `json:"captured_at"`
}

// ImageEntry is the cached photo list for one activity.
type ImageEntry struct {
	LastRefreshed time.Time `json:"last_refreshed"`
	Images        []Image   `json:"images"`
}

// ImageCache is keyed by activity id. It is the only state kept across cycles.
type ImageCache map[int64]ImageEntry

// Clone returns a deep copy.
func (c ImageCache) Clone() ImageCache {
	out := make(ImageCache, len(c))
	for id, entry := range c {
		images := make([]Image, len(entry.Images))
		copy(images, entry.Images)
		out[id] = ImageEntry{LastRefreshed: entry.LastRefreshed, Images: images}
	}
	return out
}

// Count returns the number of images across all entries.
func (c ImageCache) Count() int {
	n := 0
	for _, entry := range c {
		n += len(entry.Images)
	}
	return n
}

// ImageCacheRepository persists the image cache. SaveImageCache must replace
// the stored cache atomically.
type ImageCacheRepository interface {
	LoadImageCache(ctx context.Context) (ImageCache, error)
	SaveImageCache(ctx context.Context, cache ImageCache) error
}
