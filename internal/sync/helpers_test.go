package sync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/sstent/stravasync/internal/geocode"
	"github.com/sstent/stravasync/internal/strava"
)

// fakeAPI is an in-memory API with per-id responses and call recording.
type fakeAPI struct {
	mu sync.Mutex

	list    []strava.SummaryActivity
	listErr error

	details     map[int64]*strava.DetailedActivity
	detailErrs  map[int64]error
	detailDelay time.Duration
	detailCalls []int64

	stats      *strava.AthleteStats
	statsErr   error
	statsCalls []int64

	photos     map[int64][]strava.Photo
	photoErrs  map[int64]error
	photoCalls []int64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		details:    make(map[int64]*strava.DetailedActivity),
		detailErrs: make(map[int64]error),
		photos:     make(map[int64][]strava.Photo),
		photoErrs:  make(map[int64]error),
		stats:      &strava.AthleteStats{},
	}
}

func (f *fakeAPI) ListActivities(ctx context.Context) ([]strava.SummaryActivity, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.list, nil
}

func (f *fakeAPI) GetActivity(ctx context.Context, id int64) (*strava.DetailedActivity, error) {
	f.mu.Lock()
	f.detailCalls = append(f.detailCalls, id)
	err := f.detailErrs[id]
	detail := f.details[id]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if f.detailDelay > 0 {
		time.Sleep(f.detailDelay)
	}
	if detail == nil {
		return &strava.DetailedActivity{}, nil
	}
	return detail, nil
}

func (f *fakeAPI) GetAthleteStats(ctx context.Context, athleteID int64) (*strava.AthleteStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls = append(f.statsCalls, athleteID)
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return f.stats, nil
}

func (f *fakeAPI) GetActivityPhotos(ctx context.Context, id int64) ([]strava.Photo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photoCalls = append(f.photoCalls, id)
	if err := f.photoErrs[id]; err != nil {
		return nil, err
	}
	return f.photos[id], nil
}

func (f *fakeAPI) calls() (detail, photo []int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.detailCalls...), append([]int64(nil), f.photoCalls...)
}

// fakeGeocoder answers from a fixed place and counts lookups.
type fakeGeocoder struct {
	mu    sync.Mutex
	place geocode.Place
	err   error
	calls int
}

func (g *fakeGeocoder) Lookup(ctx context.Context, lat, lon float64) (geocode.Place, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.place, g.err
}

// memRepo is an in-memory image cache repository.
type memRepo struct {
	mu    sync.Mutex
	cache strava.ImageCache
	saves int
	err   error
}

func (r *memRepo) LoadImageCache(ctx context.Context) (strava.ImageCache, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil {
		return strava.ImageCache{}, nil
	}
	return r.cache.Clone(), nil
}

func (r *memRepo) SaveImageCache(ctx context.Context, cache strava.ImageCache) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saves++
	r.cache = cache.Clone()
	return nil
}

var baseTime = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

// summaryJSON decodes a list record the way the client does.
func summaryJSON(t *testing.T, raw string) strava.SummaryActivity {
	t.Helper()
	var s strava.SummaryActivity
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	return s
}

// activity builds a list record for athlete 7 started daysAgo before baseTime.
func activity(t *testing.T, id int64, typ string, daysAgo int) strava.SummaryActivity {
	t.Helper()
	start := baseTime.AddDate(0, 0, -daysAgo).Format(time.RFC3339)
	return summaryJSON(t, fmt.Sprintf(
		`{"id": %d, "name": "Activity %d", "type": %q, "athlete": {"id": 7}, "start_date": %q, "distance": 1000}`,
		id, id, typ, start))
}

func rateLimited(op string) error {
	return &strava.Error{Kind: strava.KindRateLimited, Op: op, StatusCode: 429}
}

func photo(url string, created time.Time) strava.Photo {
	return strava.Photo{
		URLs:      map[string]string{"5000": url},
		CreatedAt: strava.Timestamp{Time: created},
	}
}
