// Package sync runs synchronization cycles against the remote activity API:
// fetching and enriching activities, aggregating athlete statistics and
// refreshing the throttled photo cache.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/sstent/stravasync/internal/logging"
	"github.com/sstent/stravasync/internal/metrics"
	"github.com/sstent/stravasync/internal/strava"
)

const opToken = "token"

// Config holds the cycle settings.
type Config struct {
	ActivityTypes        []string
	RecentActivities     int
	PhotosEnabled        bool
	PhotoRefreshInterval time.Duration
	MaxImages            int
	DistanceUnit         string
}

// Manager orchestrates synchronization cycles. Cycles never overlap.
type Manager struct {
	tokens  oauth2.TokenSource
	api     API
	fetcher *Fetcher
	images  *ImageThrottle
	unit    string
	now     func() time.Time

	syncMu sync.Mutex // serializes cycles

	mu          sync.RWMutex
	lastErr     error
	lastSuccess time.Time
	last        *Outcome
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now for the manager and its image throttle.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager. geocoder may be nil. repo is only used when
// photos are enabled.
func NewManager(tokens oauth2.TokenSource, api API, geocoder Geocoder, repo strava.ImageCacheRepository, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		tokens: tokens,
		api:    api,
		unit:   cfg.DistanceUnit,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.fetcher = NewFetcher(api, NewResolver(geocoder), strava.NewTypeFilter(cfg.ActivityTypes), cfg.RecentActivities)
	if cfg.PhotosEnabled {
		m.images = NewImageThrottle(api, repo, cfg.PhotoRefreshInterval, cfg.MaxImages, WithImageClock(m.now))
	}

	logging.Info().
		Strs("activity_types", cfg.ActivityTypes).
		Int("recent_activities", cfg.RecentActivities).
		Bool("photos_enabled", cfg.PhotosEnabled).
		Msg("Sync manager config loaded")
	return m
}

// Init restores persisted state. Call once before the first cycle.
func (m *Manager) Init(ctx context.Context) error {
	if m.images == nil {
		return nil
	}
	return m.images.Load(ctx)
}

// RunCycle performs one complete cycle. On failure it returns a classified
// *strava.Error and the previous outcome stays current.
func (m *Manager) RunCycle(ctx context.Context) (*Outcome, error) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	cycleID := uuid.NewString()
	log := logging.With().Str("cycle_id", cycleID).Logger()
	start := time.Now()

	log.Info().Msg("Starting sync cycle")
	out, err := m.runCycle(ctx, cycleID, log)
	metrics.CycleDuration.Observe(time.Since(start).Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		kind, _ := strava.KindOf(err)
		metrics.CyclesTotal.WithLabelValues(kind.String()).Inc()
		log.Error().Err(err).Str("kind", kind.String()).Bool("transient", kind.Transient()).Msg("Sync cycle failed")
		m.lastErr = err
		return nil, err
	}

	metrics.CyclesTotal.WithLabelValues("success").Inc()
	log.Info().
		Int("activities", len(out.Activities)).
		Int("images", len(out.Images)).
		Dur("duration", time.Since(start)).
		Msg("Sync cycle completed")
	m.lastErr = nil
	m.lastSuccess = out.CompletedAt
	m.last = out
	return out, nil
}

func (m *Manager) runCycle(ctx context.Context, cycleID string, log zerolog.Logger) (*Outcome, error) {
	if _, err := m.tokens.Token(); err != nil {
		return nil, strava.ClassifyTokenError(opToken, err)
	}

	athleteID, activities, err := m.fetcher.FetchActivities(ctx)
	if err != nil {
		return nil, err
	}

	var summary strava.Summary
	images := []strava.Image{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := m.api.GetAthleteStats(gctx, athleteID)
		if err != nil {
			return err
		}
		summary = Aggregate(stats)
		return nil
	})
	if m.images != nil {
		g.Go(func() error {
			refreshed, err := m.images.Refresh(gctx, activities)
			if err != nil {
				log.Warn().Err(err).Msg("Image refresh degraded")
			}
			if refreshed != nil {
				images = refreshed
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if _, ok := strava.KindOf(err); !ok {
			err = strava.NewError(strava.KindRemoteFailure, strava.OpGetAthleteStats, errors.WithStack(err))
		}
		return nil, err
	}

	return &Outcome{
		CycleID:      cycleID,
		AthleteID:    athleteID,
		Activities:   activities,
		Summary:      summary,
		Images:       images,
		DistanceUnit: m.unit,
		CompletedAt:  m.now().UTC(),
	}, nil
}

// LastError returns the error of the most recent cycle, nil after a success.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// LastSuccess returns the completion time of the last successful cycle.
func (m *Manager) LastSuccess() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSuccess
}

// LastOutcome returns the most recent successful outcome, nil before the first.
func (m *Manager) LastOutcome() *Outcome {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}
