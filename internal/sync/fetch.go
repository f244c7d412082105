package sync

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sstent/stravasync/internal/logging"
	"github.com/sstent/stravasync/internal/strava"
)

// DetailConcurrency bounds in-flight detail requests.
const DetailConcurrency = 4

// Fetcher lists recent activities and enriches a selection of them.
type Fetcher struct {
	api      API
	resolver *Resolver
	filter   strava.TypeFilter
	recent   int
	log      zerolog.Logger
}

// NewFetcher creates a fetcher tracking the given types. recent is the
// number of newest tracked activities always enriched.
func NewFetcher(api API, resolver *Resolver, filter strava.TypeFilter, recent int) *Fetcher {
	if recent < 1 {
		recent = 1
	}
	return &Fetcher{
		api:      api,
		resolver: resolver,
		filter:   filter,
		recent:   recent,
		log:      logging.With().Str("component", "fetcher").Logger(),
	}
}

type listed struct {
	summary strava.SummaryActivity
	typ     strava.ActivityType
}

// FetchActivities returns the account id and the tracked activities, newest
// first. Only list failures are fatal.
func (f *Fetcher) FetchActivities(ctx context.Context) (int64, []strava.Activity, error) {
	summaries, err := f.api.ListActivities(ctx)
	if err != nil {
		return 0, nil, err
	}

	athleteID, err := accountOf(summaries)
	if err != nil {
		return 0, nil, err
	}

	tracked := f.track(summaries)
	selected := selectForDetail(tracked, f.recent)
	details := f.fetchDetails(ctx, tracked, selected)

	activities := make([]strava.Activity, len(tracked))
	for i, item := range tracked {
		a := strava.NewActivity(item.summary, details[i])
		a.Location = f.resolver.Resolve(ctx, item.summary, details[i])
		activities[i] = a
	}

	f.log.Debug().
		Int("listed", len(summaries)).
		Int("tracked", len(tracked)).
		Int("enriched", countNonNil(details)).
		Msg("Fetched activities")
	return athleteID, activities, nil
}

// accountOf derives the account from the list. An empty list leaves nothing
// to derive it from; a list spanning several accounts is not trusted.
func accountOf(summaries []strava.SummaryActivity) (int64, error) {
	if len(summaries) == 0 {
		return 0, strava.NewError(strava.KindNotFound, strava.OpListActivities,
			errors.New("no activities to derive the athlete from"))
	}
	athleteID := summaries[0].Athlete.ID
	if athleteID == 0 {
		return 0, strava.NewError(strava.KindNotFound, strava.OpListActivities,
			errors.New("activity list carries no athlete id"))
	}
	for _, s := range summaries[1:] {
		if s.Athlete.ID != 0 && s.Athlete.ID != athleteID {
			return 0, strava.NewError(strava.KindNotFound, strava.OpListActivities,
				errors.Errorf("account mismatch: activities of athletes %d and %d", athleteID, s.Athlete.ID))
		}
	}
	return athleteID, nil
}

// track filters by type and sorts newest first, keeping remote order on ties.
func (f *Fetcher) track(summaries []strava.SummaryActivity) []listed {
	tracked := make([]listed, 0, len(summaries))
	for _, s := range summaries {
		raw := string(s.Type)
		if raw == "" {
			raw = string(s.SportType)
		}
		t, _ := strava.NormalizeType(raw)
		if !f.filter.Allows(t) {
			continue
		}
		tracked = append(tracked, listed{summary: s, typ: t})
	}
	sort.SliceStable(tracked, func(i, j int) bool {
		return tracked[i].summary.StartDate.After(tracked[j].summary.StartDate.Time)
	})
	return tracked
}

// selectForDetail marks the first n activities and the first activity of
// each type, counting positions after filtering.
func selectForDetail(tracked []listed, n int) []bool {
	selected := make([]bool, len(tracked))
	seen := make(map[strava.ActivityType]bool)
	for i, item := range tracked {
		if i < n || !seen[item.typ] {
			selected[i] = true
		}
		seen[item.typ] = true
	}
	return selected
}

// fetchDetails issues the selected detail calls in list order. After the
// first rate-limit response no further calls are issued; every detail
// failure leaves a nil entry.
func (f *Fetcher) fetchDetails(ctx context.Context, tracked []listed, selected []bool) []*strava.DetailedActivity {
	details := make([]*strava.DetailedActivity, len(tracked))
	var limited atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DetailConcurrency)
	for i := range tracked {
		if !selected[i] {
			continue
		}
		if limited.Load() || gctx.Err() != nil {
			break
		}
		i := i
		id := tracked[i].summary.ID
		g.Go(func() error {
			if limited.Load() {
				return nil
			}
			detail, err := f.api.GetActivity(gctx, id)
			if err != nil {
				if errors.Is(err, strava.ErrRateLimited) {
					limited.Store(true)
				}
				f.log.Warn().Err(err).Int64("activity_id", id).Msg("Activity detail unavailable")
				return nil
			}
			details[i] = detail
			return nil
		})
	}
	_ = g.Wait()

	if limited.Load() {
		f.log.Warn().Msg("Rate limited while fetching details, remaining activities left unenriched")
	}
	return details
}

func countNonNil(details []*strava.DetailedActivity) int {
	n := 0
	for _, d := range details {
		if d != nil {
			n++
		}
	}
	return n
}
