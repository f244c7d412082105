package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sstent/stravasync/internal/strava"
)

type failingTokens struct{ err error }

func (f failingTokens) Token() (*oauth2.Token, error) { return nil, f.err }

func validTokens() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "access"})
}

func newTestManager(api *fakeAPI, tokens oauth2.TokenSource, cfg Config) *Manager {
	clk := &clock{t: baseTime}
	return NewManager(tokens, api, nil, &memRepo{}, cfg, WithClock(clk.now))
}

func TestRunCycle_RunRideScenario(t *testing.T) {
	api := newFakeAPI()
	api.list = []strava.SummaryActivity{
		summaryJSON(t, `{"id": 11, "name": "Morning Run", "type": "Run", "athlete": {"id": 7},
			"start_date": "2024-05-31T06:00:00Z", "distance": 5000}`),
		summaryJSON(t, `{"id": 12, "name": "Afternoon Ride", "type": "Ride", "athlete": {"id": 7},
			"start_date": "2024-05-30T15:00:00Z", "distance": 25000}`),
	}
	m := newTestManager(api, validTokens(), Config{RecentActivities: 1, DistanceUnit: "metric"})

	out, err := m.RunCycle(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, out.CycleID)
	assert.Equal(t, int64(7), out.AthleteID)
	assert.Equal(t, "metric", out.DistanceUnit)
	assert.Equal(t, baseTime, out.CompletedAt)
	require.Len(t, out.Activities, 2)
	assert.Equal(t, int64(11), out.Activities[0].ID)
	assert.Equal(t, strava.TypeRun, out.Activities[0].Type)
	assert.Equal(t, strava.TypeRide, out.Activities[1].Type)
	for _, a := range out.Activities {
		assert.True(t, a.Enriched)
		assert.Equal(t, float64(strava.Sentinel), a.Calories)
		assert.Equal(t, UnknownArea, a.Location)
	}
	assertComplete(t, out.Summary)
	assert.Empty(t, out.Images)
	assert.Equal(t, []int64{7}, api.statsCalls)

	assert.NoError(t, m.LastError())
	assert.Equal(t, baseTime, m.LastSuccess())
	assert.Same(t, out, m.LastOutcome())
}

func TestRunCycle_RunRideScenarioOverHTTP(t *testing.T) {
	var detailCalls atomic.Int32
	var listStatus atomic.Int32
	listStatus.Store(http.StatusOK)

	mux := http.NewServeMux()
	mux.HandleFunc("/athlete/activities", func(w http.ResponseWriter, r *http.Request) {
		if code := int(listStatus.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			w.Write([]byte(`{"message": "Rate Limit Exceeded"}`))
			return
		}
		w.Write([]byte(`[
			{"id": 21, "name": "Run", "type": "Run", "athlete": {"id": 7},
			 "start_date": "2024-05-31T06:00:00Z", "distance": 5000},
			{"id": 22, "name": "Ride", "type": "Ride", "athlete": {"id": 7},
			 "start_date": "2024-05-30T15:00:00Z", "distance": 25000}
		]`))
	})
	mux.HandleFunc("/activities/", func(w http.ResponseWriter, r *http.Request) {
		detailCalls.Add(1)
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/athletes/7/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := strava.NewClient(srv.Client(), srv.URL)
	clk := &clock{t: baseTime}
	m := NewManager(validTokens(), client, nil, nil, Config{RecentActivities: 1}, WithClock(clk.now))

	out, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Activities, 2)
	assert.Equal(t, int32(2), detailCalls.Load())

	run, ride := out.Activities[0], out.Activities[1]
	assert.Equal(t, strava.TypeRun, run.Type)
	assert.Equal(t, 5000.0, run.Distance)
	assert.Equal(t, strava.TypeRide, ride.Type)
	assert.Equal(t, 25000.0, ride.Distance)
	for _, a := range out.Activities {
		assert.True(t, a.Enriched)
		assert.Equal(t, float64(strava.Sentinel), a.Calories)
		assert.Equal(t, UnknownArea, a.Location)
	}
	assertComplete(t, out.Summary)

	listStatus.Store(http.StatusTooManyRequests)
	failed, err := m.RunCycle(context.Background())
	assert.Nil(t, failed)
	assert.True(t, errors.Is(err, strava.ErrRateLimited))
	assert.Same(t, out, m.LastOutcome())
}

func TestRunCycle_ListRateLimitedKeepsPreviousOutcome(t *testing.T) {
	api := newFakeAPI()
	api.list = []strava.SummaryActivity{activity(t, 1, "Run", 0)}
	m := newTestManager(api, validTokens(), Config{RecentActivities: 1})

	previous, err := m.RunCycle(context.Background())
	require.NoError(t, err)

	api.listErr = rateLimited(strava.OpListActivities)
	out, err := m.RunCycle(context.Background())
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, strava.ErrRateLimited))

	assert.Same(t, previous, m.LastOutcome())
	assert.True(t, errors.Is(m.LastError(), strava.ErrRateLimited))
	assert.Equal(t, baseTime, m.LastSuccess())
	assert.Len(t, api.statsCalls, 1)
}

func TestRunCycle_TokenFailure(t *testing.T) {
	api := newFakeAPI()
	api.list = []strava.SummaryActivity{activity(t, 1, "Run", 0)}

	rejected := &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusBadRequest}}
	m := newTestManager(api, failingTokens{err: rejected}, Config{RecentActivities: 1})
	_, err := m.RunCycle(context.Background())
	assert.True(t, errors.Is(err, strava.ErrUnauthorized))

	m = newTestManager(api, failingTokens{err: errors.New("dial tcp: i/o timeout")}, Config{RecentActivities: 1})
	_, err = m.RunCycle(context.Background())
	assert.True(t, errors.Is(err, strava.ErrNetworkFailure))

	detailCalls, _ := api.calls()
	assert.Empty(t, detailCalls)
	assert.Empty(t, api.statsCalls)
}

func TestRunCycle_StatsFailureAborts(t *testing.T) {
	api := newFakeAPI()
	api.list = []strava.SummaryActivity{activity(t, 1, "Run", 0)}
	api.statsErr = &strava.Error{Kind: strava.KindRemoteFailure, Op: strava.OpGetAthleteStats, StatusCode: 503}
	m := newTestManager(api, validTokens(), Config{RecentActivities: 1})

	out, err := m.RunCycle(context.Background())
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, strava.ErrRemoteFailure))
	assert.Nil(t, m.LastOutcome())
	assert.True(t, m.LastSuccess().IsZero())
}

func TestRunCycle_WithPhotos(t *testing.T) {
	api := newFakeAPI()
	api.list = []strava.SummaryActivity{activity(t, 1, "Run", 0), activity(t, 2, "Ride", 1)}
	api.photos[1] = []strava.Photo{photo("one", baseTime.Add(-time.Hour))}
	api.photos[2] = []strava.Photo{photo("two", baseTime.Add(-24*time.Hour))}
	api.photoErrs[1] = &strava.Error{Kind: strava.KindRemoteFailure, StatusCode: 500}
	m := newTestManager(api, validTokens(), Config{
		RecentActivities:     1,
		PhotosEnabled:        true,
		PhotoRefreshInterval: 24 * time.Hour,
		MaxImages:            100,
	})
	require.NoError(t, m.Init(context.Background()))

	// Photo failures degrade without failing the cycle.
	out, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Images, 1)
	assert.Equal(t, "two", out.Images[0].URL)

	delete(api.photoErrs, 1)
	again, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, again.Images, 2)
	assert.Equal(t, "two", again.Images[0].URL)
	assert.Equal(t, "one", again.Images[1].URL)

	_, photoCalls := api.calls()
	assert.Equal(t, []int64{1, 2, 1}, photoCalls)
}

func TestRunCycle_Serialized(t *testing.T) {
	api := newFakeAPI()
	api.list = []strava.SummaryActivity{activity(t, 1, "Run", 0)}
	api.detailDelay = 20 * time.Millisecond
	m := newTestManager(api, validTokens(), Config{RecentActivities: 1})

	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		go func() {
			_, _ = m.RunCycle(context.Background())
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		<-done
	}

	detailCalls, _ := api.calls()
	assert.Len(t, detailCalls, 3)
	assert.Len(t, api.statsCalls, 3)
}
