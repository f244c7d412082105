package strava

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/sstent/stravasync/internal/logging"
	"github.com/sstent/stravasync/internal/metrics"
)

const (
	// PageSize bounds the list-activities request.
	PageSize = 200

	// PhotoSize is the requested photo edge length in pixels.
	PhotoSize = 5000

	maxBodySize = 10 << 20
)

// Operation names used in errors, logs and metrics.
const (
	OpListActivities  = "list_activities"
	OpGetActivity     = "get_activity"
	OpGetAthleteStats = "get_athlete_stats"
	OpGetPhotos       = "get_activity_photos"
)

// Client represents a remote fitness API client. The *http.Client it wraps
// must already authorize requests (see golang.org/x/oauth2).
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit paces outbound requests to rps per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewClient creates a new API client
func NewClient(httpClient *http.Client, baseURL string, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListActivities retrieves the most recent page of the athlete's activities.
// Records that cannot be decoded at all are skipped.
func (c *Client) ListActivities(ctx context.Context) ([]SummaryActivity, error) {
	query := url.Values{}
	query.Set("per_page", strconv.Itoa(PageSize))
	query.Set("page", "1")

	var raw []json.RawMessage
	if err := c.get(ctx, OpListActivities, "/athlete/activities", query, &raw); err != nil {
		return nil, err
	}

	activities := make([]SummaryActivity, 0, len(raw))
	for i, item := range raw {
		var a SummaryActivity
		if err := json.Unmarshal(item, &a); err != nil || a.ID == 0 {
			logging.Warn().Int("index", i).Err(err).Msg("Skipping undecodable activity record")
			continue
		}
		activities = append(activities, a)
	}
	return activities, nil
}

// GetActivity retrieves the detail record of one activity.
func (c *Client) GetActivity(ctx context.Context, id int64) (*DetailedActivity, error) {
	var detail DetailedActivity
	path := "/activities/" + strconv.FormatInt(id, 10)
	if err := c.get(ctx, OpGetActivity, path, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetAthleteStats retrieves the per-period totals of an athlete.
func (c *Client) GetAthleteStats(ctx context.Context, athleteID int64) (*AthleteStats, error) {
	var stats AthleteStats
	path := "/athletes/" + strconv.FormatInt(athleteID, 10) + "/stats"
	if err := c.get(ctx, OpGetAthleteStats, path, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetActivityPhotos retrieves the photos of one activity at PhotoSize.
func (c *Client) GetActivityPhotos(ctx context.Context, id int64) ([]Photo, error) {
	query := url.Values{}
	query.Set("size", strconv.Itoa(PhotoSize))
	query.Set("photo_sources", "true")

	var photos []Photo
	path := "/activities/" + strconv.FormatInt(id, 10) + "/photos"
	if err := c.get(ctx, OpGetPhotos, path, query, &photos); err != nil {
		return nil, err
	}
	return photos, nil
}

// get performs one GET and decodes the JSON body into out. Every failure is
// returned as a classified *Error.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	err := c.do(ctx, op, path, query, out)
	result := "success"
	if err != nil {
		kind, _ := KindOf(err)
		result = kind.String()
	}
	metrics.RemoteRequests.WithLabelValues(op, result).Inc()
	return err
}

func (c *Client) do(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return NewError(KindNetworkFailure, op, err)
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return NewError(KindRemoteFailure, op, errors.Wrap(err, "failed to create request"))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ClassifyTokenError(op, err)
	}
	if err := checkResponse(op, resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return NewError(KindNetworkFailure, op, errors.Wrap(err, "failed to read response"))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{
			Kind: KindRemoteFailure,
			Op:   op,
			Body: truncate(string(body), MaxErrorBodySize),
			Err:  errors.Wrap(err, "malformed response body"),
		}
	}
	return nil
}
