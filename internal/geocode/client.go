// Package geocode resolves coordinates to a place name through a
// geocode.xyz-compatible reverse geocoding service.
package geocode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/sstent/stravasync/internal/logging"
	"github.com/sstent/stravasync/internal/metrics"
)

// ThrottledSentinel is returned in place of a name when the free tier is exhausted.
const ThrottledSentinel = "Throttled! See geocode.xyz/pricing"

const (
	breakerName     = "geocode"
	maxBodySize     = 1 << 20
	tripAfter       = 5
	breakerTimeout  = 2 * time.Minute
	defaultInterval = time.Second
)

// ErrNoAnswer means the service replied but named no place.
var ErrNoAnswer = errors.New("geocode: no answer")

// Place is the resolved name of a coordinate. Either field may be empty.
type Place struct {
	City   string
	Region string
}

// Name returns the city, else the region.
func (p Place) Name() string {
	if p.City != "" {
		return p.City
	}
	return p.Region
}

// Client performs reverse geocoding lookups. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker[Place]

	mu    sync.Mutex
	cache map[string]Place
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the auth key sent with every lookup.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithInterval sets the minimum spacing between lookups. Zero disables pacing.
func WithInterval(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// NewClient creates a geocoding client for baseURL.
func NewClient(httpClient *http.Client, baseURL string, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Every(defaultInterval), 1),
		cache:      make(map[string]Place),
	}
	for _, opt := range opts {
		opt(c)
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	c.cb = gobreaker.NewCircuitBreaker[Place](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		// An empty answer is a healthy response.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoAnswer) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
	return c
}

// Lookup resolves lat/lon. Answers are cached per coordinate rounded to four
// decimals; failures and empty answers are not.
func (c *Client) Lookup(ctx context.Context, lat, lon float64) (Place, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)

	c.mu.Lock()
	place, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		metrics.GeocodeLookups.WithLabelValues("cached").Inc()
		return place, nil
	}

	place, err := c.cb.Execute(func() (Place, error) {
		return c.fetch(ctx, key)
	})
	if err != nil {
		metrics.GeocodeLookups.WithLabelValues(lookupResult(err)).Inc()
		return Place{}, err
	}

	c.mu.Lock()
	c.cache[key] = place
	c.mu.Unlock()
	metrics.GeocodeLookups.WithLabelValues("success").Inc()
	return place, nil
}

func (c *Client) fetch(ctx context.Context, key string) (Place, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Place{}, errors.Wrap(err, "geocode rate limiter")
		}
	}

	query := url.Values{}
	query.Set("geoit", "json")
	if c.apiKey != "" {
		query.Set("auth", c.apiKey)
	}
	reqURL := c.baseURL + "/" + key + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return Place{}, errors.Wrap(err, "failed to create geocode request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error carries the request URL, which holds the API key.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return Place{}, errors.Wrap(err, "geocode request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Place{}, errors.Wrap(err, "failed to read geocode response")
	}
	if resp.StatusCode != http.StatusOK {
		return Place{}, errors.Errorf("geocode returned status %d", resp.StatusCode)
	}
	return parsePlace(body)
}

// response fields are strings on success but objects or numbers on some
// error replies, so each is decoded leniently.
type response struct {
	City   lenientString `json:"city"`
	Region lenientString `json:"region"`
	State  lenientString `json:"state"`
}

type lenientString string

func (s *lenientString) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		*s = ""
		return nil
	}
	*s = lenientString(v)
	return nil
}

func parsePlace(body []byte) (Place, error) {
	if strings.Contains(string(body), ThrottledSentinel) && !json.Valid(body) {
		return Place{}, ErrNoAnswer
	}
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return Place{}, errors.Wrap(err, "malformed geocode response")
	}
	place := Place{
		City:   clean(string(r.City)),
		Region: clean(string(r.Region)),
	}
	if place.Region == "" {
		place.Region = clean(string(r.State))
	}
	if place.Name() == "" {
		return Place{}, ErrNoAnswer
	}
	return place, nil
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ThrottledSentinel) {
		return ""
	}
	return s
}

func lookupResult(err error) string {
	switch {
	case errors.Is(err, ErrNoAnswer):
		return "no_answer"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "rejected"
	default:
		return "failure"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
