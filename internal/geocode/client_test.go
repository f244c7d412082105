package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	opts = append([]Option{WithInterval(0)}, opts...)
	return NewClient(srv.Client(), srv.URL, opts...), &calls
}

func TestLookup_City(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/40.0150,-105.2705", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("geoit"))
		assert.Equal(t, "secret", r.URL.Query().Get("auth"))
		w.Write([]byte(`{"city": "Boulder", "region": "CO"}`))
	}, WithAPIKey("secret"))

	place, err := client.Lookup(context.Background(), 40.015, -105.2705)
	require.NoError(t, err)
	assert.Equal(t, "Boulder", place.Name())
}

func TestLookup_TransportErrorOmitsAPIKey(t *testing.T) {
	client := NewClient(&http.Client{}, "http://127.0.0.1:1", WithAPIKey("SECRETKEY123"), WithInterval(0))

	_, err := client.Lookup(context.Background(), 1, 2)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRETKEY123")
	assert.NotContains(t, err.Error(), "auth=")
}

func TestLookup_RegionFallback(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("auth"))
		w.Write([]byte(`{"city": {}, "region": "Tasmania"}`))
	})

	place, err := client.Lookup(context.Background(), -42.0, 146.5)
	require.NoError(t, err)
	assert.Empty(t, place.City)
	assert.Equal(t, "Tasmania", place.Name())
}

func TestLookup_ThrottledIsNoAnswer(t *testing.T) {
	for name, body := range map[string]string{
		"json field": `{"city": "Throttled! See geocode.xyz/pricing", "region": "Throttled! See geocode.xyz/pricing"}`,
		"plain text": `Throttled! See geocode.xyz/pricing`,
	} {
		t.Run(name, func(t *testing.T) {
			client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})

			place, err := client.Lookup(context.Background(), 1, 2)
			assert.True(t, errors.Is(err, ErrNoAnswer))
			assert.Empty(t, place.Name())

			// No answer is never cached.
			_, _ = client.Lookup(context.Background(), 1, 2)
			assert.Equal(t, int32(2), atomic.LoadInt32(calls))
		})
	}
}

func TestLookup_Cached(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"city": "Lyon"}`))
	})

	for i := 0; i < 3; i++ {
		place, err := client.Lookup(context.Background(), 45.76401, 4.83566)
		require.NoError(t, err)
		assert.Equal(t, "Lyon", place.City)
	}
	// Rounds to the same key.
	_, err := client.Lookup(context.Background(), 45.76399, 4.83574)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestLookup_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < tripAfter; i++ {
		_, err := client.Lookup(context.Background(), float64(i), 0)
		require.Error(t, err)
	}

	_, err := client.Lookup(context.Background(), 99, 0)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(tripAfter), atomic.LoadInt32(calls))
}

func TestLookup_NoAnswerDoesNotTrip(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	for i := 0; i < tripAfter+2; i++ {
		_, err := client.Lookup(context.Background(), float64(i), 0)
		assert.True(t, errors.Is(err, ErrNoAnswer))
	}
	assert.Equal(t, int32(tripAfter+2), atomic.LoadInt32(calls))
}
