// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts finished sync cycles by outcome (success or error kind).
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stravasync_cycles_total",
			Help: "Total number of synchronization cycles by outcome",
		},
		[]string{"outcome"},
	)

	// CycleDuration tracks how long a cycle takes end to end.
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stravasync_cycle_duration_seconds",
			Help:    "Duration of synchronization cycles",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	// RemoteRequests counts outbound calls by operation and result.
	RemoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stravasync_remote_requests_total",
			Help: "Total number of outbound API requests",
		},
		[]string{"op", "result"},
	)

	// ImagesCached reports the image count after the last refresh.
	ImagesCached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stravasync_images_cached",
			Help: "Number of images held in the throttle cache",
		},
	)

	// TriggersTotal counts cycle triggers by source and whether they were coalesced.
	TriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stravasync_triggers_total",
			Help: "Total number of cycle triggers",
		},
		[]string{"source", "coalesced"},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stravasync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// GeocodeLookups counts reverse geocode lookups by result.
	GeocodeLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stravasync_geocode_lookups_total",
			Help: "Total number of reverse geocode lookups",
		},
		[]string{"result"},
	)
)
