// Package webhook serves the push-subscription endpoint and the operational
// HTTP surface (health, metrics, current snapshot).
package webhook

import (
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sstent/stravasync/internal/logging"
	"github.com/sstent/stravasync/internal/sync"
)

const maxEventSize = 64 << 10

// Config identifies the subscription whose events may trigger a cycle.
type Config struct {
	SubscriptionID int64
	Host           string
	VerifyToken    string
}

// Triggerer requests a cycle. Implemented by *sync.Scheduler.
type Triggerer interface {
	Trigger(source string) bool
}

// Status reports the state of the last cycles. Implemented by *sync.Manager.
type Status interface {
	LastSuccess() time.Time
	LastError() error
	LastOutcome() *sync.Outcome
}

// Event is a push notification from the remote service.
type Event struct {
	SubscriptionID int64             `json:"subscription_id"`
	ObjectType     string            `json:"object_type"`
	AspectType     string            `json:"aspect_type"`
	ObjectID       int64             `json:"object_id"`
	OwnerID        int64             `json:"owner_id"`
	EventTime      int64             `json:"event_time"`
	Updates        map[string]string `json:"updates,omitempty"`
}

// Handler serves the HTTP endpoints.
type Handler struct {
	cfg       Config
	triggerer Triggerer
	status    Status
	log       zerolog.Logger
}

// NewHandler creates a handler.
func NewHandler(cfg Config, triggerer Triggerer, status Status) *Handler {
	return &Handler{
		cfg:       cfg,
		triggerer: triggerer,
		status:    status,
		log:       logging.With().Str("component", "webhook").Logger(),
	}
}

// Router returns the chi router for every endpoint.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/webhook", h.Verify)
	r.Post("/webhook", h.Receive)
	r.Get("/healthz", h.Health)
	r.Get("/snapshot", h.Snapshot)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Verify answers the subscription validation handshake by echoing the challenge.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.cfg.VerifyToken != "" && q.Get("hub.verify_token") != h.cfg.VerifyToken {
		h.log.Warn().Str("mode", q.Get("hub.mode")).Msg("Rejected subscription validation with wrong verify token")
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "verify token mismatch"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hub.challenge": q.Get("hub.challenge")})
}

// Receive accepts an event. It always answers 200; only events for the
// configured subscription delivered to the configured host trigger a cycle.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	defer w.WriteHeader(http.StatusOK)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventSize))
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read webhook event")
		return
	}
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		h.log.Warn().Err(err).Msg("Ignoring malformed webhook event")
		return
	}

	log := h.log.With().
		Int64("subscription_id", event.SubscriptionID).
		Str("object_type", event.ObjectType).
		Str("aspect_type", event.AspectType).
		Int64("object_id", event.ObjectID).
		Logger()

	if h.cfg.SubscriptionID == 0 || event.SubscriptionID != h.cfg.SubscriptionID {
		log.Debug().Msg("Ignoring event for another subscription")
		return
	}
	if !sameHost(r.Host, h.cfg.Host) {
		log.Debug().Str("host", r.Host).Msg("Ignoring event delivered to another host")
		return
	}

	triggered := h.triggerer.Trigger(sync.SourceWebhook)
	log.Info().Bool("coalesced", !triggered).Msg("Webhook event accepted")
}

type healthResponse struct {
	Status      string     `json:"status"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// Health reports ok once a cycle has succeeded and the latest did not fail.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	status := http.StatusOK

	if last := h.status.LastSuccess(); !last.IsZero() {
		resp.LastSuccess = &last
	}
	if err := h.status.LastError(); err != nil {
		resp.LastError = err.Error()
		resp.Status = "degraded"
	}
	if resp.LastSuccess == nil {
		resp.Status = "starting"
		if resp.LastError != "" {
			resp.Status = "failing"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

// Snapshot returns the last successful outcome.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	out := h.status.LastOutcome()
	if out == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot yet"})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// sameHost compares hostnames, ignoring ports and case. An empty configured
// host accepts any.
func sameHost(requestHost, configured string) bool {
	if configured == "" {
		return true
	}
	return strings.EqualFold(hostname(requestHost), hostname(configured))
}

func hostname(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return hostport
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encoding failure", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck
}
