package sync

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sstent/stravasync/internal/logging"
	"github.com/sstent/stravasync/internal/metrics"
)

// Trigger sources.
const (
	SourceStartup  = "startup"
	SourceInterval = "interval"
	SourceWebhook  = "webhook"
	SourceManual   = "manual"
)

// Runner runs one cycle. Implemented by *Manager.
type Runner interface {
	RunCycle(ctx context.Context) (*Outcome, error)
}

// OutcomeHandler receives every successful outcome.
type OutcomeHandler func(ctx context.Context, out *Outcome)

// Scheduler runs cycles on an interval and on demand. Triggers that arrive
// while a cycle is running collapse into one follow-up cycle.
type Scheduler struct {
	runner    Runner
	interval  time.Duration
	onOutcome OutcomeHandler
	pending   chan string
	log       zerolog.Logger
}

// NewScheduler creates a scheduler. onOutcome may be nil.
func NewScheduler(runner Runner, interval time.Duration, onOutcome OutcomeHandler) *Scheduler {
	return &Scheduler{
		runner:    runner,
		interval:  interval,
		onOutcome: onOutcome,
		pending:   make(chan string, 1),
		log:       logging.With().Str("component", "scheduler").Logger(),
	}
}

// Trigger requests a cycle. It reports false when a cycle was already pending.
func (s *Scheduler) Trigger(source string) bool {
	select {
	case s.pending <- source:
		metrics.TriggersTotal.WithLabelValues(source, strconv.FormatBool(false)).Inc()
		s.log.Debug().Str("source", source).Msg("Cycle triggered")
		return true
	default:
		metrics.TriggersTotal.WithLabelValues(source, strconv.FormatBool(true)).Inc()
		s.log.Debug().Str("source", source).Msg("Cycle already pending, trigger coalesced")
		return false
	}
}

// Run processes triggers until ctx is done. A cycle in flight when ctx is
// cancelled runs to completion before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New()
	if s.interval > 0 {
		if _, err := c.AddFunc("@every "+s.interval.String(), func() {
			s.Trigger(SourceInterval)
		}); err != nil {
			return errors.Wrap(err, "failed to schedule sync interval")
		}
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	s.log.Info().Dur("interval", s.interval).Msg("Scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Scheduler stopped")
			return nil
		case source := <-s.pending:
			s.run(ctx, source)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, source string) {
	cycleCtx := context.WithoutCancel(ctx)
	out, err := s.runner.RunCycle(cycleCtx)
	if err != nil {
		s.log.Warn().Err(err).Str("source", source).Msg("Cycle failed, keeping previous snapshot")
		return
	}
	if s.onOutcome != nil {
		s.onOutcome(cycleCtx, out)
	}
}
