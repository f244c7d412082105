package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/sstent/stravasync/internal/logging"
)

// zerologAdapter routes watermill's logging through the global zerolog logger.
type zerologAdapter struct {
	log zerolog.Logger
}

// NewLoggerAdapter returns a watermill.LoggerAdapter backed by zerolog.
func NewLoggerAdapter() watermill.LoggerAdapter {
	return &zerologAdapter{log: logging.With().Str("component", "events").Logger()}
}

func (a *zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a *zerologAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a *zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a *zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (a *zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &zerologAdapter{log: a.log.With().Fields(map[string]interface{}(fields)).Logger()}
}
