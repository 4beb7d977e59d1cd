package observability

import (
	"log/slog"

	"impactbond/core/events"
	"impactbond/observability/logging"
	"impactbond/observability/metrics"
)

// EventSink logs registry events and counts them by type.
type EventSink struct {
	logger  *slog.Logger
	metrics *metrics.BondMetrics
}

// NewEventSink builds a sink. A nil logger falls back to slog.Default.
func NewEventSink(logger *slog.Logger, m *metrics.BondMetrics) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{logger: logger.With(slog.String("component", "events")), metrics: m}
}

// Emit implements events.Emitter.
func (s *EventSink) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	s.metrics.ObserveEvent(evt.EventType())
	args := []any{slog.String("type", evt.EventType())}
	if payload, ok := evt.(*events.Payload); ok && payload != nil {
		args = append(args, logging.MaskedAttrs(payload.Attributes)...)
	}
	s.logger.Info("registry event", args...)
}
