package service

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("ticketing.reservation")

var (
	// operationsTotal counts engine operations by name and result
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ticketing",
		Subsystem: "reservation",
		Name:      "operations_total",
		Help:      "Reservation engine operations by operation and result",
	}, []string{"operation", "result"})

	lockContentionTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ticketing",
		Subsystem: "reservation",
		Name:      "lock_contention_total",
		Help:      "Seat lock acquisitions that found the lock taken",
	})

	sweptHoldsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ticketing",
		Subsystem: "sweeper",
		Name:      "released_holds_total",
		Help:      "Expired holds released by the sweeper",
	})

	sweepFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ticketing",
		Subsystem: "sweeper",
		Name:      "failures_total",
		Help:      "Expired holds the sweeper could not release on a pass",
	})

	inconsistentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ticketing",
		Subsystem: "reservation",
		Name:      "inconsistent_state_total",
		Help:      "Reservation mirrors rewritten because they diverged from the hold",
	})
)

// startSpan opens a span for an engine operation.
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// finish records the outcome of an operation on its span and counter.
func finish(span trace.Span, operation string, err error) {
	result := "ok"
	if err != nil {
		result = resultLabel(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	operationsTotal.WithLabelValues(operation, result).Inc()
	span.End()
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrContended):
		return "contended"
	case errors.Is(err, ErrSeatUnavailable):
		return "unavailable"
	case errors.Is(err, ErrExpiredHold):
		return "expired"
	case errors.Is(err, ErrSeatNotFound), errors.Is(err, ErrHoldNotFound), errors.Is(err, ErrQueueEntryNotFound):
		return "not_found"
	default:
		return "error"
	}
}
