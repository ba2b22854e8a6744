package taskx

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics receives queue activity. Implementations must be safe for
// concurrent use.
type Metrics interface {
	IncEnqueued(ctx context.Context, queue string)
	IncEnqueueErrors(ctx context.Context, queue string)
	ObserveOutcome(ctx context.Context, queue string, kind OutcomeKind, d time.Duration)
}

type queueMetrics struct {
	enqueued      metric.Int64Counter
	enqueueErrors metric.Int64Counter
	executed      metric.Int64Counter
	execTime      metric.Float64Histogram
}

const namespace = "taskx"

// NewMetrics creates OpenTelemetry instruments on mp.
func NewMetrics(mp metric.MeterProvider) (Metrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(queueMetrics)
	var err error

	if m.enqueued, err = meter.Int64Counter(
		"items_enqueued_total",
		metric.WithDescription("Total number of work items pushed to the store"),
	); err != nil {
		return nil, err
	}

	if m.enqueueErrors, err = meter.Int64Counter(
		"enqueue_errors_total",
		metric.WithDescription("Total number of enqueue attempts that failed"),
	); err != nil {
		return nil, err
	}

	if m.executed, err = meter.Int64Counter(
		"items_executed_total",
		metric.WithDescription("Total number of work items consumed, by outcome"),
	); err != nil {
		return nil, err
	}

	if m.execTime, err = meter.Float64Histogram(
		"item_execution_seconds",
		metric.WithDescription("Time spent decoding, resolving and running a work item"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *queueMetrics) IncEnqueued(ctx context.Context, queue string) {
	m.enqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queue)))
}

func (m *queueMetrics) IncEnqueueErrors(ctx context.Context, queue string) {
	m.enqueueErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queue)))
}

func (m *queueMetrics) ObserveOutcome(ctx context.Context, queue string, kind OutcomeKind, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("queue", queue),
		attribute.String("outcome", kind.String()),
	)
	m.executed.Add(ctx, 1, attrs)
	m.execTime.Record(ctx, d.Seconds(), attrs)
}

func defaultMetrics() Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic(err)
	}
	return m
}
