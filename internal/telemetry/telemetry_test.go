package telemetry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/mohans/taskx"
)

func resetGlobal(t *testing.T) {
	t.Cleanup(func() { otel.SetMeterProvider(noop.NewMeterProvider()) })
}

func TestInitMetricsStdout(t *testing.T) {
	resetGlobal(t)
	ctx := context.Background()
	var buf bytes.Buffer

	mp, shutdown, err := InitMetrics(ctx, Config{
		ServiceName: "taskx-test",
		Exporter:    "stdout",
		Interval:    time.Hour,
		Writer:      &buf,
	})
	require.NoError(t, err)
	assert.Equal(t, mp, otel.GetMeterProvider())

	m, err := taskx.NewMetrics(otel.GetMeterProvider())
	require.NoError(t, err)
	m.IncEnqueued(ctx, "mail")
	m.ObserveOutcome(ctx, "mail", taskx.OutcomeSucceeded, 10*time.Millisecond)

	// shutdown exports what is pending
	require.NoError(t, shutdown(ctx))
	out := buf.String()
	assert.Contains(t, out, "items_enqueued_total")
	assert.Contains(t, out, "items_executed_total")
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "taskx-test")
}

func TestInitMetricsNone(t *testing.T) {
	resetGlobal(t)

	mp, shutdown, err := InitMetrics(context.Background(), Config{Exporter: "none"})
	require.NoError(t, err)
	assert.IsType(t, noop.MeterProvider{}, mp)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitMetricsUnknownExporter(t *testing.T) {
	_, _, err := InitMetrics(context.Background(), Config{Exporter: "statsd"})
	assert.ErrorContains(t, err, "statsd")
}
