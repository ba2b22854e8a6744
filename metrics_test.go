package taskx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/mohans/taskx/backend/memq"
)

func TestMetricsRecordQueueActivity(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)

	registry := NewRegistry()
	registry.MustRegister("noop", func() {})
	q := New(memq.New(), registry, &Options{Metrics: m, WaitTimeout: time.Second})

	for _, key := range []string{"noop", "noop", "missing"} {
		_, err := q.EnqueueCall(ctx, key)
		require.NoError(t, err)
	}
	_, err = q.EnqueueCall(ctx, "noop", struct{ A int }{1})
	require.Error(t, err)
	for i := 0; i < 3; i++ {
		_, err := q.ExecuteNext(ctx)
		require.NoError(t, err)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]metricdata.Sum[int64]{}
	hists := map[string]metricdata.Histogram[float64]{}
	for _, sm := range rm.ScopeMetrics {
		for _, mm := range sm.Metrics {
			switch d := mm.Data.(type) {
			case metricdata.Sum[int64]:
				sums[mm.Name] = d
			case metricdata.Histogram[float64]:
				hists[mm.Name] = d
			}
		}
	}

	total := func(name string) int64 {
		var n int64
		for _, dp := range sums[name].DataPoints {
			n += dp.Value
		}
		return n
	}
	assert.Equal(t, int64(3), total("items_enqueued_total"))
	assert.Equal(t, int64(1), total("enqueue_errors_total"))

	byOutcome := map[string]int64{}
	for _, dp := range sums["items_executed_total"].DataPoints {
		queue, ok := dp.Attributes.Value("queue")
		require.True(t, ok)
		assert.Equal(t, DefaultQueue, queue.AsString())
		outcome, ok := dp.Attributes.Value("outcome")
		require.True(t, ok)
		byOutcome[outcome.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"succeeded": 2, "not_found": 1}, byOutcome)

	var observed uint64
	for _, dp := range hists["item_execution_seconds"].DataPoints {
		observed += dp.Count
	}
	assert.Equal(t, uint64(3), observed)
}
