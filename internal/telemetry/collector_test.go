package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) (*Collector, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return NewCollector(provider.Meter(instrumentationName), zap.NewNop()), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestCollectorRecordsExecutionCounter(t *testing.T) {
	c, reader := newTestCollector(t)

	c.RecordExecution(context.Background(), ExecutionRecord{
		Skill:   "web_search",
		Success: true,
		Latency: 42 * time.Millisecond,
	})
	c.RecordExecution(context.Background(), ExecutionRecord{
		Skill:     "web_search",
		Success:   false,
		Latency:   10 * time.Millisecond,
		ErrorCode: "timeout",
	})

	m, ok := findMetric(collect(t, reader), "skillgate.executions")
	require.True(t, ok)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 2)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)
}

func TestCollectorRecordsTokensAndCost(t *testing.T) {
	c, reader := newTestCollector(t)

	c.RecordExecution(context.Background(), ExecutionRecord{
		Skill:   "summarize",
		Model:   "gpt-4o-mini",
		Success: true,
		Latency: 120 * time.Millisecond,
		Tokens:  350,
		CostUSD: 0.0021,
	})

	rm := collect(t, reader)

	tokens, ok := findMetric(rm, "skillgate.execution.tokens")
	require.True(t, ok)
	tokenSum := tokens.Data.(metricdata.Sum[int64])
	require.Len(t, tokenSum.DataPoints, 1)
	assert.Equal(t, int64(350), tokenSum.DataPoints[0].Value)

	model, found := tokenSum.DataPoints[0].Attributes.Value(attribute.Key("model"))
	require.True(t, found)
	assert.Equal(t, "gpt-4o-mini", model.AsString())

	cost, ok := findMetric(rm, "skillgate.execution.cost")
	require.True(t, ok)
	costSum := cost.Data.(metricdata.Sum[float64])
	require.Len(t, costSum.DataPoints, 1)
	assert.InDelta(t, 0.0021, costSum.DataPoints[0].Value, 1e-9)
}

func TestCollectorSkipsZeroTokensAndCost(t *testing.T) {
	c, reader := newTestCollector(t)

	c.RecordExecution(context.Background(), ExecutionRecord{
		Skill:   "ping",
		Success: true,
		Latency: time.Millisecond,
	})

	rm := collect(t, reader)
	_, ok := findMetric(rm, "skillgate.execution.tokens")
	assert.False(t, ok)
	_, ok = findMetric(rm, "skillgate.execution.cost")
	assert.False(t, ok)
}

func TestCollectorFallbackAttribute(t *testing.T) {
	c, reader := newTestCollector(t)

	c.RecordExecution(context.Background(), ExecutionRecord{
		Skill:    "web_search",
		Success:  true,
		Latency:  5 * time.Millisecond,
		Fallback: "cached_search",
	})

	m, ok := findMetric(collect(t, reader), "skillgate.executions")
	require.True(t, ok)
	sum := m.Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)

	fb, found := sum.DataPoints[0].Attributes.Value(attribute.Key("fallback"))
	require.True(t, found)
	assert.Equal(t, "cached_search", fb.AsString())
}

func TestCollectorConcurrentWriters(t *testing.T) {
	c, reader := newTestCollector(t)

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 25; j++ {
				c.RecordExecution(context.Background(), ExecutionRecord{
					Skill:   "shared",
					Success: j%2 == 0,
					Latency: time.Millisecond,
				})
			}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	m, ok := findMetric(collect(t, reader), "skillgate.executions")
	require.True(t, ok)
	sum := m.Data.(metricdata.Sum[int64])

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(100), total)
}
