package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	mc := NewMetricsCollector()

	mc.Inc("requests_total", nil)
	mc.Inc("requests_total", nil)
	mc.Add("requests_total", 3, nil)

	metric, ok := mc.Get("requests_total", nil)
	require.True(t, ok)
	assert.Equal(t, MetricTypeCounter, metric.Type)
	assert.Equal(t, 5.0, metric.Value)
}

func TestCounterLabelsAreSeparateSeries(t *testing.T) {
	mc := NewMetricsCollector()

	mc.Inc("errors_total", map[string]string{"type": "timeout"})
	mc.Inc("errors_total", map[string]string{"type": "query"})
	mc.Inc("errors_total", map[string]string{"type": "timeout"})

	metric, ok := mc.Get("errors_total", map[string]string{"type": "timeout"})
	require.True(t, ok)
	assert.Equal(t, 2.0, metric.Value)

	metric, ok = mc.Get("errors_total", map[string]string{"type": "query"})
	require.True(t, ok)
	assert.Equal(t, 1.0, metric.Value)
}

func TestGauge(t *testing.T) {
	mc := NewMetricsCollector()

	mc.Set("pool_size", 10, nil)
	mc.Set("pool_size", 7, nil)

	metric, ok := mc.Get("pool_size", nil)
	require.True(t, ok)
	assert.Equal(t, MetricTypeGauge, metric.Type)
	assert.Equal(t, 7.0, metric.Value)
}

func TestObserveTracksMean(t *testing.T) {
	mc := NewMetricsCollector()

	mc.Observe("duration_seconds", 1.0, nil)
	mc.Observe("duration_seconds", 3.0, nil)

	metric, ok := mc.Get("duration_seconds", nil)
	require.True(t, ok)
	assert.Equal(t, MetricTypeHistogram, metric.Type)
	assert.Equal(t, 2.0, metric.Value)
	assert.Equal(t, 2.0, metric.Extra["count"])
	assert.Equal(t, 4.0, metric.Extra["sum"])
}

func TestReset(t *testing.T) {
	mc := NewMetricsCollector()
	mc.Inc("requests_total", nil)

	mc.Reset()

	_, ok := mc.Get("requests_total", nil)
	assert.False(t, ok)
	assert.Empty(t, mc.GetAll())
}
