package observability

import (
	"sync"
	"time"
)

// MetricType represents the type of metric
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric represents a single metric
type Metric struct {
	Name      string                 `json:"name"`
	Type      MetricType             `json:"type"`
	Value     float64                `json:"value"`
	Labels    map[string]string      `json:"labels,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// MetricsCollector collects and stores application metrics in memory
type MetricsCollector struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics: make(map[string]*Metric),
	}
}

func metricKey(name string, labels map[string]string) string {
	key := name
	for k, v := range labels {
		key += "." + k + "=" + v
	}
	return key
}

// Inc increments a counter metric
func (mc *MetricsCollector) Inc(name string, labels map[string]string) {
	mc.Add(name, 1, labels)
}

// Add adds a value to a counter metric
func (mc *MetricsCollector) Add(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	if metric, exists := mc.metrics[key]; exists {
		metric.Value += value
		metric.Timestamp = time.Now()
		return
	}
	mc.metrics[key] = &Metric{
		Name:      name,
		Type:      MetricTypeCounter,
		Value:     value,
		Labels:    labels,
		Timestamp: time.Now(),
	}
}

// Set sets a gauge metric value
func (mc *MetricsCollector) Set(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	mc.metrics[key] = &Metric{
		Name:      name,
		Type:      MetricTypeGauge,
		Value:     value,
		Labels:    labels,
		Timestamp: time.Now(),
	}
}

// Observe records a duration observation, tracking count, sum and the mean.
func (mc *MetricsCollector) Observe(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	metric, exists := mc.metrics[key]
	if !exists {
		mc.metrics[key] = &Metric{
			Name:      name,
			Type:      MetricTypeHistogram,
			Value:     value,
			Labels:    labels,
			Timestamp: time.Now(),
			Extra:     map[string]interface{}{"count": 1.0, "sum": value},
		}
		return
	}

	count, _ := metric.Extra["count"].(float64)
	sum, _ := metric.Extra["sum"].(float64)
	count++
	sum += value
	metric.Extra["count"] = count
	metric.Extra["sum"] = sum
	metric.Value = sum / count
	metric.Timestamp = time.Now()
}

// Get retrieves a metric by name and labels
func (mc *MetricsCollector) Get(name string, labels map[string]string) (*Metric, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	metric, exists := mc.metrics[metricKey(name, labels)]
	return metric, exists
}

// GetAll retrieves a copy of all metrics
func (mc *MetricsCollector) GetAll() map[string]*Metric {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make(map[string]*Metric, len(mc.metrics))
	for k, v := range mc.metrics {
		result[k] = v
	}
	return result
}

// Reset clears all metrics
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.metrics = make(map[string]*Metric)
}

// Standard metric names
const (
	// Pipeline metrics
	MetricPipelineRuns        = "pipeline_runs_total"
	MetricPipelineDuration    = "pipeline_duration_seconds"
	MetricPipelineSuccess     = "pipeline_success_total"
	MetricPipelineFailure     = "pipeline_failure_total"
	MetricPipelineCacheHits   = "pipeline_cache_hits_total"
	MetricPipelineCacheMisses = "pipeline_cache_misses_total"
	MetricValidationFailures  = "pipeline_validation_failures_total"
	MetricSafetyViolations    = "pipeline_safety_violations_total"

	// Semantic parser metrics
	MetricParserRequests = "parser_requests_total"
	MetricParserDuration = "parser_request_duration_seconds"
	MetricParserErrors   = "parser_errors_total"

	// Database metrics
	MetricDBQueries  = "database_queries_total"
	MetricDBDuration = "database_query_duration_seconds"
	MetricDBErrors   = "database_errors_total"

	// HTTP metrics
	MetricHTTPRequests = "http_requests_total"
	MetricHTTPDuration = "http_request_duration_seconds"
	MetricHTTPErrors   = "http_errors_total"
)

var globalMetrics = NewMetricsCollector()

// GetGlobalMetrics returns the process-wide metrics collector
func GetGlobalMetrics() *MetricsCollector {
	return globalMetrics
}

// RecordPipelineMetrics records the standard metrics for one pipeline run
func RecordPipelineMetrics(duration time.Duration, success, cached bool, errorType string) {
	globalMetrics.Inc(MetricPipelineRuns, nil)
	globalMetrics.Observe(MetricPipelineDuration, duration.Seconds(), nil)

	if success {
		globalMetrics.Inc(MetricPipelineSuccess, nil)
	} else {
		globalMetrics.Inc(MetricPipelineFailure, map[string]string{"error_type": errorType})
	}

	if cached {
		globalMetrics.Inc(MetricPipelineCacheHits, nil)
	} else {
		globalMetrics.Inc(MetricPipelineCacheMisses, nil)
	}
}
