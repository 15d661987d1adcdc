package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsService records pipeline metrics
type MetricsService interface {
	// HTTP metrics
	RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration)

	// Fetch metrics
	RecordFetch(source, status string, duration time.Duration)

	// Stage metrics
	RecordAggregation(status string, completed int, duration time.Duration)
	RecordReduction(status string, duration time.Duration)

	// Run metrics
	RecordRun(status string, duration time.Duration)
	IncrementActiveRuns()
	DecrementActiveRuns()

	// Cache metrics
	RecordCacheLookup(tier string, hit bool)
}

type prometheusMetrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	fetchesTotal  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	aggregationsTotal     *prometheus.CounterVec
	aggregationDuration   prometheus.Histogram
	aggregatedSeriesTotal prometheus.Counter
	reductionsTotal       *prometheus.CounterVec
	reductionDuration     prometheus.Histogram

	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	activeRuns  prometheus.Gauge

	cacheLookupsTotal *prometheus.CounterVec
}

// NewPrometheusMetrics registers the pipeline metrics on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusMetrics(reg prometheus.Registerer) MetricsService {
	m := &prometheusMetrics{}
	m.initMetrics(promauto.With(reg))
	return m
}

func (m *prometheusMetrics) initMetrics(factory promauto.Factory) {
	// HTTP metrics
	m.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_analyzer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	m.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stock_analyzer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Fetch metrics
	m.fetchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_analyzer_fetches_total",
			Help: "Total number of per-ticker fetches",
		},
		[]string{"source", "status"},
	)

	m.fetchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stock_analyzer_fetch_duration_seconds",
			Help:    "Per-ticker fetch duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"source"},
	)

	// Stage metrics
	m.aggregationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_analyzer_aggregations_total",
			Help: "Total number of aggregation stages by outcome",
		},
		[]string{"status"},
	)

	m.aggregationDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stock_analyzer_aggregation_duration_seconds",
			Help:    "Aggregation stage duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
	)

	m.aggregatedSeriesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_analyzer_aggregated_series_total",
			Help: "Total number of series that produced a derived value",
		},
	)

	m.reductionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_analyzer_reductions_total",
			Help: "Total number of reduction stages by outcome",
		},
		[]string{"status"},
	)

	m.reductionDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stock_analyzer_reduction_duration_seconds",
			Help:    "Reduction stage duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0},
		},
	)

	// Run metrics
	m.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_analyzer_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"status"},
	)

	m.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stock_analyzer_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"status"},
	)

	m.activeRuns = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "stock_analyzer_active_runs",
			Help: "Number of pipeline runs in progress",
		},
	)

	// Cache metrics
	m.cacheLookupsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_analyzer_cache_lookups_total",
			Help: "Total number of series cache lookups",
		},
		[]string{"tier", "result"},
	)
}

func (m *prometheusMetrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusLabel(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordFetch(source, status string, duration time.Duration) {
	m.fetchesTotal.WithLabelValues(source, status).Inc()
	m.fetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordAggregation(status string, completed int, duration time.Duration) {
	m.aggregationsTotal.WithLabelValues(status).Inc()
	m.aggregationDuration.Observe(duration.Seconds())
	m.aggregatedSeriesTotal.Add(float64(completed))
}

func (m *prometheusMetrics) RecordReduction(status string, duration time.Duration) {
	m.reductionsTotal.WithLabelValues(status).Inc()
	m.reductionDuration.Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordRun(status string, duration time.Duration) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *prometheusMetrics) IncrementActiveRuns() {
	m.activeRuns.Inc()
}

func (m *prometheusMetrics) DecrementActiveRuns() {
	m.activeRuns.Dec()
}

func (m *prometheusMetrics) RecordCacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(tier, result).Inc()
}

type noopMetrics struct{}

// NewNoopMetrics returns a MetricsService that records nothing
func NewNoopMetrics() MetricsService {
	return noopMetrics{}
}

func (noopMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}
func (noopMetrics) RecordFetch(string, string, time.Duration)            {}
func (noopMetrics) RecordAggregation(string, int, time.Duration)         {}
func (noopMetrics) RecordReduction(string, time.Duration)                {}
func (noopMetrics) RecordRun(string, time.Duration)                      {}
func (noopMetrics) IncrementActiveRuns()                                 {}
func (noopMetrics) DecrementActiveRuns()                                 {}
func (noopMetrics) RecordCacheLookup(string, bool)                       {}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
