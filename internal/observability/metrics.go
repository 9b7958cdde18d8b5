package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lake_forcing"

// Metrics holds the Prometheus counters, histograms, and gauges for the forcing pipelines.
type Metrics struct {
	// Feed metrics.
	FeedRequests     *prometheus.CounterVec   // labels: endpoint, outcome={success,unavailable,error,rejected}
	FeedCache        *prometheus.CounterVec   // labels: endpoint, result={hit,miss}
	FeedDuration     *prometheus.HistogramVec // labels: endpoint
	ForecastAttempts *prometheus.CounterVec   // labels: outcome={success,error}

	// Table metrics.
	RowsMerged     prometheus.Counter
	RowsDropped    prometheus.Counter
	ValuesReplaced *prometheus.CounterVec // labels: feature, stage={clip,deviation,clamp_residue}
	RowsPublished  prometheus.Counter

	// Run metrics.
	RunDuration     *prometheus.HistogramVec // labels: pipeline={boundary,profile}
	RunFailures     *prometheus.CounterVec   // labels: pipeline
	LastSuccess     *prometheus.GaugeVec     // labels: pipeline; unix seconds
	ProfileFallback prometheus.Counter
	PipelineRunning prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FeedRequests,
		m.FeedCache,
		m.FeedDuration,
		m.ForecastAttempts,
		m.RowsMerged,
		m.RowsDropped,
		m.ValuesReplaced,
		m.RowsPublished,
		m.RunDuration,
		m.RunFailures,
		m.LastSuccess,
		m.ProfileFallback,
		m.PipelineRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_requests_total",
			Help:      "Station feed requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		FeedCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_cache_total",
			Help:      "Feed response cache lookups by endpoint and result.",
		}, []string{"endpoint", "result"}),
		FeedDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_request_duration_seconds",
			Help:      "Station feed request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		ForecastAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_attempts_total",
			Help:      "Forecast grid fetch attempts by outcome.",
		}, []string{"outcome"}),
		RowsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_merged_total",
			Help:      "Complete rows produced by the merger.",
		}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Timestamps dropped for missing a required feature.",
		}),
		ValuesReplaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "values_replaced_total",
			Help:      "Values changed by the outlier filter by feature and stage.",
		}, []string{"feature", "stage"}),
		RowsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_published_total",
			Help:      "Cleaned feature rows written to Kafka.",
		}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete pipeline run.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"pipeline"}),
		RunFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Pipeline runs that ended in an error.",
		}, []string{"pipeline"}),
		LastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}, []string{"pipeline"}),
		ProfileFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_fallback_total",
			Help:      "Initial profiles built from the model node file instead of the feeds.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is in progress.",
		}),
	}
}
