package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "escompat"

// Engine Prometheus metrics.
var (
	EngineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_requests_total",
			Help:      "Total number of engine API calls",
		},
		[]string{"op", "status"},
	)

	EngineRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_request_duration_seconds",
			Help:      "Engine API call duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"op"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Retries scheduled after a retryable failure",
		},
		[]string{"op", "class"},
	)

	OperationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Terminal operation failures by error class",
		},
		[]string{"op", "class"},
	)

	RecoveredCreatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovered_creates_total",
			Help:      "Creates confirmed by re-reading after an ambiguous failure",
		},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Request events handed to the event sink",
		},
		[]string{"event", "status"},
	)
)

var engineMetricsRegistered bool

// RegisterEngineMetrics registers engine, retry and event metrics. Must be called once from main.
func RegisterEngineMetrics() {
	if engineMetricsRegistered {
		return
	}
	prometheus.MustRegister(EngineRequestsTotal)
	prometheus.MustRegister(EngineRequestDuration)
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(OperationErrorsTotal)
	prometheus.MustRegister(RecoveredCreatesTotal)
	prometheus.MustRegister(EventsPublishedTotal)
	engineMetricsRegistered = true
}
