// Package metrics exposes Prometheus collectors for the rank tracker.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	refreshOutcomesTotal       *prometheus.CounterVec
	providerRequestDuration    *prometheus.HistogramVec
	pacingDelaySeconds         *prometheus.HistogramVec
	retryQueueOpsTotal         *prometheus.CounterVec
	batchesTotal               *prometheus.CounterVec
	activeBatches              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		refreshOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serp_refresh_outcomes_total",
				Help: "Keyword refresh outcomes, labeled by provider and status.",
			},
			[]string{"provider", "status"},
		)

		providerRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "serp_provider_request_duration_seconds",
				Help:    "Histogram of provider request latencies.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		)

		pacingDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "serp_pacing_delay_seconds",
				Help:    "Histogram of delays inserted between consecutive provider requests.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider"},
		)

		retryQueueOpsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serp_retry_queue_ops_total",
				Help: "Retry queue mutations, labeled by operation.",
			},
			[]string{"op"},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serp_batches_total",
				Help: "Refresh batches processed, labeled by final status.",
			},
			[]string{"status"},
		)

		activeBatches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "serp_active_batches",
				Help: "Number of refresh batches currently running.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOutcome counts one keyword outcome.
func ObserveOutcome(provider, status string) {
	Init()
	refreshOutcomesTotal.WithLabelValues(provider, status).Inc()
}

// ObserveProviderRequest records how long a provider call took.
func ObserveProviderRequest(provider string, duration time.Duration) {
	Init()
	providerRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObservePacingDelay records an inter-request delay.
func ObservePacingDelay(provider string, duration time.Duration) {
	Init()
	pacingDelaySeconds.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveRetryQueueOp counts a retry queue mutation (add, remove, clear).
func ObserveRetryQueueOp(op string) {
	Init()
	retryQueueOpsTotal.WithLabelValues(op).Inc()
}

// ObserveBatch counts a finished batch.
func ObserveBatch(status string) {
	Init()
	batchesTotal.WithLabelValues(status).Inc()
}

// IncActiveBatches increments the running batch gauge.
func IncActiveBatches() {
	Init()
	activeBatches.Inc()
}

// DecActiveBatches decrements the running batch gauge.
func DecActiveBatches() {
	Init()
	activeBatches.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
