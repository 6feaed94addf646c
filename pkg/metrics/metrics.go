// Package metrics defines the Prometheus metric collectors used across the
// visibility service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	IndexBuildsTotal     *prometheus.CounterVec
	IndexBuildDuration   prometheus.Histogram
	IndexedMessages      prometheus.Gauge
	HiddenMessages       prometheus.Gauge
	RangeOpsTotal        *prometheus.CounterVec
	RangeUpdatesEmitted  prometheus.Counter
	BackendOpsTotal      *prometheus.CounterVec
	BackendPendingOps    prometheus.Gauge
	BackendDegraded      prometheus.Gauge
	RenderPublishTotal   *prometheus.CounterVec
	EventsConsumedTotal  *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		IndexBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visibility_index_builds_total",
				Help: "Total visibility index builds by outcome (ok, error, timeout).",
			},
			[]string{"outcome"},
		),
		IndexBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "visibility_index_build_duration_seconds",
				Help:    "Visibility index build latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		IndexedMessages: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "visibility_indexed_messages",
				Help: "Number of messages covered by the current index snapshot.",
			},
		),
		HiddenMessages: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "visibility_hidden_messages",
				Help: "Number of messages currently hidden in the index snapshot.",
			},
		),
		RangeOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visibility_range_ops_total",
				Help: "Total range visibility operations by direction (hide, unhide) and outcome.",
			},
			[]string{"direction", "outcome"},
		),
		RangeUpdatesEmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "visibility_range_updates_emitted_total",
				Help: "Total individual visibility flips emitted by range operations.",
			},
		),
		BackendOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visibility_backend_ops_total",
				Help: "Execution backend operations by strategy (worker, local) and outcome.",
			},
			[]string{"strategy", "outcome"},
		),
		BackendPendingOps: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "visibility_backend_pending_ops",
				Help: "Operations currently awaiting a worker response.",
			},
		),
		BackendDegraded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "visibility_backend_degraded",
				Help: "1 when the worker backend has degraded to the local strategy.",
			},
		),
		RenderPublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visibility_render_publish_total",
				Help: "Render update batches published by outcome.",
			},
			[]string{"outcome"},
		),
		EventsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visibility_events_consumed_total",
				Help: "Host event bus events consumed by topic and outcome.",
			},
			[]string{"topic", "outcome"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.IndexBuildsTotal,
		m.IndexBuildDuration,
		m.IndexedMessages,
		m.HiddenMessages,
		m.RangeOpsTotal,
		m.RangeUpdatesEmitted,
		m.BackendOpsTotal,
		m.BackendPendingOps,
		m.BackendDegraded,
		m.RenderPublishTotal,
		m.EventsConsumedTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
