package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the arassist runtime.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDurations *prometheus.HistogramVec
	inferenceRetries prometheus.Counter
	parseFallbacks   prometheus.Counter
}

// NewMetrics creates a metrics collector backed by its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arassist_requests_total",
			Help: "Total pipeline requests by endpoint and status.",
		}, []string{"endpoint", "status"}),
		requestDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arassist_request_duration_seconds",
			Help:    "Pipeline request duration.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"endpoint"}),
		inferenceRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arassist_inference_retries_total",
			Help: "Total retried inference calls.",
		}),
		parseFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arassist_parse_fallbacks_total",
			Help: "Total responses that fell back to free-text parsing.",
		}),
	}

	registry.MustRegister(m.requestsTotal, m.requestDurations, m.inferenceRetries, m.parseFallbacks)
	return m
}

// RecordRequest records a completed pipeline request.
func (m *Metrics) RecordRequest(endpoint, status string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(endpoint, status).Inc()
	m.requestDurations.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordInferenceRetry records a retried inference call.
func (m *Metrics) RecordInferenceRetry() {
	m.inferenceRetries.Inc()
}

// RecordParseFallback records a response that did not match the
// expected structured shape.
func (m *Metrics) RecordParseFallback() {
	m.parseFallbacks.Inc()
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
