// Package observability exposes prometheus metrics for the ntropiq HTTP API and its
// collaborator calls. Metrics live on a private registry so several servers (and tests)
// can coexist in one process.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ntropiq/pkg/ntropiqtypes"
)

// OutcomeOK labels a successful collaborator call.
const OutcomeOK = "ok"

// Metrics holds the ntropiq collectors.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	rateLimited       prometheus.Counter
	collaboratorCalls *prometheus.CounterVec
	collaboratorTime  *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a fresh registry, together with the Go and
// process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ntropiq_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		}, []string{"route", "method", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ntropiq_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{"route"}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "ntropiq_http_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
		collaboratorCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ntropiq_collaborator_calls_total",
			Help: "Collaborator calls by collaborator and outcome (ok or failure kind)",
		}, []string{"collaborator", "outcome"}),
		collaboratorTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ntropiq_collaborator_duration_seconds",
			Help:    "Collaborator call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 11), // 50ms to ~50s
		}, []string{"collaborator"}),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveRateLimited counts a rejected request.
func (m *Metrics) ObserveRateLimited() {
	m.rateLimited.Inc()
}

// ObserveCollaborator records one collaborator call. A nil err is a success.
func (m *Metrics) ObserveCollaborator(collaborator string, err *ntropiqtypes.CollaboratorError, elapsed time.Duration) {
	outcome := OutcomeOK
	if err != nil {
		outcome = string(err.Kind)
	}
	m.collaboratorCalls.WithLabelValues(collaborator, outcome).Inc()
	m.collaboratorTime.WithLabelValues(collaborator).Observe(elapsed.Seconds())
}
