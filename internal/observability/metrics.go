package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics exported by the costing service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	marginIgnored   prometheus.Counter
	costingRejected prometheus.Counter
	glosaConflicts  *prometheus.CounterVec
}

// NewMetrics builds a dedicated registry with the HTTP and costing collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	ignored := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_costing_margin_ignored_total",
		Help: "Sales priced with multiplier 1 because the margin target could not be applied.",
	})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_costing_validation_failures_total",
		Help: "Costing requests rejected by line or margin validation.",
	})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_glosa_conflicts_total",
		Help: "Glosa allocations left in conflict, by kind.",
	}, []string{"kind"})
	registry.MustRegister(requests, duration, ignored, rejected, conflicts)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		marginIgnored:   ignored,
		costingRejected: rejected,
		glosaConflicts:  conflicts,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and latency for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry so other packages can add collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// MarginIgnored counts a sale whose margin target fell back to multiplier 1.
func (m *Metrics) MarginIgnored() {
	if m == nil {
		return
	}
	m.marginIgnored.Inc()
}

// CostingRejected counts a costing request refused by validation.
func (m *Metrics) CostingRejected() {
	if m == nil {
		return
	}
	m.costingRejected.Inc()
}

// GlosaConflict counts an allocation that ended in conflict.
func (m *Metrics) GlosaConflict(kind string) {
	if m == nil {
		return
	}
	m.glosaConflicts.WithLabelValues(kind).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
