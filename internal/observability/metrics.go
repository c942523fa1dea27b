package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names referenced by alert rules.
const (
	MetricHTTPRequests    = "adminory_http_requests_total"
	MetricHTTPDuration    = "adminory_http_request_duration_seconds"
	MetricTokensIssued    = "adminory_auth_tokens_issued_total"
	MetricRefreshOutcomes = "adminory_auth_refresh_total"
	MetricRevocations     = "adminory_auth_revocations_total"
)

// Metrics collects Prometheus metrics for the API.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensIssued    prometheus.Counter
	refreshes       *prometheus.CounterVec
	revocations     *prometheus.CounterVec
}

// NewMetrics initialises the registry with HTTP and auth collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: MetricHTTPRequests,
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    MetricHTTPDuration,
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	issued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricTokensIssued,
		Help: "Access/refresh token pairs issued.",
	})
	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: MetricRefreshOutcomes,
		Help: "Refresh attempts by result.",
	}, []string{"result"})
	revocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: MetricRevocations,
		Help: "Refresh token allow-records removed, by kind.",
	}, []string{"kind"})
	registry.MustRegister(requests, duration, issued, refreshes, revocations)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		tokensIssued:    issued,
		refreshes:       refreshes,
		revocations:     revocations,
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

// Middleware records every HTTP request.
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

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// TokensIssued counts one issued pair.
func (m *Metrics) TokensIssued() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
}

// RefreshOutcome counts a refresh attempt.
func (m *Metrics) RefreshOutcome(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

// Revocations adds n removed allow-records.
func (m *Metrics) Revocations(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.revocations.WithLabelValues(kind).Add(float64(n))
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
