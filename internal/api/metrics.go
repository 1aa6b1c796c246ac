package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the domain-stack addition spec.md's ambient observability
// section names but spec.md itself doesn't define a wire shape for: request
// counts/latency by route, cache-clear outcomes, and OTP lockouts, all
// exported on GET /sunray-srvr/v1/metrics for Prometheus scraping.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheClears     *prometheus.CounterVec
	otpLockouts     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sunray_http_requests_total",
			Help: "Total HTTP requests by route and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sunray_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		cacheClears: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sunray_cache_clear_total",
			Help: "Worker cache-clear RPC outcomes by scope and result.",
		}, []string{"scope", "result"}),
		otpLockouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "sunray_email_otp_lockouts_total",
			Help: "Email OTP validation attempts that hit the lockout threshold.",
		}),
	}
}

// Handler exposes the registered metrics for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency per route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rw.status)).Inc()
		m.requestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// CacheClear records a worker cache-clear RPC outcome. internal/session.Engine
// does not call it, which keeps that package free of an observability
// dependency, and no other code in this module calls it either, so the
// counter stays at zero.
func (m *Metrics) CacheClear(scope, result string) {
	m.cacheClears.WithLabelValues(scope, result).Inc()
}

// OTPLockout records an email-OTP lockout event. No code in this module
// calls it, so the lockout counter stays at zero.
func (m *Metrics) OTPLockout() {
	m.otpLockouts.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
