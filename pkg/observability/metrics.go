package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcomes recorded in LoginsTotal
const (
	OutcomeNewUser      = "new_user"
	OutcomeExistingUser = "existing_user"
	OutcomeRejected     = "rejected"
	OutcomeError        = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	LoginsTotal         *prometheus.CounterVec
	LoginDuration       prometheus.Histogram
	SignupRacesTotal    prometheus.Counter
	ProvisioningTotal   *prometheus.CounterVec
	ProvisioningLatency prometheus.Histogram

	// Directory cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Business metrics
	UsersTotal prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_logins_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		LoginDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "authgate_login_duration_seconds",
				Help:    "End-to-end login workflow duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		SignupRacesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authgate_signup_races_total",
				Help: "Signups that lost a duplicate-email race and were resolved as logins",
			},
		),
		ProvisioningTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_provisioning_notifications_total",
				Help: "Downstream new-user notifications by outcome",
			},
			[]string{"outcome"},
		),
		ProvisioningLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "authgate_provisioning_notification_duration_seconds",
				Help:    "Downstream new-user notification duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_cache_hits_total",
				Help: "Total number of directory cache hits",
			},
			[]string{"layer"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_cache_misses_total",
				Help: "Total number of directory cache misses",
			},
			[]string{"layer"},
		),

		UsersTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "authgate_users_total",
				Help: "Total number of user records in the directory",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginsTotal,
		m.LoginDuration,
		m.SignupRacesTotal,
		m.ProvisioningTotal,
		m.ProvisioningLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.UsersTotal,
	)

	return m
}

// ObserveLogin records a login outcome. Safe on a nil receiver.
func (m *Metrics) ObserveLogin(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(outcome).Inc()
	m.LoginDuration.Observe(duration.Seconds())
}

// ObserveSignupRace records a signup that lost a duplicate-email race
func (m *Metrics) ObserveSignupRace() {
	if m == nil {
		return
	}
	m.SignupRacesTotal.Inc()
}

// ObserveProvisioning records a downstream notification result
func (m *Metrics) ObserveProvisioning(err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.ProvisioningTotal.WithLabelValues(outcome).Inc()
	m.ProvisioningLatency.Observe(duration.Seconds())
}

// ObserveCache records a cache lookup on the given layer
func (m *Metrics) ObserveCache(layer string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(layer).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(layer).Inc()
}

// SetUsersTotal updates the directory size gauge
func (m *Metrics) SetUsersTotal(n int) {
	if m == nil {
		return
	}
	m.UsersTotal.Set(float64(n))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// The path label is the matched mux route template so IDs don't explode cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
