package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetrics_Registers(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObserveLogin(OutcomeNewUser, 10*time.Millisecond)
	m.ObserveLogin(OutcomeRejected, time.Millisecond)
	m.ObserveLogin(OutcomeRejected, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginsTotal.WithLabelValues(OutcomeNewUser)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoginsTotal.WithLabelValues(OutcomeRejected)))
}

func TestMetrics_ObserveProvisioning(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveProvisioning(nil, time.Millisecond)
	m.ObserveProvisioning(errors.New("boom"), time.Millisecond)
	m.ObserveProvisioning(errors.New("boom"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProvisioningTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProvisioningTotal.WithLabelValues("failure")))
}

func TestMetrics_CacheAndUsers(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveCache("l1", true)
	m.ObserveCache("l1", false)
	m.ObserveSignupRace()
	m.SetUsersTotal(42)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("l1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("l1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SignupRacesTotal))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.UsersTotal))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveLogin(OutcomeError, time.Second)
		m.ObserveSignupRace()
		m.ObserveProvisioning(nil, time.Second)
		m.ObserveCache("redis", true)
		m.SetUsersTotal(1)
	})
}

func TestHTTPMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/auth/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/auth/users/abc", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/auth/users/{id}", "404")))
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.SetUsersTotal(3)

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "authgate_users_total 3")
}
