package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorder(t *testing.T) {
	r := NewNoopRecorder()

	assert.NotPanics(t, func() {
		r.SignInStarted("github")
		r.CallbackCompleted("github", "success")
		r.SignedOut()
		r.SessionCreated()
		r.SessionValidated("valid")
		r.SessionInvalidated()
	})
}

func TestPrometheusRecorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	r := NewPrometheusRecorderWithRegistry(registry)

	r.SignInStarted("github")
	r.SignInStarted("github")
	r.SignInStarted("google")
	r.CallbackCompleted("github", "success")
	r.CallbackCompleted("github", "invalid_request")
	r.SignedOut()
	r.SessionCreated()
	r.SessionValidated("valid")
	r.SessionValidated("renewed")
	r.SessionValidated("valid")
	r.SessionInvalidated()

	assert.Equal(t, float64(2), testutil.ToFloat64(r.signInsTotal.WithLabelValues("github")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.signInsTotal.WithLabelValues("google")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.callbacksTotal.WithLabelValues("github", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.callbacksTotal.WithLabelValues("github", "invalid_request")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.signOutsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.sessionsCreatedTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(r.sessionValidationsTotal.WithLabelValues("valid")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.sessionValidationsTotal.WithLabelValues("renewed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.sessionsInvalidated))
}

func TestPrometheusHandler(t *testing.T) {
	r := NewPrometheusRecorder()
	r.SessionCreated()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "auth_sessions_created_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
