package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auth"

// PrometheusRecorder records sign-in and session metrics using Prometheus.
type PrometheusRecorder struct {
	gatherer prometheus.Gatherer

	signInsTotal            *prometheus.CounterVec
	callbacksTotal          *prometheus.CounterVec
	signOutsTotal           prometheus.Counter
	sessionsCreatedTotal    prometheus.Counter
	sessionValidationsTotal *prometheus.CounterVec
	sessionsInvalidated     prometheus.Counter
}

// NewPrometheusRecorder creates a recorder with its own registry, which also
// carries the Go runtime and process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewPrometheusRecorderWithRegistry(registry)
}

// NewPrometheusRecorderWithRegistry creates a recorder registered on registry.
// Use this for testing.
func NewPrometheusRecorderWithRegistry(registry *prometheus.Registry) *PrometheusRecorder {
	signInsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signin_started_total",
		Help:      "Total sign-in flows started",
	}, []string{"provider"})

	callbacksTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "callbacks_total",
		Help:      "Total OAuth callbacks by outcome",
	}, []string{"provider", "outcome"})

	signOutsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signouts_total",
		Help:      "Total sign-outs that invalidated a session",
	})

	sessionsCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Total sessions created",
	})

	sessionValidationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_validations_total",
		Help:      "Total session validations by result",
	}, []string{"result"})

	sessionsInvalidated := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_invalidated_total",
		Help:      "Total session invalidations",
	})

	registry.MustRegister(
		signInsTotal,
		callbacksTotal,
		signOutsTotal,
		sessionsCreatedTotal,
		sessionValidationsTotal,
		sessionsInvalidated,
	)

	return &PrometheusRecorder{
		gatherer:                registry,
		signInsTotal:            signInsTotal,
		callbacksTotal:          callbacksTotal,
		signOutsTotal:           signOutsTotal,
		sessionsCreatedTotal:    sessionsCreatedTotal,
		sessionValidationsTotal: sessionValidationsTotal,
		sessionsInvalidated:     sessionsInvalidated,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

func (p *PrometheusRecorder) SignInStarted(provider string) {
	p.signInsTotal.WithLabelValues(provider).Inc()
}

func (p *PrometheusRecorder) CallbackCompleted(provider, outcome string) {
	p.callbacksTotal.WithLabelValues(provider, outcome).Inc()
}

func (p *PrometheusRecorder) SignedOut() {
	p.signOutsTotal.Inc()
}

func (p *PrometheusRecorder) SessionCreated() {
	p.sessionsCreatedTotal.Inc()
}

func (p *PrometheusRecorder) SessionValidated(result string) {
	p.sessionValidationsTotal.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) SessionInvalidated() {
	p.sessionsInvalidated.Inc()
}

var _ Recorder = (*PrometheusRecorder)(nil)
