// Package metrics exposes Prometheus metrics for the session layer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coffee"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	gateDecisions  *prometheus.CounterVec
	profileLookup  *prometheus.HistogramVec
	sessionsIssued *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.gateDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gate",
		Name:      "decisions_total",
		Help:      "Request gate decisions by outcome and reason",
	}, []string{"decision", "reason"})

	m.profileLookup = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gate",
		Name:      "profile_lookup_duration_seconds",
		Help:      "Latency of the email-verified lookup performed by the gate",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"outcome"})

	m.sessionsIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "issued_total",
		Help:      "Session tokens issued by login method",
	}, []string{"method"})

	m.rateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-client rate limiter",
	}, []string{"route"})

	m.registry.MustRegister(
		m.gateDecisions,
		m.profileLookup,
		m.sessionsIssued,
		m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordDecision implements gate.DecisionRecorder.
func (m *Metrics) RecordDecision(decision, reason string) {
	m.gateDecisions.WithLabelValues(decision, reason).Inc()
}

// ObserveProfileLookup implements gate.DecisionRecorder.
func (m *Metrics) ObserveProfileLookup(d time.Duration, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.profileLookup.WithLabelValues(outcome).Observe(d.Seconds())
}

// SessionIssued counts a session handed out via method (password, register, magic_link).
func (m *Metrics) SessionIssued(method string) {
	m.sessionsIssued.WithLabelValues(method).Inc()
}

// RateLimited counts a request rejected on route.
func (m *Metrics) RateLimited(route string) {
	m.rateLimited.WithLabelValues(route).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
