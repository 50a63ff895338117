// Package metrics holds the Prometheus collectors for the vizion server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on the default registerer.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge

	cacheLookups *prometheus.CounterVec
	gate         *prometheus.CounterVec
	scoreBatch   *prometheus.CounterVec
	rateLimited  *prometheus.CounterVec
}

// New registers all collectors under the given namespace ("vizion" if empty).
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "vizion"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)
	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	m.httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "HTTP requests currently being served.",
	})
	m.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Feed cache lookups by feed type and result (hit, miss, error).",
		},
		[]string{"feed", "result"},
	)
	m.gate = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Posting gate decisions by outcome.",
		},
		[]string{"outcome"},
	)
	m.scoreBatch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scores",
			Name:      "recomputed_total",
			Help:      "Engagement score recomputes by result.",
		},
		[]string{"result"},
	)
	m.rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "rejected_total",
			Help:      "Requests rejected by rate limiting, by rule.",
		},
		[]string{"rule"},
	)

	m.registry.MustRegister(
		m.httpRequests, m.httpDuration, m.httpInFlight,
		m.cacheLookups, m.gate, m.scoreBatch, m.rateLimited,
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordHTTPRequest(method, route, status string, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) IncInFlight() { m.httpInFlight.Inc() }
func (m *Metrics) DecInFlight() { m.httpInFlight.Dec() }

// CacheLookup records a feed cache lookup; result is hit, miss or error.
func (m *Metrics) CacheLookup(feed, result string) {
	m.cacheLookups.WithLabelValues(feed, result).Inc()
}

// GateDecision records a posting gate outcome.
func (m *Metrics) GateDecision(allowed bool) {
	if allowed {
		m.gate.WithLabelValues("allowed").Inc()
		return
	}
	m.gate.WithLabelValues("denied").Inc()
}

// ScoreBatch records the outcome of one recompute run.
func (m *Metrics) ScoreBatch(succeeded, failed int) {
	m.scoreBatch.WithLabelValues("ok").Add(float64(succeeded))
	m.scoreBatch.WithLabelValues("failed").Add(float64(failed))
}

// RateLimited records a rejected request.
func (m *Metrics) RateLimited(rule string) {
	m.rateLimited.WithLabelValues(rule).Inc()
}
