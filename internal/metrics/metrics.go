// Package metrics exposes Prometheus collectors for the reply pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	replies           *prometheus.CounterVec
	resets            prometheus.Counter
	completions       *prometheus.CounterVec
	completionLatency prometheus.Histogram
	inbound           *prometheus.CounterVec
}

// New creates and registers all collectors, plus the Go runtime collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ohime",
			Name:      "replies_total",
			Help:      "Reply scheduler transitions by outcome (scheduled, coalesced, fired, eager, failed, missing_state).",
		}, []string{"outcome"}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ohime",
			Name:      "resets_total",
			Help:      "Conversations reset by command.",
		}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ohime",
			Name:      "completions_total",
			Help:      "Model completions by result (valid, invalid, error).",
		}, []string{"result"}),
		completionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ohime",
			Name:      "completion_duration_seconds",
			Help:      "Model completion latency.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ohime",
			Name:      "inbound_messages_total",
			Help:      "Inbound chat messages by route.",
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.replies, m.resets, m.completions, m.completionLatency, m.inbound,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Reply counts one scheduler transition.
func (m *Metrics) Reply(outcome string) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(outcome).Inc()
}

// Reset counts one conversation reset.
func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	m.resets.Inc()
}

// Inbound counts one routed inbound message.
func (m *Metrics) Inbound(route string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(route).Inc()
}

// ObserveCompletion records a completion's latency and result.
func (m *Metrics) ObserveCompletion(d time.Duration, valid bool, err error) {
	if m == nil {
		return
	}
	m.completionLatency.Observe(d.Seconds())
	switch {
	case err != nil:
		m.completions.WithLabelValues("error").Inc()
	case valid:
		m.completions.WithLabelValues("valid").Inc()
	default:
		m.completions.WithLabelValues("invalid").Inc()
	}
}
