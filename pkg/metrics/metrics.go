// Package metrics exposes the bridge's Prometheus collectors on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	registry *prometheus.Registry

	// Turn metrics
	TurnsTotal   *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec
	ActiveTurns  prometheus.Gauge

	// Upstream metrics
	UpstreamFailuresTotal *prometheus.CounterVec

	// Channel metrics
	ChannelSendsTotal       *prometheus.CounterVec
	MessagesNormalizedTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowbridge_turns_total",
				Help: "Total number of turns by terminal state",
			},
			[]string{"channel", "state"},
		),
		TurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowbridge_turn_duration_seconds",
				Help:    "Duration of turns in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),
		ActiveTurns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowbridge_active_turns",
				Help: "Number of turns currently being processed",
			},
		),

		UpstreamFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowbridge_upstream_failures_total",
				Help: "Total number of failed dialogue runtime calls",
			},
			[]string{"step"},
		),

		ChannelSendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowbridge_channel_sends_total",
				Help: "Total number of channel send operations",
			},
			[]string{"channel", "kind", "status"},
		),
		MessagesNormalizedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowbridge_messages_normalized_total",
				Help: "Total number of normalized messages by kind",
			},
			[]string{"kind"},
		),
	}

	m.registry.MustRegister(
		m.TurnsTotal,
		m.TurnDuration,
		m.ActiveTurns,
		m.UpstreamFailuresTotal,
		m.ChannelSendsTotal,
		m.MessagesNormalizedTotal,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
