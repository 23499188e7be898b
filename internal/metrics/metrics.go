// Package metrics provides Prometheus instrumentation for the dm-app
// services: counters for send outcomes and moderation checks, a latency
// histogram for the scoring service, and gauges for gateway connections.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SendsTotal counts completed send attempts, labeled by outcome:
	// "clean", "flagged", "blocked", or "failed".
	SendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dmapp_sends_total",
		Help: "Total number of send attempts by outcome",
	}, []string{"outcome"})

	// ModerationChecksTotal counts scoring service calls, labeled by
	// content kind and verdict ("clean" or "flagged").
	ModerationChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dmapp_moderation_checks_total",
		Help: "Total number of moderation checks by content kind and verdict",
	}, []string{"kind", "verdict"})

	// ModerationLatency records the latency of scoring service calls.
	ModerationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dmapp_moderation_latency_seconds",
		Help:    "Moderation check latency in seconds",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	// PushEventsTotal counts push events published, labeled by event kind
	// ("new_message" or "message_moderated").
	PushEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dmapp_push_events_total",
		Help: "Total number of push events published by kind",
	}, []string{"kind"})

	// GatewayConnections tracks the current number of WebSocket
	// connections on this gateway instance.
	GatewayConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dmapp_gateway_connections",
		Help: "Current number of active WebSocket connections",
	})
)

func init() {
	prometheus.MustRegister(
		SendsTotal,
		ModerationChecksTotal,
		ModerationLatency,
		PushEventsTotal,
		GatewayConnections,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
