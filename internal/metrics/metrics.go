// Package metrics holds the Prometheus collectors of the chat daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "travelin",
			Subsystem: "chat",
			Name:      "connection_transitions_total",
			Help:      "Connection state transitions by target state.",
		},
		[]string{"to"},
	)

	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "travelin",
			Subsystem: "chat",
			Name:      "inbound_events_total",
			Help:      "Inbound events delivered to chat components by event name.",
		},
		[]string{"event"},
	)

	RejectedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "travelin",
			Subsystem: "chat",
			Name:      "rejected_frames_total",
			Help:      "Inbound frames rejected at the protocol boundary.",
		},
	)

	Sends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "travelin",
			Subsystem: "chat",
			Name:      "sends_total",
			Help:      "Message sends by result (sent, failed, rejected).",
		},
		[]string{"result"},
	)

	Notices = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "travelin",
			Subsystem: "chat",
			Name:      "notices_total",
			Help:      "Transient notices shown by level.",
		},
		[]string{"level"},
	)

	RESTRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "travelin",
			Subsystem: "api",
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts by result.",
		},
		[]string{"result"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
