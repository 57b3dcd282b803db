// Package metrics provides Prometheus instrumentation for the Helixque
// pairing service. It exposes gauges for connection, queue and room counts,
// counters for pairing and message throughput, and a histogram for
// time-to-match.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "helixque_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// QueueSize tracks the current number of participants waiting to be paired.
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "helixque_queue_size",
		Help: "Current number of participants in the matchmaking queue",
	})

	// ActiveRooms tracks the current number of active rooms.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "helixque_active_rooms",
		Help: "Current number of active rooms",
	})

	// PairingsTotal counts rooms created since start.
	PairingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helixque_pairings_total",
		Help: "Total number of pairings made",
	})

	// QueueTimeoutsTotal counts queue entries that expired unmatched.
	QueueTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helixque_queue_timeouts_total",
		Help: "Total number of queue entries that timed out unmatched",
	})

	// MessagesTotal counts chat messages processed, labeled by outcome:
	// "sent", "blocked", or "rate_limited".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "helixque_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"outcome"})

	// ReportsTotal counts abuse reports submitted.
	ReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "helixque_reports_total",
		Help: "Total number of abuse reports submitted",
	})

	// TimeToMatch records the time a participant waited in the queue before
	// being paired.
	TimeToMatch = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "helixque_time_to_match_seconds",
		Help:    "Time from enqueue to pairing",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		QueueSize,
		ActiveRooms,
		PairingsTotal,
		QueueTimeoutsTotal,
		MessagesTotal,
		ReportsTotal,
		TimeToMatch,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
