package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the relay's Prometheus collectors
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	PresenceRecords   prometheus.Gauge
	EventsTotal       *prometheus.CounterVec
	MessagesRouted    *prometheus.CounterVec
	RecordsPurged     prometheus.Counter
	EventsDropped     *prometheus.CounterVec
}

// Outcome labels for MessagesRouted
const (
	OutcomeDelivered  = "delivered"
	OutcomeUnresolved = "unresolved"
)

// Reason labels for EventsDropped
const (
	DropUnknownConnection = "unknown_connection"
	DropMalformedPayload  = "malformed_payload"
	DropUnknownEvent      = "unknown_event"
)

// New creates the relay metrics and registers them on the given registerer
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beacon_connections_active",
			Help: "Number of open WebSocket connections",
		}),
		PresenceRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beacon_presence_records",
			Help: "Number of presence records held (online and offline-in-grace)",
		}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_events_total",
			Help: "Inbound events handled, by event type",
		}, []string{"type"}),
		MessagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_messages_routed_total",
			Help: "Directed messages routed, by outcome",
		}, []string{"outcome"}),
		RecordsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beacon_records_purged_total",
			Help: "Presence records removed after the offline grace period",
		}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_events_dropped_total",
			Help: "Inbound events dropped without routing, by reason",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.ConnectionsActive,
		m.PresenceRecords,
		m.EventsTotal,
		m.MessagesRouted,
		m.RecordsPurged,
		m.EventsDropped,
	)
	return m
}

// NewUnregistered creates metrics on a throwaway registry, for tests
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
