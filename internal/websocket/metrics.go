package websocket

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the prometheus collectors for the realtime engine
type Metrics struct {
	ConnectedUsers  prometheus.Gauge
	Connections     prometheus.Gauge
	QueuedEvents    prometheus.Gauge
	EventsDelivered *prometheus.CounterVec
	EventsQueued    prometheus.Counter
	EventsEvicted   prometheus.Counter
	HandlerErrors   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered, which is what tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "realtime",
			Name:      "connected_users",
			Help:      "Number of users with at least one live connection.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "realtime",
			Name:      "connections",
			Help:      "Number of live connections.",
		}),
		QueuedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "realtime",
			Name:      "offline_queue_events",
			Help:      "Events currently buffered for offline users.",
		}),
		EventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "realtime",
			Name:      "events_delivered_total",
			Help:      "Frames handed to connections, by event type.",
		}, []string{"event"}),
		EventsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "realtime",
			Name:      "events_queued_total",
			Help:      "Events buffered because the target user was offline.",
		}),
		EventsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "realtime",
			Name:      "events_evicted_total",
			Help:      "Queued events dropped because the offline queue was full.",
		}),
		HandlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "realtime",
			Name:      "handler_errors_total",
			Help:      "Inbound requests answered with an error, by code.",
		}, []string{"code"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ConnectedUsers,
			m.Connections,
			m.QueuedEvents,
			m.EventsDelivered,
			m.EventsQueued,
			m.EventsEvicted,
			m.HandlerErrors,
		)
	}
	return m
}

func (m *Metrics) observeStats(stats Stats) {
	m.ConnectedUsers.Set(float64(stats.Users))
	m.Connections.Set(float64(stats.Connections))
	m.QueuedEvents.Set(float64(stats.QueuedEvents))
}
