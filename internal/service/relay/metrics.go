package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	messagesRouted   *prometheus.CounterVec
	messagesRejected *prometheus.CounterVec
	holdConflicts    prometheus.Counter
	connectionsOpen  prometheus.Gauge
	roomsDeleted     prometheus.Counter
}

// NewMetrics registers the relay collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		messagesRouted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "playsync_messages_routed_total",
			Help: "Messages accepted by the relay, by sent type",
		}, []string{"type"}),

		messagesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "playsync_messages_rejected_total",
			Help: "Messages the relay refused to route, by reason",
		}, []string{"reason"}),

		holdConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "playsync_hold_conflicts_total",
			Help: "Hold requests answered with the current holder instead of being forwarded",
		}),

		connectionsOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "playsync_connections_open",
			Help: "Websocket connections terminated on this instance",
		}),

		roomsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "playsync_rooms_deleted_total",
			Help: "Rooms removed after their last member left",
		}),
	}
}

// ObserveRejected counts a message dropped before routing, e.g. by a rate
// limit.
func (m *Metrics) ObserveRejected(reason string) {
	m.messagesRejected.WithLabelValues(reason).Inc()
}
