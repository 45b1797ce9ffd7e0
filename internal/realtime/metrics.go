package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	clientsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_clients",
		Help: "Websocket clients currently subscribed to a session.",
	})

	droppedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_dropped_total",
			Help: "Events not delivered, by reason (queue_full, slow_client).",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(clientsGauge, droppedEvents)
}
