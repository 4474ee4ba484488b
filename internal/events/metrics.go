package events

import "github.com/prometheus/client_golang/prometheus"

var eventsDropped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "showcase_events_dropped_total",
		Help: "Engine events not delivered to a stream subscriber because its buffer was full.",
	},
	[]string{"engine"},
)

func init() {
	prometheus.MustRegister(eventsDropped)
}
