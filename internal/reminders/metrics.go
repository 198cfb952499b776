package reminders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "subtrack"

var (
	evaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "evaluations_total",
			Help:      "Renewal evaluations by trigger",
		},
		[]string{"trigger"},
	)

	remindersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "deliveries_total",
			Help:      "Reminder deliveries by channel and result",
		},
		[]string{"channel_type", "result"},
	)

	markersPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "markers_purged_total",
			Help:      "Dedup markers removed by the daily sweep",
		},
	)
)

func recordEvaluation(trigger string) {
	evaluationsTotal.WithLabelValues(trigger).Inc()
}

func recordDelivery(channelType, result string) {
	remindersTotal.WithLabelValues(channelType, result).Inc()
}
