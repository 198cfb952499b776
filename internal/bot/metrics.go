package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "subtrack"
	subsystem = "bot"
)

var (
	pollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "polls_total",
			Help:      "Total number of getUpdates calls",
		},
		[]string{"status"},
	)

	pollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "poll_duration_seconds",
			Help:      "Duration of getUpdates calls including the long poll",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 20, 30},
		},
	)

	updatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "updates_total",
			Help:      "Total number of received updates by outcome",
		},
		[]string{"outcome"},
	)
)

func recordPoll(status string) {
	pollsTotal.WithLabelValues(status).Inc()
}

func recordUpdate(outcome string) {
	updatesTotal.WithLabelValues(outcome).Inc()
}
