package extractor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "subtrack"

const (
	outcomeCandidate    = "candidate"
	outcomeInsufficient = "insufficient"
	outcomeError        = "error"
)

var (
	extractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "requests_total",
			Help:      "Free-text extractions by outcome",
		},
		[]string{"outcome"},
	)

	extractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "duration_seconds",
			Help:      "Model round-trip time",
			Buckets:   []float64{.25, .5, 1, 2, 5, 10, 20, 30},
		},
	)
)

func recordExtraction(outcome string) {
	extractionsTotal.WithLabelValues(outcome).Inc()
}
