package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "subtrack"

var messagesHandled = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "messages_total",
		Help:      "Incoming chat messages by how they were routed",
	},
	[]string{"kind"},
)

func recordMessage(kind string) {
	messagesHandled.WithLabelValues(kind).Inc()
}
