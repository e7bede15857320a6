// Package telemetry provides Prometheus metrics for the conversation
// gateway.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the gateway's operational metrics.
type Metrics struct {
	ActiveConversations prometheus.Gauge
	AdmissionRejections prometheus.Counter
	MessagesTranslated  prometheus.Counter
	TurnDuration        prometheus.Histogram
}

// NewMetrics registers the gateway metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConversations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "convogate_active_conversations",
			Help: "Number of currently registered conversations.",
		}),
		AdmissionRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "convogate_admission_rejections_total",
			Help: "Inits rejected because the concurrency cap was reached.",
		}),
		MessagesTranslated: factory.NewCounter(prometheus.CounterOpts{
			Name: "convogate_messages_translated_total",
			Help: "Chat messages emitted by the event translator.",
		}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "convogate_turn_duration_seconds",
			Help:    "Duration of one conversation turn, engine time included.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

// Discard returns metrics bound to a throwaway registry, for tests and
// default wiring.
func Discard() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
