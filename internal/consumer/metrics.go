package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the consumer instruments. A nil *Metrics records nothing.
type Metrics struct {
	processed     *prometheus.CounterVec
	handlerErrors *prometheus.CounterVec
	decodeErrors  *prometheus.CounterVec
	lastMessage   *prometheus.GaugeVec
}

// NewMetrics creates the consumer instruments and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studysync",
			Subsystem: "consumer",
			Name:      "messages_processed_total",
			Help:      "Number of Kafka messages successfully handled.",
		}, []string{"topic", "event_type"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studysync",
			Subsystem: "consumer",
			Name:      "handler_errors_total",
			Help:      "Number of handler errors grouped by topic and event type.",
		}, []string{"topic", "event_type"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studysync",
			Subsystem: "consumer",
			Name:      "decode_errors_total",
			Help:      "Number of decode failures per topic.",
		}, []string{"topic"}),
		lastMessage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "studysync",
			Subsystem: "consumer",
			Name:      "last_message_timestamp_seconds",
			Help:      "Unix timestamp of the most recent successfully processed message per topic.",
		}, []string{"topic"}),
	}
	if reg != nil {
		reg.MustRegister(m.processed, m.handlerErrors, m.decodeErrors, m.lastMessage)
	}
	return m
}

func (m *Metrics) recordProcessed(msg Message) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		m.lastMessage.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func (m *Metrics) recordHandlerError(msg Message) {
	if m != nil {
		m.handlerErrors.WithLabelValues(msg.Topic, msg.EventType).Inc()
	}
}

func (m *Metrics) recordDecodeError(topic string) {
	if m != nil {
		m.decodeErrors.WithLabelValues(topic).Inc()
	}
}
