package outbox

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the dispatcher instruments. A nil *Metrics records nothing.
type Metrics struct {
	delivered     prometheus.Counter
	failed        prometheus.Counter
	batchDuration prometheus.Histogram
}

// NewMetrics creates the dispatcher instruments and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "studysync",
			Subsystem: "outbox",
			Name:      "events_delivered_total",
			Help:      "Number of outbox events successfully published to Kafka.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "studysync",
			Subsystem: "outbox",
			Name:      "events_failed_total",
			Help:      "Number of outbox events that failed to publish and were scheduled for retry.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "studysync",
			Subsystem: "outbox",
			Name:      "batch_duration_seconds",
			Help:      "Time spent fetching, delivering, and marking outbox batches.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.delivered, m.failed, m.batchDuration)
	}
	return m
}

func (m *Metrics) observeDelivered(n int) {
	if m != nil {
		m.delivered.Add(float64(n))
	}
}

func (m *Metrics) observeFailed(n int) {
	if m != nil {
		m.failed.Add(float64(n))
	}
}

func (m *Metrics) observeBatch(seconds float64) {
	if m != nil {
		m.batchDuration.Observe(seconds)
	}
}
