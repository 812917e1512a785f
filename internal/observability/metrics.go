// Package observability holds the reconciler's prometheus instruments.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/studysync/internal/domain"
)

// Outcome labels for per-record counters.
const (
	OutcomeInserted = "inserted"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
	OutcomeDeferred = "deferred"
)

// Metrics groups the reconciler instruments. A nil *Metrics records nothing.
type Metrics struct {
	records      *prometheus.CounterVec
	passes       *prometheus.CounterVec
	passDuration prometheus.Histogram
	lastPass     prometheus.Gauge
}

// NewMetrics creates the instruments and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studysync",
			Subsystem: "reconcile",
			Name:      "records_total",
			Help:      "Records handled by reconciliation passes, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studysync",
			Subsystem: "reconcile",
			Name:      "passes_total",
			Help:      "Reconciliation passes by result (success, partial, noop, cancelled, remote_unavailable).",
		}, []string{"result"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "studysync",
			Subsystem: "reconcile",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of a reconciliation pass.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		lastPass: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "studysync",
			Subsystem: "reconcile",
			Name:      "last_pass_completed_timestamp_seconds",
			Help:      "Unix timestamp of the most recent completed reconciliation pass.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.records, m.passes, m.passDuration, m.lastPass)
	}
	return m
}

// RecordOutcome counts n records of kind with the given outcome.
func (m *Metrics) RecordOutcome(kind domain.Kind, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.records.WithLabelValues(string(kind), outcome).Add(float64(n))
}

// RecordPass counts a finished pass and updates the completion watermark.
func (m *Metrics) RecordPass(result string, started, finished time.Time) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(result).Inc()
	if !started.IsZero() && !finished.IsZero() {
		m.passDuration.Observe(finished.Sub(started).Seconds())
	}
	if !finished.IsZero() {
		m.lastPass.Set(float64(finished.Unix()))
	}
}

// Records exposes the per-record counter for tests and dashboards.
func (m *Metrics) Records() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.records
}

// Passes exposes the pass counter.
func (m *Metrics) Passes() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.passes
}
