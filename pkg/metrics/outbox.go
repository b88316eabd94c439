package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outbox row outcomes per publish attempt.
const (
	OutboxOutcomePublished = "published"
	OutboxOutcomeRetried   = "retried"
	OutboxOutcomeDead      = "dead_lettered"
)

// OutboxMetrics tracks the publisher. A growing backlog with no published
// rows means money events have stopped reaching consumers.
type OutboxMetrics struct {
	rows    *prometheus.CounterVec
	backlog prometheus.Gauge
}

// NewOutboxMetrics registers the outbox collectors on reg. A nil reg yields a
// no-op collector.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowpay_outbox_rows_total",
			Help: "Outbox rows handled by the publisher, by outcome.",
		}, []string{"outcome"}),
		backlog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "escrowpay_outbox_backlog",
			Help: "Unpublished outbox rows still eligible for publishing.",
		}),
	}
	reg.MustRegister(m.rows, m.backlog)
	return m
}

// AddRows counts n rows that ended a batch with outcome.
func (m *OutboxMetrics) AddRows(outcome string, n int) {
	if m == nil || m.rows == nil || n <= 0 {
		return
	}
	m.rows.WithLabelValues(outcome).Add(float64(n))
}

// SetBacklog records the pending row count.
func (m *OutboxMetrics) SetBacklog(n int64) {
	if m == nil || m.backlog == nil {
		return
	}
	m.backlog.Set(float64(n))
}
