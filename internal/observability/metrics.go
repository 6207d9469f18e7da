// Package observability holds the Prometheus metrics of the proposal engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "coaching"
	engineSubsystem  = "plan_engine"
)

// Metrics holds the engine's counters and histograms. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// TriggersDetected counts newly stored triggers. Labels: type.
	TriggersDetected *prometheus.CounterVec
	// ProposalsCreated counts persisted proposals. Labels: status, source.
	ProposalsCreated *prometheus.CounterVec
	// Approvals counts approval attempts. Labels: outcome (applied, or an error code).
	Approvals *prometheus.CounterVec
	// RewriteDroppedOps counts ops dropped by the safety rewriter.
	RewriteDroppedOps prometheus.Counter
	// TxRetries counts apply transactions retried after a retryable failure.
	TxRetries prometheus.Counter
	// ApplyDuration measures the apply transaction.
	ApplyDuration prometheus.Histogram
}

// NewMetrics registers the engine metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TriggersDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "triggers_detected_total",
			Help:      "Adaptation triggers stored, by trigger type.",
		}, []string{"type"}),
		ProposalsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "proposals_created_total",
			Help:      "Plan change proposals created, by status and source.",
		}, []string{"status", "source"}),
		Approvals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "approvals_total",
			Help:      "Proposal approval attempts, by outcome.",
		}, []string{"outcome"}),
		RewriteDroppedOps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "rewrite_dropped_ops_total",
			Help:      "Diff operations dropped by the safety rewriter.",
		}),
		TxRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "apply_tx_retries_total",
			Help:      "Apply transactions retried after a retryable failure.",
		}),
		ApplyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "apply_duration_seconds",
			Help:      "Duration of the apply transaction.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) TriggerDetected(triggerType string) {
	if m == nil {
		return
	}
	m.TriggersDetected.WithLabelValues(triggerType).Inc()
}

func (m *Metrics) ProposalCreated(status, source string) {
	if m == nil {
		return
	}
	m.ProposalsCreated.WithLabelValues(status, source).Inc()
}

func (m *Metrics) Approval(outcome string) {
	if m == nil {
		return
	}
	m.Approvals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DroppedOps(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RewriteDroppedOps.Add(float64(n))
}

func (m *Metrics) TxRetry() {
	if m == nil {
		return
	}
	m.TxRetries.Inc()
}

func (m *Metrics) ObserveApply(seconds float64) {
	if m == nil {
		return
	}
	m.ApplyDuration.Observe(seconds)
}
