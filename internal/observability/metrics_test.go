package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.TriggerDetected("SORENESS")
	m.TriggerDetected("SORENESS")
	m.ProposalCreated("PROPOSED", "DETERMINISTIC")
	m.Approval("applied")
	m.DroppedOps(2)
	m.DroppedOps(0)
	m.TxRetry()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TriggersDetected.WithLabelValues("SORENESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProposalsCreated.WithLabelValues("PROPOSED", "DETERMINISTIC")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Approvals.WithLabelValues("applied")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RewriteDroppedOps))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TxRetries))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TriggerDetected("SORENESS")
		m.ProposalCreated("DRAFT", "AI")
		m.Approval("applied")
		m.DroppedOps(1)
		m.TxRetry()
		m.ObserveApply(0.1)
	})
}
