package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("ledger:gl_integrity").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("ledger:gl_integrity").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:gl_integrity", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:gl_integrity", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("ledger:gl_integrity")))
}

func TestAddIntegrityFindings(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddIntegrityFindings("unbalanced", 7, 2)
	m.AddIntegrityFindings("unbalanced", 7, 0)
	m.AddIntegrityFindings("cycle", 7, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.findings.WithLabelValues("unbalanced", "7")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.findings.WithLabelValues("cycle", "7")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.AddIntegrityFindings("unbalanced", 1, 3)
	assert.NoError(t, m.Track("x").End(nil))
}
