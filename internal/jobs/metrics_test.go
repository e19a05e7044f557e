package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("ledger:gl_integrity").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("ledger:gl_integrity").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:gl_integrity", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:gl_integrity", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("ledger:gl_integrity")))
}

func TestIntegrityIssuesAndCleanup(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddIntegrityIssues("drift", 7, 2)
	m.AddIntegrityIssues("drift", 7, 0)
	m.AddCleaned(3)
	m.AddCleaned(-1)

	require.Equal(t, 2.0, testutil.ToFloat64(m.issues.WithLabelValues("drift", "7")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.cleaned))

	var nilMetrics *Metrics
	nilMetrics.AddIntegrityIssues("drift", 1, 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}
