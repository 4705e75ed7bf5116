package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("sales:recost").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("sales:recost").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("sales:recost", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("sales:recost", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("sales:recost")))
}

func TestAddRecost(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.AddRecost(4, 1)
	m.AddRecost(2, 0)

	assert.Equal(t, 6.0, testutil.ToFloat64(m.recosted.WithLabelValues("recosted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recosted.WithLabelValues("skipped")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")

	assert.ErrorIs(t, m.Track("x").End(boom), boom)
	assert.NotPanics(t, func() { m.AddRecost(1, 1) })
}
