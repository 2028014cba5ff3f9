package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/dagrun/pkg/ports"
)

var _ ports.MetricsCollector = (*Collector)(nil)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRunSubmitted("admitted")
	c.RecordRunSubmitted("admitted")
	c.RecordRunCompleted("succeeded", 3*time.Second)
	c.RecordJobExecuted("build", "failed", time.Second)
	c.RecordConcurrencyDecision("superseded")
	c.RecordWorkerPoolStatus(3, 1, 0)
	c.SetActiveRuns(2)
	c.SetQueueDepth(5)
	c.ObserveQueueWaitTime(10 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.runsSubmitted.WithLabelValues("admitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsCompleted.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobsExecuted.WithLabelValues("build", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.concurrencyDecisions.WithLabelValues("superseded")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.workerPoolIdle))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.workerPoolBusy))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.activeRuns))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.queueDepth))

	n, err := testutil.GatherAndCount(reg, "dagrun_queue_wait_seconds", "dagrun_run_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNewCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector(prometheus.NewRegistry())
		NewCollector(prometheus.NewRegistry())
	})
}
