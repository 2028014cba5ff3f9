package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus
type Collector struct {
	runsSubmitted        *prometheus.CounterVec
	runsCompleted        *prometheus.CounterVec
	runDuration          *prometheus.HistogramVec
	jobsExecuted         *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	concurrencyDecisions *prometheus.CounterVec
	workerPoolIdle       prometheus.Gauge
	workerPoolBusy       prometheus.Gauge
	workerPoolStopped    prometheus.Gauge
	activeRuns           prometheus.Gauge
	queueDepth           prometheus.Gauge
	queueWaitTime        prometheus.Histogram
}

// NewCollector creates a collector whose metrics are registered on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		runsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dagrun_runs_submitted_total",
				Help: "Total number of runs submitted, by admission outcome",
			},
			[]string{"status"},
		),
		runsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dagrun_runs_completed_total",
				Help: "Total number of runs completed, by final status",
			},
			[]string{"status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dagrun_run_duration_seconds",
				Help:    "Run duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"status"},
		),
		jobsExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dagrun_jobs_executed_total",
				Help: "Total number of job instances executed",
			},
			[]string{"job", "status"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dagrun_job_duration_seconds",
				Help:    "Job instance execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		concurrencyDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dagrun_concurrency_decisions_total",
				Help: "Concurrency group admission decisions",
			},
			[]string{"decision"},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dagrun_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dagrun_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dagrun_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
		activeRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dagrun_active_runs",
				Help: "Number of runs queued or in progress",
			},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dagrun_queue_depth",
				Help: "Job instances waiting for a worker",
			},
		),
		queueWaitTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dagrun_queue_wait_seconds",
				Help:    "Time job instances spend waiting for a worker",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),
	}
}

// RecordRunSubmitted counts a submission
func (c *Collector) RecordRunSubmitted(status string) {
	c.runsSubmitted.WithLabelValues(status).Inc()
}

// RecordRunCompleted counts a finished run and observes its duration
func (c *Collector) RecordRunCompleted(status string, duration time.Duration) {
	c.runsCompleted.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordJobExecuted counts an instance that ran and observes its duration
func (c *Collector) RecordJobExecuted(job, status string, duration time.Duration) {
	c.jobsExecuted.WithLabelValues(job, status).Inc()
	c.jobDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordConcurrencyDecision counts an admission decision
func (c *Collector) RecordConcurrencyDecision(decision string) {
	c.concurrencyDecisions.WithLabelValues(decision).Inc()
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}

// SetActiveRuns sets the number of runs not yet finished
func (c *Collector) SetActiveRuns(count int) {
	c.activeRuns.Set(float64(count))
}

// SetQueueDepth sets the worker pool queue depth
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// ObserveQueueWaitTime observes how long an instance waited for a worker
func (c *Collector) ObserveQueueWaitTime(duration time.Duration) {
	c.queueWaitTime.Observe(duration.Seconds())
}
