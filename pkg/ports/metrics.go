package ports

import "time"

// MetricsCollector records orchestration metrics.
type MetricsCollector interface {
	RecordRunSubmitted(status string)
	RecordRunCompleted(status string, duration time.Duration)
	RecordJobExecuted(job, status string, duration time.Duration)
	RecordConcurrencyDecision(decision string)
	RecordWorkerPoolStatus(idle, busy, stopped int)
	SetActiveRuns(count int)
	SetQueueDepth(depth int)
	ObserveQueueWaitTime(duration time.Duration)
}
