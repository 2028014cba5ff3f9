package domain

// JobStatus is the lifecycle state of a job instance.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusBlocked   JobStatus = "blocked"
	JobStatusReady     JobStatus = "ready"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusSkipped   JobStatus = "skipped"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusSkipped, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// RunStatus is the aggregate status of a run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the run has finished.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCancelled
}

// CancelReason is the reason code attached to a Cancelled instance.
// It implements error so it can be used as a context cancellation cause.
type CancelReason string

const (
	ReasonRunCancelled         CancelReason = "run_cancelled"
	ReasonFailFast             CancelReason = "fail_fast"
	ReasonConcurrencyPreempted CancelReason = "concurrency_preempted"
	ReasonSuperseded           CancelReason = "superseded"
	ReasonTimeout              CancelReason = "timeout"
	ReasonShutdown             CancelReason = "shutdown"
)

func (r CancelReason) Error() string { return "cancelled: " + string(r) }

// Result values exposed as needs.<job>.result.
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultCancelled = "cancelled"
	ResultSkipped   = "skipped"
)
