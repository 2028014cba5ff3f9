// Package report derives the aggregate status of a run and renders its
// report.
package report

import (
	"time"

	"github.com/aescanero/dagrun/pkg/domain"
)

// Aggregate derives the run status from the terminal instance statuses:
// Succeeded iff every instance Succeeded or was Skipped, else Failed if any
// Failed, else Cancelled. A run without instances is Failed.
func Aggregate(states []domain.InstanceState) domain.RunStatus {
	if len(states) == 0 {
		return domain.RunStatusFailed
	}
	ok := true
	failed := false
	for _, s := range states {
		switch s.Status {
		case domain.JobStatusSucceeded, domain.JobStatusSkipped:
		case domain.JobStatusFailed:
			ok = false
			failed = true
		default:
			ok = false
		}
	}
	switch {
	case ok:
		return domain.RunStatusSucceeded
	case failed:
		return domain.RunStatusFailed
	default:
		return domain.RunStatusCancelled
	}
}

// Run carries the run-level facts a report is built from.
type Run struct {
	ID          string
	Workflow    string
	SubmittedAt time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	// Reason is set when the run as a whole was cancelled.
	Reason domain.CancelReason
	Err    error
}

// Build assembles the report of a finished or in-flight run. States are kept
// in the order given. The status is Aggregate of the states once every state
// is terminal, and Running otherwise.
func Build(run Run, states []domain.InstanceState) *domain.RunReport {
	r := &domain.RunReport{
		RunID:       run.ID,
		Workflow:    run.Workflow,
		SubmittedAt: run.SubmittedAt,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Reason:      string(run.Reason),
		Jobs:        make([]domain.JobReport, 0, len(states)),
	}
	if run.Err != nil {
		r.Error = run.Err.Error()
	}

	terminal := true
	for _, s := range states {
		if !s.Status.IsTerminal() {
			terminal = false
		}
		r.Jobs = append(r.Jobs, domain.JobReport{
			ID:          s.ID,
			Job:         s.Job,
			Matrix:      s.Matrix,
			Status:      s.Status,
			Reason:      s.Reason,
			Error:       s.Error,
			StartedAt:   s.StartedAt,
			CompletedAt: s.CompletedAt,
			Duration:    duration(s.StartedAt, s.CompletedAt),
			Outputs:     s.Outputs,
		})
	}

	switch {
	case run.StartedAt == nil && run.CompletedAt == nil:
		r.Status = domain.RunStatusQueued
	case !terminal || run.CompletedAt == nil:
		r.Status = domain.RunStatusRunning
	default:
		r.Status = Aggregate(states)
	}
	if len(states) == 0 && run.CompletedAt != nil {
		// Runs that never produced instances end by reason or error.
		if run.Reason != "" && run.Err == nil {
			r.Status = domain.RunStatusCancelled
		} else {
			r.Status = domain.RunStatusFailed
		}
	}
	r.Duration = duration(run.StartedAt, run.CompletedAt)
	return r
}

// BuildFailure returns the zero-job Failed report of a run rejected at build
// time.
func BuildFailure(runID, workflow string, submittedAt time.Time, err error) *domain.RunReport {
	completed := submittedAt
	return Build(Run{
		ID:          runID,
		Workflow:    workflow,
		SubmittedAt: submittedAt,
		CompletedAt: &completed,
		Err:         err,
	}, nil)
}

func duration(start, end *time.Time) string {
	if start == nil || end == nil {
		return ""
	}
	return end.Sub(*start).Round(time.Millisecond).String()
}
