package domain

import "time"

// RunReport is the serializable summary of a run, suitable for any renderer.
type RunReport struct {
	RunID       string      `json:"run_id"`
	Workflow    string      `json:"workflow"`
	Status      RunStatus   `json:"status"`
	Reason      string      `json:"reason,omitempty"`
	Error       string      `json:"error,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Duration    string      `json:"duration,omitempty"`
	Jobs        []JobReport `json:"jobs"`
}

// JobReport describes one job instance in a run report.
type JobReport struct {
	ID          InstanceID        `json:"id"`
	Job         string            `json:"job"`
	Matrix      MatrixValues      `json:"matrix,omitempty"`
	Status      JobStatus         `json:"status"`
	Reason      CancelReason      `json:"reason,omitempty"`
	Error       string            `json:"error,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Duration    string            `json:"duration,omitempty"`
	Outputs     map[string]string `json:"outputs,omitempty"`
}
