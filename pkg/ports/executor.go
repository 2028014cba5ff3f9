package ports

import (
	"context"

	"github.com/aescanero/dagrun/pkg/domain"
	"github.com/aescanero/dagrun/pkg/expr"
)

// ExecutionRequest is everything the step executor needs to run one instance.
type ExecutionRequest struct {
	Steps   []domain.Step
	Context domain.ExecutionContext
	// Outputs maps declared job output names to their compiled templates.
	Outputs map[string]*expr.Template
}

// ExecutionResult is the terminal outcome reported by the step executor.
type ExecutionResult struct {
	Status  domain.JobStatus
	Outputs map[string]string
	Error   string
}

// StepExecutor runs the steps of one job instance. Cancellation of ctx is a
// request, not a guarantee: implementations should stop as soon as practical
// and return whatever they have.
type StepExecutor interface {
	Execute(ctx context.Context, req *ExecutionRequest) (*ExecutionResult, error)
}
