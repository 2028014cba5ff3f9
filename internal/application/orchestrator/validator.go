package orchestrator

import (
	"github.com/aescanero/dagrun/internal/application/graph"
	"github.com/aescanero/dagrun/pkg/domain"
)

// Validator checks the parts of a workflow the graph builder treats as
// opaque, then builds the run graph.
type Validator struct{}

// NewValidator creates a new workflow validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks wf and returns its run graph. Every error is a
// *domain.GraphError.
func (v *Validator) Validate(wf *domain.Workflow) (*graph.RunGraph, error) {
	if wf == nil {
		return nil, domain.NewGraphError(domain.ErrInvalidWorkflow, "", "workflow is nil")
	}

	for _, job := range wf.Jobs {
		if job.TimeoutMinutes < 0 {
			return nil, domain.NewGraphError(domain.ErrInvalidWorkflow, job.Name, "timeout must not be negative")
		}
		for i, step := range job.Steps {
			if err := v.validateStep(job.Name, i, step); err != nil {
				return nil, err
			}
		}
	}

	return graph.Build(wf)
}

// validateStep requires exactly one action per step.
func (v *Validator) validateStep(job string, index int, step domain.Step) error {
	actions := 0
	if step.Run != "" {
		actions++
	}
	if step.Upload != nil {
		actions++
		if step.Upload.Name == "" {
			return domain.NewGraphError(domain.ErrInvalidWorkflow, job, "step %d: upload needs a name", index+1)
		}
	}
	if step.Download != nil {
		actions++
		if step.Download.Name == "" {
			return domain.NewGraphError(domain.ErrInvalidWorkflow, job, "step %d: download needs a name", index+1)
		}
	}

	switch actions {
	case 1:
		return nil
	case 0:
		return domain.NewGraphError(domain.ErrInvalidWorkflow, job, "step %d has nothing to do", index+1)
	default:
		return domain.NewGraphError(domain.ErrInvalidWorkflow, job, "step %d sets more than one of run, upload and download", index+1)
	}
}
