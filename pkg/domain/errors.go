package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidWorkflow     = errors.New("invalid workflow")
	ErrDuplicateJobName    = errors.New("duplicate job name")
	ErrUnknownDependency   = errors.New("unknown dependency")
	ErrCyclicDependency    = errors.New("cyclic dependency")
	ErrMatrixConfiguration = errors.New("matrix configuration error")
	ErrInvalidExpression   = errors.New("invalid expression")
)

// GraphError reports a build-time rejection of a workflow. Kind is one of the
// sentinel errors above and is matched with errors.Is.
type GraphError struct {
	Kind error
	Job  string
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Job != "" && e.Msg != "":
		return fmt.Sprintf("%s: job %q: %s", e.Kind.Error(), e.Job, e.Msg)
	case e.Job != "":
		return fmt.Sprintf("%s: job %q", e.Kind.Error(), e.Job)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
	default:
		return e.Kind.Error()
	}
}

func (e *GraphError) Unwrap() error { return e.Kind }

// NewGraphError builds a GraphError with a formatted message.
func NewGraphError(kind error, job, format string, args ...any) *GraphError {
	return &GraphError{Kind: kind, Job: job, Msg: fmt.Sprintf(format, args...)}
}
