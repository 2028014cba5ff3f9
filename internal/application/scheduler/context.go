package scheduler

import (
	"github.com/aescanero/dagrun/pkg/domain"
)

// statusContext answers the status functions of a job condition from the
// states of the instance's dependencies.
type statusContext struct {
	*domain.ExecutionContext
	deps []*node
}

func (c *statusContext) Status(name string) bool {
	switch name {
	case "always":
		return true
	case "success":
		for _, d := range c.deps {
			if d.state.Status != domain.JobStatusSucceeded {
				return false
			}
		}
		return true
	case "failure":
		return c.any(domain.JobStatusFailed)
	case "cancelled":
		return c.any(domain.JobStatusCancelled)
	}
	return false
}

func (c *statusContext) any(status domain.JobStatus) bool {
	for _, d := range c.deps {
		if d.state.Status == status {
			return true
		}
	}
	return false
}

// condition decides whether n runs. No condition means success(); a
// condition without status functions is implicitly success() && (cond).
// Called with e.mu held, after every dependency is terminal.
func (e *Execution) condition(n *node) (bool, error) {
	deps := make([]*node, 0, len(n.inst.Deps))
	for _, d := range n.inst.Deps {
		deps = append(deps, e.nodes[d.Index])
	}
	sc := &statusContext{ExecutionContext: e.context(n), deps: deps}

	cond := n.inst.Job.Condition
	if cond == nil {
		return sc.Status("success"), nil
	}
	if !cond.UsesStatusFunction() && !sc.Status("success") {
		return false, nil
	}
	return cond.EvalBool(sc)
}

// context resolves what n can see: its matrix values, the merged workflow
// and job env, submission vars and the results and outputs of its needs.
// Called with e.mu held.
func (e *Execution) context(n *node) *domain.ExecutionContext {
	job := n.inst.Job
	wf := e.graph.Workflow

	env := make(map[string]string, len(wf.Env)+len(job.Def.Env))
	for k, v := range wf.Env {
		env[k] = v
	}
	for k, v := range job.Def.Env {
		env[k] = v
	}

	ctx := &domain.ExecutionContext{
		RunID:      e.runID,
		Workflow:   wf.Name,
		Job:        job.Name(),
		InstanceID: n.inst.ID,
		Matrix:     n.inst.Matrix.Clone(),
		Env:        env,
		Vars:       e.vars,
		Needs:      make(map[string]domain.NeedContext, len(job.Needs)),
	}
	for _, need := range job.Needs {
		ids := make([]domain.InstanceID, 0, len(need.Instances))
		statuses := make([]domain.JobStatus, 0, len(need.Instances))
		for _, in := range need.Instances {
			ids = append(ids, in.ID)
			statuses = append(statuses, e.nodes[in.Index].state.Status)
		}
		ctx.Needs[need.Name()] = domain.NeedContext{
			Result:  jobResult(statuses),
			Outputs: e.outputs.Merge(ids),
		}
	}
	return ctx
}

// jobResult folds the instance statuses of one job into needs.<job>.result.
func jobResult(statuses []domain.JobStatus) string {
	skipped := 0
	cancelled := false
	for _, s := range statuses {
		switch s {
		case domain.JobStatusFailed:
			return domain.ResultFailure
		case domain.JobStatusCancelled:
			cancelled = true
		case domain.JobStatusSkipped:
			skipped++
		}
	}
	switch {
	case cancelled:
		return domain.ResultCancelled
	case len(statuses) > 0 && skipped == len(statuses):
		return domain.ResultSkipped
	default:
		return domain.ResultSuccess
	}
}
