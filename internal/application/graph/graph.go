// Package graph builds and validates the RunGraph of a workflow: one node per
// matrix-resolved job instance, with every instance of a job depending on all
// instances of each job it needs.
package graph

import (
	"github.com/aescanero/dagrun/pkg/domain"
	"github.com/aescanero/dagrun/pkg/expr"
)

// Job is a validated job definition with its compiled expressions.
type Job struct {
	Def   *domain.JobDefinition
	Index int

	// Condition is nil when the job uses the default success() policy.
	Condition      *expr.Expression
	ConcurrencyKey *expr.Template
	// Outputs holds the compiled job output declarations.
	Outputs map[string]*expr.Template

	Needs      []*Job
	Dependents []*Job
	Instances  []*Instance
}

// Name returns the job name.
func (j *Job) Name() string { return j.Def.Name }

// Instance is one concrete execution unit.
type Instance struct {
	ID     domain.InstanceID
	Job    *Job
	Matrix domain.MatrixValues
	Index  int

	Deps       []*Instance
	Dependents []*Instance
}

// RunGraph is the immutable instance graph of one submitted workflow. It is
// safe for concurrent reads.
type RunGraph struct {
	Workflow *domain.Workflow
	// RunConcurrencyKey is nil when the workflow has no run-level group.
	RunConcurrencyKey *expr.Template

	jobs       []*Job
	jobsByName map[string]*Job
	instances  []*Instance
	byID       map[domain.InstanceID]*Instance
}

// Jobs returns the jobs in declaration order.
func (g *RunGraph) Jobs() []*Job {
	out := make([]*Job, len(g.jobs))
	copy(out, g.jobs)
	return out
}

// Job returns a job by name.
func (g *RunGraph) Job(name string) (*Job, bool) {
	j, ok := g.jobsByName[name]
	return j, ok
}

// Instances returns all instances in expansion order.
func (g *RunGraph) Instances() []*Instance {
	out := make([]*Instance, len(g.instances))
	copy(out, g.instances)
	return out
}

// Instance returns an instance by ID.
func (g *RunGraph) Instance(id domain.InstanceID) (*Instance, bool) {
	in, ok := g.byID[id]
	return in, ok
}

// Len returns the number of instances.
func (g *RunGraph) Len() int { return len(g.instances) }

// TopologicalOrder returns instance IDs such that every instance follows all
// of its dependencies. The order among independent instances carries no
// meaning.
func (g *RunGraph) TopologicalOrder() []domain.InstanceID {
	indeg := make([]int, len(g.instances))
	for _, in := range g.instances {
		indeg[in.Index] = len(in.Deps)
	}

	queue := make([]*Instance, 0, len(g.instances))
	for _, in := range g.instances {
		if indeg[in.Index] == 0 {
			queue = append(queue, in)
		}
	}

	out := make([]domain.InstanceID, 0, len(g.instances))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		out = append(out, n.ID)
		for _, d := range n.Dependents {
			indeg[d.Index]--
			if indeg[d.Index] == 0 {
				queue = append(queue, d)
			}
		}
	}
	return out
}
