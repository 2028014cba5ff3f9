package graph

import (
	"strings"

	"github.com/aescanero/dagrun/internal/application/matrix"
	"github.com/aescanero/dagrun/pkg/domain"
	"github.com/aescanero/dagrun/pkg/expr"
)

// Build validates wf and materializes its RunGraph.
//
// It rejects, in order: duplicate job names, unknown needs, cyclic needs,
// expressions that do not compile and invalid matrices. Cycles are detected
// on the job relation before any instance is created.
func Build(wf *domain.Workflow) (*RunGraph, error) {
	if wf == nil || len(wf.Jobs) == 0 {
		return nil, domain.NewGraphError(domain.ErrInvalidWorkflow, "", "workflow has no jobs")
	}

	g := &RunGraph{
		Workflow:   wf,
		jobsByName: make(map[string]*Job, len(wf.Jobs)),
		byID:       make(map[domain.InstanceID]*Instance),
	}

	for i := range wf.Jobs {
		def := &wf.Jobs[i]
		if def.Name == "" {
			return nil, domain.NewGraphError(domain.ErrInvalidWorkflow, "", "job %d has no name", i)
		}
		if _, exists := g.jobsByName[def.Name]; exists {
			return nil, &domain.GraphError{Kind: domain.ErrDuplicateJobName, Job: def.Name}
		}
		j := &Job{Def: def, Index: i}
		g.jobs = append(g.jobs, j)
		g.jobsByName[def.Name] = j
	}

	for _, j := range g.jobs {
		seen := make(map[string]bool, len(j.Def.Needs))
		for _, need := range j.Def.Needs {
			if seen[need] {
				continue
			}
			seen[need] = true
			dep, ok := g.jobsByName[need]
			if !ok {
				return nil, domain.NewGraphError(domain.ErrUnknownDependency, j.Name(), "needs %q", need)
			}
			j.Needs = append(j.Needs, dep)
			dep.Dependents = append(dep.Dependents, j)
		}
	}

	if path := findCycle(g.jobs); path != nil {
		return nil, domain.NewGraphError(domain.ErrCyclicDependency, "", "%s", strings.Join(path, " -> "))
	}

	if err := g.compile(); err != nil {
		return nil, err
	}

	if err := g.expand(); err != nil {
		return nil, err
	}

	return g, nil
}

func (g *RunGraph) compile() error {
	if c := g.Workflow.Concurrency; c != nil {
		tpl, err := compileGroup("", c)
		if err != nil {
			return err
		}
		g.RunConcurrencyKey = tpl
	}

	for _, j := range g.jobs {
		if cond := strings.TrimSpace(j.Def.Condition); cond != "" {
			e, err := expr.Compile(cond)
			if err != nil {
				return domain.NewGraphError(domain.ErrInvalidExpression, j.Name(), "condition: %v", err)
			}
			j.Condition = e
		}

		if c := j.Def.Concurrency; c != nil {
			tpl, err := compileGroup(j.Name(), c)
			if err != nil {
				return err
			}
			j.ConcurrencyKey = tpl
		}

		if len(j.Def.Outputs) > 0 {
			j.Outputs = make(map[string]*expr.Template, len(j.Def.Outputs))
		}
		for name, src := range j.Def.Outputs {
			tpl, err := expr.CompileTemplate(src)
			if err != nil {
				return domain.NewGraphError(domain.ErrInvalidExpression, j.Name(), "output %q: %v", name, err)
			}
			j.Outputs[name] = tpl
		}
	}
	return nil
}

func compileGroup(job string, c *domain.ConcurrencySpec) (*expr.Template, error) {
	if strings.TrimSpace(c.Group) == "" {
		return nil, domain.NewGraphError(domain.ErrInvalidWorkflow, job, "concurrency group is empty")
	}
	tpl, err := expr.CompileTemplate(c.Group)
	if err != nil {
		return nil, domain.NewGraphError(domain.ErrInvalidExpression, job, "concurrency group: %v", err)
	}
	return tpl, nil
}

// expand creates the instances of every job and the all-to-all edges between
// a job's instances and the instances of the jobs it needs.
func (g *RunGraph) expand() error {
	for _, j := range g.jobs {
		combos, err := matrix.Expand(j.Name(), j.Def.Matrix)
		if err != nil {
			return err
		}
		axes := j.Def.Matrix.AxisNames()
		for _, c := range combos {
			in := &Instance{
				ID:     domain.FormatInstanceID(j.Name(), axes, c),
				Job:    j,
				Matrix: c,
				Index:  len(g.instances),
			}
			if _, exists := g.byID[in.ID]; exists {
				return domain.NewGraphError(domain.ErrMatrixConfiguration, j.Name(), "instance %s collides with another job", in.ID)
			}
			j.Instances = append(j.Instances, in)
			g.instances = append(g.instances, in)
			g.byID[in.ID] = in
		}
	}

	for _, j := range g.jobs {
		for _, in := range j.Instances {
			for _, need := range j.Needs {
				for _, dep := range need.Instances {
					in.Deps = append(in.Deps, dep)
					dep.Dependents = append(dep.Dependents, in)
				}
			}
		}
	}
	return nil
}
