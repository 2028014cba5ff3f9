package graph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/dagrun/pkg/domain"
)

func job(name string, needs ...string) domain.JobDefinition {
	return domain.JobDefinition{Name: name, Needs: needs, Steps: []domain.Step{{Run: "true"}}}
}

func TestBuild_LinearChain(t *testing.T) {
	wf := &domain.Workflow{Name: "ci", Jobs: []domain.JobDefinition{
		job("deploy", "test"),
		job("build"),
		job("test", "build"),
	}}

	g, err := Build(wf)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, []domain.InstanceID{"build", "test", "deploy"}, g.TopologicalOrder())

	deploy, ok := g.Instance("deploy")
	require.True(t, ok)
	require.Len(t, deploy.Deps, 1)
	assert.Equal(t, domain.InstanceID("test"), deploy.Deps[0].ID)
}

func TestBuild_MatrixNeedsAllInstances(t *testing.T) {
	build := job("build")
	build.Matrix = &domain.Matrix{Axes: []domain.Axis{{Name: "os", Values: []string{"linux", "mac"}}}}
	test := job("test", "build")
	test.Matrix = &domain.Matrix{Axes: []domain.Axis{{Name: "v", Values: []string{"1", "2", "3"}}}}

	g, err := Build(&domain.Workflow{Jobs: []domain.JobDefinition{build, test}})
	require.NoError(t, err)
	assert.Equal(t, 5, g.Len())

	j, ok := g.Job("test")
	require.True(t, ok)
	require.Len(t, j.Instances, 3)
	for _, in := range j.Instances {
		ids := make([]domain.InstanceID, 0, len(in.Deps))
		for _, d := range in.Deps {
			ids = append(ids, d.ID)
		}
		assert.ElementsMatch(t, []domain.InstanceID{"build (linux)", "build (mac)"}, ids, in.ID)
	}

	b, _ := g.Instance("build (mac)")
	assert.Len(t, b.Dependents, 3)
}

func TestBuild_MatrixValuesWithSeparators(t *testing.T) {
	j := job("j")
	j.Matrix = &domain.Matrix{Axes: []domain.Axis{
		{Name: "a", Values: []string{"x, y", "x"}},
		{Name: "b", Values: []string{"z", "y, z"}},
	}}

	g, err := Build(&domain.Workflow{Jobs: []domain.JobDefinition{j}})
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())

	in, ok := g.Instance(`j ("x, y", z)`)
	require.True(t, ok)
	assert.Equal(t, domain.MatrixValues{"a": "x, y", "b": "z"}, in.Matrix)
	in, ok = g.Instance(`j (x, "y, z")`)
	require.True(t, ok)
	assert.Equal(t, domain.MatrixValues{"a": "x", "b": "y, z"}, in.Matrix)
}

func TestBuild_CompilesOutputDeclarations(t *testing.T) {
	build := job("build")
	build.Outputs = map[string]string{
		"artifact": "${{ steps.pack.outputs.file }}",
		"static":   "fixed",
	}

	g, err := Build(&domain.Workflow{Jobs: []domain.JobDefinition{build, job("test", "build")}})
	require.NoError(t, err)

	j, _ := g.Job("build")
	require.Len(t, j.Outputs, 2)
	assert.Equal(t, "${{ steps.pack.outputs.file }}", j.Outputs["artifact"].String())
	assert.True(t, j.Outputs["static"].IsLiteral())

	test, _ := g.Job("test")
	assert.Nil(t, test.Outputs)
}

func TestBuild_DuplicateNeedsCollapsed(t *testing.T) {
	g, err := Build(&domain.Workflow{Jobs: []domain.JobDefinition{
		job("a"),
		job("b", "a", "a"),
	}})
	require.NoError(t, err)
	b, _ := g.Instance("b")
	assert.Len(t, b.Deps, 1)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		wf   *domain.Workflow
		kind error
		job  string
	}{
		{
			name: "empty workflow",
			wf:   &domain.Workflow{},
			kind: domain.ErrInvalidWorkflow,
		},
		{
			name: "duplicate name",
			wf:   &domain.Workflow{Jobs: []domain.JobDefinition{job("a"), job("a")}},
			kind: domain.ErrDuplicateJobName,
			job:  "a",
		},
		{
			name: "unknown dependency",
			wf:   &domain.Workflow{Jobs: []domain.JobDefinition{job("a", "ghost")}},
			kind: domain.ErrUnknownDependency,
			job:  "a",
		},
		{
			name: "self cycle",
			wf:   &domain.Workflow{Jobs: []domain.JobDefinition{job("a", "a")}},
			kind: domain.ErrCyclicDependency,
		},
		{
			name: "three cycle",
			wf: &domain.Workflow{Jobs: []domain.JobDefinition{
				job("root"), job("a", "root", "c"), job("b", "a"), job("c", "b"),
			}},
			kind: domain.ErrCyclicDependency,
		},
		{
			name: "bad condition",
			wf: &domain.Workflow{Jobs: []domain.JobDefinition{
				{Name: "a", Condition: "success() &&"},
			}},
			kind: domain.ErrInvalidExpression,
			job:  "a",
		},
		{
			name: "bad concurrency group",
			wf: &domain.Workflow{Jobs: []domain.JobDefinition{
				{Name: "a", Concurrency: &domain.ConcurrencySpec{Group: "deploy-${{ matrix.env"}},
			}},
			kind: domain.ErrInvalidExpression,
			job:  "a",
		},
		{
			name: "empty run concurrency group",
			wf: &domain.Workflow{
				Concurrency: &domain.ConcurrencySpec{Group: " "},
				Jobs:        []domain.JobDefinition{job("a")},
			},
			kind: domain.ErrInvalidWorkflow,
		},
		{
			name: "bad output template",
			wf: &domain.Workflow{Jobs: []domain.JobDefinition{
				{Name: "a", Outputs: map[string]string{"x": "${{ (steps.s.outputs.x }}"}},
			}},
			kind: domain.ErrInvalidExpression,
			job:  "a",
		},
		{
			name: "bad matrix",
			wf: &domain.Workflow{Jobs: []domain.JobDefinition{
				{Name: "a", Matrix: &domain.Matrix{Axes: []domain.Axis{{Name: "os"}}}},
			}},
			kind: domain.ErrMatrixConfiguration,
			job:  "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Build(tt.wf)
			require.Error(t, err)
			assert.Nil(t, g)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)

			var gerr *domain.GraphError
			require.True(t, errors.As(err, &gerr))
			assert.Equal(t, tt.job, gerr.Job)
		})
	}
}

func TestBuild_CycleWitness(t *testing.T) {
	_, err := Build(&domain.Workflow{Jobs: []domain.JobDefinition{
		job("root"), job("a", "root", "c"), job("b", "a"), job("c", "b"),
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a -> b -> c -> a")
}

func TestBuild_InstanceCollisionAcrossJobs(t *testing.T) {
	// A job literally named like another job's matrix instance.
	build := job("build")
	build.Matrix = &domain.Matrix{Axes: []domain.Axis{{Name: "os", Values: []string{"linux"}}}}

	_, err := Build(&domain.Workflow{Jobs: []domain.JobDefinition{build, job("build (linux)")}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMatrixConfiguration))
}

// randomDAG builds a workflow where job i may only need jobs with a smaller
// index, so it is acyclic by construction.
func randomDAG(edges []int) *domain.Workflow {
	n := len(edges)
	wf := &domain.Workflow{Name: "random"}
	for i := 0; i < n; i++ {
		def := job(fmt.Sprintf("j%d", i))
		for k := 0; k < i; k++ {
			if edges[i]&(1<<uint(k%16)) != 0 {
				def.Needs = append(def.Needs, fmt.Sprintf("j%d", k))
			}
		}
		if i%3 == 0 {
			def.Matrix = &domain.Matrix{Axes: []domain.Axis{{Name: "x", Values: []string{"1", "2"}}}}
		}
		wf.Jobs = append(wf.Jobs, def)
	}
	return wf
}

func TestBuild_TopologicalOrderProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every instance follows all its dependencies", prop.ForAll(
		func(edges []int) bool {
			g, err := Build(randomDAG(edges))
			if err != nil {
				return false
			}
			order := g.TopologicalOrder()
			if len(order) != g.Len() {
				return false
			}
			pos := make(map[domain.InstanceID]int, len(order))
			for i, id := range order {
				pos[id] = i
			}
			for _, in := range g.Instances() {
				for _, d := range in.Deps {
					if pos[d.ID] >= pos[in.ID] {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOfN(12, gen.IntRange(0, 1<<16-1)),
	))

	properties.Property("a back edge is always rejected as a cycle", prop.ForAll(
		func(edges []int) bool {
			wf := randomDAG(edges)
			// j0 -> ... chain closed by making j0 need the last job, which
			// needs j0 directly.
			last := len(wf.Jobs) - 1
			wf.Jobs[last].Needs = append(wf.Jobs[last].Needs, "j0")
			wf.Jobs[0].Needs = append(wf.Jobs[0].Needs, wf.Jobs[last].Name)
			_, err := Build(wf)
			return errors.Is(err, domain.ErrCyclicDependency)
		},
		gen.SliceOfN(8, gen.IntRange(0, 1<<16-1)),
	))

	properties.TestingRun(t)
}
