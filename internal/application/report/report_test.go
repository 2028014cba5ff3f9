package report

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/dagrun/pkg/domain"
)

func states(statuses ...domain.JobStatus) []domain.InstanceState {
	out := make([]domain.InstanceState, len(statuses))
	for i, s := range statuses {
		out[i] = domain.InstanceState{ID: domain.InstanceID(string(rune('a' + i))), Status: s}
	}
	return out
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		in   []domain.InstanceState
		want domain.RunStatus
	}{
		{"all succeeded", states(domain.JobStatusSucceeded, domain.JobStatusSucceeded), domain.RunStatusSucceeded},
		{"skipped counts as success", states(domain.JobStatusSucceeded, domain.JobStatusSkipped), domain.RunStatusSucceeded},
		{"any failed", states(domain.JobStatusSucceeded, domain.JobStatusFailed, domain.JobStatusCancelled), domain.RunStatusFailed},
		{"cancelled without failure", states(domain.JobStatusSucceeded, domain.JobStatusCancelled), domain.RunStatusCancelled},
		{"empty", nil, domain.RunStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.in))
		})
	}
}

func TestBuild(t *testing.T) {
	submitted := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	started := submitted.Add(time.Second)
	completed := started.Add(90 * time.Second)
	jobEnd := started.Add(30 * time.Second)

	in := []domain.InstanceState{
		{ID: "build", Job: "build", Status: domain.JobStatusSucceeded, StartedAt: &started, CompletedAt: &jobEnd, Outputs: map[string]string{"v": "1"}},
		{ID: "deploy", Job: "deploy", Status: domain.JobStatusSkipped},
	}
	r := Build(Run{ID: "r1", Workflow: "ci", SubmittedAt: submitted, StartedAt: &started, CompletedAt: &completed}, in)

	assert.Equal(t, domain.RunStatusSucceeded, r.Status)
	assert.Equal(t, "1m30s", r.Duration)
	require.Len(t, r.Jobs, 2)
	assert.Equal(t, "30s", r.Jobs[0].Duration)
	assert.Equal(t, map[string]string{"v": "1"}, r.Jobs[0].Outputs)
	assert.Empty(t, r.Jobs[1].Duration)
}

func TestBuild_InFlight(t *testing.T) {
	now := time.Now()
	r := Build(Run{ID: "r1", SubmittedAt: now}, states(domain.JobStatusPending))
	assert.Equal(t, domain.RunStatusQueued, r.Status)

	r = Build(Run{ID: "r1", SubmittedAt: now, StartedAt: &now}, states(domain.JobStatusSucceeded, domain.JobStatusRunning))
	assert.Equal(t, domain.RunStatusRunning, r.Status)
}

func TestBuild_SupersededBeforeStart(t *testing.T) {
	now := time.Now()
	r := Build(Run{ID: "r1", SubmittedAt: now, CompletedAt: &now, Reason: domain.ReasonSuperseded}, nil)
	assert.Equal(t, domain.RunStatusCancelled, r.Status)
	assert.Equal(t, "superseded", r.Reason)
	assert.Empty(t, r.Jobs)
}

func TestBuildFailure(t *testing.T) {
	err := &domain.GraphError{Kind: domain.ErrCyclicDependency, Msg: "a -> a"}
	r := BuildFailure("r1", "ci", time.Now(), err)

	assert.Equal(t, domain.RunStatusFailed, r.Status)
	assert.Empty(t, r.Jobs)
	assert.Contains(t, r.Error, "cyclic dependency")
	assert.True(t, errors.Is(err, domain.ErrCyclicDependency))
}

func TestMarkdown(t *testing.T) {
	now := time.Now()
	r := Build(Run{ID: "r1", Workflow: "ci", SubmittedAt: now, StartedAt: &now, CompletedAt: &now}, []domain.InstanceState{
		{ID: "build (linux)", Job: "build", Status: domain.JobStatusSucceeded, Outputs: map[string]string{"tag": "v1"}},
		{ID: "test", Job: "test", Status: domain.JobStatusFailed, Error: "exit status 1"},
		{ID: "lint", Job: "lint", Status: domain.JobStatusCancelled, Reason: domain.ReasonFailFast},
	})

	md := Markdown(r)
	assert.Contains(t, md, "# ci")
	assert.Contains(t, md, "- **Status:** failed")
	assert.Contains(t, md, "| build (linux) | ✅ succeeded |")
	assert.Contains(t, md, "exit status 1")
	assert.Contains(t, md, "fail_fast")
	assert.Contains(t, md, "| build (linux) | tag | `v1` |")
}
