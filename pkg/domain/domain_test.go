package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatInstanceID(t *testing.T) {
	assert.Equal(t, InstanceID("build"), FormatInstanceID("build", nil, nil))
	assert.Equal(t, InstanceID("test (linux, 1.22)"),
		FormatInstanceID("test", []string{"os", "go"}, MatrixValues{"go": "1.22", "os": "linux"}))
	assert.Equal(t, InstanceID("test (linux, experimental=yes)"),
		FormatInstanceID("test", []string{"os"}, MatrixValues{"os": "linux", "experimental": "yes"}))
	assert.Equal(t, InstanceID("test (os=mac)"),
		FormatInstanceID("test", []string{"os", "go"}, MatrixValues{"os": "mac"}))
	assert.Equal(t, InstanceID(`test ("x, y", z)`),
		FormatInstanceID("test", []string{"a", "b"}, MatrixValues{"a": "x, y", "b": "z"}))
	assert.Equal(t, InstanceID(`test ("", "a=b")`),
		FormatInstanceID("test", []string{"a", "b"}, MatrixValues{"a": "", "b": "a=b"}))
}

func TestFormatInstanceID_DistinctAssignments(t *testing.T) {
	cases := []struct {
		axes []string
		x, y MatrixValues
	}{
		{[]string{"a", "b"}, MatrixValues{"a": "x, y", "b": "z"}, MatrixValues{"a": "x", "b": "y, z"}},
		{nil, MatrixValues{"a": "x"}, MatrixValues{"b": "x"}},
		{[]string{"os", "go"}, MatrixValues{"os": "c"}, MatrixValues{"go": "c"}},
		{[]string{"os"}, MatrixValues{"os": "linux", "x": "1"}, MatrixValues{"os": "linux", "y": "1"}},
		{[]string{"a"}, MatrixValues{"a": "x=1"}, MatrixValues{"x": "1"}},
		{[]string{"a"}, MatrixValues{"a": "(x)"}, MatrixValues{"a": "x"}},
	}
	for _, tc := range cases {
		assert.NotEqual(t, FormatInstanceID("j", tc.axes, tc.x), FormatInstanceID("j", tc.axes, tc.y), "%v vs %v", tc.x, tc.y)
		assert.NotEqual(t, tc.x.Key(), tc.y.Key())
	}
	assert.Equal(t, MatrixValues{"b": "2", "a": "1"}.Key(), MatrixValues{"a": "1", "b": "2"}.Key())
}

func TestExecutionContextLookup(t *testing.T) {
	ctx := &ExecutionContext{
		RunID:    "r1",
		Workflow: "ci",
		Job:      "deploy",
		Matrix:   MatrixValues{"os": "linux"},
		Vars:     map[string]string{"env": "prod"},
		Needs: map[string]NeedContext{
			"build": {Result: ResultSuccess, Outputs: map[string]string{"id": "42"}},
		},
	}

	tests := []struct {
		path []string
		want string
		ok   bool
	}{
		{[]string{"matrix", "os"}, "linux", true},
		{[]string{"vars", "env"}, "prod", true},
		{[]string{"run", "id"}, "r1", true},
		{[]string{"run", "workflow"}, "ci", true},
		{[]string{"job", "name"}, "deploy", true},
		{[]string{"needs", "build", "result"}, "success", true},
		{[]string{"needs", "build", "outputs", "id"}, "42", true},
		{[]string{"needs", "test", "result"}, "", false},
		{[]string{"matrix", "arch"}, "", false},
		{[]string{"secrets", "token"}, "", false},
	}
	for _, tt := range tests {
		got, ok := ctx.Lookup(tt.path)
		assert.Equal(t, tt.ok, ok, "%v", tt.path)
		assert.Equal(t, tt.want, got, "%v", tt.path)
	}
}

func TestGraphError(t *testing.T) {
	err := NewGraphError(ErrUnknownDependency, "deploy", "needs %q", "bulid")
	assert.True(t, errors.Is(err, ErrUnknownDependency))
	assert.Equal(t, `unknown dependency: job "deploy": needs "bulid"`, err.Error())

	assert.Equal(t, "duplicate job name: job \"a\"", (&GraphError{Kind: ErrDuplicateJobName, Job: "a"}).Error())
}

func TestCancelReasonAsError(t *testing.T) {
	var err error = ReasonFailFast
	var reason CancelReason
	assert.True(t, errors.As(err, &reason))
	assert.Equal(t, ReasonFailFast, reason)
	assert.Equal(t, "cancelled: fail_fast", err.Error())
}

func TestBlobKeys(t *testing.T) {
	assert.Equal(t, "runs/r1/logs/build.log", LogKey("r1", "build"))
	assert.Regexp(t, `^runs/r1/logs/build_linux_1\.21-[0-9a-f]{8}\.log$`, LogKey("r1", "build (linux, 1.21)"))
	assert.NotEqual(t, LogKey("r1", "a (b, c)"), LogKey("r1", "a (b_c)"))
	assert.Equal(t, "runs/r1/artifacts/app.tar.gz", ArtifactKey("r1", "app.tar.gz"))
	assert.Equal(t, "runs/r1/artifacts/etcpasswd", ArtifactKey("r1", "../etc/passwd"))
	assert.Equal(t, "unnamed", PathElement("///"))
}
