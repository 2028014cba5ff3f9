package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipeline = `
name: pipeline
jobs:
  build:
    outputs:
      version: ${{ steps.v.outputs.version }}
    steps:
      - id: v
        run: echo "version=${{ vars.version }}" >> "$DAGRUN_OUTPUT"
  test:
    needs: build
    strategy:
      matrix:
        shard: [a, b]
    steps:
      - run: echo testing ${{ matrix.shard }} ${{ needs.build.outputs.version }}
`

func writeWorkflow(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", writeWorkflow(t, pipeline))
	require.NoError(t, err)

	assert.Contains(t, out, `workflow "pipeline": 2 jobs, 3 instances`)
	assert.Contains(t, out, "  build\n")
	assert.Contains(t, out, "(needs build)")
	assert.Less(t, bytes.Index([]byte(out), []byte("  build\n")), bytes.Index([]byte(out), []byte("(needs build)")))
}

func TestValidateCommand_RejectsCycle(t *testing.T) {
	_, err := execute(t, "validate", writeWorkflow(t, `
name: loop
jobs:
  a:
    needs: b
    steps:
      - run: "true"
  b:
    needs: a
    steps:
      - run: "true"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic dependency")
}

func TestRunCommand(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("sh not available")
	}

	out, err := execute(t, "run", writeWorkflow(t, pipeline), "--var", "version=1.2.3")
	require.NoError(t, err)
	assert.Contains(t, out, "pipeline")
	assert.Contains(t, out, "build")
}

func TestRunCommand_FailedRunReturnsError(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("sh not available")
	}

	out, err := execute(t, "run", writeWorkflow(t, `
name: broken
jobs:
  build:
    steps:
      - run: exit 3
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
	assert.Contains(t, out, "build")
}
