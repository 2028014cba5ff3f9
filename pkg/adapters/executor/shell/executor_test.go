package shell

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aescanero/dagrun/pkg/adapters/blob/memory"
	"github.com/aescanero/dagrun/pkg/domain"
	"github.com/aescanero/dagrun/pkg/expr"
	"github.com/aescanero/dagrun/pkg/ports"
)

func newExecutor(t *testing.T) (*Executor, *memory.BlobStore) {
	t.Helper()
	blobs := memory.NewBlobStore()
	return New(Config{WorkDir: t.TempDir(), KillGrace: time.Second}, blobs, zap.NewNop()), blobs
}

func request(job string, steps ...domain.Step) *ports.ExecutionRequest {
	return &ports.ExecutionRequest{
		Steps: steps,
		Context: domain.ExecutionContext{
			RunID:      "run-1",
			Workflow:   "ci",
			Job:        job,
			InstanceID: domain.InstanceID(job),
		},
	}
}

func outputs(decls map[string]string) map[string]*expr.Template {
	out := make(map[string]*expr.Template, len(decls))
	for name, src := range decls {
		out[name] = expr.MustCompileTemplate(src)
	}
	return out
}

func TestExecuteStepOutputsAndJobOutputs(t *testing.T) {
	e, _ := newExecutor(t)

	req := request("build",
		domain.Step{ID: "ver", Run: `echo "version=1.2.${{ matrix.patch }}" >> "$DAGRUN_OUTPUT"`},
		domain.Step{ID: "tag", Run: `echo "tag=v${{ steps.ver.outputs.version }}-$TARGET" >> "$DAGRUN_OUTPUT"`,
			Env: map[string]string{"TARGET": "${{ env.OS }}"}},
	)
	req.Context.Matrix = domain.MatrixValues{"patch": "3"}
	req.Context.Env = map[string]string{"OS": "linux"}
	req.Outputs = outputs(map[string]string{
		"version": "${{ steps.ver.outputs.version }}",
		"tag":     "${{ steps.tag.outputs.tag }}",
		"static":  "fixed",
	})

	res, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSucceeded, res.Status, res.Error)
	assert.Equal(t, map[string]string{
		"version": "1.2.3",
		"tag":     "v1.2.3-linux",
		"static":  "fixed",
	}, res.Outputs)
}

func TestExecuteStopsAtFailingStep(t *testing.T) {
	e, blobs := newExecutor(t)

	req := request("test",
		domain.Step{ID: "first", Run: `echo "seen=yes" >> "$DAGRUN_OUTPUT"`},
		domain.Step{Name: "boom", Run: `echo about to fail; exit 3`},
		domain.Step{ID: "never", Run: `echo "ran=yes" >> "$DAGRUN_OUTPUT"`},
	)
	req.Outputs = outputs(map[string]string{
		"seen": "${{ steps.first.outputs.seen }}",
		"ran":  "${{ steps.never.outputs.ran }}",
	})

	res, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, res.Status)
	assert.Equal(t, "boom: exit status 3", res.Error)
	assert.Equal(t, "yes", res.Outputs["seen"])
	assert.Equal(t, "", res.Outputs["ran"])

	log, err := blobs.Get(context.Background(), domain.LogKey("run-1", "test"))
	require.NoError(t, err)
	assert.Contains(t, string(log), "about to fail")
	assert.Contains(t, string(log), "## boom failed: exit status 3")
}

func TestExecuteHonoursCancellation(t *testing.T) {
	e, _ := newExecutor(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := e.Execute(ctx, request("slow", domain.Step{Run: "sleep 10"}))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, res.Status)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecuteArtifactsRoundTrip(t *testing.T) {
	e, blobs := newExecutor(t)

	res, err := e.Execute(context.Background(), request("build",
		domain.Step{Run: "mkdir -p out && printf 'binary' > out/app"},
		domain.Step{Upload: &domain.ArtifactRef{Name: "app", Path: "out/app"}},
	))
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusSucceeded, res.Status, res.Error)

	data, err := blobs.Get(context.Background(), domain.ArtifactKey("run-1", "app"))
	require.NoError(t, err)
	assert.Equal(t, "binary", string(data))

	req := request("deploy",
		domain.Step{Download: &domain.ArtifactRef{Name: "app", Path: "dist/app"}},
		domain.Step{ID: "read", Run: `echo "content=$(cat dist/app)" >> "$DAGRUN_OUTPUT"`},
	)
	req.Outputs = outputs(map[string]string{"content": "${{ steps.read.outputs.content }}"})

	res, err = e.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusSucceeded, res.Status, res.Error)
	assert.Equal(t, "binary", res.Outputs["content"])
}

func TestExecuteArtifactErrors(t *testing.T) {
	e, _ := newExecutor(t)

	res, err := e.Execute(context.Background(), request("deploy",
		domain.Step{Download: &domain.ArtifactRef{Name: "missing"}}))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, res.Status)
	assert.Contains(t, res.Error, "blob not found")

	res, err = e.Execute(context.Background(), request("escape",
		domain.Step{Upload: &domain.ArtifactRef{Name: "x", Path: "../../etc/passwd"}}))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, res.Status)
	assert.Contains(t, res.Error, "escapes the workspace")

	bare := New(Config{WorkDir: t.TempDir()}, nil, zap.NewNop())
	res, err = bare.Execute(context.Background(), request("upload",
		domain.Step{Upload: &domain.ArtifactRef{Name: "x"}}))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, res.Status)
	assert.Contains(t, res.Error, errNoBlobStore.Error())
}

func TestExecuteExportsRunEnvironment(t *testing.T) {
	e, _ := newExecutor(t)

	req := request("env", domain.Step{ID: "e",
		Run: `echo "id=$DAGRUN_RUN_ID" >> "$DAGRUN_OUTPUT"; echo "job=$DAGRUN_JOB" >> "$DAGRUN_OUTPUT"`})
	req.Outputs = outputs(map[string]string{
		"id":  "${{ steps.e.outputs.id }}",
		"job": "${{ steps.e.outputs.job }}",
	})

	res, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"id": "run-1", "job": "env"}, res.Outputs)
}

func TestExecuteCompilesStepTemplatesOnce(t *testing.T) {
	e, _ := newExecutor(t)

	const src = `echo "n=${{ matrix.n }}" >> "$DAGRUN_OUTPUT"`
	for _, n := range []string{"1", "2"} {
		req := request("count", domain.Step{ID: "s", Run: src})
		req.Context.Matrix = domain.MatrixValues{"n": n}
		req.Outputs = outputs(map[string]string{"n": "${{ steps.s.outputs.n }}"})

		res, err := e.Execute(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, n, res.Outputs["n"])
	}

	first, err := e.template(src)
	require.NoError(t, err)
	second, err := e.template(src)
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = e.template("${{ (broken }}")
	assert.Error(t, err)
}

func TestParseOutputs(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "simple pairs",
			input: "a=1\nb=two=2\n\n",
			want:  map[string]string{"a": "1", "b": "two=2"},
		},
		{
			name:  "last assignment wins",
			input: "a=1\na=2\n",
			want:  map[string]string{"a": "2"},
		},
		{
			name:  "heredoc",
			input: "notes<<EOF\nline one\nline two\nEOF\nafter=x\n",
			want:  map[string]string{"notes": "line one\nline two", "after": "x"},
		},
		{
			name:  "crlf",
			input: "a=1\r\n",
			want:  map[string]string{"a": "1"},
		},
		{
			name:    "unterminated heredoc",
			input:   "notes<<EOF\nline\n",
			wantErr: true,
		},
		{
			name:    "missing equals",
			input:   "garbage\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOutputs([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
