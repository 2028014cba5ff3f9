package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aescanero/dagrun/pkg/domain"
	"github.com/aescanero/dagrun/pkg/expr"
	"github.com/aescanero/dagrun/pkg/ports"
)

// Config configures the executor
type Config struct {
	// Shell is invoked as <Shell> -c <command>.
	Shell string
	// WorkDir is the parent of the per-instance workspaces; empty means the
	// system temp directory.
	WorkDir string
	// KillGrace is how long a cancelled command may keep its output open
	// after being killed.
	KillGrace time.Duration
}

// Executor implements ports.StepExecutor
type Executor struct {
	shell     string
	workDir   string
	killGrace time.Duration
	blobs     ports.BlobStore
	logger    *zap.Logger

	// templates caches compiled step templates by source text.
	templates sync.Map
}

// New creates a shell executor. blobs may be nil, in which case artifact
// steps fail and logs are not persisted.
func New(cfg Config, blobs ports.BlobStore, logger *zap.Logger) *Executor {
	if cfg.Shell == "" {
		cfg.Shell = "sh"
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 5 * time.Second
	}
	return &Executor{
		shell:     cfg.Shell,
		workDir:   cfg.WorkDir,
		killGrace: cfg.KillGrace,
		blobs:     blobs,
		logger:    logger,
	}
}

// Execute runs the steps in order, stopping at the first failure. Job
// outputs are rendered even when a step failed.
func (e *Executor) Execute(ctx context.Context, req *ports.ExecutionRequest) (*ports.ExecutionResult, error) {
	logger := e.logger.With(
		zap.String("run_id", req.Context.RunID),
		zap.String("instance", string(req.Context.InstanceID)))

	ws, err := os.MkdirTemp(e.workDir, domain.PathElement(string(req.Context.InstanceID))+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	defer os.RemoveAll(ws)

	sc := &stepContext{ExecutionContext: &req.Context, steps: make(map[string]map[string]string)}
	var log bytes.Buffer
	result := &ports.ExecutionResult{Status: domain.JobStatusSucceeded}

	for i, step := range req.Steps {
		name := stepName(i, step)
		fmt.Fprintf(&log, "## %s\n", name)

		var err error
		switch {
		case step.Upload != nil:
			err = e.upload(ctx, ws, req.Context.RunID, step.Upload, sc, &log)
		case step.Download != nil:
			err = e.download(ctx, ws, req.Context.RunID, step.Download, sc, &log)
		case step.Run != "":
			var outputs map[string]string
			outputs, err = e.run(ctx, ws, i, step, sc, &log)
			if step.ID != "" {
				sc.steps[step.ID] = outputs
			}
		}

		if err != nil {
			result.Status = domain.JobStatusFailed
			result.Error = fmt.Sprintf("%s: %v", name, err)
			fmt.Fprintf(&log, "## %s failed: %v\n", name, err)
			logger.Info("step failed", zap.String("step", name), zap.Error(err))
			break
		}
	}

	outputs, err := renderOutputs(req.Outputs, sc)
	if err != nil && result.Status == domain.JobStatusSucceeded {
		result.Status = domain.JobStatusFailed
		result.Error = err.Error()
	}
	result.Outputs = outputs

	e.persistLog(req, log.Bytes(), logger)
	return result, nil
}

func (e *Executor) run(ctx context.Context, ws string, index int, step domain.Step, sc *stepContext, log *bytes.Buffer) (map[string]string, error) {
	command, err := e.render(step.Run, sc)
	if err != nil {
		return nil, fmt.Errorf("interpolate command: %w", err)
	}

	outputFile := filepath.Join(ws, fmt.Sprintf(".dagrun-output-%d", index))
	if err := os.WriteFile(outputFile, nil, 0o600); err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	env, err := e.environment(sc, step, ws, outputFile)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, e.shell, "-c", command)
	cmd.Dir = ws
	cmd.Env = env
	cmd.Stdout = log
	cmd.Stderr = log
	cmd.WaitDelay = e.killGrace

	runErr := cmd.Run()

	data, err := os.ReadFile(outputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read output file: %w", err)
	}
	outputs, parseErr := parseOutputs(data)

	if runErr != nil {
		if ctx.Err() != nil {
			return outputs, context.Cause(ctx)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return outputs, fmt.Errorf("exit status %d", exitErr.ExitCode())
		}
		return outputs, runErr
	}
	if parseErr != nil {
		return outputs, parseErr
	}
	return outputs, nil
}

// environment builds the process environment: the executor's own
// environment, then workflow and job env, then step env, then the
// DAGRUN_* variables.
func (e *Executor) environment(sc *stepContext, step domain.Step, ws, outputFile string) ([]string, error) {
	env := os.Environ()
	env = appendSorted(env, sc.Env)

	stepEnv := make(map[string]string, len(step.Env))
	for k, v := range step.Env {
		rendered, err := e.render(v, sc)
		if err != nil {
			return nil, fmt.Errorf("interpolate env %s: %w", k, err)
		}
		stepEnv[k] = rendered
	}
	env = appendSorted(env, stepEnv)

	return append(env,
		"DAGRUN_OUTPUT="+outputFile,
		"DAGRUN_WORKSPACE="+ws,
		"DAGRUN_RUN_ID="+sc.RunID,
		"DAGRUN_WORKFLOW="+sc.Workflow,
		"DAGRUN_JOB="+sc.Job,
		"DAGRUN_INSTANCE="+string(sc.InstanceID),
	), nil
}

func (e *Executor) persistLog(req *ports.ExecutionRequest, data []byte, logger *zap.Logger) {
	if e.blobs == nil || len(data) == 0 {
		return
	}
	// The run context may already be cancelled; the log is still wanted.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key := domain.LogKey(req.Context.RunID, req.Context.InstanceID)
	if err := e.blobs.Put(ctx, key, data); err != nil {
		logger.Warn("failed to persist step log", zap.String("key", key), zap.Error(err))
	}
}

func renderOutputs(decls map[string]*expr.Template, sc *stepContext) (map[string]string, error) {
	if len(decls) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(decls))
	var errs []error
	for name, tpl := range decls {
		v, err := tpl.Render(sc)
		if err != nil {
			errs = append(errs, fmt.Errorf("output %s: %w", name, err))
			continue
		}
		out[name] = v
	}
	return out, errors.Join(errs...)
}

func (e *Executor) render(src string, ctx expr.Context) (string, error) {
	if !strings.Contains(src, "${{") {
		return src, nil
	}
	tpl, err := e.template(src)
	if err != nil {
		return "", err
	}
	return tpl.Render(ctx)
}

// template returns the compiled form of src, compiling it on first use.
func (e *Executor) template(src string) (*expr.Template, error) {
	if cached, ok := e.templates.Load(src); ok {
		return cached.(*expr.Template), nil
	}
	tpl, err := expr.CompileTemplate(src)
	if err != nil {
		return nil, err
	}
	actual, _ := e.templates.LoadOrStore(src, tpl)
	return actual.(*expr.Template), nil
}

func appendSorted(env []string, vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}

func stepName(i int, step domain.Step) string {
	switch {
	case step.Name != "":
		return step.Name
	case step.ID != "":
		return step.ID
	default:
		return fmt.Sprintf("step %d", i+1)
	}
}
