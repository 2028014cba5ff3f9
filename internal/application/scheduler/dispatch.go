package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/aescanero/dagrun/internal/application/concurrency"
	"github.com/aescanero/dagrun/internal/application/workers"
	"github.com/aescanero/dagrun/pkg/domain"
	"github.com/aescanero/dagrun/pkg/ports"
)

var errInstanceTimeout = errors.New("instance timed out")

// dispatch hands a ready instance off: it claims the job's concurrency group,
// if any, and launches a goroutine that waits for admission and queues the
// instance on the pool. Called with e.mu held.
func (e *Execution) dispatch(ctx context.Context, n *node) {
	job := n.inst.Job
	n.dispatched = true
	e.active[job.Index]++

	instCtx, cancel := context.WithCancelCause(ctx)
	n.cancel = cancel

	execCtx := e.context(n)
	req := &ports.ExecutionRequest{
		Steps:   job.Def.Steps,
		Context: *execCtx,
		Outputs: job.Outputs,
	}

	if tpl := job.ConcurrencyKey; tpl != nil {
		key, err := tpl.Render(execCtx)
		if err != nil {
			e.logger.Warn("failed to render concurrency group, using it verbatim",
				zap.String("instance", string(n.inst.ID)),
				zap.Error(err))
			key = tpl.String()
		}
		holder := e.runID + "/" + string(n.inst.ID)
		n.ticket = e.s.concurrency.Submit(key, holder, job.Def.Concurrency.CancelInProgress,
			func(reason domain.CancelReason) { cancel(reason) })
	}

	go e.launch(instCtx, n.inst.Index, n.ticket, req)
}

func (e *Execution) launch(ctx context.Context, index int, ticket *concurrency.Ticket, req *ports.ExecutionRequest) {
	if ticket != nil {
		if err := ticket.Wait(ctx); err != nil {
			reason := domain.ReasonSuperseded
			if !errors.Is(err, concurrency.ErrSuperseded) {
				reason = reasonOf(err)
			}
			e.report(completion{index: index, status: domain.JobStatusCancelled, reason: reason})
			return
		}
	}

	id := e.runID + "/" + string(e.nodes[index].inst.ID)
	err := e.s.pool.Submit(ctx, id, func() { e.execute(ctx, index, ticket, req) })
	if err != nil {
		release(ticket)
		reason := reasonOf(err)
		if errors.Is(err, workers.ErrPoolStopped) {
			reason = domain.ReasonShutdown
		}
		e.report(completion{index: index, status: domain.JobStatusCancelled, reason: reason})
	}
}

// execute runs on a pool worker.
func (e *Execution) execute(ctx context.Context, index int, ticket *concurrency.Ticket, req *ports.ExecutionRequest) {
	defer release(ticket)

	if ctx.Err() != nil {
		e.report(completion{index: index, status: domain.JobStatusCancelled, reason: reasonOf(context.Cause(ctx))})
		return
	}
	if !e.markRunning(index) {
		return
	}

	inst := e.nodes[index].inst
	logger := e.logger.With(zap.String("instance", string(inst.ID)))

	timeout := e.s.jobTimeout
	if m := inst.Job.Def.TimeoutMinutes; m > 0 {
		timeout = time.Duration(m) * time.Minute
	}
	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeoutCause(ctx, timeout, errInstanceTimeout)
		defer cancel()
	}

	spanCtx, span := e.s.tracer.Start(execCtx, "job.execute", trace.WithAttributes(
		attribute.String("run.id", e.runID),
		attribute.String("job.name", inst.Job.Name()),
		attribute.String("job.instance", string(inst.ID)),
	))
	defer span.End()

	logger.Debug("executing instance")
	start := time.Now()
	result, err := e.invoke(spanCtx, req)

	c := completion{index: index}
	if result != nil {
		c.outputs = result.Outputs
	}
	switch {
	case ctx.Err() != nil:
		c.status = domain.JobStatusCancelled
		c.reason = reasonOf(context.Cause(ctx))
	case timeout > 0 && errors.Is(context.Cause(execCtx), errInstanceTimeout):
		c.status = domain.JobStatusFailed
		c.err = fmt.Sprintf("timed out after %s", timeout)
	case err != nil:
		c.status = domain.JobStatusFailed
		c.err = err.Error()
	case result == nil:
		c.status = domain.JobStatusFailed
		c.err = "executor returned no result"
	default:
		c.status = result.Status
		c.err = result.Error
		switch result.Status {
		case domain.JobStatusSucceeded, domain.JobStatusFailed:
		case domain.JobStatusCancelled:
			c.reason = domain.ReasonRunCancelled
		default:
			c.status = domain.JobStatusFailed
			c.err = fmt.Sprintf("executor returned non-terminal status %q", result.Status)
		}
	}

	span.SetAttributes(attribute.String("job.status", string(c.status)))
	if c.status == domain.JobStatusFailed {
		span.SetStatus(codes.Error, c.err)
	}
	logger.Info("instance finished",
		zap.String("status", string(c.status)),
		zap.String("reason", string(c.reason)),
		zap.Duration("duration", time.Since(start)))

	e.report(c)
}

// invoke calls the executor, turning a panic into an error.
func (e *Execution) invoke(ctx context.Context, req *ports.ExecutionRequest) (result *ports.ExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("executor panicked: %v", r)
		}
	}()
	return e.s.executor.Execute(ctx, req)
}

func (e *Execution) report(c completion) {
	e.done <- c
}

func release(t *concurrency.Ticket) {
	if t != nil {
		t.Release()
	}
}
