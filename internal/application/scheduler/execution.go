package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aescanero/dagrun/internal/application/concurrency"
	"github.com/aescanero/dagrun/internal/application/graph"
	"github.com/aescanero/dagrun/internal/application/outputs"
	"github.com/aescanero/dagrun/pkg/domain"
)

// allowed lists the legal transitions of the instance state machine.
var allowed = map[domain.JobStatus][]domain.JobStatus{
	domain.JobStatusPending: {domain.JobStatusBlocked, domain.JobStatusReady, domain.JobStatusSkipped, domain.JobStatusCancelled, domain.JobStatusFailed},
	domain.JobStatusBlocked: {domain.JobStatusReady, domain.JobStatusSkipped, domain.JobStatusCancelled, domain.JobStatusFailed},
	domain.JobStatusReady:   {domain.JobStatusRunning, domain.JobStatusCancelled},
	domain.JobStatusRunning: {domain.JobStatusSucceeded, domain.JobStatusFailed, domain.JobStatusCancelled},
}

func canTransition(from, to domain.JobStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

type node struct {
	inst  *graph.Instance
	state domain.InstanceState

	waiting    int
	dispatched bool
	cancel     context.CancelCauseFunc
	ticket     *concurrency.Ticket
}

// completion is a worker's report of one instance.
type completion struct {
	index   int
	status  domain.JobStatus
	reason  domain.CancelReason
	err     string
	outputs map[string]string
}

// Execution is the mutable state of one run. Snapshot may be called from any
// goroutine while Run is in progress.
type Execution struct {
	s        *Scheduler
	graph    *graph.RunGraph
	runID    string
	vars     map[string]string
	observer Observer
	outputs  *outputs.Store
	logger   *zap.Logger

	// emitMu keeps observer callbacks in transition order. It is taken
	// while holding mu and released after the callbacks run.
	emitMu sync.Mutex

	mu        sync.Mutex
	nodes     []*node
	ready     []*node
	unblocked []*node
	active    map[int]int
	remaining int
	pending   []domain.InstanceState

	done chan completion
}

func newExecution(s *Scheduler, g *graph.RunGraph, opts RunOptions) *Execution {
	e := &Execution{
		s:        s,
		graph:    g,
		runID:    opts.RunID,
		vars:     opts.Vars,
		observer: opts.Observer,
		outputs:  outputs.NewStore(),
		logger:   s.logger.With(zap.String("run_id", opts.RunID)),
		active:   make(map[int]int),
		done:     make(chan completion, g.Len()),
	}
	for _, in := range g.Instances() {
		e.nodes = append(e.nodes, &node{
			inst:    in,
			waiting: len(in.Deps),
			state: domain.InstanceState{
				ID:     in.ID,
				Job:    in.Job.Name(),
				Matrix: in.Matrix,
				Status: domain.JobStatusPending,
			},
		})
	}
	e.remaining = len(e.nodes)
	return e
}

// Outputs exposes the run's output store.
func (e *Execution) Outputs() *outputs.Store { return e.outputs }

// Snapshot returns a copy of every instance state in expansion order.
func (e *Execution) Snapshot() []domain.InstanceState {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.InstanceState, len(e.nodes))
	for i, n := range e.nodes {
		out[i] = copyState(n.state)
	}
	return out
}

// Run drives every instance to a terminal state and returns the final
// states. Cancelling ctx cancels the run; its cause, if a
// domain.CancelReason, becomes the reason of every instance it cancels.
func (e *Execution) Run(ctx context.Context) []domain.InstanceState {
	e.logger.Info("run started", zap.Int("instances", len(e.nodes)))

	e.mu.Lock()
	for _, n := range e.nodes {
		if n.waiting == 0 {
			e.unblocked = append(e.unblocked, n)
		} else {
			e.transition(n, domain.JobStatusBlocked)
		}
	}
	e.mu.Unlock()

	ctxDone := ctx.Done()
	for {
		e.mu.Lock()
		e.settle(ctx)
		remaining := e.remaining
		e.unlockAndEmit()

		if remaining == 0 {
			break
		}

		select {
		case c := <-e.done:
			e.mu.Lock()
			e.complete(c)
			e.mu.Unlock()
		case <-ctxDone:
			ctxDone = nil
			reason := reasonOf(context.Cause(ctx))
			e.logger.Info("run cancellation requested", zap.String("reason", string(reason)))
			e.mu.Lock()
			e.cancelAll(reason)
			e.mu.Unlock()
		}
	}

	e.logger.Info("run finished")
	return e.Snapshot()
}

// settle evaluates the conditions of unblocked instances, cascading through
// skips, then dispatches whatever is ready. Called with e.mu held.
func (e *Execution) settle(ctx context.Context) {
	for len(e.unblocked) > 0 {
		n := e.unblocked[0]
		e.unblocked = e.unblocked[1:]
		if n.state.Status.IsTerminal() {
			continue
		}
		e.evaluate(n)
	}

	if ctx.Err() != nil {
		return
	}

	kept := e.ready[:0]
	for _, n := range e.ready {
		if n.state.Status != domain.JobStatusReady || n.dispatched {
			continue
		}
		job := n.inst.Job
		if limit := job.Def.MaxParallel; limit > 0 && e.active[job.Index] >= limit {
			kept = append(kept, n)
			continue
		}
		e.dispatch(ctx, n)
	}
	e.ready = kept
}

// evaluate runs n's condition exactly once. Called with e.mu held.
func (e *Execution) evaluate(n *node) {
	ok, err := e.condition(n)
	switch {
	case err != nil:
		e.finish(n, domain.JobStatusFailed, "", "condition: "+err.Error(), nil)
	case ok:
		e.transition(n, domain.JobStatusReady)
		e.ready = append(e.ready, n)
	default:
		e.finish(n, domain.JobStatusSkipped, "", "", nil)
	}
}

// complete applies a worker report. Reports for instances that already
// reached a terminal state are stale and ignored.
func (e *Execution) complete(c completion) {
	n := e.nodes[c.index]
	if n.state.Status.IsTerminal() {
		return
	}

	if len(c.outputs) > 0 && (c.status == domain.JobStatusSucceeded || c.status == domain.JobStatusFailed) {
		if err := e.outputs.Record(n.inst.ID, c.outputs); err != nil {
			e.logger.Warn("failed to record outputs", zap.String("instance", string(n.inst.ID)), zap.Error(err))
		}
	}

	e.finish(n, c.status, c.reason, c.err, e.outputs.Outputs(n.inst.ID))

	if c.status == domain.JobStatusFailed && n.inst.Job.Def.FailFastEnabled() {
		e.failFast(n)
	}
}

// failFast cancels the not yet terminal siblings of a failed instance.
func (e *Execution) failFast(failed *node) {
	for _, in := range failed.inst.Job.Instances {
		sib := e.nodes[in.Index]
		if sib == failed || sib.state.Status.IsTerminal() {
			continue
		}
		e.abort(sib, domain.ReasonFailFast)
	}
}

func (e *Execution) cancelAll(reason domain.CancelReason) {
	for _, n := range e.nodes {
		if !n.state.Status.IsTerminal() {
			e.abort(n, reason)
		}
	}
}

// abort cancels one instance. A running instance is signalled and settles
// when its executor call returns; any other is cancelled immediately.
func (e *Execution) abort(n *node, reason domain.CancelReason) {
	if n.cancel != nil {
		n.cancel(reason)
	}
	if n.state.Status == domain.JobStatusRunning {
		return
	}
	e.finish(n, domain.JobStatusCancelled, reason, "", nil)
}

// finish moves n to a terminal state and unblocks its dependents.
func (e *Execution) finish(n *node, status domain.JobStatus, reason domain.CancelReason, errMsg string, out map[string]string) {
	if !canTransition(n.state.Status, status) {
		e.logger.Error("illegal transition",
			zap.String("instance", string(n.inst.ID)),
			zap.String("from", string(n.state.Status)),
			zap.String("to", string(status)))
		return
	}

	now := time.Now()
	n.state.CompletedAt = &now
	n.state.Reason = reason
	n.state.Error = errMsg
	n.state.Outputs = out
	e.transition(n, status)
	e.remaining--

	if n.dispatched {
		e.active[n.inst.Job.Index]--
	}
	if n.cancel != nil {
		n.cancel(context.Canceled)
	}

	if n.state.StartedAt != nil && e.s.metrics != nil {
		e.s.metrics.RecordJobExecuted(n.state.Job, string(status), now.Sub(*n.state.StartedAt))
	}

	for _, d := range n.inst.Dependents {
		dep := e.nodes[d.Index]
		dep.waiting--
		if dep.waiting == 0 {
			e.unblocked = append(e.unblocked, dep)
		}
	}
}

func (e *Execution) transition(n *node, status domain.JobStatus) {
	n.state.Status = status
	e.pending = append(e.pending, copyState(n.state))
}

// markRunning is called by a worker just before invoking the executor. It
// fails if the instance was cancelled while queued.
func (e *Execution) markRunning(index int) bool {
	e.mu.Lock()
	n := e.nodes[index]
	if n.state.Status != domain.JobStatusReady {
		e.mu.Unlock()
		return false
	}
	now := time.Now()
	n.state.StartedAt = &now
	e.transition(n, domain.JobStatusRunning)
	e.unlockAndEmit()
	return true
}

// unlockAndEmit releases mu and delivers the queued transitions to the
// observer. The observer must not call back into the Execution.
func (e *Execution) unlockAndEmit() {
	events := e.pending
	e.pending = nil
	e.emitMu.Lock()
	e.mu.Unlock()
	defer e.emitMu.Unlock()

	if e.observer == nil {
		return
	}
	for _, ev := range events {
		e.observer(e.runID, ev)
	}
}

func copyState(s domain.InstanceState) domain.InstanceState {
	if s.Outputs != nil {
		out := make(map[string]string, len(s.Outputs))
		for k, v := range s.Outputs {
			out[k] = v
		}
		s.Outputs = out
	}
	return s
}

// reasonOf maps a context cause to a cancellation reason.
func reasonOf(cause error) domain.CancelReason {
	var r domain.CancelReason
	if errors.As(cause, &r) {
		return r
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		return domain.ReasonTimeout
	}
	return domain.ReasonRunCancelled
}
