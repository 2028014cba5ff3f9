package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/dagrun/internal/application/concurrency"
	"github.com/aescanero/dagrun/internal/application/graph"
	"github.com/aescanero/dagrun/internal/application/report"
	"github.com/aescanero/dagrun/internal/application/scheduler"
	"github.com/aescanero/dagrun/pkg/domain"
	"github.com/aescanero/dagrun/pkg/ports"
)

var (
	// ErrRunFinished is returned when cancelling a run that already ended.
	ErrRunFinished = errors.New("run already finished")
	// ErrShuttingDown is returned by Submit once Shutdown has started.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)

// persistTimeout bounds report writes made after the run context is gone.
const persistTimeout = 10 * time.Second

// Manager coordinates run execution
type Manager struct {
	scheduler   *scheduler.Scheduler
	concurrency *concurrency.Controller
	validator   *Validator
	storage     ports.RunStore
	eventBus    ports.EventBus
	metrics     ports.MetricsCollector
	logger      *zap.Logger

	// Track active executions
	executions sync.Map // map[string]*executionContext
	active     atomic.Int64
	wg         sync.WaitGroup

	mu      sync.Mutex
	closing bool

	// Configuration
	runTimeout time.Duration
}

// executionContext holds state for a single run
type executionContext struct {
	runID       string
	workflow    string
	submittedAt time.Time
	cancel      context.CancelCauseFunc
	done        chan struct{}

	mu        sync.RWMutex
	startedAt *time.Time
	states    []domain.InstanceState
	index     map[domain.InstanceID]int
	final     *domain.RunReport
}

// NewManager creates a new orchestrator manager. metrics may be nil.
// runTimeout bounds a run once admitted; zero means no limit.
func NewManager(
	sched *scheduler.Scheduler,
	controller *concurrency.Controller,
	validator *Validator,
	storage ports.RunStore,
	eventBus ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	runTimeout time.Duration,
) *Manager {
	return &Manager{
		scheduler:   sched,
		concurrency: controller,
		validator:   validator,
		storage:     storage,
		eventBus:    eventBus,
		metrics:     metrics,
		logger:      logger,
		runTimeout:  runTimeout,
	}
}

// Submit validates wf and starts a run. A workflow rejected at build time
// still gets a run ID and a zero-job Failed report; the returned error wraps
// the *domain.GraphError.
func (m *Manager) Submit(ctx context.Context, wf *domain.Workflow, vars map[string]string) (string, error) {
	m.mu.Lock()
	closing := m.closing
	m.mu.Unlock()
	if closing {
		return "", ErrShuttingDown
	}

	runID := uuid.New().String()
	submittedAt := time.Now()

	name := ""
	if wf != nil {
		name = wf.Name
	}

	g, err := m.validator.Validate(wf)
	if err != nil {
		m.logger.Error("workflow validation failed",
			zap.String("run_id", runID),
			zap.String("workflow", name),
			zap.Error(err))
		m.recordSubmitted("rejected")

		rep := report.BuildFailure(runID, name, submittedAt, err)
		if saveErr := m.storage.SaveReport(ctx, rep); saveErr != nil {
			m.logger.Error("failed to save rejected run report",
				zap.String("run_id", runID),
				zap.Error(saveErr))
		}
		m.publish(ctx, domain.TopicRunEvents, runEvent(domain.EventTypeRunFailed, rep))
		return runID, fmt.Errorf("validation failed: %w", err)
	}

	ec := &executionContext{
		runID:       runID,
		workflow:    name,
		submittedAt: submittedAt,
		done:        make(chan struct{}),
		index:       make(map[domain.InstanceID]int),
	}
	ex := m.scheduler.NewExecution(g, scheduler.RunOptions{
		RunID:    runID,
		Vars:     vars,
		Observer: m.observe(ec),
	})
	ec.states = ex.Snapshot()
	for i, s := range ec.states {
		ec.index[s.ID] = i
	}

	// Store initial report
	if err := m.storage.SaveReport(ctx, ec.report()); err != nil {
		m.logger.Error("failed to save initial report",
			zap.String("run_id", runID),
			zap.Error(err))
		return "", fmt.Errorf("failed to save report: %w", err)
	}

	runCtx, cancel := context.WithCancelCause(context.Background())
	ec.cancel = cancel

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		cancel(domain.ReasonShutdown)
		return "", ErrShuttingDown
	}
	m.executions.Store(runID, ec)
	m.wg.Add(1)
	m.mu.Unlock()

	m.setActive(1)
	m.recordSubmitted("accepted")
	m.publish(ctx, domain.TopicRunEvents, runEvent(domain.EventTypeRunSubmitted, ec.report()))
	m.logger.Info("run submitted",
		zap.String("run_id", runID),
		zap.String("workflow", name),
		zap.Int("instances", g.Len()))

	go m.execute(runCtx, ec, g, ex, vars)

	return runID, nil
}

// execute waits for run-level admission, then drives the run to completion.
func (m *Manager) execute(ctx context.Context, ec *executionContext, g *graph.RunGraph, ex *scheduler.Execution, vars map[string]string) {
	defer m.wg.Done()
	defer ec.cancel(nil)

	if g.RunConcurrencyKey != nil {
		ticket, err := m.admit(ctx, ec, g, vars)
		defer ticket.Release()
		if err != nil {
			m.abandon(ec, reasonOf(err))
			return
		}
	}

	if m.runTimeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeoutCause(ctx, m.runTimeout, domain.ReasonTimeout)
		defer stop()
	}

	started := time.Now()
	ec.mu.Lock()
	ec.startedAt = &started
	ec.mu.Unlock()

	m.save(ec.report())
	m.publish(ctx, domain.TopicRunEvents, runEvent(domain.EventTypeRunStarted, ec.report()))

	states := ex.Run(ctx)

	completed := time.Now()
	run := report.Run{
		ID:          ec.runID,
		Workflow:    ec.workflow,
		SubmittedAt: ec.submittedAt,
		StartedAt:   &started,
		CompletedAt: &completed,
	}
	if ctx.Err() != nil && report.Aggregate(states) != domain.RunStatusSucceeded {
		run.Reason = reasonOf(context.Cause(ctx))
	}
	m.finish(ec, report.Build(run, states))
}

// admit claims the run's concurrency group and blocks until the run may
// start. The returned ticket is never nil.
func (m *Manager) admit(ctx context.Context, ec *executionContext, g *graph.RunGraph, vars map[string]string) (*concurrency.Ticket, error) {
	wf := g.Workflow
	keyCtx := &domain.ExecutionContext{
		RunID:    ec.runID,
		Workflow: wf.Name,
		Env:      wf.Env,
		Vars:     vars,
	}
	key, err := g.RunConcurrencyKey.Render(keyCtx)
	if err != nil {
		m.logger.Warn("failed to render run concurrency group, using it verbatim",
			zap.String("run_id", ec.runID),
			zap.Error(err))
		key = g.RunConcurrencyKey.String()
	}

	ticket := m.concurrency.Submit(key, ec.runID, wf.Concurrency.CancelInProgress,
		func(reason domain.CancelReason) { ec.cancel(reason) })

	if !ticket.Admitted() {
		ev := runEvent(domain.EventTypeRunQueued, ec.report())
		ev.Data["group"] = key
		m.publish(ctx, domain.TopicRunEvents, ev)
		m.logger.Info("run queued behind concurrency group",
			zap.String("run_id", ec.runID),
			zap.String("group", key))
	}

	if err := ticket.Wait(ctx); err != nil {
		if errors.Is(err, concurrency.ErrSuperseded) {
			return ticket, domain.ReasonSuperseded
		}
		return ticket, err
	}
	return ticket, nil
}

// abandon ends a run that never started: every instance is Cancelled with
// reason.
func (m *Manager) abandon(ec *executionContext, reason domain.CancelReason) {
	now := time.Now()

	ec.mu.RLock()
	states := make([]domain.InstanceState, len(ec.states))
	copy(states, ec.states)
	ec.mu.RUnlock()

	for i := range states {
		states[i].Status = domain.JobStatusCancelled
		states[i].Reason = reason
		states[i].CompletedAt = &now
	}

	m.logger.Info("run abandoned before start",
		zap.String("run_id", ec.runID),
		zap.String("reason", string(reason)))

	m.finish(ec, report.Build(report.Run{
		ID:          ec.runID,
		Workflow:    ec.workflow,
		SubmittedAt: ec.submittedAt,
		CompletedAt: &now,
		Reason:      reason,
	}, states))
}

// finish persists the final report, then releases waiters.
func (m *Manager) finish(ec *executionContext, rep *domain.RunReport) {
	ec.mu.Lock()
	ec.final = rep
	ec.mu.Unlock()

	m.save(rep)

	eventType := domain.EventTypeRunCompleted
	switch rep.Status {
	case domain.RunStatusFailed:
		eventType = domain.EventTypeRunFailed
	case domain.RunStatusCancelled:
		eventType = domain.EventTypeRunCancelled
	}
	m.publish(context.Background(), domain.TopicRunEvents, runEvent(eventType, rep))

	if m.metrics != nil {
		start := ec.submittedAt
		if rep.StartedAt != nil {
			start = *rep.StartedAt
		}
		end := time.Now()
		if rep.CompletedAt != nil {
			end = *rep.CompletedAt
		}
		m.metrics.RecordRunCompleted(string(rep.Status), end.Sub(start))
	}

	m.logger.Info("run finished",
		zap.String("run_id", ec.runID),
		zap.String("status", string(rep.Status)),
		zap.String("reason", rep.Reason))

	close(ec.done)
	m.executions.Delete(ec.runID)
	m.setActive(-1)
}

// observe keeps the live report current and publishes job events.
func (m *Manager) observe(ec *executionContext) scheduler.Observer {
	return func(runID string, state domain.InstanceState) {
		ec.mu.Lock()
		if i, ok := ec.index[state.ID]; ok {
			ec.states[i] = state
		}
		ec.mu.Unlock()

		data := map[string]interface{}{
			"job":    state.Job,
			"status": string(state.Status),
		}
		if len(state.Matrix) > 0 {
			data["matrix"] = state.Matrix
		}
		if state.Reason != "" {
			data["reason"] = string(state.Reason)
		}
		if state.Error != "" {
			data["error"] = state.Error
		}
		m.publish(context.Background(), domain.TopicJobEvents, domain.Event{
			ID:         uuid.New().String(),
			Type:       domain.EventTypeJobChanged,
			RunID:      runID,
			InstanceID: state.ID,
			Timestamp:  time.Now(),
			Data:       data,
		})
	}
}

// GetReport returns the live report of an active run, or the stored one.
func (m *Manager) GetReport(ctx context.Context, runID string) (*domain.RunReport, error) {
	if ec, ok := m.lookup(runID); ok {
		return ec.report(), nil
	}

	rep, err := m.storage.GetReport(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return rep, nil
}

// Wait blocks until the run finishes or ctx is done, and returns its report.
func (m *Manager) Wait(ctx context.Context, runID string) (*domain.RunReport, error) {
	if ec, ok := m.lookup(runID); ok {
		select {
		case <-ec.done:
			return ec.report(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.GetReport(ctx, runID)
}

// Cancel requests cancellation of an active run. Instances already running
// are cancelled cooperatively; Wait observes the final report.
func (m *Manager) Cancel(ctx context.Context, runID string) error {
	ec, ok := m.lookup(runID)
	if !ok {
		if _, err := m.storage.GetReport(ctx, runID); err != nil {
			return fmt.Errorf("failed to get report: %w", err)
		}
		return fmt.Errorf("%w: %s", ErrRunFinished, runID)
	}

	select {
	case <-ec.done:
		return fmt.Errorf("%w: %s", ErrRunFinished, runID)
	default:
	}

	ec.cancel(domain.ReasonRunCancelled)
	m.logger.Info("run cancellation requested",
		zap.String("run_id", runID))
	return nil
}

// List returns every stored report, with active runs shown live.
func (m *Manager) List(ctx context.Context) ([]*domain.RunReport, error) {
	reports, err := m.storage.ListReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	for i, r := range reports {
		if ec, ok := m.lookup(r.RunID); ok {
			reports[i] = ec.report()
		}
	}
	return reports, nil
}

// ActiveRuns returns the number of runs not yet finished.
func (m *Manager) ActiveRuns() int {
	return int(m.active.Load())
}

// Shutdown cancels every active run and waits for them to finish
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestrator manager")

	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()

	// Cancel all active executions
	m.executions.Range(func(key, value interface{}) bool {
		value.(*executionContext).cancel(domain.ReasonShutdown)
		return true
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("runs still active at shutdown: %w", ctx.Err())
	}

	m.logger.Info("orchestrator manager shut down complete")
	return nil
}

func (m *Manager) lookup(runID string) (*executionContext, bool) {
	v, ok := m.executions.Load(runID)
	if !ok {
		return nil, false
	}
	return v.(*executionContext), true
}

func (m *Manager) save(rep *domain.RunReport) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := m.storage.SaveReport(ctx, rep); err != nil {
		m.logger.Error("failed to save report",
			zap.String("run_id", rep.RunID),
			zap.Error(err))
	}
}

func (m *Manager) publish(ctx context.Context, topic string, event domain.Event) {
	if err := m.eventBus.Publish(context.WithoutCancel(ctx), topic, event); err != nil {
		m.logger.Error("failed to publish event",
			zap.String("run_id", event.RunID),
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}

func (m *Manager) recordSubmitted(status string) {
	if m.metrics != nil {
		m.metrics.RecordRunSubmitted(status)
	}
}

func (m *Manager) setActive(delta int64) {
	n := m.active.Add(delta)
	if m.metrics != nil {
		m.metrics.SetActiveRuns(int(n))
	}
}

func (ec *executionContext) report() *domain.RunReport {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	if ec.final != nil {
		return ec.final
	}
	states := make([]domain.InstanceState, len(ec.states))
	copy(states, ec.states)
	return report.Build(report.Run{
		ID:          ec.runID,
		Workflow:    ec.workflow,
		SubmittedAt: ec.submittedAt,
		StartedAt:   ec.startedAt,
	}, states)
}

func runEvent(t domain.EventType, rep *domain.RunReport) domain.Event {
	data := map[string]interface{}{
		"workflow": rep.Workflow,
		"status":   string(rep.Status),
	}
	if rep.Reason != "" {
		data["reason"] = rep.Reason
	}
	if rep.Error != "" {
		data["error"] = rep.Error
	}
	return domain.Event{
		ID:        uuid.New().String(),
		Type:      t,
		RunID:     rep.RunID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// reasonOf maps a cancellation cause to the reason recorded on the run.
func reasonOf(cause error) domain.CancelReason {
	var reason domain.CancelReason
	if errors.As(cause, &reason) {
		return reason
	}
	return domain.ReasonRunCancelled
}
