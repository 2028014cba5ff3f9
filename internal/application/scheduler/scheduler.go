// Package scheduler drives the instances of a RunGraph to terminal states.
//
// A single coordinator goroutine per run owns every terminal transition:
// it evaluates conditions once all dependencies are terminal, applies
// fail-fast and run cancellation, and hands ready instances to the worker
// pool. Workers only move an instance from Ready to Running and report the
// executor's result back to the coordinator.
package scheduler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/aescanero/dagrun/internal/application/concurrency"
	"github.com/aescanero/dagrun/internal/application/graph"
	"github.com/aescanero/dagrun/internal/application/workers"
	"github.com/aescanero/dagrun/pkg/domain"
	"github.com/aescanero/dagrun/pkg/ports"
)

const tracerName = "github.com/aescanero/dagrun/scheduler"

// Dispatcher queues work for the worker pool. *workers.Pool implements it.
type Dispatcher interface {
	Submit(ctx context.Context, id string, fn workers.TaskFunc) error
}

// Observer receives a copy of every instance transition, in order. It is
// called from scheduler goroutines, must not block for long and must not call
// back into the Execution.
type Observer func(runID string, state domain.InstanceState)

// Scheduler executes run graphs. One Scheduler serves every run of the
// process; per-run state lives in an Execution.
type Scheduler struct {
	pool        Dispatcher
	executor    ports.StepExecutor
	concurrency *concurrency.Controller
	metrics     ports.MetricsCollector
	logger      *zap.Logger
	tracer      trace.Tracer

	jobTimeout time.Duration
}

// New creates a scheduler. metrics may be nil. jobTimeout applies to
// instances whose job sets no timeout; zero means no limit.
func New(
	pool Dispatcher,
	executor ports.StepExecutor,
	controller *concurrency.Controller,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	jobTimeout time.Duration,
) *Scheduler {
	return &Scheduler{
		pool:        pool,
		executor:    executor,
		concurrency: controller,
		metrics:     metrics,
		logger:      logger,
		tracer:      otel.Tracer(tracerName),
		jobTimeout:  jobTimeout,
	}
}

// RunOptions carries the per-run inputs that are not part of the graph.
type RunOptions struct {
	RunID    string
	Vars     map[string]string
	Observer Observer
}

// NewExecution prepares g for execution. Nothing runs until Run is called.
func (s *Scheduler) NewExecution(g *graph.RunGraph, opts RunOptions) *Execution {
	return newExecution(s, g, opts)
}
