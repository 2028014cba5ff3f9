package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aescanero/dagrun/internal/application/concurrency"
	"github.com/aescanero/dagrun/internal/application/orchestrator"
	"github.com/aescanero/dagrun/internal/application/scheduler"
	"github.com/aescanero/dagrun/internal/application/workers"
	"github.com/aescanero/dagrun/internal/config"
	"github.com/aescanero/dagrun/pkg/adapters/executor/shell"
	"github.com/aescanero/dagrun/pkg/ports"
)

// engine is the process-wide execution stack shared by serve and run.
type engine struct {
	pool    *workers.Pool
	manager *orchestrator.Manager
}

func newEngine(
	cfg *config.Config,
	logger *zap.Logger,
	storage ports.RunStore,
	eventBus ports.EventBus,
	blobs ports.BlobStore,
	metrics ports.MetricsCollector,
) (*engine, error) {
	pool := workers.NewPool(
		cfg.Workers.PoolSize,
		cfg.Workers.QueueSize,
		metrics,
		logger,
		cfg.Workers.HealthCheckInterval,
	)
	if err := pool.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker pool: %w", err)
	}

	executor := shell.New(shell.Config{
		Shell:     cfg.Executor.Shell,
		WorkDir:   cfg.Executor.WorkDir,
		KillGrace: cfg.Executor.KillGrace,
	}, blobs, logger)

	controller := concurrency.NewController(logger, metrics)
	sched := scheduler.New(pool, executor, controller, metrics, logger, cfg.Timeouts.JobTimeout)

	manager := orchestrator.NewManager(
		sched,
		controller,
		orchestrator.NewValidator(),
		storage,
		eventBus,
		metrics,
		logger,
		cfg.Timeouts.RunTimeout,
	)

	return &engine{pool: pool, manager: manager}, nil
}

// shutdown cancels active runs, then drains the worker pool.
func (e *engine) shutdown(ctx context.Context) error {
	return errors.Join(
		e.manager.Shutdown(ctx),
		e.pool.Shutdown(ctx),
	)
}
