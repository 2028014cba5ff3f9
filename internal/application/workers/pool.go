package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aescanero/dagrun/pkg/ports"
)

// ErrPoolStopped is returned by Submit once the pool is shutting down.
var ErrPoolStopped = errors.New("worker pool stopped")

// TaskFunc is one unit of work. It owns its own context.
type TaskFunc func()

type task struct {
	id       string
	run      TaskFunc
	enqueued time.Time
}

// Pool runs tasks on a fixed number of worker goroutines, taking them from a
// FIFO queue. The pool size is the maximum parallelism of the process.
type Pool struct {
	size    int
	metrics ports.MetricsCollector
	logger  *zap.Logger
	health  *HealthMonitor

	tasks   chan *task
	workers []*worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	// quit is closed first on shutdown to release blocked submitters.
	quit     chan struct{}
	quitOnce sync.Once

	mu      sync.RWMutex
	started bool
	stopped bool
}

// worker represents a single worker goroutine
type worker struct {
	id      string
	pool    *Pool
	status  WorkerStatus
	mu      sync.RWMutex
	lastJob time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a new worker pool. metrics may be nil.
func NewPool(
	size int,
	queueSize int,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	healthCheckInterval time.Duration,
) *Pool {
	if size < 1 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		size:    size,
		metrics: metrics,
		logger:  logger,
		tasks:   make(chan *task, queueSize),
		workers: make([]*worker, size),
		ctx:     ctx,
		cancel:  cancel,
		quit:    make(chan struct{}),
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Start starts the worker pool
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("worker pool already started")
	}
	p.started = true

	p.logger.Info("starting worker pool", zap.Int("size", p.size))

	for i := 0; i < p.size; i++ {
		w := &worker{
			id:      fmt.Sprintf("worker-%d", i),
			pool:    p,
			status:  WorkerStatusIdle,
			lastJob: time.Now(),
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(p.ctx)
	}

	p.health.Start()

	p.logger.Info("worker pool started", zap.Int("workers", p.size))
	return nil
}

// Submit enqueues fn. It blocks while the queue is full, until ctx is done.
func (p *Pool) Submit(ctx context.Context, id string, fn TaskFunc) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	t := &task{id: id, run: fn, enqueued: time.Now()}
	select {
	case p.tasks <- t:
		p.recordQueueDepth()
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-p.quit:
		return ErrPoolStopped
	}
}

// QueueDepth returns the number of tasks waiting for a worker.
func (p *Pool) QueueDepth() int {
	return len(p.tasks)
}

// QueueCapacity returns how many tasks can wait for a worker.
func (p *Pool) QueueCapacity() int {
	return cap(p.tasks)
}

// Health returns the pool's health monitor.
func (p *Pool) Health() *HealthMonitor {
	return p.health
}

// HealthStatus returns a snapshot of the pool's health.
func (p *Pool) HealthStatus() HealthStatus {
	return *p.health.GetStatus()
}

// Shutdown stops accepting tasks, runs whatever is already queued and waits
// for the workers to exit.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down worker pool")

	// Submitters blocked on a full queue hold the read lock.
	p.quitOnce.Do(func() { close(p.quit) })
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.health.Stop()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	status := make(map[string]WorkerStatus)
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

func (p *Pool) recordQueueDepth() {
	if p.metrics != nil {
		p.metrics.SetQueueDepth(len(p.tasks))
	}
}

// run is the main worker loop
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	w.pool.logger.Debug("worker started", zap.String("worker_id", w.id))

	for {
		select {
		case t := <-w.pool.tasks:
			w.execute(t)
		case <-ctx.Done():
			w.drain()
			w.setStatus(WorkerStatusStopped)
			w.pool.logger.Debug("worker stopped", zap.String("worker_id", w.id))
			return
		}
	}
}

// drain runs the tasks queued before shutdown. Their contexts are expected
// to be cancelled already, so they finish quickly.
func (w *worker) drain() {
	for {
		select {
		case t := <-w.pool.tasks:
			w.execute(t)
		default:
			return
		}
	}
}

func (w *worker) execute(t *task) {
	w.mu.Lock()
	w.status = WorkerStatusBusy
	w.lastJob = time.Now()
	w.mu.Unlock()
	defer w.setStatus(WorkerStatusIdle)

	w.pool.recordQueueDepth()
	if w.pool.metrics != nil {
		w.pool.metrics.ObserveQueueWaitTime(time.Since(t.enqueued))
	}

	defer func() {
		if r := recover(); r != nil {
			w.pool.logger.Error("task panicked",
				zap.String("worker_id", w.id),
				zap.String("task_id", t.id),
				zap.Any("panic", r))
		}
	}()

	t.run()
}

func (w *worker) setStatus(s WorkerStatus) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}
