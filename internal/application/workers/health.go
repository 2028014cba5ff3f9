package workers

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// saturationChecks is how many consecutive checks must find the queue full
// before the pool reports itself saturated.
const saturationChecks = 3

// HealthMonitor periodically samples the pool, records pool metrics and
// tracks queue saturation across samples.
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *zap.Logger

	mu         sync.RWMutex
	running    bool
	stopCh     chan struct{}
	fullChecks int
}

// HealthStatus is a snapshot of the worker pool.
type HealthStatus struct {
	TotalWorkers   int `json:"total_workers"`
	IdleWorkers    int `json:"idle_workers"`
	BusyWorkers    int `json:"busy_workers"`
	StoppedWorkers int `json:"stopped_workers"`
	QueueDepth     int `json:"queue_depth"`
	QueueCapacity  int `json:"queue_capacity"`
	// Saturated means every worker was busy with a full queue for
	// several checks in a row; ready instances are blocking in Submit.
	Saturated bool      `json:"saturated"`
	Healthy   bool      `json:"healthy"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHealthMonitor creates a monitor sampling pool every interval.
func NewHealthMonitor(pool *Pool, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthMonitor{
		pool:     pool,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the sampling loop.
func (h *HealthMonitor) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.loop()
}

// Stop stops the sampling loop.
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.stopCh)
}

func (h *HealthMonitor) loop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.check()
		}
	}
}

// check takes one sample: it advances the saturation counter, then logs and
// records the resulting status.
func (h *HealthMonitor) check() {
	status := h.sample()

	h.mu.Lock()
	if status.QueueCapacity > 0 && status.QueueDepth >= status.QueueCapacity && status.IdleWorkers == 0 {
		h.fullChecks++
	} else {
		h.fullChecks = 0
	}
	h.mu.Unlock()

	status = h.GetStatus()

	h.logger.Debug("worker pool health check",
		zap.Int("total", status.TotalWorkers),
		zap.Int("idle", status.IdleWorkers),
		zap.Int("busy", status.BusyWorkers),
		zap.Int("stopped", status.StoppedWorkers),
		zap.Int("queued", status.QueueDepth),
		zap.Bool("saturated", status.Saturated))

	if m := h.pool.metrics; m != nil {
		m.RecordWorkerPoolStatus(status.IdleWorkers, status.BusyWorkers, status.StoppedWorkers)
		m.SetQueueDepth(status.QueueDepth)
	}

	if !status.Healthy {
		h.logger.Warn("worker pool is unhealthy", zap.String("reason", status.Reason))
	}
}

// GetStatus returns the current status. Saturation reflects the samples
// taken by the monitor so far.
func (h *HealthMonitor) GetStatus() *HealthStatus {
	status := h.sample()

	h.mu.RLock()
	status.Saturated = h.fullChecks >= saturationChecks
	h.mu.RUnlock()

	switch {
	case status.TotalWorkers == 0:
		status.Reason = "no workers"
	case status.StoppedWorkers > 0:
		status.Reason = fmt.Sprintf("%d of %d workers stopped", status.StoppedWorkers, status.TotalWorkers)
	case status.Saturated:
		status.Reason = fmt.Sprintf("queue full (%d) with every worker busy", status.QueueCapacity)
	}
	status.Healthy = status.Reason == ""
	return status
}

// IsHealthy reports whether the pool is healthy.
func (h *HealthMonitor) IsHealthy() bool {
	return h.GetStatus().Healthy
}

// sample counts worker states and queue usage without judging them.
func (h *HealthMonitor) sample() *HealthStatus {
	status := &HealthStatus{
		QueueDepth:    h.pool.QueueDepth(),
		QueueCapacity: h.pool.QueueCapacity(),
		Timestamp:     time.Now(),
	}
	for _, ws := range h.pool.GetStatus() {
		status.TotalWorkers++
		switch ws {
		case WorkerStatusIdle:
			status.IdleWorkers++
		case WorkerStatusBusy:
			status.BusyWorkers++
		case WorkerStatusStopped:
			status.StoppedWorkers++
		}
	}
	return status
}
