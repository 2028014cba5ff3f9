package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPool(t *testing.T, size, queue int) *Pool {
	t.Helper()
	p := NewPool(size, queue, nil, zap.NewNop(), time.Hour)
	require.NoError(t, p.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func TestPool_RunsTasks(t *testing.T) {
	p := newTestPool(t, 3, 10)

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), "t", func() {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(20), n.Load())
}

func TestPool_SizeBoundsParallelism(t *testing.T) {
	p := newTestPool(t, 2, 10)

	var running, maxSeen atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), "t", func() {
			defer wg.Done()
			cur := running.Add(1)
			for {
				old := maxSeen.Load()
				if cur <= old || maxSeen.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}))
	}
	wg.Wait()
	assert.LessOrEqual(t, maxSeen.Load(), int32(2))
}

func TestPool_FIFO(t *testing.T) {
	p := newTestPool(t, 1, 10)

	release := make(chan struct{})
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	wg.Add(1)
	require.NoError(t, p.Submit(context.Background(), "blocker", func() {
		defer wg.Done()
		<-release
	}))
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), "t", func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	close(release)
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPool_SurvivesPanic(t *testing.T) {
	p := newTestPool(t, 1, 1)

	require.NoError(t, p.Submit(context.Background(), "boom", func() { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), "after", func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive panic")
	}
}

func TestPool_SubmitRespectsContext(t *testing.T) {
	p := NewPool(1, 0, nil, zap.NewNop(), time.Hour)
	// Not started: an unbuffered queue never drains.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, "t", func() {})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPool_ShutdownDrainsQueueAndRejects(t *testing.T) {
	p := NewPool(1, 10, nil, zap.NewNop(), time.Hour)
	require.NoError(t, p.Start())

	release := make(chan struct{})
	var ran atomic.Int32
	require.NoError(t, p.Submit(context.Background(), "blocker", func() { <-release }))
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(context.Background(), "t", func() { ran.Add(1) }))
	}

	shutdownErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		shutdownErr <- p.Shutdown(ctx)
	}()

	assert.Eventually(t, func() bool {
		return errors.Is(p.Submit(context.Background(), "late", func() {}), ErrPoolStopped)
	}, time.Second, time.Millisecond)

	close(release)
	require.NoError(t, <-shutdownErr)
	assert.Equal(t, int32(3), ran.Load())

	for _, s := range p.GetStatus() {
		assert.Equal(t, WorkerStatusStopped, s)
	}
}

func TestPool_ShutdownReleasesBlockedSubmitter(t *testing.T) {
	p := NewPool(1, 0, nil, zap.NewNop(), time.Hour)
	require.NoError(t, p.Start())

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), "blocker", func() {
		close(started)
		<-release
	}))
	<-started

	submitErr := make(chan error, 1)
	go func() {
		// The only worker is busy and the queue is unbuffered.
		submitErr <- p.Submit(context.Background(), "stuck", func() {})
	}()

	shutdownErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		shutdownErr <- p.Shutdown(ctx)
	}()

	select {
	case err := <-submitErr:
		assert.True(t, errors.Is(err, ErrPoolStopped), "got %v", err)
	case <-time.After(time.Second):
		t.Fatal("submitter still blocked after shutdown began")
	}

	close(release)
	require.NoError(t, <-shutdownErr)
}

func TestHealthMonitor_Status(t *testing.T) {
	p := newTestPool(t, 2, 4)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), "busy", func() {
		close(started)
		<-release
	}))
	<-started

	status := p.Health().GetStatus()
	assert.Equal(t, 2, status.TotalWorkers)
	assert.Equal(t, 1, status.BusyWorkers)
	assert.Equal(t, 1, status.IdleWorkers)
	assert.True(t, status.Healthy)
	assert.Equal(t, 4, status.QueueCapacity)
	assert.Empty(t, status.Reason)
	close(release)
}

func TestHealthMonitor_SaturationNeedsConsecutiveChecks(t *testing.T) {
	p := newTestPool(t, 1, 1)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), "busy", func() {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, p.Submit(context.Background(), "queued", func() {}))
	require.Equal(t, 1, p.QueueDepth())

	h := p.Health()
	for i := 0; i < saturationChecks-1; i++ {
		h.check()
		assert.True(t, h.IsHealthy(), "check %d", i)
	}

	h.check()
	status := p.HealthStatus()
	assert.True(t, status.Saturated)
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Reason, "queue full")

	close(release)
	require.Eventually(t, func() bool {
		return p.QueueDepth() == 0 && p.GetStatus()["worker-0"] != WorkerStatusBusy
	}, time.Second, time.Millisecond)

	h.check()
	status = p.HealthStatus()
	assert.False(t, status.Saturated)
	assert.True(t, status.Healthy)
}

func TestHealthMonitor_StoppedWorkersAreUnhealthy(t *testing.T) {
	p := NewPool(2, 1, nil, zap.NewNop(), time.Hour)
	require.NoError(t, p.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))

	status := p.HealthStatus()
	assert.False(t, status.Healthy)
	assert.Equal(t, "2 of 2 workers stopped", status.Reason)
}
