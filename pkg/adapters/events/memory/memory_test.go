package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aescanero/dagrun/pkg/domain"
)

type collector struct {
	mu  sync.Mutex
	ids []string
}

func (c *collector) handle(_ context.Context, ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, ev.ID)
	return nil
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

func TestInMemoryEventBus_OrderedFanOut(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, b := &collector{}, &collector{}
	require.NoError(t, bus.Subscribe(ctx, domain.TopicJobEvents, a.handle))
	require.NoError(t, bus.Subscribe(ctx, domain.TopicJobEvents, b.handle))

	var want []string
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("e%d", i)
		want = append(want, id)
		require.NoError(t, bus.Publish(ctx, domain.TopicJobEvents, domain.Event{ID: id}))
	}
	require.NoError(t, bus.Publish(ctx, domain.TopicRunEvents, domain.Event{ID: "other-topic"}))

	assert.Eventually(t, func() bool { return len(a.snapshot()) == 20 && len(b.snapshot()) == 20 }, time.Second, time.Millisecond)
	assert.Equal(t, want, a.snapshot())
	assert.Equal(t, want, b.snapshot())
}

func TestInMemoryEventBus_UnsubscribeOnContextDone(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	c := &collector{}
	require.NoError(t, bus.Subscribe(ctx, domain.TopicRunEvents, c.handle))
	cancel()

	assert.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subscribers[domain.TopicRunEvents]) == 0
	}, time.Second, time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), domain.TopicRunEvents, domain.Event{ID: "late"}))
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, c.snapshot())
}

func TestInMemoryEventBus_Close(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	require.NoError(t, bus.Subscribe(context.Background(), "t", (&collector{}).handle))
	require.NoError(t, bus.Close())
	assert.Error(t, bus.Subscribe(context.Background(), "t", (&collector{}).handle))
}
