package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/aescanero/dagrun/pkg/domain"
	"github.com/aescanero/dagrun/pkg/ports"
)

const subscriberBuffer = 256

// InMemoryEventBus implements ports.EventBus inside one process. Each
// subscriber receives events in publish order from its own goroutine.
type InMemoryEventBus struct {
	subscribers map[string]map[uint64]*subscriber
	nextID      uint64
	logger      *zap.Logger
	mu          sync.RWMutex
	closed      bool
}

type subscriber struct {
	events  chan domain.Event
	handler ports.EventHandler
	done    chan struct{}
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[string]map[uint64]*subscriber),
		logger:      logger,
	}
}

// Publish delivers an event to all subscribers of a topic. A subscriber whose
// buffer is full misses the event.
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for id, s := range e.subscribers[topic] {
		select {
		case s.events <- event:
		default:
			e.logger.Warn("dropping event for slow subscriber",
				zap.String("topic", topic),
				zap.Uint64("subscriber", id),
				zap.String("event_type", string(event.Type)))
		}
	}
	return nil
}

// Subscribe registers handler on topic until ctx is done
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return context.Canceled
	}

	e.nextID++
	id := e.nextID
	s := &subscriber{
		events:  make(chan domain.Event, subscriberBuffer),
		handler: handler,
		done:    make(chan struct{}),
	}
	if e.subscribers[topic] == nil {
		e.subscribers[topic] = make(map[uint64]*subscriber)
	}
	e.subscribers[topic][id] = s

	go e.deliver(ctx, topic, s)
	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		e.unsubscribe(topic, id)
	}()

	return nil
}

func (e *InMemoryEventBus) deliver(ctx context.Context, topic string, s *subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case ev := <-s.events:
			if err := s.handler(ctx, ev); err != nil {
				e.logger.Debug("event handler error",
					zap.String("topic", topic),
					zap.String("event_id", ev.ID),
					zap.Error(err))
			}
		}
	}
}

// Close removes every subscription
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	for _, subs := range e.subscribers {
		for _, s := range subs {
			close(s.done)
		}
	}
	e.subscribers = make(map[string]map[uint64]*subscriber)
	return nil
}

func (e *InMemoryEventBus) unsubscribe(topic string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.subscribers[topic], id)
	if len(e.subscribers[topic]) == 0 {
		delete(e.subscribers, topic)
	}
}
