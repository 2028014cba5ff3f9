package ports

import (
	"context"

	"github.com/aescanero/dagrun/pkg/domain"
)

// EventHandler processes one event.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes run lifecycle events to subscribers.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	// Subscribe registers handler until ctx is done.
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}
