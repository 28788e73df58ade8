package port

import (
	"context"

	"github.com/rl1809/pos-inventory/internal/core/domain"
)

// EventDispatcher delivers events that belong to a committed transaction.
// Callers must only invoke it after Commit succeeded.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event domain.DomainEvent) error
	DispatchMany(ctx context.Context, events []domain.DomainEvent) error
}

type EventHandler interface {
	Handle(ctx context.Context, event domain.DomainEvent) error
}

type EventHandlerFunc func(ctx context.Context, event domain.DomainEvent) error

func (f EventHandlerFunc) Handle(ctx context.Context, event domain.DomainEvent) error {
	return f(ctx, event)
}

// EventPublisher ships events to a message broker.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, key string, event any) error
}

// LowStockNotifier tells managers that a product is running low.
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, event *domain.LowStockEvent) error
}
