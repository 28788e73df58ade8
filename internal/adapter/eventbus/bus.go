package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rl1809/pos-inventory/internal/core/domain"
	"github.com/rl1809/pos-inventory/internal/metrics"
	"github.com/rl1809/pos-inventory/internal/port"
)

// Bus is an in-process dispatcher. Handlers run synchronously in the order
// they subscribed; events run in the order given. A failing handler does not
// stop the others, its error is joined into the result.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]port.EventHandler
	all      []port.EventHandler
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func New(logger *zap.Logger, m *metrics.Metrics) *Bus {
	return &Bus{
		handlers: make(map[string][]port.EventHandler),
		logger:   logger,
		metrics:  m,
	}
}

// Subscribe registers h for one event type.
func (b *Bus) Subscribe(eventType string, h port.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// SubscribeAll registers h for every event type.
func (b *Bus) SubscribeAll(h port.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

func (b *Bus) Dispatch(ctx context.Context, event domain.DomainEvent) error {
	// handlers may dispatch follow-up events, so the lock is not held while they run
	b.mu.RLock()
	handlers := make([]port.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.all))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h.Handle(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		b.metrics.EventsDispatched.WithLabelValues(event.EventType(), "error").Inc()
		b.logger.Warn("event handler failed",
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID()),
			zap.Int("failures", len(errs)),
		)
		return fmt.Errorf("dispatch %s: %w", event.EventType(), errors.Join(errs...))
	}

	b.metrics.EventsDispatched.WithLabelValues(event.EventType(), "ok").Inc()
	b.logger.Debug("event dispatched",
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID()),
		zap.Int("handlers", len(handlers)),
	)
	return nil
}

func (b *Bus) DispatchMany(ctx context.Context, events []domain.DomainEvent) error {
	var errs []error
	for _, event := range events {
		if err := b.Dispatch(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
