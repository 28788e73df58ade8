package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/rl1809/pos-inventory/internal/core/domain"
	"github.com/rl1809/pos-inventory/internal/metrics"
	"github.com/rl1809/pos-inventory/internal/port"
)

const restockAttempts = 3

// RestockHandler puts stock back for cancelled sales and approved returns.
// Each event is applied in its own transaction; a write conflict with a
// concurrent sale is retried. Items of retired products are skipped and
// reported, never retried.
type RestockHandler struct {
	tx        txRunner
	threshold int
	logger    *zap.Logger
}

func NewRestockHandler(uow port.UnitOfWork, dispatcher port.EventDispatcher, threshold int, logger *zap.Logger) *RestockHandler {
	return &RestockHandler{
		tx:        txRunner{uow: uow, dispatcher: dispatcher, logger: logger},
		threshold: threshold,
		logger:    logger,
	}
}

func (h *RestockHandler) Handle(ctx context.Context, event domain.DomainEvent) error {
	var items []domain.StockItem
	switch e := event.(type) {
	case *domain.SaleCancelledEvent:
		items = e.ItemsToRestore
	case *domain.ReturnApprovedEvent:
		items = e.ItemsToRestock
	default:
		return nil
	}

	var err error
	var retired []string
	for attempt := 1; attempt <= restockAttempts; attempt++ {
		retired = retired[:0]
		err = h.tx.run(ctx, func(tx port.Transaction, events *domain.EventBuffer) error {
			for _, item := range items {
				_, added, err := addStock(ctx, tx.Inventories(), item.ProductID, item.Quantity, h.threshold)
				if errors.Is(err, domain.ErrProductRetired) {
					retired = append(retired, item.ProductID)
					continue
				}
				if err != nil {
					return fmt.Errorf("restock %s: %w", item.ProductID, err)
				}
				events.Record(added)
			}
			return nil
		})
		if !errors.Is(err, port.ErrConflict) {
			break
		}
		h.logger.Warn("restock conflict, retrying",
			zap.String("event_id", event.EventID()),
			zap.Int("attempt", attempt),
		)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", event.EventType(), event.EventID(), err)
	}
	if len(retired) > 0 {
		// The other items are committed; units of retired products stay off the books.
		h.logger.Warn("restock skipped retired products",
			zap.String("event_id", event.EventID()),
			zap.Strings("product_ids", retired),
		)
		return fmt.Errorf("%s %s: restock %v: %w", event.EventType(), event.EventID(), retired, domain.ErrProductRetired)
	}

	h.logger.Info("stock restored",
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID()),
		zap.Int("items", len(items)),
	)
	return nil
}

// LowStockAlertHandler forwards low-stock events to the notifier.
type LowStockAlertHandler struct {
	notifier port.LowStockNotifier
	metrics  *metrics.Metrics
}

func NewLowStockAlertHandler(notifier port.LowStockNotifier, m *metrics.Metrics) *LowStockAlertHandler {
	return &LowStockAlertHandler{notifier: notifier, metrics: m}
}

func (h *LowStockAlertHandler) Handle(ctx context.Context, event domain.DomainEvent) error {
	e, ok := event.(*domain.LowStockEvent)
	if !ok {
		return nil
	}
	if err := h.notifier.NotifyLowStock(ctx, e); err != nil {
		return fmt.Errorf("low stock alert for %s: %w", e.ProductID, err)
	}
	h.metrics.LowStockAlerts.Inc()
	return nil
}

// StockMirrorHandler copies committed stock levels into the cache.
type StockMirrorHandler struct {
	cache port.CacheRepository
}

func NewStockMirrorHandler(cache port.CacheRepository) *StockMirrorHandler {
	return &StockMirrorHandler{cache: cache}
}

func (h *StockMirrorHandler) Handle(ctx context.Context, event domain.DomainEvent) error {
	switch e := event.(type) {
	case *domain.StockAddedEvent:
		return h.cache.SetStock(ctx, e.ProductID, e.NewTotal)
	case *domain.StockDecrementedEvent:
		return h.cache.SetStock(ctx, e.ProductID, e.NewTotal)
	case *domain.StockAdjustedEvent:
		return h.cache.SetStock(ctx, e.ProductID, e.NewQuantity)
	}
	return nil
}

// PublishHandler forwards every event to the message broker, keyed by the
// aggregate it belongs to so one product or sale stays on one partition.
type PublishHandler struct {
	publisher port.EventPublisher
	topic     string
}

func NewPublishHandler(publisher port.EventPublisher, topic string) *PublishHandler {
	return &PublishHandler{publisher: publisher, topic: topic}
}

func (h *PublishHandler) Handle(ctx context.Context, event domain.DomainEvent) error {
	return h.publisher.PublishEvent(ctx, h.topic, EventKey(event), event)
}

// EventKey returns the id of the aggregate an event was raised by.
func EventKey(event domain.DomainEvent) string {
	switch e := event.(type) {
	case *domain.StockAddedEvent:
		return e.ProductID
	case *domain.StockDecrementedEvent:
		return e.ProductID
	case *domain.StockAdjustedEvent:
		return e.ProductID
	case *domain.LowStockEvent:
		return e.ProductID
	case *domain.SaleCancelledEvent:
		return "sale-" + strconv.FormatInt(e.SaleID, 10)
	case *domain.ReturnApprovedEvent:
		return "return-" + strconv.FormatInt(e.ReturnID, 10)
	}
	return event.EventID()
}
