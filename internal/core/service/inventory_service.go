package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/pos-inventory/internal/core/domain"
	"github.com/rl1809/pos-inventory/internal/metrics"
	"github.com/rl1809/pos-inventory/internal/port"
)

type AdjustOperation string

const (
	AdjustAdd AdjustOperation = "add"
	AdjustSet AdjustOperation = "set"
)

func (o AdjustOperation) IsValid() bool {
	return o == AdjustAdd || o == AdjustSet
}

type InventoryService struct {
	tx        txRunner
	cache     port.CacheRepository
	threshold int
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewInventoryService wires manual stock maintenance. threshold is used for
// rows created on first stock-in; cache may be nil.
func NewInventoryService(uow port.UnitOfWork, cache port.CacheRepository, dispatcher port.EventDispatcher, threshold int, logger *zap.Logger, m *metrics.Metrics) *InventoryService {
	return &InventoryService{
		tx:        txRunner{uow: uow, dispatcher: dispatcher, logger: logger},
		cache:     cache,
		threshold: threshold,
		logger:    logger,
		metrics:   m,
	}
}

// AdjustStock adds to or overwrites the stock of a product and returns the new quantity.
func (s *InventoryService) AdjustStock(ctx context.Context, productID string, quantity int, op AdjustOperation) (int, error) {
	ctx, span := tracer().Start(ctx, "inventory.adjust")
	defer span.End()
	span.SetAttributes(
		attribute.String("inventory.product_id", productID),
		attribute.String("inventory.operation", string(op)),
		attribute.Int("inventory.quantity", quantity),
	)

	if !op.IsValid() {
		return 0, recordSpanError(span, &domain.ValidationError{Field: "operation", Message: "must be add or set"})
	}

	var newQuantity int
	err := s.tx.run(ctx, func(tx port.Transaction, events *domain.EventBuffer) error {
		if op == AdjustAdd {
			inv, event, err := addStock(ctx, tx.Inventories(), productID, quantity, s.threshold)
			if err != nil {
				return err
			}
			events.Record(event)
			newQuantity = inv.Stock()
			return nil
		}

		inv, err := tx.Inventories().GetByProductID(ctx, productID)
		if err != nil {
			return err
		}
		event, err := inv.SetStock(quantity)
		if err != nil {
			return err
		}
		if err := tx.Inventories().Update(ctx, inv); err != nil {
			return fmt.Errorf("save inventory: %w", err)
		}
		events.Record(event)
		newQuantity = inv.Stock()
		return nil
	})
	if err != nil {
		return 0, recordSpanError(span, err)
	}

	s.metrics.StockAdjustments.WithLabelValues(string(op)).Inc()
	s.logger.Info("stock adjusted",
		zap.String("product_id", productID),
		zap.String("operation", string(op)),
		zap.Int("new_quantity", newQuantity),
	)
	return newQuantity, nil
}

// GetStock reads the cached level first and falls back to the store.
func (s *InventoryService) GetStock(ctx context.Context, productID string) (int, error) {
	if s.cache != nil {
		qty, ok, err := s.cache.GetStock(ctx, productID)
		if err != nil {
			s.logger.Warn("stock cache read failed", zap.String("product_id", productID), zap.Error(err))
		} else if ok {
			return qty, nil
		}
	}

	var qty int
	err := s.tx.run(ctx, func(tx port.Transaction, _ *domain.EventBuffer) error {
		inv, err := tx.Inventories().GetByProductID(ctx, productID)
		if err != nil {
			return err
		}
		qty = inv.Stock()
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.SetStock(ctx, productID, qty); err != nil {
			s.logger.Warn("stock cache fill failed", zap.String("product_id", productID), zap.Error(err))
		}
	}
	return qty, nil
}

// Retire soft-deletes the inventory row of a discontinued product.
func (s *InventoryService) Retire(ctx context.Context, productID string) error {
	err := s.tx.run(ctx, func(tx port.Transaction, _ *domain.EventBuffer) error {
		inv, err := tx.Inventories().GetByProductID(ctx, productID)
		if err != nil {
			return err
		}
		inv.SoftDelete(time.Now())
		return tx.Inventories().Update(ctx, inv)
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.EvictStock(ctx, productID); err != nil {
			s.logger.Warn("stock cache eviction failed", zap.String("product_id", productID), zap.Error(err))
		}
	}
	s.logger.Info("inventory retired", zap.String("product_id", productID))
	return nil
}

// addStock increments a product's stock, creating its row on first stock-in.
func addStock(ctx context.Context, repo port.InventoryRepository, productID string, quantity, threshold int) (*domain.Inventory, *domain.StockAddedEvent, error) {
	inv, err := repo.GetByProductID(ctx, productID)
	isNew := errors.Is(err, domain.ErrNotFound)
	switch {
	case isNew:
		if inv, err = domain.NewInventory(productID, threshold); err != nil {
			return nil, nil, err
		}
	case err != nil:
		return nil, nil, err
	}

	event, err := inv.AddStock(quantity)
	if err != nil {
		return nil, nil, err
	}

	if isNew {
		err = repo.Add(ctx, inv)
	} else {
		err = repo.Update(ctx, inv)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("save inventory: %w", err)
	}
	return inv, event, nil
}
