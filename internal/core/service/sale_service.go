package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/pos-inventory/internal/core/domain"
	"github.com/rl1809/pos-inventory/internal/metrics"
	"github.com/rl1809/pos-inventory/internal/port"
)

var ErrDuplicateRequest = errors.New("duplicate request")

const saleCancelledReason = "sale cancelled"

type CreateSaleInput struct {
	// RequestID is an optional client key; a repeated key is rejected while the first claim lives.
	RequestID  string
	CustomerID string
	UserID     string
	Items      []domain.SaleItem
}

type SaleService struct {
	tx      txRunner
	cache   port.CacheRepository
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewSaleService wires the sale flows. cache may be nil, which disables request-id deduplication.
func NewSaleService(uow port.UnitOfWork, cache port.CacheRepository, dispatcher port.EventDispatcher, logger *zap.Logger, m *metrics.Metrics) *SaleService {
	return &SaleService{
		tx:      txRunner{uow: uow, dispatcher: dispatcher, logger: logger},
		cache:   cache,
		logger:  logger,
		metrics: m,
	}
}

// CreateSale reserves stock for every item, builds the sale and persists both
// in one transaction. Stock events are dispatched after the commit.
func (s *SaleService) CreateSale(ctx context.Context, in CreateSaleInput) (sale *domain.Sale, err error) {
	ctx, span := tracer().Start(ctx, "sale.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("sale.customer_id", in.CustomerID),
		attribute.Int("sale.items", len(in.Items)),
	)

	if err := domain.CheckSaleItems(in.Items); err != nil {
		return nil, recordSpanError(span, err)
	}

	if in.RequestID != "" && s.cache != nil {
		claimed, claimErr := s.cache.SetIdempotency(ctx, in.RequestID)
		if claimErr != nil {
			return nil, recordSpanError(span, fmt.Errorf("idempotency check failed: %w", claimErr))
		}
		if !claimed {
			return nil, recordSpanError(span, ErrDuplicateRequest)
		}
		defer func() {
			if err == nil {
				return
			}
			if relErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), in.RequestID); relErr != nil {
				s.logger.Warn("failed to release request id", zap.String("request_id", in.RequestID), zap.Error(relErr))
			}
		}()
	}

	err = s.tx.run(ctx, func(tx port.Transaction, events *domain.EventBuffer) error {
		reservation := NewStockReservation(tx.Inventories())
		if err := reservation.Reserve(ctx, stockItems(in.Items)); err != nil {
			s.countReservationFailure(err)
			return err
		}

		created, err := domain.NewSale(in.CustomerID, in.UserID, in.Items)
		if err != nil {
			if rbErr := reservation.Rollback(); rbErr != nil {
				return errors.Join(err, rbErr)
			}
			return err
		}

		reserved, err := reservation.Commit(ctx)
		if err != nil {
			return err
		}
		if err := tx.Sales().Add(ctx, created); err != nil {
			return fmt.Errorf("save sale: %w", err)
		}

		events.Record(reserved...)
		sale = created
		return nil
	})
	if err != nil {
		return nil, recordSpanError(span, err)
	}

	s.metrics.SalesCreated.Inc()
	span.SetAttributes(attribute.Int64("sale.id", sale.ID()))
	s.logger.Info("sale created",
		zap.Int64("sale_id", sale.ID()),
		zap.String("customer_id", sale.CustomerID()),
		zap.String("total", sale.TotalAmount().String()),
	)
	return sale, nil
}

// CancelSale marks the sale cancelled. Stock comes back through the
// SaleCancelledEvent handler, not through this call. Units already put back
// by approved returns are not restored twice, and pending returns are
// rejected in the same transaction.
func (s *SaleService) CancelSale(ctx context.Context, saleID int64, userID, reason string) (*domain.Sale, error) {
	ctx, span := tracer().Start(ctx, "sale.cancel")
	defer span.End()
	span.SetAttributes(attribute.Int64("sale.id", saleID))

	var sale *domain.Sale
	err := s.tx.run(ctx, func(tx port.Transaction, events *domain.EventBuffer) error {
		found, err := tx.Sales().GetByID(ctx, saleID)
		if err != nil {
			return err
		}
		returns, err := tx.Returns().ListBySale(ctx, saleID)
		if err != nil {
			return err
		}

		var restocked []domain.StockItem
		var pending []*domain.Return
		for _, r := range returns {
			switch r.Status() {
			case domain.ReturnStatusApproved:
				restocked = append(restocked, r.StockItems()...)
			case domain.ReturnStatusPending:
				pending = append(pending, r)
			}
		}

		event, err := found.Cancel(userID, reason, restocked...)
		if err != nil {
			return err
		}
		if err := tx.Sales().Update(ctx, found); err != nil {
			return fmt.Errorf("save sale: %w", err)
		}
		for _, r := range pending {
			if err := r.Reject(userID, saleCancelledReason); err != nil {
				return err
			}
			if err := tx.Returns().Update(ctx, r); err != nil {
				return fmt.Errorf("save return %d: %w", r.ID(), err)
			}
		}
		events.Record(event)
		sale = found
		return nil
	})
	if err != nil {
		return nil, recordSpanError(span, err)
	}

	s.metrics.SalesCancelled.Inc()
	s.logger.Info("sale cancelled", zap.Int64("sale_id", saleID), zap.String("user_id", userID))
	return sale, nil
}

func (s *SaleService) GetSale(ctx context.Context, saleID int64) (*domain.Sale, error) {
	var sale *domain.Sale
	err := s.tx.run(ctx, func(tx port.Transaction, _ *domain.EventBuffer) error {
		found, err := tx.Sales().GetByID(ctx, saleID)
		sale = found
		return err
	})
	return sale, err
}

func (s *SaleService) countReservationFailure(err error) {
	reason := "other"
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		reason = "insufficient_stock"
	case errors.Is(err, domain.ErrNotFound):
		reason = "not_found"
	case errors.Is(err, domain.ErrValidation):
		reason = "invalid_item"
	}
	s.metrics.ReservationFailures.WithLabelValues(reason).Inc()
}

func stockItems(items []domain.SaleItem) []domain.StockItem {
	out := make([]domain.StockItem, len(items))
	for i, item := range items {
		out[i] = domain.StockItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return out
}
