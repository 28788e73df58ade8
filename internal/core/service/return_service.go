package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rl1809/pos-inventory/internal/core/domain"
	"github.com/rl1809/pos-inventory/internal/metrics"
	"github.com/rl1809/pos-inventory/internal/port"
)

type RequestReturnInput struct {
	SaleID            int64
	CustomerID        string
	ProcessedByUserID string
	Type              domain.ReturnType
	Reason            string
	Items             []domain.ReturnItem
}

type ReturnService struct {
	tx      txRunner
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewReturnService(uow port.UnitOfWork, dispatcher port.EventDispatcher, logger *zap.Logger, m *metrics.Metrics) *ReturnService {
	return &ReturnService{
		tx:      txRunner{uow: uow, dispatcher: dispatcher, logger: logger},
		logger:  logger,
		metrics: m,
	}
}

// RequestReturn opens a pending return against a sale. Every product must be
// on the sale, and the quantity still returnable is what was sold minus what
// pending and approved returns already claim.
func (s *ReturnService) RequestReturn(ctx context.Context, in RequestReturnInput) (*domain.Return, error) {
	ctx, span := tracer().Start(ctx, "return.request")
	defer span.End()
	span.SetAttributes(attribute.Int64("sale.id", in.SaleID))

	var ret *domain.Return
	err := s.tx.run(ctx, func(tx port.Transaction, _ *domain.EventBuffer) error {
		sale, err := tx.Sales().GetByID(ctx, in.SaleID)
		if err != nil {
			return err
		}
		if sale.IsCancelled() {
			return domain.ErrSaleCancelled
		}
		if sale.CustomerID() != in.CustomerID {
			return domain.ErrCustomerMismatch
		}

		existing, err := tx.Returns().ListBySale(ctx, in.SaleID)
		if err != nil {
			return err
		}
		if err := checkReturnable(sale, existing, in.Items); err != nil {
			return err
		}

		created, err := domain.NewReturn(in.SaleID, in.CustomerID, in.ProcessedByUserID, in.Type, in.Reason, in.Items)
		if err != nil {
			return err
		}
		if err := tx.Returns().Add(ctx, created); err != nil {
			return fmt.Errorf("save return: %w", err)
		}
		ret = created
		return nil
	})
	if err != nil {
		return nil, recordSpanError(span, err)
	}

	s.metrics.ReturnsProcessed.WithLabelValues(string(domain.ReturnStatusPending)).Inc()
	s.logger.Info("return requested",
		zap.Int64("return_id", ret.ID()),
		zap.Int64("sale_id", in.SaleID),
		zap.String("total_refund", ret.TotalRefund().String()),
	)
	return ret, nil
}

func checkReturnable(sale *domain.Sale, existing []*domain.Return, items []domain.ReturnItem) error {
	remaining := make(map[string]int)
	for _, d := range sale.Details() {
		remaining[d.ProductID()] = d.Quantity()
	}
	for _, r := range existing {
		if !r.Counts() {
			continue
		}
		for _, d := range r.Details() {
			remaining[d.ProductID()] -= d.Quantity()
		}
	}

	for _, item := range items {
		left, sold := remaining[item.ProductID]
		if !sold {
			return &domain.BusinessRuleError{
				Code:    domain.CodeReturnExceedsSale,
				Message: fmt.Sprintf("product %s was not part of sale %d", item.ProductID, sale.ID()),
			}
		}
		if item.Quantity > left {
			return &domain.BusinessRuleError{
				Code:    domain.CodeReturnExceedsSale,
				Message: fmt.Sprintf("product %s: requested %d, returnable %d", item.ProductID, item.Quantity, left),
			}
		}
	}
	return nil
}

// ApproveReturn approves a pending return. Restocking happens in the
// ReturnApprovedEvent handler after the commit. A return on a cancelled sale
// is refused since the cancellation already restored its units.
func (s *ReturnService) ApproveReturn(ctx context.Context, returnID int64, approvedByUserID string) (*domain.Return, error) {
	ctx, span := tracer().Start(ctx, "return.approve")
	defer span.End()
	span.SetAttributes(attribute.Int64("return.id", returnID))

	var ret *domain.Return
	err := s.tx.run(ctx, func(tx port.Transaction, events *domain.EventBuffer) error {
		found, err := tx.Returns().GetByID(ctx, returnID)
		if err != nil {
			return err
		}
		sale, err := tx.Sales().GetByID(ctx, found.SaleID())
		if err != nil {
			return err
		}
		if sale.IsCancelled() {
			return domain.ErrSaleCancelled
		}
		event, err := found.Approve(approvedByUserID)
		if err != nil {
			return err
		}
		if err := tx.Returns().Update(ctx, found); err != nil {
			return fmt.Errorf("save return: %w", err)
		}
		events.Record(event)
		ret = found
		return nil
	})
	if err != nil {
		return nil, recordSpanError(span, err)
	}

	s.metrics.ReturnsProcessed.WithLabelValues(string(domain.ReturnStatusApproved)).Inc()
	s.logger.Info("return approved", zap.Int64("return_id", returnID), zap.String("user_id", approvedByUserID))
	return ret, nil
}

func (s *ReturnService) RejectReturn(ctx context.Context, returnID int64, rejectedByUserID, reason string) (*domain.Return, error) {
	ctx, span := tracer().Start(ctx, "return.reject")
	defer span.End()
	span.SetAttributes(attribute.Int64("return.id", returnID))

	var ret *domain.Return
	err := s.tx.run(ctx, func(tx port.Transaction, _ *domain.EventBuffer) error {
		found, err := tx.Returns().GetByID(ctx, returnID)
		if err != nil {
			return err
		}
		if err := found.Reject(rejectedByUserID, reason); err != nil {
			return err
		}
		if err := tx.Returns().Update(ctx, found); err != nil {
			return fmt.Errorf("save return: %w", err)
		}
		ret = found
		return nil
	})
	if err != nil {
		return nil, recordSpanError(span, err)
	}

	s.metrics.ReturnsProcessed.WithLabelValues(string(domain.ReturnStatusRejected)).Inc()
	s.logger.Info("return rejected", zap.Int64("return_id", returnID), zap.String("user_id", rejectedByUserID))
	return ret, nil
}

func (s *ReturnService) GetReturn(ctx context.Context, returnID int64) (*domain.Return, error) {
	var ret *domain.Return
	err := s.tx.run(ctx, func(tx port.Transaction, _ *domain.EventBuffer) error {
		found, err := tx.Returns().GetByID(ctx, returnID)
		ret = found
		return err
	})
	return ret, err
}
