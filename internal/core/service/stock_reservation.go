package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/pos-inventory/internal/core/domain"
	"github.com/rl1809/pos-inventory/internal/port"
)

var ErrReservationClosed = errors.New("stock reservation already committed or rolled back")

type reservationState int

const (
	reservationOpen reservationState = iota
	reservationCommitted
	reservationRolledBack
)

type reservedStock struct {
	inv    *domain.Inventory
	before int
}

// StockReservation decrements stock for a batch of items inside one transaction.
//
// Reserve applies RemoveStock item by item, so a later item for the same
// product sees the earlier decrement. The first failure undoes everything
// reserved so far. Commit writes the touched rows through the repository;
// Rollback puts every row back to the quantity it had before Reserve.
type StockReservation struct {
	repo     port.InventoryRepository
	reserved []reservedStock
	index    map[string]int
	events   domain.EventBuffer
	state    reservationState
}

func NewStockReservation(repo port.InventoryRepository) *StockReservation {
	return &StockReservation{
		repo:  repo,
		index: make(map[string]int),
	}
}

func (r *StockReservation) Reserve(ctx context.Context, items []domain.StockItem) error {
	if r.state != reservationOpen {
		return ErrReservationClosed
	}

	for _, item := range items {
		if err := r.reserveOne(ctx, item); err != nil {
			if rbErr := r.Rollback(); rbErr != nil {
				return errors.Join(err, rbErr)
			}
			return err
		}
	}
	return nil
}

func (r *StockReservation) reserveOne(ctx context.Context, item domain.StockItem) error {
	i, tracked := r.index[item.ProductID]
	if !tracked {
		inv, err := r.repo.GetByProductID(ctx, item.ProductID)
		if err != nil {
			return fmt.Errorf("reserve %s: %w", item.ProductID, err)
		}
		r.reserved = append(r.reserved, reservedStock{inv: inv, before: inv.Stock()})
		i = len(r.reserved) - 1
		r.index[item.ProductID] = i
	}

	events, err := r.reserved[i].inv.RemoveStock(item.Quantity)
	if err != nil {
		return fmt.Errorf("reserve %s: %w", item.ProductID, err)
	}
	r.events.Record(events...)
	return nil
}

// Inventories lists the rows touched so far, in reservation order.
func (r *StockReservation) Inventories() []*domain.Inventory {
	out := make([]*domain.Inventory, len(r.reserved))
	for i, rs := range r.reserved {
		out[i] = rs.inv
	}
	return out
}

// Events returns the events raised by the reservation so far.
func (r *StockReservation) Events() []domain.DomainEvent {
	return r.events.Pending()
}

// Commit writes every reserved row and hands back the events they raised.
// The events must only be dispatched after the surrounding transaction commits.
func (r *StockReservation) Commit(ctx context.Context) ([]domain.DomainEvent, error) {
	if r.state != reservationOpen {
		return nil, ErrReservationClosed
	}
	for _, rs := range r.reserved {
		if err := r.repo.Update(ctx, rs.inv); err != nil {
			return nil, fmt.Errorf("persist reservation for %s: %w", rs.inv.ProductID(), err)
		}
	}
	r.state = reservationCommitted
	return r.events.Drain(), nil
}

// Rollback restores each reserved row to its pre-reservation quantity and
// discards the pending events. A failure here leaves the rows in an unknown
// state and must be surfaced.
func (r *StockReservation) Rollback() error {
	if r.state == reservationCommitted {
		return ErrReservationClosed
	}

	var errs []error
	for i := len(r.reserved) - 1; i >= 0; i-- {
		rs := r.reserved[i]
		if _, err := rs.inv.SetStock(rs.before); err != nil {
			errs = append(errs, fmt.Errorf("restore %s to %d: %w", rs.inv.ProductID(), rs.before, err))
		}
	}
	r.events.Drain()
	r.reserved = nil
	r.index = make(map[string]int)
	r.state = reservationRolledBack

	if len(errs) > 0 {
		return fmt.Errorf("stock reservation rollback failed: %w", errors.Join(errs...))
	}
	return nil
}
