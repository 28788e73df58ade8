package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event type names
const (
	EventStockAdded       = "pos.inventory.stock-added"
	EventStockDecremented = "pos.inventory.stock-decremented"
	EventStockAdjusted    = "pos.inventory.stock-adjusted"
	EventLowStock         = "pos.inventory.low-stock"
	EventSaleCancelled    = "pos.sale.cancelled"
	EventReturnApproved   = "pos.return.approved"
)

// DomainEvent is an immutable fact raised by an aggregate.
type DomainEvent interface {
	EventID() string
	EventType() string
	OccurredOn() time.Time
}

// EventMeta holds the identity and timestamp shared by every event.
type EventMeta struct {
	ID string    `json:"eventId"`
	At time.Time `json:"occurredOn"`
}

func newEventMeta(at time.Time) EventMeta {
	return EventMeta{ID: uuid.NewString(), At: at.UTC()}
}

func (m EventMeta) EventID() string       { return m.ID }
func (m EventMeta) OccurredOn() time.Time { return m.At }

// StockItem pairs a product with a quantity to decrement or restore.
type StockItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type StockAddedEvent struct {
	EventMeta
	ProductID     string `json:"productId"`
	QuantityAdded int    `json:"quantityAdded"`
	NewTotal      int    `json:"newTotal"`
}

func (e *StockAddedEvent) EventType() string { return EventStockAdded }

type StockDecrementedEvent struct {
	EventMeta
	ProductID       string `json:"productId"`
	QuantityRemoved int    `json:"quantityRemoved"`
	NewTotal        int    `json:"newTotal"`
}

func (e *StockDecrementedEvent) EventType() string { return EventStockDecremented }

type StockAdjustedEvent struct {
	EventMeta
	ProductID   string `json:"productId"`
	OldQuantity int    `json:"oldQuantity"`
	NewQuantity int    `json:"newQuantity"`
}

func (e *StockAdjustedEvent) EventType() string { return EventStockAdjusted }

// LowStockEvent fires when stock falls into the (0, threshold] band.
type LowStockEvent struct {
	EventMeta
	ProductID       string `json:"productId"`
	CurrentQuantity int    `json:"currentQuantity"`
	Threshold       int    `json:"threshold"`
}

func (e *LowStockEvent) EventType() string { return EventLowStock }

type SaleCancelledEvent struct {
	EventMeta
	SaleID            int64       `json:"saleId"`
	CancelledByUserID string      `json:"cancelledByUserId"`
	Reason            string      `json:"reason"`
	ItemsToRestore    []StockItem `json:"itemsToRestore"`
}

func (e *SaleCancelledEvent) EventType() string { return EventSaleCancelled }

type ReturnApprovedEvent struct {
	EventMeta
	ReturnID       int64       `json:"returnId"`
	SaleID         int64       `json:"saleId"`
	ItemsToRestock []StockItem `json:"itemsToRestock"`
}

func (e *ReturnApprovedEvent) EventType() string { return EventReturnApproved }

// EventBuffer collects events raised inside one transaction. It is drained by the
// transaction boundary once the commit succeeded and discarded otherwise.
type EventBuffer struct {
	events []DomainEvent
}

func (b *EventBuffer) Record(events ...DomainEvent) {
	for _, e := range events {
		if e != nil {
			b.events = append(b.events, e)
		}
	}
}

// Pending returns a copy of the buffered events in raise order.
func (b *EventBuffer) Pending() []DomainEvent {
	out := make([]DomainEvent, len(b.events))
	copy(out, b.events)
	return out
}

func (b *EventBuffer) Len() int { return len(b.events) }

// Drain returns the buffered events and empties the buffer.
func (b *EventBuffer) Drain() []DomainEvent {
	out := b.events
	b.events = nil
	return out
}
