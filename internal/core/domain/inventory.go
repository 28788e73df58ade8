package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const DefaultLowStockThreshold = 10

// MaxStock is the largest stock level a row can hold; the column is a 32-bit INT.
const MaxStock = math.MaxInt32

// InventoryState is the persisted shape of an Inventory row.
type InventoryState struct {
	ID        int64
	ProductID string
	Stock     int
	Threshold int
	Version   int // optimistic locking
	CreatedAt time.Time
	UpdatedAt time.Time
	Tombstone
}

// Inventory owns the stock counter of one product. Stock is never negative.
type Inventory struct {
	state InventoryState
}

// NewInventory creates an empty stock row, used on the first stock-in of a product.
func NewInventory(productID string, threshold int) (*Inventory, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, invalid("productId", "is required")
	}
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	now := time.Now().UTC()
	return &Inventory{state: InventoryState{
		ProductID: productID,
		Threshold: threshold,
		CreatedAt: now,
		UpdatedAt: now,
	}}, nil
}

// RestoreInventory rebuilds an Inventory from storage.
func RestoreInventory(s InventoryState) (*Inventory, error) {
	if s.Stock < 0 {
		return nil, ErrNegativeStock
	}
	if s.Threshold <= 0 {
		s.Threshold = DefaultLowStockThreshold
	}
	return &Inventory{state: s}, nil
}

func (i *Inventory) State() InventoryState { return i.state }
func (i *Inventory) ID() int64             { return i.state.ID }
func (i *Inventory) ProductID() string     { return i.state.ProductID }
func (i *Inventory) Stock() int            { return i.state.Stock }
func (i *Inventory) Threshold() int        { return i.state.Threshold }
func (i *Inventory) Version() int          { return i.state.Version }
func (i *Inventory) IsDeleted() bool       { return i.state.IsDeleted() }

// AssignID is called by the store when the row is first inserted.
func (i *Inventory) AssignID(id int64) error {
	if i.state.ID != 0 {
		return violation(CodeAlreadyPersisted, "inventory already has an id")
	}
	if id <= 0 {
		return invalid("id", "must be positive")
	}
	i.state.ID = id
	return nil
}

// MarkSaved records the version written by the store.
func (i *Inventory) MarkSaved(version int) {
	i.state.Version = version
}

func (i *Inventory) AddStock(qty int) (*StockAddedEvent, error) {
	q, err := PositiveQuantity(qty)
	if err != nil {
		return nil, err
	}
	if q.Int() > MaxStock-i.state.Stock {
		return nil, invalid("quantity", fmt.Sprintf("stock of %s would exceed %d", i.state.ProductID, MaxStock))
	}
	i.state.Stock += q.Int()
	i.touch()
	return &StockAddedEvent{
		EventMeta:     newEventMeta(i.state.UpdatedAt),
		ProductID:     i.state.ProductID,
		QuantityAdded: q.Int(),
		NewTotal:      i.state.Stock,
	}, nil
}

// RemoveStock decrements stock. Removing more than available fails and leaves
// stock unchanged. A LowStockEvent follows the decrement event when the new
// quantity lands in (0, threshold].
func (i *Inventory) RemoveStock(qty int) ([]DomainEvent, error) {
	q, err := PositiveQuantity(qty)
	if err != nil {
		return nil, err
	}
	if q.Int() > i.state.Stock {
		return nil, &InsufficientStockError{
			ProductID: i.state.ProductID,
			Available: i.state.Stock,
			Required:  q.Int(),
		}
	}
	i.state.Stock -= q.Int()
	i.touch()

	events := []DomainEvent{&StockDecrementedEvent{
		EventMeta:       newEventMeta(i.state.UpdatedAt),
		ProductID:       i.state.ProductID,
		QuantityRemoved: q.Int(),
		NewTotal:        i.state.Stock,
	}}
	if i.state.Stock > 0 && i.state.Stock <= i.state.Threshold {
		events = append(events, &LowStockEvent{
			EventMeta:       newEventMeta(i.state.UpdatedAt),
			ProductID:       i.state.ProductID,
			CurrentQuantity: i.state.Stock,
			Threshold:       i.state.Threshold,
		})
	}
	return events, nil
}

// SetStock is an absolute correction used for manual adjustment.
func (i *Inventory) SetStock(qty int) (*StockAdjustedEvent, error) {
	if qty < 0 {
		return nil, ErrNegativeStock
	}
	if qty > MaxStock {
		return nil, invalid("quantity", fmt.Sprintf("must not exceed %d", MaxStock))
	}
	old := i.state.Stock
	i.state.Stock = qty
	i.touch()
	return &StockAdjustedEvent{
		EventMeta:   newEventMeta(i.state.UpdatedAt),
		ProductID:   i.state.ProductID,
		OldQuantity: old,
		NewQuantity: qty,
	}, nil
}

// SoftDelete retires the row. Deleting twice keeps the first timestamp.
func (i *Inventory) SoftDelete(at time.Time) {
	if i.state.DeletedAt != nil {
		return
	}
	at = at.UTC()
	i.state.DeletedAt = &at
	i.state.UpdatedAt = at
}

func (i *Inventory) touch() {
	i.state.UpdatedAt = time.Now().UTC()
}
