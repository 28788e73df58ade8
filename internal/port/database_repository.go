package port

import (
	"context"
	"errors"

	"github.com/rl1809/pos-inventory/internal/core/domain"
)

// ErrConflict is matched by store errors caused by a concurrent write to the same row.
var ErrConflict = errors.New("concurrent update conflict")

// UnitOfWork opens durable transactions. Everything written through one
// Transaction becomes visible atomically on Commit, or not at all.
type UnitOfWork interface {
	Begin(ctx context.Context) (Transaction, error)
}

type Transaction interface {
	Inventories() InventoryRepository
	Sales() SaleRepository
	Returns() ReturnRepository

	Commit() error

	// Rollback discards the transaction. Calling it after Commit is a no-op.
	Rollback() error
}

// Lookups never return soft-deleted rows; a missing row is a *domain.NotFoundError.
type InventoryRepository interface {
	GetByProductID(ctx context.Context, productID string) (*domain.Inventory, error)

	// Add inserts a new row and assigns its id
	Add(ctx context.Context, inv *domain.Inventory) error

	// Update writes the row with optimistic locking on its version
	Update(ctx context.Context, inv *domain.Inventory) error
}

type SaleRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Sale, error)

	// Add inserts the sale, assigns its id, finalizes the details and inserts them
	Add(ctx context.Context, sale *domain.Sale) error

	// Update writes the cancellation fields
	Update(ctx context.Context, sale *domain.Sale) error
}

type ReturnRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Return, error)
	ListBySale(ctx context.Context, saleID int64) ([]*domain.Return, error)
	Add(ctx context.Context, ret *domain.Return) error
	Update(ctx context.Context, ret *domain.Return) error
}
