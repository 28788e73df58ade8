package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pos-inventory/internal/core/domain"
	"github.com/rl1809/pos-inventory/internal/port"
)

func openTx(t *testing.T, f *fixture) port.Transaction {
	t.Helper()
	tx, err := f.store.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { tx.Rollback() })
	return tx
}

func stockLevels(r *StockReservation) map[string]int {
	out := make(map[string]int)
	for _, inv := range r.Inventories() {
		out[inv.ProductID()] = inv.Stock()
	}
	return out
}

func TestStockReservation_LaterItemsSeeEarlierDecrements(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "P1", 5)
	tx := openTx(t, f)

	r := NewStockReservation(tx.Inventories())
	err := r.Reserve(context.Background(), []domain.StockItem{
		{ProductID: "P1", Quantity: 4},
		{ProductID: "P1", Quantity: 3},
	})

	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 3, stockErr.Required)
	assert.Empty(t, r.Inventories(), "failed reservation keeps nothing")
	assert.Empty(t, r.Events())
}

func TestStockReservation_RollbackRestoresSnapshot(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "P1", 10)
	f.seed(t, "P2", 8)
	tx := openTx(t, f)

	r := NewStockReservation(tx.Inventories())
	require.NoError(t, r.Reserve(context.Background(), []domain.StockItem{
		{ProductID: "P1", Quantity: 3},
		{ProductID: "P2", Quantity: 2},
	}))
	assert.Equal(t, map[string]int{"P1": 7, "P2": 6}, stockLevels(r))
	assert.Len(t, r.Events(), 4, "two decrements, two low-stock alerts")

	touched := r.Inventories()
	require.NoError(t, r.Rollback())

	assert.Equal(t, 10, touched[0].Stock())
	assert.Equal(t, 8, touched[1].Stock())
	assert.Empty(t, r.Events())
	assert.Empty(t, r.Inventories())
}

func TestStockReservation_FailFastUndoesEarlierItems(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "P1", 10)
	f.seed(t, "P2", 1)
	tx := openTx(t, f)

	r := NewStockReservation(tx.Inventories())
	err := r.Reserve(context.Background(), []domain.StockItem{
		{ProductID: "P1", Quantity: 5},
		{ProductID: "P2", Quantity: 1000},
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "P2")

	// the staged copy in the transaction was never written
	inv, err := tx.Inventories().GetByProductID(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, 10, inv.Stock())
}

func TestStockReservation_CommitPersistsAndCloses(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "P1", 20)
	ctx := context.Background()
	tx := openTx(t, f)

	r := NewStockReservation(tx.Inventories())
	require.NoError(t, r.Reserve(ctx, []domain.StockItem{{ProductID: "P1", Quantity: 12}}))

	events, err := r.Commit(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventStockDecremented, events[0].EventType())
	assert.Equal(t, domain.EventLowStock, events[1].EventType())
	assert.Empty(t, r.Events(), "commit hands the events over")

	require.NoError(t, tx.Commit())
	assert.Equal(t, 8, f.stockOf(t, "P1"))

	assert.ErrorIs(t, r.Reserve(ctx, []domain.StockItem{{ProductID: "P1", Quantity: 1}}), ErrReservationClosed)
	assert.ErrorIs(t, r.Rollback(), ErrReservationClosed)
	_, err = r.Commit(ctx)
	assert.ErrorIs(t, err, ErrReservationClosed)
}

func TestStockReservation_MissingInventory(t *testing.T) {
	f := newFixture(t)
	tx := openTx(t, f)

	r := NewStockReservation(tx.Inventories())
	err := r.Reserve(context.Background(), []domain.StockItem{{ProductID: "ghost", Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "ghost")
}
