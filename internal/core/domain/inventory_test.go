package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stocked(t *testing.T, productID string, stock int) *Inventory {
	t.Helper()
	inv, err := NewInventory(productID, DefaultLowStockThreshold)
	require.NoError(t, err)
	if stock > 0 {
		_, err = inv.AddStock(stock)
		require.NoError(t, err)
	}
	return inv
}

func TestNewInventory(t *testing.T) {
	inv, err := NewInventory("P1", 0)
	require.NoError(t, err)
	assert.Equal(t, "P1", inv.ProductID())
	assert.Equal(t, 0, inv.Stock())
	assert.Equal(t, DefaultLowStockThreshold, inv.Threshold())

	_, err = NewInventory("  ", 5)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestInventoryAddStock(t *testing.T) {
	tests := []struct {
		name      string
		qty       int
		wantStock int
		wantErr   error
	}{
		{name: "positive quantity", qty: 7, wantStock: 12},
		{name: "zero quantity", qty: 0, wantStock: 5, wantErr: ErrValidation},
		{name: "negative quantity", qty: -3, wantStock: 5, wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := stocked(t, "P1", 5)
			evt, err := inv.AddStock(tt.qty)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, evt)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "P1", evt.ProductID)
				assert.Equal(t, tt.qty, evt.QuantityAdded)
				assert.Equal(t, tt.wantStock, evt.NewTotal)
				assert.NotEmpty(t, evt.EventID())
			}
			assert.Equal(t, tt.wantStock, inv.Stock())
		})
	}
}

func TestInventoryRemoveStock_Insufficient(t *testing.T) {
	inv := stocked(t, "P1", 4)

	events, err := inv.RemoveStock(5)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 4, stockErr.Available)
	assert.Equal(t, 5, stockErr.Required)
	assert.Equal(t, "P1", stockErr.ProductID)
	assert.Nil(t, events)
	assert.Equal(t, 4, inv.Stock())
}

func TestInventoryRemoveStock_LowStockBand(t *testing.T) {
	tests := []struct {
		name      string
		remove    int
		wantStock int
		wantLow   bool
	}{
		{name: "stays above threshold", remove: 4, wantStock: 11, wantLow: false},
		{name: "lands on threshold", remove: 5, wantStock: 10, wantLow: true},
		{name: "drops below threshold", remove: 6, wantStock: 9, wantLow: true},
		{name: "sells out", remove: 15, wantStock: 0, wantLow: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := stocked(t, "P1", 15)

			events, err := inv.RemoveStock(tt.remove)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStock, inv.Stock())

			dec, ok := events[0].(*StockDecrementedEvent)
			require.True(t, ok)
			assert.Equal(t, tt.remove, dec.QuantityRemoved)
			assert.Equal(t, tt.wantStock, dec.NewTotal)

			if tt.wantLow {
				require.Len(t, events, 2)
				low, ok := events[1].(*LowStockEvent)
				require.True(t, ok)
				assert.Equal(t, tt.wantStock, low.CurrentQuantity)
				assert.Equal(t, 10, low.Threshold)
			} else {
				assert.Len(t, events, 1)
			}
		})
	}
}

func TestInventoryRemoveStock_InvalidQuantity(t *testing.T) {
	inv := stocked(t, "P1", 3)
	_, err := inv.RemoveStock(0)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 3, inv.Stock())
}

func TestInventorySetStock(t *testing.T) {
	inv := stocked(t, "P1", 3)

	evt, err := inv.SetStock(42)
	require.NoError(t, err)
	assert.Equal(t, 3, evt.OldQuantity)
	assert.Equal(t, 42, evt.NewQuantity)
	assert.Equal(t, 42, inv.Stock())

	_, err = inv.SetStock(0)
	require.NoError(t, err)
	assert.Equal(t, 0, inv.Stock())

	_, err = inv.SetStock(-1)
	assert.ErrorIs(t, err, ErrNegativeStock)
	assert.ErrorIs(t, err, ErrBusinessRule)
	assert.Equal(t, 0, inv.Stock())
}

func TestInventory_StockCeiling(t *testing.T) {
	inv := stocked(t, "P1", MaxStock-1)

	_, err := inv.AddStock(2)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, MaxStock-1, inv.Stock())

	_, err = inv.AddStock(1)
	require.NoError(t, err)
	assert.Equal(t, MaxStock, inv.Stock())

	_, err = inv.SetStock(MaxStock + 1)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, MaxStock, inv.Stock())
}

func TestRestoreInventory(t *testing.T) {
	inv, err := RestoreInventory(InventoryState{ID: 3, ProductID: "P9", Stock: 8, Version: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(3), inv.ID())
	assert.Equal(t, 4, inv.Version())
	assert.Equal(t, DefaultLowStockThreshold, inv.Threshold())

	_, err = RestoreInventory(InventoryState{ProductID: "P9", Stock: -1})
	assert.ErrorIs(t, err, ErrNegativeStock)
}

func TestInventoryAssignIDAndSoftDelete(t *testing.T) {
	inv := stocked(t, "P1", 0)
	require.NoError(t, inv.AssignID(5))
	assert.ErrorIs(t, inv.AssignID(6), ErrBusinessRule)

	assert.False(t, inv.IsDeleted())
	inv.SoftDelete(inv.State().CreatedAt)
	first := *inv.State().DeletedAt
	inv.SoftDelete(first.Add(1))
	assert.True(t, inv.IsDeleted())
	assert.Equal(t, first, *inv.State().DeletedAt)
}
