package service

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pos-inventory/internal/core/domain"
)

func returnInput(saleID int64, items ...domain.ReturnItem) RequestReturnInput {
	return RequestReturnInput{
		SaleID:            saleID,
		CustomerID:        "cust-1",
		ProcessedByUserID: "clerk-1",
		Type:              domain.ReturnTypeRefund,
		Reason:            "damaged",
		Items:             items,
	}
}

func returned(productID string, qty int) domain.ReturnItem {
	return domain.ReturnItem{ProductID: productID, Quantity: qty, UnitPrice: decimal.NewFromInt(4)}
}

// soldFixture sells 3 x P1 and 2 x P2 out of 20 each.
func soldFixture(t *testing.T) (*fixture, *domain.Sale) {
	t.Helper()
	f := newFixture(t)
	f.seed(t, "P1", 20)
	f.seed(t, "P2", 20)
	sale, err := f.sales.CreateSale(context.Background(), saleInput(item("P1", 3, "4"), item("P2", 2, "4")))
	require.NoError(t, err)
	return f, sale
}

func TestApproveReturn_RestocksOnce(t *testing.T) {
	f, sale := soldFixture(t)
	ctx := context.Background()

	ret, err := f.returns.RequestReturn(ctx, returnInput(sale.ID(), returned("P1", 2)))
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusPending, ret.Status())
	assert.Equal(t, "8.00", ret.TotalRefund().String())
	assert.Equal(t, 17, f.stockOf(t, "P1"), "pending returns do not touch stock")

	approved, err := f.returns.ApproveReturn(ctx, ret.ID(), "manager-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusApproved, approved.Status())
	assert.Equal(t, 19, f.stockOf(t, "P1"))
	assert.Contains(t, f.dispatchedTypes(), domain.EventReturnApproved)

	_, err = f.returns.ApproveReturn(ctx, ret.ID(), "manager-1")
	assert.ErrorIs(t, err, domain.ErrNotPending)
	assert.Equal(t, 19, f.stockOf(t, "P1"))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReturnsProcessed.WithLabelValues("approved")))
}

func TestRejectReturn(t *testing.T) {
	f, sale := soldFixture(t)
	ctx := context.Background()

	ret, err := f.returns.RequestReturn(ctx, returnInput(sale.ID(), returned("P2", 1)))
	require.NoError(t, err)

	_, err = f.returns.RejectReturn(ctx, ret.ID(), "manager-1", "  ")
	assert.ErrorIs(t, err, domain.ErrBlankReason)

	rejected, err := f.returns.RejectReturn(ctx, ret.ID(), "manager-1", "outside return window")
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusRejected, rejected.Status())

	_, err = f.returns.ApproveReturn(ctx, ret.ID(), "manager-1")
	assert.ErrorIs(t, err, domain.ErrNotPending)
	assert.Equal(t, 18, f.stockOf(t, "P2"), "rejected returns never restock")

	loaded, err := f.returns.GetReturn(ctx, ret.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusRejected, loaded.Status())
}

func TestRequestReturn_QuantityLimits(t *testing.T) {
	f, sale := soldFixture(t)
	ctx := context.Background()

	first, err := f.returns.RequestReturn(ctx, returnInput(sale.ID(), returned("P1", 2)))
	require.NoError(t, err)

	_, err = f.returns.RequestReturn(ctx, returnInput(sale.ID(), returned("P1", 2)))
	assert.ErrorIs(t, err, domain.ErrReturnExceedsSale, "only one unit of P1 is left to return")

	_, err = f.returns.RejectReturn(ctx, first.ID(), "manager-1", "not eligible")
	require.NoError(t, err)

	_, err = f.returns.RequestReturn(ctx, returnInput(sale.ID(), returned("P1", 3)))
	assert.NoError(t, err, "rejected returns free their quantity")
}

func TestRequestReturn_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(in *RequestReturnInput)
		wantErr error
	}{
		{
			name:    "product not on sale",
			mutate:  func(in *RequestReturnInput) { in.Items = []domain.ReturnItem{returned("P9", 1)} },
			wantErr: domain.ErrReturnExceedsSale,
		},
		{
			name:    "different customer",
			mutate:  func(in *RequestReturnInput) { in.CustomerID = "cust-2" },
			wantErr: domain.ErrCustomerMismatch,
		},
		{
			name:    "unknown sale",
			mutate:  func(in *RequestReturnInput) { in.SaleID = 987654 },
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "blank reason",
			mutate:  func(in *RequestReturnInput) { in.Reason = "" },
			wantErr: domain.ErrBlankReason,
		},
		{
			name:    "unknown type",
			mutate:  func(in *RequestReturnInput) { in.Type = "swap" },
			wantErr: domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, sale := soldFixture(t)
			in := returnInput(sale.ID(), returned("P1", 1))
			tt.mutate(&in)

			_, err := f.returns.RequestReturn(context.Background(), in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRequestReturn_CancelledSale(t *testing.T) {
	f, sale := soldFixture(t)
	ctx := context.Background()

	_, err := f.sales.CancelSale(ctx, sale.ID(), "manager-1", "voided")
	require.NoError(t, err)

	_, err = f.returns.RequestReturn(ctx, returnInput(sale.ID(), returned("P1", 1)))
	assert.ErrorIs(t, err, domain.ErrSaleCancelled)
}

func TestApproveReturn_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.returns.ApproveReturn(context.Background(), 31337, "manager-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancelSale_AfterApprovedReturnRestoresTheRest(t *testing.T) {
	f, sale := soldFixture(t)
	ctx := context.Background()

	ret, err := f.returns.RequestReturn(ctx, returnInput(sale.ID(), returned("P1", 2)))
	require.NoError(t, err)
	_, err = f.returns.ApproveReturn(ctx, ret.ID(), "manager-1")
	require.NoError(t, err)
	require.Equal(t, 19, f.stockOf(t, "P1"))

	_, err = f.sales.CancelSale(ctx, sale.ID(), "manager-1", "voided")
	require.NoError(t, err)

	assert.Equal(t, 20, f.stockOf(t, "P1"))
	assert.Equal(t, 20, f.stockOf(t, "P2"))

	var cancelled *domain.SaleCancelledEvent
	f.mu.Lock()
	for _, e := range f.dispatched {
		if ev, ok := e.(*domain.SaleCancelledEvent); ok {
			cancelled = ev
		}
	}
	f.mu.Unlock()
	require.NotNil(t, cancelled)
	assert.Equal(t, []domain.StockItem{{ProductID: "P1", Quantity: 1}, {ProductID: "P2", Quantity: 2}}, cancelled.ItemsToRestore)
}

func TestCancelSale_RejectsPendingReturns(t *testing.T) {
	f, sale := soldFixture(t)
	ctx := context.Background()

	ret, err := f.returns.RequestReturn(ctx, returnInput(sale.ID(), returned("P1", 2)))
	require.NoError(t, err)

	_, err = f.sales.CancelSale(ctx, sale.ID(), "manager-1", "voided")
	require.NoError(t, err)
	require.Equal(t, 20, f.stockOf(t, "P1"))

	loaded, err := f.returns.GetReturn(ctx, ret.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusRejected, loaded.Status())

	_, err = f.returns.ApproveReturn(ctx, ret.ID(), "manager-1")
	assert.ErrorIs(t, err, domain.ErrNotPending)
	assert.Equal(t, 20, f.stockOf(t, "P1"))
	assert.Equal(t, 20, f.stockOf(t, "P2"))
}

func TestApproveReturn_CancelledSale(t *testing.T) {
	f, sale := soldFixture(t)
	ctx := context.Background()

	_, err := f.sales.CancelSale(ctx, sale.ID(), "manager-1", "voided")
	require.NoError(t, err)

	// Written straight to the store so the pending return outlives the cancel.
	stale, err := domain.NewReturn(sale.ID(), "cust-1", "clerk-1", domain.ReturnTypeRefund, "damaged", []domain.ReturnItem{returned("P1", 2)})
	require.NoError(t, err)
	tx, err := f.store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Returns().Add(ctx, stale))
	require.NoError(t, tx.Commit())

	_, err = f.returns.ApproveReturn(ctx, stale.ID(), "manager-1")
	assert.ErrorIs(t, err, domain.ErrSaleCancelled)
	assert.Equal(t, 20, f.stockOf(t, "P1"))

	loaded, err := f.returns.GetReturn(ctx, stale.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusPending, loaded.Status())
}
