package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingReturn(t *testing.T) *Return {
	t.Helper()
	r, err := NewReturn(10, "C1", "U1", ReturnTypeRefund, "damaged", []ReturnItem{
		{ProductID: "P1", Quantity: 2, UnitPrice: decimal.RequireFromString("4.00")},
		{ProductID: "P2", Quantity: 1, UnitPrice: decimal.Zero},
	})
	require.NoError(t, err)
	require.NoError(t, r.AssignID(3))
	require.NoError(t, r.FinalizeDetails())
	return r
}

func TestNewReturn(t *testing.T) {
	r := pendingReturn(t)
	assert.Equal(t, ReturnStatusPending, r.Status())
	assert.Equal(t, "8.00", r.TotalRefund().String())
	for _, d := range r.Details() {
		assert.Equal(t, int64(3), d.ReturnID())
	}
}

func TestNewReturn_Rejects(t *testing.T) {
	one := []ReturnItem{{ProductID: "P1", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}}
	tests := []struct {
		name    string
		saleID  int64
		typ     ReturnType
		reason  string
		items   []ReturnItem
		wantErr error
	}{
		{name: "missing sale", saleID: 0, typ: ReturnTypeRefund, reason: "r", items: one, wantErr: ErrValidation},
		{name: "unknown type", saleID: 1, typ: "swap", reason: "r", items: one, wantErr: ErrValidation},
		{name: "blank reason", saleID: 1, typ: ReturnTypeExchange, reason: "", items: one, wantErr: ErrBlankReason},
		{name: "no items", saleID: 1, typ: ReturnTypeRefund, reason: "r", items: nil, wantErr: ErrBusinessRule},
		{name: "duplicate product", saleID: 1, typ: ReturnTypeRefund, reason: "r", items: append(one, one...), wantErr: ErrDuplicateProduct},
		{name: "negative price", saleID: 1, typ: ReturnTypeRefund, reason: "r", items: []ReturnItem{{ProductID: "P1", Quantity: 1, UnitPrice: decimal.NewFromInt(-1)}}, wantErr: ErrValidation},
		{name: "zero quantity", saleID: 1, typ: ReturnTypeRefund, reason: "r", items: []ReturnItem{{ProductID: "P1", Quantity: 0, UnitPrice: decimal.NewFromInt(1)}}, wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReturn(tt.saleID, "C1", "U1", tt.typ, tt.reason, tt.items)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReturnApprove(t *testing.T) {
	r := pendingReturn(t)

	evt, err := r.Approve("M1")
	require.NoError(t, err)
	assert.Equal(t, ReturnStatusApproved, r.Status())
	assert.Equal(t, int64(3), evt.ReturnID)
	assert.Equal(t, int64(10), evt.SaleID)
	assert.Equal(t, []StockItem{{ProductID: "P1", Quantity: 2}, {ProductID: "P2", Quantity: 1}}, evt.ItemsToRestock)

	_, err = r.Approve("M1")
	assert.ErrorIs(t, err, ErrNotPending)
	assert.ErrorIs(t, r.Reject("M1", "late"), ErrNotPending)
}

func TestReturnReject(t *testing.T) {
	r := pendingReturn(t)

	assert.ErrorIs(t, r.Reject("M1", " "), ErrBlankReason)
	assert.Equal(t, ReturnStatusPending, r.Status())

	require.NoError(t, r.Reject("M1", "outside window"))
	assert.Equal(t, ReturnStatusRejected, r.Status())
	assert.False(t, r.Counts())

	_, err := r.Approve("M1")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestRestoreReturn(t *testing.T) {
	r := pendingReturn(t)
	restored, err := RestoreReturn(r.State())
	require.NoError(t, err)
	assert.Equal(t, r.State(), restored.State())

	st := r.State()
	st.TotalRefund = decimal.NewFromInt(99)
	_, err = RestoreReturn(st)
	assert.ErrorIs(t, err, ErrBusinessRule)
}
