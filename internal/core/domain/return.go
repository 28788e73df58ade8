package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ReturnType string

const (
	ReturnTypeRefund   ReturnType = "refund"
	ReturnTypeExchange ReturnType = "exchange"
)

func (t ReturnType) IsValid() bool {
	switch t {
	case ReturnTypeRefund, ReturnTypeExchange:
		return true
	default:
		return false
	}
}

type ReturnStatus string

const (
	ReturnStatusPending  ReturnStatus = "pending"
	ReturnStatusApproved ReturnStatus = "approved"
	ReturnStatusRejected ReturnStatus = "rejected"
)

// ReturnItem is one requested line of a return.
type ReturnItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// ReturnDetail is an immutable line owned by a Return.
type ReturnDetail struct {
	returnID  int64
	productID string
	quantity  Quantity
	unitPrice Money
	total     Money
}

func newReturnDetail(item ReturnItem) (ReturnDetail, error) {
	if strings.TrimSpace(item.ProductID) == "" {
		return ReturnDetail{}, invalid("productId", "is required")
	}
	qty, err := PositiveQuantity(item.Quantity)
	if err != nil {
		return ReturnDetail{}, err
	}
	price, err := NewMoney(item.UnitPrice)
	if err != nil {
		return ReturnDetail{}, err
	}
	return ReturnDetail{
		productID: item.ProductID,
		quantity:  qty,
		unitPrice: price,
		total:     price.Times(qty),
	}, nil
}

func (d ReturnDetail) ReturnID() int64   { return d.returnID }
func (d ReturnDetail) ProductID() string { return d.productID }
func (d ReturnDetail) Quantity() int     { return d.quantity.Int() }
func (d ReturnDetail) UnitPrice() Money  { return d.unitPrice }
func (d ReturnDetail) Total() Money      { return d.total }

type ReturnDetailState struct {
	ReturnID  int64
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

type ReturnState struct {
	ID                int64
	SaleID            int64
	CustomerID        string
	ProcessedByUserID string
	Type              ReturnType
	Reason            string
	Status            ReturnStatus
	TotalRefund       decimal.Decimal
	Details           []ReturnDetailState
	ApprovedByUserID  string
	ApprovedAt        *time.Time
	RejectedByUserID  string
	RejectedAt        *time.Time
	RejectionReason   string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Tombstone
}

// Return is a refund or exchange request against a prior sale.
// Status moves Pending -> Approved or Pending -> Rejected, once.
type Return struct {
	st      ReturnState
	details []ReturnDetail
	total   Money
}

func NewReturn(saleID int64, customerID, processedByUserID string, typ ReturnType, reason string, items []ReturnItem) (*Return, error) {
	if saleID <= 0 {
		return nil, invalid("saleId", "is required")
	}
	if strings.TrimSpace(customerID) == "" {
		return nil, violation(CodeMissingCustomer, "customer id is required")
	}
	if strings.TrimSpace(processedByUserID) == "" {
		return nil, violation(CodeMissingUser, "user id is required")
	}
	if !typ.IsValid() {
		return nil, invalid("type", "must be refund or exchange")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, ErrBlankReason
	}
	if len(items) == 0 {
		return nil, violation(CodeNoItems, "a return needs at least one item")
	}

	seen := make(map[string]struct{}, len(items))
	details := make([]ReturnDetail, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.ProductID]; dup {
			return nil, ErrDuplicateProduct
		}
		seen[item.ProductID] = struct{}{}

		d, err := newReturnDetail(item)
		if err != nil {
			return nil, err
		}
		details = append(details, d)
	}

	now := time.Now().UTC()
	r := &Return{
		st: ReturnState{
			SaleID:            saleID,
			CustomerID:        customerID,
			ProcessedByUserID: processedByUserID,
			Type:              typ,
			Reason:            reason,
			Status:            ReturnStatusPending,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
		details: details,
	}
	r.recomputeTotal()
	return r, nil
}

// RestoreReturn rebuilds a Return from storage.
func RestoreReturn(st ReturnState) (*Return, error) {
	details := make([]ReturnDetail, 0, len(st.Details))
	for _, ds := range st.Details {
		d, err := newReturnDetail(ReturnItem{ProductID: ds.ProductID, Quantity: ds.Quantity, UnitPrice: ds.UnitPrice})
		if err != nil {
			return nil, err
		}
		d.returnID = ds.ReturnID
		details = append(details, d)
	}
	r := &Return{st: st, details: details}
	r.st.Details = nil
	r.recomputeTotal()
	if !r.total.Decimal().Equal(st.TotalRefund) {
		return nil, violation(CodeTotalMismatch, "stored refund total does not match line items")
	}
	return r, nil
}

func (r *Return) State() ReturnState {
	st := r.st
	st.TotalRefund = r.total.Decimal()
	st.Details = make([]ReturnDetailState, len(r.details))
	for i, d := range r.details {
		st.Details[i] = ReturnDetailState{
			ReturnID:  d.returnID,
			ProductID: d.productID,
			Quantity:  d.quantity.Int(),
			UnitPrice: d.unitPrice.Decimal(),
		}
	}
	return st
}

func (r *Return) ID() int64            { return r.st.ID }
func (r *Return) SaleID() int64        { return r.st.SaleID }
func (r *Return) CustomerID() string   { return r.st.CustomerID }
func (r *Return) Type() ReturnType     { return r.st.Type }
func (r *Return) Status() ReturnStatus { return r.st.Status }
func (r *Return) TotalRefund() Money   { return r.total }
func (r *Return) IsDeleted() bool      { return r.st.IsDeleted() }

func (r *Return) Details() []ReturnDetail {
	out := make([]ReturnDetail, len(r.details))
	copy(out, r.details)
	return out
}

// StockItems lists the quantities this return puts back once approved.
func (r *Return) StockItems() []StockItem {
	items := make([]StockItem, len(r.details))
	for i, d := range r.details {
		items[i] = StockItem{ProductID: d.productID, Quantity: d.quantity.Int()}
	}
	return items
}

// Counts reports whether the return still claims sold quantity, i.e. it has not been rejected.
func (r *Return) Counts() bool {
	return r.st.Status != ReturnStatusRejected
}

func (r *Return) AssignID(id int64) error {
	if r.st.ID != 0 {
		return violation(CodeAlreadyPersisted, "return already has an id")
	}
	if id <= 0 {
		return invalid("id", "must be positive")
	}
	r.st.ID = id
	return nil
}

func (r *Return) FinalizeDetails() error {
	if r.st.ID == 0 {
		return ErrNotPersisted
	}
	for i := range r.details {
		r.details[i].returnID = r.st.ID
	}
	return nil
}

// Approve moves a pending return to Approved and returns the restock event.
func (r *Return) Approve(approvedByUserID string) (*ReturnApprovedEvent, error) {
	if r.st.Status != ReturnStatusPending {
		return nil, ErrNotPending
	}
	if strings.TrimSpace(approvedByUserID) == "" {
		return nil, violation(CodeMissingUser, "user id is required")
	}
	if r.st.ID == 0 {
		return nil, ErrNotPersisted
	}

	now := time.Now().UTC()
	r.st.Status = ReturnStatusApproved
	r.st.ApprovedByUserID = approvedByUserID
	r.st.ApprovedAt = &now
	r.st.UpdatedAt = now

	return &ReturnApprovedEvent{
		EventMeta:      newEventMeta(now),
		ReturnID:       r.st.ID,
		SaleID:         r.st.SaleID,
		ItemsToRestock: r.StockItems(),
	}, nil
}

// Reject moves a pending return to Rejected. No stock moves.
func (r *Return) Reject(rejectedByUserID, reason string) error {
	if r.st.Status != ReturnStatusPending {
		return ErrNotPending
	}
	if strings.TrimSpace(rejectedByUserID) == "" {
		return violation(CodeMissingUser, "user id is required")
	}
	if strings.TrimSpace(reason) == "" {
		return ErrBlankReason
	}

	now := time.Now().UTC()
	r.st.Status = ReturnStatusRejected
	r.st.RejectedByUserID = rejectedByUserID
	r.st.RejectedAt = &now
	r.st.RejectionReason = reason
	r.st.UpdatedAt = now
	return nil
}

func (r *Return) recomputeTotal() {
	total := Zero
	for _, d := range r.details {
		total = total.Plus(d.total)
	}
	r.total = total
}
