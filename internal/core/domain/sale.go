package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SaleItem is one requested line of a new sale.
type SaleItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// SaleDetail is an immutable line item owned by a Sale.
type SaleDetail struct {
	saleID    int64
	productID string
	quantity  Quantity
	unitPrice Money
	total     Money
}

func newSaleDetail(item SaleItem) (SaleDetail, error) {
	if strings.TrimSpace(item.ProductID) == "" {
		return SaleDetail{}, invalid("productId", "is required")
	}
	qty, err := PositiveQuantity(item.Quantity)
	if err != nil {
		return SaleDetail{}, err
	}
	price, err := NewMoney(item.UnitPrice)
	if err != nil {
		return SaleDetail{}, err
	}
	if !price.IsPositive() {
		return SaleDetail{}, invalid("unitPrice", "must be greater than zero")
	}
	return SaleDetail{
		productID: item.ProductID,
		quantity:  qty,
		unitPrice: price,
		total:     price.Times(qty),
	}, nil
}

func (d SaleDetail) SaleID() int64     { return d.saleID }
func (d SaleDetail) ProductID() string { return d.productID }
func (d SaleDetail) Quantity() int     { return d.quantity.Int() }
func (d SaleDetail) UnitPrice() Money  { return d.unitPrice }
func (d SaleDetail) Total() Money      { return d.total }

// SaleDetailState is the persisted shape of a SaleDetail row.
type SaleDetailState struct {
	SaleID    int64
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// SaleState is the persisted shape of a Sale and its details.
type SaleState struct {
	ID                 int64
	CustomerID         string
	UserID             string
	TotalAmount        decimal.Decimal
	Details            []SaleDetailState
	IsCancelled        bool
	CancelledAt        *time.Time
	CancelledByUserID  string
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Tombstone
}

// Sale is the aggregate root of a completed sale. TotalAmount always equals the
// sum of the detail totals; it is computed, never set.
type Sale struct {
	id                 int64
	customerID         string
	userID             string
	totalAmount        Money
	details            []SaleDetail
	isCancelled        bool
	cancelledAt        *time.Time
	cancelledByUserID  string
	cancellationReason string
	createdAt          time.Time
	updatedAt          time.Time
	tombstone          Tombstone
}

// NewSale builds a sale with all of its line items or fails as a whole.
// Inventory is not touched here.
func NewSale(customerID, userID string, items []SaleItem) (*Sale, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, violation(CodeMissingCustomer, "customer id is required")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, violation(CodeMissingUser, "user id is required")
	}
	if len(items) == 0 {
		return nil, violation(CodeNoItems, "a sale needs at least one item")
	}

	if err := CheckSaleItems(items); err != nil {
		return nil, err
	}

	details := make([]SaleDetail, 0, len(items))
	for _, item := range items {
		d, err := newSaleDetail(item)
		if err != nil {
			return nil, err
		}
		details = append(details, d)
	}

	now := time.Now().UTC()
	s := &Sale{
		customerID: customerID,
		userID:     userID,
		details:    details,
		createdAt:  now,
		updatedAt:  now,
	}
	s.recomputeTotal()
	return s, nil
}

// CheckSaleItems rejects a line list that names a product twice. It runs before
// any stock is touched.
func CheckSaleItems(items []SaleItem) error {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.ProductID]; dup {
			return ErrDuplicateProduct
		}
		seen[item.ProductID] = struct{}{}
	}
	return nil
}

// RestoreSale rebuilds a Sale from storage. The stored total must match the details.
func RestoreSale(st SaleState) (*Sale, error) {
	details := make([]SaleDetail, 0, len(st.Details))
	for _, ds := range st.Details {
		d, err := newSaleDetail(SaleItem{ProductID: ds.ProductID, Quantity: ds.Quantity, UnitPrice: ds.UnitPrice})
		if err != nil {
			return nil, err
		}
		d.saleID = ds.SaleID
		details = append(details, d)
	}
	s := &Sale{
		id:                 st.ID,
		customerID:         st.CustomerID,
		userID:             st.UserID,
		details:            details,
		isCancelled:        st.IsCancelled,
		cancelledAt:        st.CancelledAt,
		cancelledByUserID:  st.CancelledByUserID,
		cancellationReason: st.CancellationReason,
		createdAt:          st.CreatedAt,
		updatedAt:          st.UpdatedAt,
		tombstone:          st.Tombstone,
	}
	s.recomputeTotal()
	if !s.totalAmount.Decimal().Equal(st.TotalAmount) {
		return nil, violation(CodeTotalMismatch, "stored total does not match line items")
	}
	return s, nil
}

func (s *Sale) State() SaleState {
	details := make([]SaleDetailState, len(s.details))
	for i, d := range s.details {
		details[i] = SaleDetailState{
			SaleID:    d.saleID,
			ProductID: d.productID,
			Quantity:  d.quantity.Int(),
			UnitPrice: d.unitPrice.Decimal(),
		}
	}
	return SaleState{
		ID:                 s.id,
		CustomerID:         s.customerID,
		UserID:             s.userID,
		TotalAmount:        s.totalAmount.Decimal(),
		Details:            details,
		IsCancelled:        s.isCancelled,
		CancelledAt:        s.cancelledAt,
		CancelledByUserID:  s.cancelledByUserID,
		CancellationReason: s.cancellationReason,
		CreatedAt:          s.createdAt,
		UpdatedAt:          s.updatedAt,
		Tombstone:          s.tombstone,
	}
}

func (s *Sale) ID() int64                  { return s.id }
func (s *Sale) CustomerID() string         { return s.customerID }
func (s *Sale) UserID() string             { return s.userID }
func (s *Sale) TotalAmount() Money         { return s.totalAmount }
func (s *Sale) IsCancelled() bool          { return s.isCancelled }
func (s *Sale) CancelledAt() *time.Time    { return s.cancelledAt }
func (s *Sale) CancelledByUserID() string  { return s.cancelledByUserID }
func (s *Sale) CancellationReason() string { return s.cancellationReason }
func (s *Sale) CreatedAt() time.Time       { return s.createdAt }
func (s *Sale) IsDeleted() bool            { return s.tombstone.IsDeleted() }

// Details returns a copy of the line items.
func (s *Sale) Details() []SaleDetail {
	out := make([]SaleDetail, len(s.details))
	copy(out, s.details)
	return out
}

// StockItems lists the quantities this sale takes out of inventory.
func (s *Sale) StockItems() []StockItem {
	items := make([]StockItem, len(s.details))
	for i, d := range s.details {
		items[i] = StockItem{ProductID: d.productID, Quantity: d.quantity.Int()}
	}
	return items
}

// AssignID is called by the store once the sale row has been inserted.
func (s *Sale) AssignID(id int64) error {
	if s.id != 0 {
		return violation(CodeAlreadyPersisted, "sale already has an id")
	}
	if id <= 0 {
		return invalid("id", "must be positive")
	}
	s.id = id
	return nil
}

// FinalizeDetails back-fills the store-assigned sale id onto every line item.
func (s *Sale) FinalizeDetails() error {
	if s.id == 0 {
		return ErrNotPersisted
	}
	for i := range s.details {
		s.details[i].saleID = s.id
	}
	return nil
}

// Cancel marks the sale cancelled and returns the event that drives restocking.
// A sale can be cancelled once. restocked lists units approved returns already
// put back; they are left out of ItemsToRestore.
func (s *Sale) Cancel(userID, reason string, restocked ...StockItem) (*SaleCancelledEvent, error) {
	if s.isCancelled {
		return nil, ErrAlreadyCancelled
	}
	if strings.TrimSpace(userID) == "" {
		return nil, violation(CodeMissingUser, "user id is required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, ErrBlankReason
	}
	if s.id == 0 {
		return nil, ErrNotPersisted
	}

	now := time.Now().UTC()
	s.isCancelled = true
	s.cancelledAt = &now
	s.cancelledByUserID = userID
	s.cancellationReason = reason
	s.updatedAt = now

	return &SaleCancelledEvent{
		EventMeta:         newEventMeta(now),
		SaleID:            s.id,
		CancelledByUserID: userID,
		Reason:            reason,
		ItemsToRestore:    s.remainingItems(restocked),
	}, nil
}

func (s *Sale) remainingItems(restocked []StockItem) []StockItem {
	back := make(map[string]int, len(restocked))
	for _, item := range restocked {
		back[item.ProductID] += item.Quantity
	}
	items := make([]StockItem, 0, len(s.details))
	for _, d := range s.details {
		if left := d.quantity.Int() - back[d.productID]; left > 0 {
			items = append(items, StockItem{ProductID: d.productID, Quantity: left})
		}
	}
	return items
}

func (s *Sale) recomputeTotal() {
	total := Zero
	for _, d := range s.details {
		total = total.Plus(d.total)
	}
	s.totalAmount = total
}
