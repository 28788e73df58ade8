package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/rl1809/pos-inventory/internal/core/domain"
	"github.com/rl1809/pos-inventory/internal/port"
)

var errTxDone = errors.New("transaction already finished")

// MemoryStore is an in-process unit of work. Transactions stage their writes
// and apply them under one lock at commit, checking the same conditions the
// MySQL adapter checks in its UPDATE statements.
type MemoryStore struct {
	mu          sync.Mutex
	inventories map[string]domain.InventoryState
	sales       map[int64]domain.SaleState
	returns     map[int64]domain.ReturnState
	lastID      int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		inventories: make(map[string]domain.InventoryState),
		sales:       make(map[int64]domain.SaleState),
		returns:     make(map[int64]domain.ReturnState),
	}
}

func (m *MemoryStore) Begin(ctx context.Context) (port.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &memoryTx{
		ctx:         ctx,
		store:       m,
		inventories: make(map[string]*stagedInventory),
		sales:       make(map[int64]*stagedSale),
		returns:     make(map[int64]*stagedReturn),
	}, nil
}

func (m *MemoryStore) nextID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID++
	return m.lastID
}

type stagedInventory struct {
	state       domain.InventoryState
	baseVersion int
	isNew       bool
}

type stagedSale struct {
	state         domain.SaleState
	baseCancelled bool
	isNew         bool
}

type stagedReturn struct {
	state      domain.ReturnState
	baseStatus domain.ReturnStatus
	isNew      bool
}

type memoryTx struct {
	ctx         context.Context
	store       *MemoryStore
	inventories map[string]*stagedInventory
	sales       map[int64]*stagedSale
	returns     map[int64]*stagedReturn
	done        bool
}

func (t *memoryTx) Inventories() port.InventoryRepository { return memoryInventories{t} }
func (t *memoryTx) Sales() port.SaleRepository            { return memorySales{t} }
func (t *memoryTx) Returns() port.ReturnRepository        { return memoryReturns{t} }

func (t *memoryTx) Commit() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	if err := t.ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for pid, st := range t.inventories {
		current, exists := s.inventories[pid]
		if st.isNew && exists {
			return fmt.Errorf("inventory %s: %w", pid, ErrOptimisticLock)
		}
		if !st.isNew && (!exists || current.Version != st.baseVersion) {
			return fmt.Errorf("inventory %s: %w", pid, ErrOptimisticLock)
		}
	}
	for id, st := range t.sales {
		if !st.isNew && s.sales[id].IsCancelled != st.baseCancelled {
			return fmt.Errorf("sale %d: %w", id, ErrOptimisticLock)
		}
	}
	for id, st := range t.returns {
		if !st.isNew && s.returns[id].Status != st.baseStatus {
			return fmt.Errorf("return %d: %w", id, ErrOptimisticLock)
		}
	}

	for pid, st := range t.inventories {
		s.inventories[pid] = st.state
	}
	for id, st := range t.sales {
		s.sales[id] = st.state
	}
	for id, st := range t.returns {
		s.returns[id] = st.state
	}
	return nil
}

func (t *memoryTx) Rollback() error {
	t.done = true
	return nil
}

func (t *memoryTx) check() error {
	if t.done {
		return errTxDone
	}
	return t.ctx.Err()
}

type memoryInventories struct{ tx *memoryTx }

func (r memoryInventories) GetByProductID(ctx context.Context, productID string) (*domain.Inventory, error) {
	if err := r.tx.check(); err != nil {
		return nil, err
	}
	st, ok := r.lookup(productID)
	if !ok || st.IsDeleted() {
		return nil, domain.NewNotFound("inventory", productID)
	}
	return domain.RestoreInventory(st)
}

func (r memoryInventories) lookup(productID string) (domain.InventoryState, bool) {
	if staged, ok := r.tx.inventories[productID]; ok {
		return staged.state, true
	}
	r.tx.store.mu.Lock()
	defer r.tx.store.mu.Unlock()
	st, ok := r.tx.store.inventories[productID]
	return st, ok
}

func (r memoryInventories) Add(ctx context.Context, inv *domain.Inventory) error {
	if err := r.tx.check(); err != nil {
		return err
	}
	if current, exists := r.lookup(inv.ProductID()); exists {
		if current.IsDeleted() {
			return fmt.Errorf("insert inventory %s: %w", inv.ProductID(), domain.ErrProductRetired)
		}
		return fmt.Errorf("insert inventory %s: %w", inv.ProductID(), ErrOptimisticLock)
	}
	if err := inv.AssignID(r.tx.store.nextID()); err != nil {
		return fmt.Errorf("insert inventory: %w", err)
	}
	inv.MarkSaved(1)
	r.tx.inventories[inv.ProductID()] = &stagedInventory{state: inv.State(), isNew: true}
	return nil
}

func (r memoryInventories) Update(ctx context.Context, inv *domain.Inventory) error {
	if err := r.tx.check(); err != nil {
		return err
	}
	staged, ok := r.tx.inventories[inv.ProductID()]
	if !ok {
		current, exists := r.lookup(inv.ProductID())
		if !exists || current.ID != inv.ID() {
			return domain.NewNotFound("inventory", inv.ProductID())
		}
		staged = &stagedInventory{baseVersion: inv.Version()}
		r.tx.inventories[inv.ProductID()] = staged
	}
	if !staged.isNew {
		inv.MarkSaved(inv.Version() + 1)
	}
	staged.state = inv.State()
	return nil
}

type memorySales struct{ tx *memoryTx }

func (r memorySales) lookup(id int64) (domain.SaleState, bool) {
	if staged, ok := r.tx.sales[id]; ok {
		return staged.state, true
	}
	r.tx.store.mu.Lock()
	defer r.tx.store.mu.Unlock()
	st, ok := r.tx.store.sales[id]
	return st, ok
}

func (r memorySales) GetByID(ctx context.Context, id int64) (*domain.Sale, error) {
	if err := r.tx.check(); err != nil {
		return nil, err
	}
	st, ok := r.lookup(id)
	if !ok || st.IsDeleted() {
		return nil, domain.NewNotFound("sale", strconv.FormatInt(id, 10))
	}
	return domain.RestoreSale(st)
}

func (r memorySales) Add(ctx context.Context, sale *domain.Sale) error {
	if err := r.tx.check(); err != nil {
		return err
	}
	if err := sale.AssignID(r.tx.store.nextID()); err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	if err := sale.FinalizeDetails(); err != nil {
		return fmt.Errorf("finalize sale details: %w", err)
	}
	r.tx.sales[sale.ID()] = &stagedSale{state: sale.State(), isNew: true}
	return nil
}

func (r memorySales) Update(ctx context.Context, sale *domain.Sale) error {
	if err := r.tx.check(); err != nil {
		return err
	}
	staged, ok := r.tx.sales[sale.ID()]
	if !ok {
		current, exists := r.lookup(sale.ID())
		if !exists {
			return domain.NewNotFound("sale", strconv.FormatInt(sale.ID(), 10))
		}
		staged = &stagedSale{baseCancelled: current.IsCancelled}
		r.tx.sales[sale.ID()] = staged
	}
	staged.state = sale.State()
	return nil
}

type memoryReturns struct{ tx *memoryTx }

func (r memoryReturns) lookup(id int64) (domain.ReturnState, bool) {
	if staged, ok := r.tx.returns[id]; ok {
		return staged.state, true
	}
	r.tx.store.mu.Lock()
	defer r.tx.store.mu.Unlock()
	st, ok := r.tx.store.returns[id]
	return st, ok
}

func (r memoryReturns) GetByID(ctx context.Context, id int64) (*domain.Return, error) {
	if err := r.tx.check(); err != nil {
		return nil, err
	}
	st, ok := r.lookup(id)
	if !ok || st.IsDeleted() {
		return nil, domain.NewNotFound("return", strconv.FormatInt(id, 10))
	}
	return domain.RestoreReturn(st)
}

func (r memoryReturns) ListBySale(ctx context.Context, saleID int64) ([]*domain.Return, error) {
	if err := r.tx.check(); err != nil {
		return nil, err
	}
	byID := make(map[int64]domain.ReturnState)
	r.tx.store.mu.Lock()
	for id, st := range r.tx.store.returns {
		if st.SaleID == saleID {
			byID[id] = st
		}
	}
	r.tx.store.mu.Unlock()
	for id, staged := range r.tx.returns {
		if staged.state.SaleID == saleID {
			byID[id] = staged.state
		}
	}

	states := make([]domain.ReturnState, 0, len(byID))
	for _, st := range byID {
		states = append(states, st)
	}
	states = domain.Live(states)
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })

	out := make([]*domain.Return, 0, len(states))
	for _, st := range states {
		ret, err := domain.RestoreReturn(st)
		if err != nil {
			return nil, fmt.Errorf("restore return %d: %w", st.ID, err)
		}
		out = append(out, ret)
	}
	return out, nil
}

func (r memoryReturns) Add(ctx context.Context, ret *domain.Return) error {
	if err := r.tx.check(); err != nil {
		return err
	}
	if err := ret.AssignID(r.tx.store.nextID()); err != nil {
		return fmt.Errorf("insert return: %w", err)
	}
	if err := ret.FinalizeDetails(); err != nil {
		return fmt.Errorf("finalize return details: %w", err)
	}
	r.tx.returns[ret.ID()] = &stagedReturn{state: ret.State(), isNew: true}
	return nil
}

func (r memoryReturns) Update(ctx context.Context, ret *domain.Return) error {
	if err := r.tx.check(); err != nil {
		return err
	}
	staged, ok := r.tx.returns[ret.ID()]
	if !ok {
		current, exists := r.lookup(ret.ID())
		if !exists {
			return domain.NewNotFound("return", strconv.FormatInt(ret.ID(), 10))
		}
		staged = &stagedReturn{baseStatus: current.Status}
		r.tx.returns[ret.ID()] = staged
	}
	staged.state = ret.State()
	return nil
}
