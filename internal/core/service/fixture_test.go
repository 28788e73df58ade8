package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/pos-inventory/internal/adapter/eventbus"
	"github.com/rl1809/pos-inventory/internal/adapter/storage"
	"github.com/rl1809/pos-inventory/internal/core/domain"
	"github.com/rl1809/pos-inventory/internal/metrics"
	"github.com/rl1809/pos-inventory/internal/port"
)

type fakeCache struct {
	mu          sync.Mutex
	claims      map[string]bool
	stock       map[string]int
	releaseCall int
}

func newFakeCache() *fakeCache {
	return &fakeCache{claims: make(map[string]bool), stock: make(map[string]int)}
}

func (c *fakeCache) SetIdempotency(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claims[key] {
		return false, nil
	}
	c.claims[key] = true
	return true, nil
}

func (c *fakeCache) ReleaseIdempotency(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claims, key)
	c.releaseCall++
	return nil
}

func (c *fakeCache) SetStock(_ context.Context, productID string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stock[productID] = quantity
	return nil
}

func (c *fakeCache) GetStock(_ context.Context, productID string) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	qty, ok := c.stock[productID]
	return qty, ok, nil
}

func (c *fakeCache) EvictStock(_ context.Context, productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stock, productID)
	return nil
}

func (c *fakeCache) cached(productID string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	qty, ok := c.stock[productID]
	return qty, ok
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []*domain.LowStockEvent
	err    error
}

func (n *fakeNotifier) NotifyLowStock(_ context.Context, e *domain.LowStockEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, e)
	return nil
}

// fixture wires the services the way cmd/server does, over the in-memory store.
type fixture struct {
	store     *storage.MemoryStore
	bus       *eventbus.Bus
	cache     *fakeCache
	notifier  *fakeNotifier
	metrics   *metrics.Metrics
	sales     *SaleService
	returns   *ReturnService
	inventory *InventoryService

	mu         sync.Mutex
	dispatched []domain.DomainEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	f := &fixture{
		store:    storage.NewMemoryStore(),
		cache:    newFakeCache(),
		notifier: &fakeNotifier{},
		metrics:  metrics.New(),
	}
	f.bus = eventbus.New(logger, f.metrics)

	restock := NewRestockHandler(f.store, f.bus, domain.DefaultLowStockThreshold, logger)
	mirror := NewStockMirrorHandler(f.cache)
	f.bus.Subscribe(domain.EventSaleCancelled, restock)
	f.bus.Subscribe(domain.EventReturnApproved, restock)
	f.bus.Subscribe(domain.EventLowStock, NewLowStockAlertHandler(f.notifier, f.metrics))
	f.bus.Subscribe(domain.EventStockAdded, mirror)
	f.bus.Subscribe(domain.EventStockDecremented, mirror)
	f.bus.Subscribe(domain.EventStockAdjusted, mirror)
	f.bus.SubscribeAll(port.EventHandlerFunc(func(_ context.Context, e domain.DomainEvent) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.dispatched = append(f.dispatched, e)
		return nil
	}))

	f.sales = NewSaleService(f.store, f.cache, f.bus, logger, f.metrics)
	f.returns = NewReturnService(f.store, f.bus, logger, f.metrics)
	f.inventory = NewInventoryService(f.store, f.cache, f.bus, domain.DefaultLowStockThreshold, logger, f.metrics)
	return f
}

// seed stocks a product and forgets the events it raised.
func (f *fixture) seed(t *testing.T, productID string, qty int) {
	t.Helper()
	_, err := f.inventory.AdjustStock(context.Background(), productID, qty, AdjustAdd)
	require.NoError(t, err)
	f.mu.Lock()
	f.dispatched = nil
	f.mu.Unlock()
}

// stockOf reads the committed stock straight from the store.
func (f *fixture) stockOf(t *testing.T, productID string) int {
	t.Helper()
	tx, err := f.store.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	inv, err := tx.Inventories().GetByProductID(context.Background(), productID)
	require.NoError(t, err)
	return inv.Stock()
}

func (f *fixture) dispatchedTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, len(f.dispatched))
	for i, e := range f.dispatched {
		types[i] = e.EventType()
	}
	return types
}
