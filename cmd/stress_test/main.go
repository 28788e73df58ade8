package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/pos-inventory/internal/adapter/eventbus"
	"github.com/rl1809/pos-inventory/internal/adapter/storage"
	"github.com/rl1809/pos-inventory/internal/core/domain"
	"github.com/rl1809/pos-inventory/internal/core/service"
	"github.com/rl1809/pos-inventory/internal/metrics"
	"github.com/rl1809/pos-inventory/internal/port"
)

const (
	productID     = "stress-item"
	initialStock  = 20
	totalRequests = 50
	cancelEvery   = 4
)

func main() {
	ctx := context.Background()
	log := zap.NewNop()
	m := metrics.New()

	// Wire the engine in-process
	store := storage.NewMemoryStore()
	bus := eventbus.New(log, m)
	restock := service.NewRestockHandler(store, bus, domain.DefaultLowStockThreshold, log)
	bus.Subscribe(domain.EventSaleCancelled, restock)

	sales := service.NewSaleService(store, nil, bus, log, m)
	inventory := service.NewInventoryService(store, nil, bus, domain.DefaultLowStockThreshold, log, m)

	if _, err := inventory.AdjustStock(ctx, productID, initialStock, service.AdjustAdd); err != nil {
		fmt.Printf("failed to seed stock: %v\n", err)
		os.Exit(1)
	}

	// Counters
	var successCount, soldOutCount, otherCount, conflictRetries atomic.Int32
	var mu sync.Mutex
	var saleIDs []int64

	// Spawn concurrent buyers; write conflicts are retried like a client would
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(buyer int) {
			defer wg.Done()

			in := service.CreateSaleInput{
				CustomerID: fmt.Sprintf("customer-%d", buyer),
				UserID:     "cashier-1",
				Items:      []domain.SaleItem{{ProductID: productID, Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
			}
			for {
				sale, err := sales.CreateSale(ctx, in)
				switch {
				case err == nil:
					successCount.Add(1)
					mu.Lock()
					saleIDs = append(saleIDs, sale.ID())
					mu.Unlock()
				case errors.Is(err, port.ErrConflict):
					conflictRetries.Add(1)
					continue
				case errors.Is(err, domain.ErrInsufficientStock):
					soldOutCount.Add(1)
				default:
					otherCount.Add(1)
				}
				return
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()
	afterSales, _ := inventory.GetStock(ctx, productID)

	// Cancel a share of the sales and expect their stock back
	cancelled := 0
	for i, id := range saleIDs {
		if i%cancelEvery != 0 {
			continue
		}
		if _, err := sales.CancelSale(ctx, id, "supervisor-1", "stress test void"); err != nil {
			fmt.Printf("cancel sale %d: %v\n", id, err)
			continue
		}
		cancelled++
	}
	afterCancel, _ := inventory.GetStock(ctx, productID)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:     %d\n", initialStock)
	fmt.Printf("Total Requests:    %d\n", totalRequests)
	fmt.Printf("Successful:        %d\n", success)
	fmt.Printf("Sold Out:          %d\n", soldOut)
	fmt.Printf("Other Failures:    %d\n", otherCount.Load())
	fmt.Printf("Conflict Retries:  %d\n", conflictRetries.Load())
	fmt.Printf("Duration:          %v\n", elapsed)
	fmt.Printf("Cancelled:         %d\n", cancelled)
	fmt.Println("==========================================")

	failed := false
	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: exactly %d sales succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
		failed = true
	}

	if afterSales == 0 {
		fmt.Println("PASS: stock depleted to 0")
	} else {
		fmt.Printf("FAIL: expected stock 0, got %d\n", afterSales)
		failed = true
	}

	if afterCancel == cancelled {
		fmt.Printf("PASS: %d units restocked by cancellation\n", cancelled)
	} else {
		fmt.Printf("FAIL: expected stock %d after cancellations, got %d\n", cancelled, afterCancel)
		failed = true
	}

	if failed {
		os.Exit(1)
	}
}
