package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var errBoom = errors.New("boom")

func seedStock(t *testing.T, store *memory.Store, productID string, available int64) {
	t.Helper()
	err := store.Within(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.Stock().Put(ctx, domain.StockRecord{ProductID: productID, Available: available, ReorderThreshold: 1})
	})
	if err != nil {
		t.Fatalf("seed stock: %v", err)
	}
}

func readStock(t *testing.T, store *memory.Store, productID string) int64 {
	t.Helper()
	var available int64
	err := store.WithinReadOnly(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		record, err := tx.Stock().Get(ctx, productID)
		available = record.Available
		return err
	})
	if err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return available
}

func TestStore_WithinRollsBackOnError(t *testing.T) {
	store := memory.NewStore()
	seedStock(t, store, "p1", 5)

	err := store.Within(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Stock().Decrement(ctx, "p1", 3); err != nil {
			return err
		}
		if err := tx.Customers().Create(ctx, domain.Customer{ID: "c1"}); err != nil {
			return err
		}
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{EventType: "x"}); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}

	if got := readStock(t, store, "p1"); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}
	err = store.WithinReadOnly(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Customers().Get(ctx, "c1")
		return err
	})
	if !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected customer rollback, got %v", err)
	}
	stats, err := store.Outbox().Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 0 {
		t.Fatalf("expected no pending outbox records, got %d", stats.PendingCount)
	}
}

func TestStore_WithinRollsBackOnPanic(t *testing.T) {
	store := memory.NewStore()
	seedStock(t, store, "p1", 2)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = store.Within(context.Background(), func(ctx context.Context, tx domain.Tx) error {
			if _, err := tx.Stock().Decrement(ctx, "p1", 2); err != nil {
				return err
			}
			panic("unexpected")
		})
	}()

	if got := readStock(t, store, "p1"); got != 2 {
		t.Fatalf("expected stock 2 after panic, got %d", got)
	}
}

func TestStore_ReadOnlyRejectsWrites(t *testing.T) {
	store := memory.NewStore()
	seedStock(t, store, "p1", 2)

	err := store.WithinReadOnly(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Stock().Decrement(ctx, "p1", 1)
		return err
	})
	if err == nil {
		t.Fatalf("expected write error in read-only transaction")
	}
	if got := readStock(t, store, "p1"); got != 2 {
		t.Fatalf("expected stock unchanged, got %d", got)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	store := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.Within(ctx, func(context.Context, domain.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatalf("fn must not run on cancelled context")
	}
}

func TestStockRepository_DecrementGuardsAvailable(t *testing.T) {
	store := memory.NewStore()
	seedStock(t, store, "p1", 1)

	err := store.Within(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Stock().Decrement(ctx, "p1", 2)
		return err
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := readStock(t, store, "p1"); got != 1 {
		t.Fatalf("expected stock 1, got %d", got)
	}
}

func TestPromotionRepository_IncrementRespectsLimit(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	err := store.Within(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Promotions().Create(ctx, domain.Promotion{ID: "promo-1", Code: " sale ", UsageLimit: 1, Active: true})
	})
	if err != nil {
		t.Fatalf("create promotion: %v", err)
	}

	err = store.Within(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Promotions().IncrementUsage(ctx, "promo-1"); err != nil {
			return err
		}
		_, err := tx.Promotions().IncrementUsage(ctx, "promo-1")
		return err
	})
	if !errors.Is(err, domain.ErrGlobalLimitReached) {
		t.Fatalf("expected ErrGlobalLimitReached, got %v", err)
	}

	var promotion domain.Promotion
	err = store.WithinReadOnly(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		promotion, err = tx.Promotions().GetByCode(ctx, "Sale")
		return err
	})
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if promotion.UsedCount != 0 {
		t.Fatalf("expected used count rolled back to 0, got %d", promotion.UsedCount)
	}
}

func TestPromotionRepository_VoidedUsagesNotCounted(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.Within(ctx, func(ctx context.Context, tx domain.Tx) error {
		repo := tx.Promotions()
		if err := repo.AddUsage(ctx, domain.PromotionUsage{ID: "u1", PromotionID: "p", CustomerID: "c", OrderID: "o1", UsedAt: now}); err != nil {
			return err
		}
		if err := repo.AddUsage(ctx, domain.PromotionUsage{ID: "u2", PromotionID: "p", CustomerID: "c", OrderID: "o2", UsedAt: now}); err != nil {
			return err
		}
		voided, err := repo.VoidUsage(ctx, "u1", now)
		if err != nil || !voided {
			t.Fatalf("void usage: %v %v", voided, err)
		}
		again, err := repo.VoidUsage(ctx, "u1", now)
		if err != nil || again {
			t.Fatalf("second void must be a no-op: %v %v", again, err)
		}
		count, err := repo.CountUsages(ctx, "p", "c")
		if err != nil {
			return err
		}
		if count != 1 {
			t.Fatalf("expected 1 active usage, got %d", count)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCustomerRepository_AdjustPointsNeverNegative(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	err := store.Within(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.Customers().Create(ctx, domain.Customer{ID: "c1"}); err != nil {
			return err
		}
		balance, err := tx.Customers().AdjustPoints(ctx, "c1", 100)
		if err != nil {
			return err
		}
		if balance != 100 {
			t.Fatalf("expected balance 100, got %d", balance)
		}
		_, err = tx.Customers().AdjustPoints(ctx, "c1", -101)
		if !errors.Is(err, domain.ErrInsufficientPoints) {
			t.Fatalf("expected ErrInsufficientPoints, got %v", err)
		}
		customer, err := tx.Customers().Get(ctx, "c1")
		if err != nil {
			return err
		}
		if customer.LoyaltyPoints != 100 || customer.Tier != domain.TierBronze {
			t.Fatalf("unexpected customer state: %+v", customer)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSeedDemo(t *testing.T) {
	store := memory.NewStore()
	catalog := memory.NewCatalog()
	if err := memory.SeedDemo(context.Background(), store, catalog); err != nil {
		t.Fatalf("seed: %v", err)
	}

	items, err := catalog.Lookup(context.Background(), []string{"sku-coffee", "missing"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(items) != 1 || items["sku-coffee"].PriceMinor != 250000 {
		t.Fatalf("unexpected lookup result: %+v", items)
	}
	if got := readStock(t, store, "sku-coffee"); got != 40 {
		t.Fatalf("expected 40 units, got %d", got)
	}
}
