package checkout_test

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/idgen"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/loyalty"
	"github.com/vladislavdragonenkov/storefront/internal/service/promotion"
	"github.com/vladislavdragonenkov/storefront/internal/service/stock"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type fixedShipping struct {
	fee int64
	err error
}

func (f fixedShipping) Quote(context.Context, domain.ShippingInfo, []domain.PricedLine) (int64, error) {
	return f.fee, f.err
}

type fixture struct {
	store        *memory.Store
	catalog      *memory.Catalog
	orchestrator *checkout.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	catalog := memory.NewCatalog(
		domain.CatalogItem{ProductID: "p-kettle", Name: "Kettle", CategoryID: "kitchen", PriceMinor: 1_000_000, Active: true},
		domain.CatalogItem{ProductID: "p-mug", Name: "Mug", CategoryID: "kitchen", PriceMinor: 100_000, Active: true},
		domain.CatalogItem{ProductID: "p-old", Name: "Retired", PriceMinor: 10, Active: false},
	)

	err := store.Within(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		for id, qty := range map[string]int64{"p-kettle": 5, "p-mug": 1, "p-old": 10} {
			if err := tx.Stock().Put(ctx, domain.StockRecord{ProductID: id, Available: qty}); err != nil {
				return err
			}
		}
		if err := tx.Customers().Create(ctx, domain.Customer{ID: "c1", Tier: domain.TierBronze}); err != nil {
			return err
		}
		if _, err := tx.Customers().AdjustPoints(ctx, "c1", 500); err != nil {
			return err
		}
		if err := tx.Loyalty().Append(ctx, domain.LoyaltyEntry{ID: "seed", CustomerID: "c1", Delta: 500, Reason: domain.LoyaltyBonus}); err != nil {
			return err
		}
		promos := []domain.Promotion{
			{
				ID: "promo-sale10", Code: "SALE10", Kind: domain.DiscountPercentage, Value: decimal.NewFromInt(10),
				MaxDiscountMinor: 50_000, UsageLimit: 100, PerCustomerLimit: 1, Scope: domain.ScopeAll, Active: true,
			},
			{
				ID: "promo-ship", Code: "FREESHIP", Kind: domain.DiscountFreeShipping, Scope: domain.ScopeAll, Active: true,
			},
			{
				ID: "promo-gold", Code: "GOLDONLY", Kind: domain.DiscountFixedAmount, Value: decimal.NewFromInt(1000),
				CustomerTier: domain.TierGold, Scope: domain.ScopeAll, Active: true,
			},
		}
		for _, p := range promos {
			if err := tx.Promotions().Create(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	ids, err := idgen.New(1)
	require.NoError(t, err)

	orchestrator, err := checkout.NewOrchestrator(checkout.Dependencies{
		UnitOfWork: store,
		Catalog:    catalog,
		Shipping:   fixedShipping{fee: 30_000},
		Stock:      stock.NewLedger(nil, nil),
		Promotions: promotion.NewEngine(nil, nil),
		Loyalty:    loyalty.NewLedger(loyalty.DefaultPolicy(), nil, nil),
		IDs:        ids,
	})
	require.NoError(t, err)

	return &fixture{store: store, catalog: catalog, orchestrator: orchestrator}
}

func (f *fixture) available(t *testing.T, productID string) int64 {
	t.Helper()
	var available int64
	err := f.store.WithinReadOnly(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		record, err := tx.Stock().Get(ctx, productID)
		available = record.Available
		return err
	})
	require.NoError(t, err)
	return available
}

func (f *fixture) customer(t *testing.T) domain.Customer {
	t.Helper()
	var customer domain.Customer
	err := f.store.WithinReadOnly(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		customer, err = tx.Customers().Get(ctx, "c1")
		return err
	})
	require.NoError(t, err)
	return customer
}

func (f *fixture) promotion(t *testing.T, id string) domain.Promotion {
	t.Helper()
	var promo domain.Promotion
	err := f.store.WithinReadOnly(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		promo, err = tx.Promotions().Get(ctx, id)
		return err
	})
	require.NoError(t, err)
	return promo
}

func request(lines ...checkout.Line) checkout.Request {
	return checkout.Request{
		CustomerID: "c1",
		Lines:      lines,
		Shipping: domain.ShippingInfo{
			ReceiverName: "Nguyen Van A",
			Phone:        "+84900000000",
			Address:      "1 Le Loi",
			City:         "HCMC",
		},
		PaymentMethod: domain.PaymentMethodCOD,
	}
}

func TestCheckout_PricingExample(t *testing.T) {
	f := newFixture(t)
	req := request(checkout.Line{ProductID: "p-kettle", Qty: 1})
	req.PromotionCode = "sale10"
	req.LoyaltyPoints = 200

	result, err := f.orchestrator.Checkout(context.Background(), req)
	require.NoError(t, err)

	order := result.Order
	require.False(t, result.Replayed)
	require.Equal(t, int64(1_000_000), order.SubtotalMinor)
	require.Equal(t, int64(30_000), order.ShippingFeeMinor)
	require.Equal(t, int64(50_000), order.PromotionDiscountMinor)
	require.Equal(t, int64(20_000), order.LoyaltyDiscountMinor)
	require.Equal(t, int64(960_000), order.TotalMinor)
	require.Equal(t, domain.OrderStatusPending, order.Status)
	require.Equal(t, "SALE10", order.PromotionCode)
	require.Equal(t, int64(200), order.LoyaltyPointsRedeemed)
	require.NotEmpty(t, order.Code)
	require.Empty(t, order.ValidateInvariants())

	require.Equal(t, int64(4), f.available(t, "p-kettle"))
	require.Equal(t, int64(300), f.customer(t).LoyaltyPoints)
	require.Equal(t, int64(1), f.promotion(t, "promo-sale10").UsedCount)

	err = f.store.WithinReadOnly(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		history, err := tx.History().List(ctx, order.ID)
		if err != nil {
			return err
		}
		require.Len(t, history, 1)
		require.Equal(t, domain.OrderStatus(""), history[0].OldStatus)
		require.Equal(t, domain.OrderStatusPending, history[0].NewStatus)

		reservations, err := tx.Reservations().ListByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		require.Len(t, reservations, 1)
		require.Equal(t, domain.ReservationStatusCommitted, reservations[0].Status)

		entries, err := tx.Loyalty().List(ctx, "c1")
		if err != nil {
			return err
		}
		require.Len(t, entries, 2)
		require.Equal(t, domain.LoyaltyRedeemed, entries[1].Reason)
		require.Equal(t, int64(-200), entries[1].Delta)
		return nil
	})
	require.NoError(t, err)

	pending, err := f.store.Outbox().PullPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, domain.EventOrderCreated, pending[0].EventType)
}

func TestCheckout_InsufficientStockRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	req := request(
		checkout.Line{ProductID: "p-kettle", Qty: 1},
		checkout.Line{ProductID: "p-mug", Qty: 2},
	)
	req.PromotionCode = "SALE10"
	req.LoyaltyPoints = 100

	_, err := f.orchestrator.Checkout(context.Background(), req)
	require.Truef(t, errors.Is(err, domain.ErrInsufficientStock), "expected %v, got %v", domain.ErrInsufficientStock, err)
	require.Contains(t, err.Error(), "p-mug")

	require.Equal(t, int64(5), f.available(t, "p-kettle"))
	require.Equal(t, int64(1), f.available(t, "p-mug"))
	require.Equal(t, int64(500), f.customer(t).LoyaltyPoints)
	require.Equal(t, int64(0), f.promotion(t, "promo-sale10").UsedCount)
}

func TestCheckout_PromotionFailureReleasesStock(t *testing.T) {
	f := newFixture(t)
	req := request(checkout.Line{ProductID: "p-kettle", Qty: 2})
	req.PromotionCode = "GOLDONLY"

	_, err := f.orchestrator.Checkout(context.Background(), req)
	require.Truef(t, errors.Is(err, domain.ErrTierNotEligible), "expected %v, got %v", domain.ErrTierNotEligible, err)
	require.Equal(t, int64(5), f.available(t, "p-kettle"))
}

func TestCheckout_ValidationHappensBeforeLedgers(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(r *checkout.Request)
		want   error
	}{
		{name: "no customer", mutate: func(r *checkout.Request) { r.CustomerID = "" }, want: domain.ErrCustomerRequired},
		{name: "empty cart", mutate: func(r *checkout.Request) { r.Lines = nil }, want: domain.ErrItemsRequired},
		{name: "zero qty", mutate: func(r *checkout.Request) { r.Lines[0].Qty = 0 }, want: domain.ErrItemQtyInvalid},
		{name: "no phone", mutate: func(r *checkout.Request) { r.Shipping.Phone = "" }, want: domain.ErrPhoneRequired},
		{name: "bad payment", mutate: func(r *checkout.Request) { r.PaymentMethod = "cash" }, want: domain.ErrPaymentMethodInvalid},
		{name: "negative points", mutate: func(r *checkout.Request) { r.LoyaltyPoints = -1 }, want: domain.ErrInvalidPointsAmount},
		{name: "inactive product", mutate: func(r *checkout.Request) { r.Lines[0].ProductID = "p-old" }, want: domain.ErrProductUnavailable},
		{name: "unknown product", mutate: func(r *checkout.Request) { r.Lines[0].ProductID = "p-missing" }, want: domain.ErrProductNotFound},
		{name: "unknown customer", mutate: func(r *checkout.Request) { r.CustomerID = "c-missing" }, want: domain.ErrCustomerNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request(checkout.Line{ProductID: "p-kettle", Qty: 1})
			tt.mutate(&req)
			_, err := f.orchestrator.Checkout(context.Background(), req)
			require.Truef(t, errors.Is(err, tt.want), "expected %v, got %v", tt.want, err)
			require.Equal(t, int64(5), f.available(t, "p-kettle"))
		})
	}
}

func TestCheckout_ServerPriceWinsAndLinesMerge(t *testing.T) {
	f := newFixture(t)
	req := request(
		checkout.Line{ProductID: "p-kettle", Qty: 1, ExpectedUnitPriceMinor: 1},
		checkout.Line{ProductID: "p-kettle", Qty: 2},
	)

	result, err := f.orchestrator.Checkout(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Order.Items, 1)
	require.Equal(t, int32(3), result.Order.Items[0].Qty)
	require.Equal(t, int64(1_000_000), result.Order.Items[0].UnitPriceMinor)
	require.Equal(t, int64(3_000_000), result.Order.SubtotalMinor)
	require.Equal(t, int64(2), f.available(t, "p-kettle"))
}

func TestCheckout_RequestKeyReplay(t *testing.T) {
	f := newFixture(t)
	req := request(checkout.Line{ProductID: "p-kettle", Qty: 1})
	req.RequestKey = "req-42"
	req.LoyaltyPoints = 100

	first, err := f.orchestrator.Checkout(context.Background(), req)
	require.NoError(t, err)
	second, err := f.orchestrator.Checkout(context.Background(), req)
	require.NoError(t, err)

	require.True(t, second.Replayed)
	require.Equal(t, first.Order.ID, second.Order.ID)
	require.Equal(t, int64(4), f.available(t, "p-kettle"))
	require.Equal(t, int64(400), f.customer(t).LoyaltyPoints)
}

func TestCheckout_PerCustomerLimitOnSecondOrder(t *testing.T) {
	f := newFixture(t)
	req := request(checkout.Line{ProductID: "p-kettle", Qty: 1})
	req.PromotionCode = "SALE10"

	_, err := f.orchestrator.Checkout(context.Background(), req)
	require.NoError(t, err)

	_, err = f.orchestrator.Checkout(context.Background(), req)
	require.Truef(t, errors.Is(err, domain.ErrPerCustomerLimitReached), "expected %v, got %v", domain.ErrPerCustomerLimitReached, err)
	require.Equal(t, int64(4), f.available(t, "p-kettle"))
	require.Equal(t, int64(1), f.promotion(t, "promo-sale10").UsedCount)
}

func TestCheckout_FreeShippingWithLoyaltyNeverGoesNegative(t *testing.T) {
	f := newFixture(t)
	f.catalog.Put(domain.CatalogItem{ProductID: "p-mug", Name: "Mug", CategoryID: "kitchen", PriceMinor: 10_000, Active: true})
	req := request(checkout.Line{ProductID: "p-mug", Qty: 1})
	req.PromotionCode = "FREESHIP"
	req.LoyaltyPoints = 500

	result, err := f.orchestrator.Checkout(context.Background(), req)
	require.NoError(t, err)

	order := result.Order
	require.Equal(t, int64(30_000), order.PromotionDiscountMinor)
	require.Equal(t, int64(100), order.LoyaltyPointsRedeemed)
	require.Equal(t, int64(10_000), order.LoyaltyDiscountMinor)
	require.Equal(t, int64(0), order.TotalMinor)
	require.Equal(t, int64(400), f.customer(t).LoyaltyPoints)
}

func TestCheckout_ConcurrentLastUnit(t *testing.T) {
	f := newFixture(t)

	const buyers = 4
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.orchestrator.Checkout(context.Background(), request(checkout.Line{ProductID: "p-mug", Qty: 1}))
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		if !errors.Is(err, domain.ErrInsufficientStock) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, int64(0), f.available(t, "p-mug"))
}

func TestCheckout_ShippingFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	ids, err := idgen.New(2)
	require.NoError(t, err)
	orchestrator, err := checkout.NewOrchestrator(checkout.Dependencies{
		UnitOfWork: f.store,
		Catalog:    f.catalog,
		Shipping:   fixedShipping{err: errors.New("carrier down")},
		Stock:      stock.NewLedger(nil, nil),
		Promotions: promotion.NewEngine(nil, nil),
		Loyalty:    loyalty.NewLedger(loyalty.DefaultPolicy(), nil, nil),
		IDs:        ids,
	})
	require.NoError(t, err)

	_, err = orchestrator.Checkout(context.Background(), request(checkout.Line{ProductID: "p-kettle", Qty: 1}))
	require.Error(t, err)
	require.Equal(t, domain.KindInternal, domain.KindOf(err))
	require.Equal(t, int64(5), f.available(t, "p-kettle"))
}

func TestPreview_DoesNotTouchLedgers(t *testing.T) {
	f := newFixture(t)
	req := request(checkout.Line{ProductID: "p-kettle", Qty: 1})
	req.PromotionCode = "SALE10"
	req.LoyaltyPoints = 200

	quote, err := f.orchestrator.Preview(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, int64(960_000), quote.TotalMinor)
	require.NotNil(t, quote.Promotion)
	require.Equal(t, "SALE10", quote.Promotion.Code)

	require.Equal(t, int64(5), f.available(t, "p-kettle"))
	require.Equal(t, int64(500), f.customer(t).LoyaltyPoints)
	require.Equal(t, int64(0), f.promotion(t, "promo-sale10").UsedCount)
}

func TestNewOrchestrator_RequiresDependencies(t *testing.T) {
	_, err := checkout.NewOrchestrator(checkout.Dependencies{})
	require.Error(t, err)
}
