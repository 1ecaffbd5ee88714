package orderstate_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/idgen"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/loyalty"
	"github.com/vladislavdragonenkov/storefront/internal/service/orderstate"
	"github.com/vladislavdragonenkov/storefront/internal/service/promotion"
	"github.com/vladislavdragonenkov/storefront/internal/service/shipping"
	"github.com/vladislavdragonenkov/storefront/internal/service/stock"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var employee = domain.Actor{ID: "emp-1", Kind: domain.ActorEmployee, Role: "manager"}

// flakyUnitOfWork отдаёт конфликт версий на первых failures вызовах Save.
type flakyUnitOfWork struct {
	*memory.Store
	failures int
}

func (u *flakyUnitOfWork) Within(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return u.Store.Within(ctx, func(ctx context.Context, tx domain.Tx) error {
		return fn(ctx, flakyTx{Tx: tx, uow: u})
	})
}

type flakyTx struct {
	domain.Tx
	uow *flakyUnitOfWork
}

func (t flakyTx) Orders() domain.OrderRepository {
	return flakyOrders{OrderRepository: t.Tx.Orders(), uow: t.uow}
}

type flakyOrders struct {
	domain.OrderRepository
	uow *flakyUnitOfWork
}

func (r flakyOrders) Save(ctx context.Context, order domain.Order) error {
	if r.uow.failures > 0 {
		r.uow.failures--
		return errors.Wrap(domain.ErrOrderVersionConflict, "injected")
	}
	return r.OrderRepository.Save(ctx, order)
}

type fixture struct {
	store    *memory.Store
	checkout *checkout.Orchestrator
	machine  *orderstate.Machine
}

func newFixture(t *testing.T, uow domain.UnitOfWork, store *memory.Store) *fixture {
	t.Helper()

	catalog := memory.NewCatalog(
		domain.CatalogItem{ProductID: "p-kettle", Name: "Kettle", CategoryID: "kitchen", PriceMinor: 1_000_000, Active: true},
	)
	err := store.Within(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		if err := tx.Stock().Put(ctx, domain.StockRecord{ProductID: "p-kettle", Available: 5}); err != nil {
			return err
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
		return tx.Promotions().Create(ctx, domain.Promotion{
			ID: "promo-sale10", Code: "SALE10", Kind: domain.DiscountPercentage, Value: decimal.NewFromInt(10),
			MaxDiscountMinor: 50_000, UsageLimit: 10, Scope: domain.ScopeAll, Active: true,
		})
	})
	require.NoError(t, err)

	stockLedger := stock.NewLedger(nil, nil)
	promotions := promotion.NewEngine(nil, nil)
	policy := loyalty.DefaultPolicy()
	policy.Tiers = loyalty.TierPolicy{SilverMinor: 900_000, GoldMinor: 5_000_000, PlatinumMinor: 9_000_000}
	loyaltyLedger := loyalty.NewLedger(policy, nil, nil)

	ids, err := idgen.New(3)
	require.NoError(t, err)
	orchestrator, err := checkout.NewOrchestrator(checkout.Dependencies{
		UnitOfWork: uow,
		Catalog:    catalog,
		Shipping:   shipping.FlatRate{BaseFeeMinor: 30_000},
		Stock:      stockLedger,
		Promotions: promotions,
		Loyalty:    loyaltyLedger,
		IDs:        ids,
	})
	require.NoError(t, err)

	machine, err := orderstate.NewMachine(orderstate.Dependencies{
		UnitOfWork: uow,
		Stock:      stockLedger,
		Promotions: promotions,
		Loyalty:    loyaltyLedger,
	})
	require.NoError(t, err)

	return &fixture{store: store, checkout: orchestrator, machine: machine}
}

func newMemoryFixture(t *testing.T) *fixture {
	store := memory.NewStore()
	return newFixture(t, store, store)
}

func (f *fixture) placeOrder(t *testing.T) domain.Order {
	t.Helper()
	result, err := f.checkout.Checkout(context.Background(), checkout.Request{
		CustomerID: "c1",
		Lines:      []checkout.Line{{ProductID: "p-kettle", Qty: 1}},
		Shipping: domain.ShippingInfo{
			ReceiverName: "Tran Thi B",
			Phone:        "+84911111111",
			Address:      "2 Nguyen Hue",
		},
		PaymentMethod: domain.PaymentMethodBankTransfer,
		PromotionCode: "SALE10",
		LoyaltyPoints: 200,
	})
	require.NoError(t, err)
	require.Equal(t, int64(960_000), result.Order.TotalMinor)
	return result.Order
}

func (f *fixture) move(t *testing.T, orderID string, statuses ...domain.OrderStatus) {
	t.Helper()
	for _, status := range statuses {
		_, err := f.machine.Transition(context.Background(), orderstate.TransitionRequest{
			OrderID: orderID,
			To:      status,
			Actor:   employee,
		})
		require.NoError(t, err, "transition to %s", status)
	}
}

type snapshot struct {
	available int64
	points    int64
	usedCount int64
	customer  domain.Customer
	replay    loyalty.ReplayResult
}

func (f *fixture) snapshot(t *testing.T) snapshot {
	t.Helper()
	var s snapshot
	ledger := loyalty.NewLedger(loyalty.DefaultPolicy(), nil, nil)
	err := f.store.WithinReadOnly(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		record, err := tx.Stock().Get(ctx, "p-kettle")
		if err != nil {
			return err
		}
		s.available = record.Available
		s.customer, err = tx.Customers().Get(ctx, "c1")
		if err != nil {
			return err
		}
		s.points = s.customer.LoyaltyPoints
		promo, err := tx.Promotions().Get(ctx, "promo-sale10")
		if err != nil {
			return err
		}
		s.usedCount = promo.UsedCount
		s.replay, err = ledger.Replay(ctx, tx, "c1")
		return err
	})
	require.NoError(t, err)
	return s
}

func assertCode(t *testing.T, err error, want error) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, errors.Is(err, want), "expected %v, got %v", want, err)
}

func TestMachine_HappyPathToCompleted(t *testing.T) {
	f := newMemoryFixture(t)
	order := f.placeOrder(t)

	f.move(t, order.ID,
		domain.OrderStatusConfirmed,
		domain.OrderStatusPreparing,
		domain.OrderStatusShipping,
		domain.OrderStatusCompleted,
	)

	stored, err := f.machine.Order(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCompleted, stored.Status)
	require.Equal(t, domain.PaymentStatusPaid, stored.PaymentStatus)
	require.NotNil(t, stored.ConfirmedAt)
	require.NotNil(t, stored.PreparedAt)
	require.NotNil(t, stored.ShippedAt)
	require.NotNil(t, stored.CompletedAt)
	require.Nil(t, stored.CancelledAt)
	require.False(t, stored.CompletedAt.Before(*stored.ConfirmedAt))
	require.Equal(t, int64(4), stored.Version)

	s := f.snapshot(t)
	require.Equal(t, int64(300+96), s.points)
	require.Equal(t, int64(960_000), s.customer.TotalSpentMinor)
	require.Equal(t, int64(1), s.customer.TotalOrders)
	require.Equal(t, domain.TierSilver, s.customer.Tier)
	require.True(t, s.replay.Consistent())

	history, err := f.machine.History(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, history, 5)
	require.Equal(t, domain.OrderStatusShipping, history[4].OldStatus)
	require.Equal(t, domain.OrderStatusCompleted, history[4].NewStatus)
	require.Equal(t, employee.ID, history[4].ActorID)
}

func TestMachine_ShippingCannotBeCancelled(t *testing.T) {
	f := newMemoryFixture(t)
	order := f.placeOrder(t)
	f.move(t, order.ID, domain.OrderStatusConfirmed, domain.OrderStatusPreparing, domain.OrderStatusShipping)

	_, err := f.machine.Transition(context.Background(), orderstate.TransitionRequest{
		OrderID: order.ID, To: domain.OrderStatusCancelled, Actor: employee,
	})
	assertCode(t, err, domain.ErrIllegalTransition)

	change, err := f.machine.Transition(context.Background(), orderstate.TransitionRequest{
		OrderID: order.ID, From: domain.OrderStatusShipping, To: domain.OrderStatusCompleted, Actor: employee,
	})
	require.NoError(t, err)
	require.True(t, change.Applied)
	require.Equal(t, int64(396), f.snapshot(t).points)
}

func TestMachine_CancelRestoresCheckoutSideEffects(t *testing.T) {
	f := newMemoryFixture(t)
	before := f.snapshot(t)

	order := f.placeOrder(t)
	f.move(t, order.ID, domain.OrderStatusConfirmed)

	change, err := f.machine.Transition(context.Background(), orderstate.TransitionRequest{
		OrderID: order.ID, From: domain.OrderStatusConfirmed, To: domain.OrderStatusCancelled,
		Actor: domain.Actor{ID: "c1", Kind: domain.ActorCustomer}, Note: "changed my mind",
	})
	require.NoError(t, err)
	require.True(t, change.Applied)
	require.Equal(t, "changed my mind", change.Entry.Note)
	require.NotNil(t, change.Order.CancelledAt)

	after := f.snapshot(t)
	require.Equal(t, before.available, after.available)
	require.Equal(t, before.points, after.points)
	require.Equal(t, before.usedCount, after.usedCount)
	require.True(t, after.replay.Consistent())
	require.Equal(t, before.replay.Entries+2, after.replay.Entries)

	// Повторная отмена ничего не меняет.
	again, err := f.machine.Transition(context.Background(), orderstate.TransitionRequest{
		OrderID: order.ID, From: domain.OrderStatusConfirmed, To: domain.OrderStatusCancelled, Actor: employee,
	})
	require.NoError(t, err)
	require.False(t, again.Applied)
	require.Equal(t, change.Entry.ID, again.Entry.ID)
	require.Equal(t, after, f.snapshot(t))

	history, err := f.machine.History(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
}

func TestMachine_IllegalTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []domain.OrderStatus
		to   domain.OrderStatus
	}{
		{name: "skip confirmation", to: domain.OrderStatusShipping},
		{name: "backward", path: []domain.OrderStatus{domain.OrderStatusConfirmed}, to: domain.OrderStatusPending},
		{name: "return before completion", path: []domain.OrderStatus{domain.OrderStatusConfirmed}, to: domain.OrderStatusReturned},
		{name: "leave cancelled", path: []domain.OrderStatus{domain.OrderStatusCancelled}, to: domain.OrderStatusConfirmed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMemoryFixture(t)
			order := f.placeOrder(t)
			f.move(t, order.ID, tt.path...)

			_, err := f.machine.Transition(context.Background(), orderstate.TransitionRequest{
				OrderID: order.ID, To: tt.to, Actor: employee,
			})
			assertCode(t, err, domain.ErrIllegalTransition)
		})
	}
}

func TestMachine_ReturnedOnlyFromCompleted(t *testing.T) {
	f := newMemoryFixture(t)
	order := f.placeOrder(t)
	f.move(t, order.ID,
		domain.OrderStatusConfirmed,
		domain.OrderStatusPreparing,
		domain.OrderStatusShipping,
		domain.OrderStatusCompleted,
		domain.OrderStatusReturned,
	)

	stored, err := f.machine.Order(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusRefunded, stored.PaymentStatus)
	require.NotNil(t, stored.ReturnedAt)
	require.True(t, stored.Status.Terminal())
}

func TestMachine_StaleExpectedStatus(t *testing.T) {
	f := newMemoryFixture(t)
	order := f.placeOrder(t)
	f.move(t, order.ID, domain.OrderStatusConfirmed)

	_, err := f.machine.Transition(context.Background(), orderstate.TransitionRequest{
		OrderID: order.ID, From: domain.OrderStatusPending, To: domain.OrderStatusConfirmed, Actor: employee,
	})
	assertCode(t, err, domain.ErrStatusConflict)
	require.Equal(t, domain.KindConflict, domain.KindOf(err))

	status, err := f.machine.Status(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, status)
}

func TestMachine_RetriesVersionConflictOnce(t *testing.T) {
	store := memory.NewStore()
	uow := &flakyUnitOfWork{Store: store}
	f := newFixture(t, uow, store)
	order := f.placeOrder(t)

	uow.failures = 1
	change, err := f.machine.Transition(context.Background(), orderstate.TransitionRequest{
		OrderID: order.ID, To: domain.OrderStatusConfirmed, Actor: employee,
	})
	require.NoError(t, err)
	require.True(t, change.Applied)

	uow.failures = 2
	_, err = f.machine.Transition(context.Background(), orderstate.TransitionRequest{
		OrderID: order.ID, To: domain.OrderStatusPreparing, Actor: employee,
	})
	assertCode(t, err, domain.ErrOrderVersionConflict)

	history, err := f.machine.History(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestMachine_RequestValidation(t *testing.T) {
	f := newMemoryFixture(t)

	tests := []struct {
		name string
		req  orderstate.TransitionRequest
		want error
	}{
		{name: "no order", req: orderstate.TransitionRequest{To: domain.OrderStatusConfirmed, Actor: employee}, want: domain.ErrOrderIDRequired},
		{name: "bad status", req: orderstate.TransitionRequest{OrderID: "o", To: "lost", Actor: employee}, want: domain.ErrStatusInvalid},
		{name: "no actor", req: orderstate.TransitionRequest{OrderID: "o", To: domain.OrderStatusConfirmed}, want: domain.ErrActorRequired},
		{name: "unknown order", req: orderstate.TransitionRequest{OrderID: "o", To: domain.OrderStatusConfirmed, Actor: employee}, want: domain.ErrOrderNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.machine.Transition(context.Background(), tt.req)
			assertCode(t, err, tt.want)
		})
	}
}

func TestCanTransition(t *testing.T) {
	require.True(t, orderstate.CanTransition(domain.OrderStatusPreparing, domain.OrderStatusCancelled))
	require.False(t, orderstate.CanTransition(domain.OrderStatusShipping, domain.OrderStatusCancelled))
	require.False(t, orderstate.CanTransition(domain.OrderStatusReturned, domain.OrderStatusCompleted))
	require.ElementsMatch(t,
		[]domain.OrderStatus{domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
		orderstate.NextStatuses(domain.OrderStatusPending))
	require.Empty(t, orderstate.NextStatuses(domain.OrderStatusCancelled))
}
