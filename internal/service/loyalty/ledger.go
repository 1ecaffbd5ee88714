package loyalty

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Policy задаёт курс обмена баллов и норму начисления.
type Policy struct {
	// PointValueMinor — сколько минимальных единиц валюты стоит один балл.
	PointValueMinor int64
	// AccrualRate — баллов за одну оплаченную минимальную единицу.
	AccrualRate decimal.Decimal
	Tiers       TierPolicy
}

// DefaultPolicy возвращает политику по умолчанию: 1 балл = 100, 1 балл за каждые 10 000 оплаченных.
func DefaultPolicy() Policy {
	return Policy{
		PointValueMinor: 100,
		AccrualRate:     decimal.RequireFromString("0.0001"),
		Tiers:           DefaultTierPolicy(),
	}
}

// Validate проверяет параметры политики.
func (p Policy) Validate() error {
	if p.PointValueMinor <= 0 {
		return errors.Newf("point value must be positive, got %d", p.PointValueMinor)
	}
	if p.AccrualRate.IsNegative() {
		return errors.Newf("accrual rate must not be negative, got %s", p.AccrualRate)
	}
	return p.Tiers.Validate()
}

// Redemption — результат проверки списания; баллы могут быть урезаны до допустимого максимума.
type Redemption struct {
	Points        int64
	DiscountMinor int64
}

// Completion — итог начисления по выполненному заказу.
type Completion struct {
	PointsEarned int64
	Balance      int64
	OldTier      domain.Tier
	NewTier      domain.Tier
	Upgraded     bool
}

// ReplayResult — сверка журнала с хранимым балансом.
type ReplayResult struct {
	HistorySum int64
	Balance    int64
	Entries    int
}

// Consistent сообщает, совпадает ли сумма журнала с балансом.
func (r ReplayResult) Consistent() bool {
	return r.HistorySum == r.Balance
}

// Ledger — счёт баллов лояльности покупателя.
// Баланс меняется только условным обновлением и всегда сопровождается записью в журнал.
type Ledger struct {
	policy  Policy
	logger  *log.Entry
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewLedger создаёт LoyaltyLedger.
func NewLedger(policy Policy, logger *log.Entry, m *metrics.Metrics) *Ledger {
	if logger == nil {
		logger = log.WithField("component", "loyalty-ledger")
	}
	return &Ledger{
		policy:  policy,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Policy возвращает действующую политику.
func (l *Ledger) Policy() Policy {
	return l.policy
}

// Redeem проверяет списание points баллов как скидки не больше maxDiscountMinor.
// Баланс не меняется: списание фиксирует Debit в той же транзакции.
func (l *Ledger) Redeem(ctx context.Context, tx domain.Tx, customerID string, points, maxDiscountMinor int64) (Redemption, error) {
	if points < 0 {
		return Redemption{}, domain.Reject(domain.ErrInvalidPointsAmount, "points must not be negative, got %d", points)
	}
	if points == 0 {
		return Redemption{}, nil
	}

	customer, err := tx.Customers().Get(ctx, customerID)
	if err != nil {
		return Redemption{}, err
	}
	if points > customer.LoyaltyPoints {
		return Redemption{}, domain.Reject(domain.ErrInsufficientPoints,
			"customer %s requested %d points, balance %d", customerID, points, customer.LoyaltyPoints)
	}

	if maxDiscountMinor < 0 {
		maxDiscountMinor = 0
	}
	if maxPoints := maxDiscountMinor / l.policy.PointValueMinor; points > maxPoints {
		l.logger.WithFields(log.Fields{
			"customer_id": customerID,
			"requested":   points,
			"clamped":     maxPoints,
		}).Debug("loyalty redemption clamped")
		points = maxPoints
	}

	return Redemption{Points: points, DiscountMinor: points * l.policy.PointValueMinor}, nil
}

// Debit списывает баллы за заказ и пишет запись REDEEMED.
func (l *Ledger) Debit(ctx context.Context, tx domain.Tx, customerID, orderID string, points int64) (int64, error) {
	if points <= 0 {
		return 0, domain.Reject(domain.ErrInvalidPointsAmount, "debit must be positive, got %d", points)
	}
	balance, err := l.apply(ctx, tx, customerID, orderID, -points, domain.LoyaltyRedeemed)
	if err != nil {
		return 0, err
	}
	l.metrics.RecordPointsRedeemed(points)
	return balance, nil
}

// Refund возвращает баллы, списанные заказом, записью REFUND.
func (l *Ledger) Refund(ctx context.Context, tx domain.Tx, customerID, orderID string, points int64) (int64, error) {
	if points <= 0 {
		return 0, domain.Reject(domain.ErrInvalidPointsAmount, "refund must be positive, got %d", points)
	}
	balance, err := l.apply(ctx, tx, customerID, orderID, points, domain.LoyaltyRefund)
	if err != nil {
		return 0, err
	}
	l.metrics.RecordPointsRefunded(points)
	return balance, nil
}

// PointsFor вычисляет баллы за оплаченную сумму с округлением вниз.
func (l *Ledger) PointsFor(paidMinor int64) int64 {
	if paidMinor <= 0 {
		return 0
	}
	return decimal.NewFromInt(paidMinor).Mul(l.policy.AccrualRate).Floor().IntPart()
}

// Accrue начисляет баллы за оплаченную сумму заказа и пишет запись EARNED.
func (l *Ledger) Accrue(ctx context.Context, tx domain.Tx, customerID, orderID string, paidMinor int64) (int64, int64, error) {
	points := l.PointsFor(paidMinor)
	if points == 0 {
		customer, err := tx.Customers().Get(ctx, customerID)
		if err != nil {
			return 0, 0, err
		}
		return 0, customer.LoyaltyPoints, nil
	}

	balance, err := l.apply(ctx, tx, customerID, orderID, points, domain.LoyaltyEarned)
	if err != nil {
		return 0, 0, err
	}
	l.metrics.RecordPointsAccrued(points)

	err = domain.EnqueueEvent(ctx, tx.Outbox(), domain.AggregateCustomer, customerID, domain.EventLoyaltyPointsEarned,
		domain.LoyaltyPointsEarnedEvent{CustomerID: customerID, OrderID: orderID, Points: points, Balance: balance})
	if err != nil {
		return 0, 0, err
	}
	return points, balance, nil
}

// RecordCompletion проводит выполненный заказ: начисляет баллы, обновляет totalSpent/totalOrders
// и повышает уровень, если порог пройден.
func (l *Ledger) RecordCompletion(ctx context.Context, tx domain.Tx, customerID, orderID string, paidMinor int64) (Completion, error) {
	points, balance, err := l.Accrue(ctx, tx, customerID, orderID, paidMinor)
	if err != nil {
		return Completion{}, err
	}

	customer, err := tx.Customers().RecordCompletedOrder(ctx, customerID, paidMinor)
	if err != nil {
		return Completion{}, errors.Wrapf(err, "record completed order for customer %s", customerID)
	}

	result := Completion{PointsEarned: points, Balance: balance, OldTier: customer.Tier, NewTier: customer.Tier}
	next, upgraded := l.policy.Tiers.Promote(customer.Tier, customer.TotalSpentMinor)
	if !upgraded {
		return result, nil
	}

	if err := tx.Customers().SetTier(ctx, customerID, next); err != nil {
		return Completion{}, errors.Wrapf(err, "set tier for customer %s", customerID)
	}
	err = domain.EnqueueEvent(ctx, tx.Outbox(), domain.AggregateCustomer, customerID, domain.EventCustomerTierUpgraded,
		domain.CustomerTierUpgradedEvent{
			CustomerID:      customerID,
			OldTier:         customer.Tier,
			NewTier:         next,
			TotalSpentMinor: customer.TotalSpentMinor,
		})
	if err != nil {
		return Completion{}, err
	}

	l.logger.WithFields(log.Fields{
		"customer_id": customerID,
		"old_tier":    customer.Tier,
		"new_tier":    next,
	}).Info("customer tier upgraded")

	result.NewTier = next
	result.Upgraded = true
	return result, nil
}

// Replay суммирует журнал покупателя и сравнивает с хранимым балансом.
func (l *Ledger) Replay(ctx context.Context, tx domain.Tx, customerID string) (ReplayResult, error) {
	customer, err := tx.Customers().Get(ctx, customerID)
	if err != nil {
		return ReplayResult{}, err
	}
	entries, err := tx.Loyalty().List(ctx, customerID)
	if err != nil {
		return ReplayResult{}, errors.Wrapf(err, "list loyalty history of %s", customerID)
	}

	result := ReplayResult{Balance: customer.LoyaltyPoints, Entries: len(entries)}
	for _, entry := range entries {
		result.HistorySum += entry.Delta
	}
	if !result.Consistent() {
		l.logger.WithFields(log.Fields{
			"customer_id": customerID,
			"history_sum": result.HistorySum,
			"balance":     result.Balance,
		}).Error("loyalty ledger diverged from history")
	}
	return result, nil
}

func (l *Ledger) apply(ctx context.Context, tx domain.Tx, customerID, orderID string, delta int64, reason domain.LoyaltyReason) (int64, error) {
	balance, err := tx.Customers().AdjustPoints(ctx, customerID, delta)
	if err != nil {
		return 0, err
	}
	entry := domain.LoyaltyEntry{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Delta:      delta,
		Reason:     reason,
		OrderID:    orderID,
		CreatedAt:  l.now(),
	}
	if err := tx.Loyalty().Append(ctx, entry); err != nil {
		return 0, errors.Wrapf(err, "append loyalty %s entry", reason)
	}
	return balance, nil
}
