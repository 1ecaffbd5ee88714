package promotion

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

var hundred = decimal.NewFromInt(100)

// Input — контекст заказа, для которого проверяется промокод.
type Input struct {
	Code             string
	CustomerID       string
	SubtotalMinor    int64
	ShippingFeeMinor int64
	Lines            []domain.PricedLine
}

// Quote — результат успешной проверки. Использование ещё не учтено.
type Quote struct {
	PromotionID   string
	Code          string
	Kind          domain.DiscountKind
	EligibleMinor int64
	DiscountMinor int64
}

// ItemDiscountMinor — часть скидки, уменьшающая стоимость товаров (без бесплатной доставки).
func (q Quote) ItemDiscountMinor() int64 {
	if q.Kind == domain.DiscountFreeShipping {
		return 0
	}
	return q.DiscountMinor
}

// Engine проверяет промокоды и учитывает их использование.
type Engine struct {
	logger  *log.Entry
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewEngine создаёт PromotionEngine.
func NewEngine(logger *log.Entry, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = log.WithField("component", "promotion-engine")
	}
	return &Engine{
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Validate проверяет правила промокода по порядку и возвращает первую нарушенную причину.
// Счётчики не меняются: использование фиксирует Redeem.
func (e *Engine) Validate(ctx context.Context, tx domain.Tx, in Input) (Quote, error) {
	code := domain.NormalizeCode(in.Code)
	if code == "" {
		return Quote{}, domain.Reject(domain.ErrCodeNotFound, "promotion code is empty")
	}

	promo, err := tx.Promotions().GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrPromotionNotFound) {
			return Quote{}, domain.Reject(domain.ErrCodeNotFound, "promotion code %q not found", code)
		}
		return Quote{}, errors.Wrapf(err, "load promotion %s", code)
	}
	if !promo.Active {
		return Quote{}, domain.Reject(domain.ErrCodeNotFound, "promotion code %q not found", code)
	}

	now := e.now()
	if promo.StartsAt != nil && now.Before(*promo.StartsAt) {
		return Quote{}, domain.Reject(domain.ErrPromotionNotYetStarted,
			"promotion %s starts at %s", code, promo.StartsAt.Format(time.RFC3339))
	}
	if promo.EndsAt != nil && now.After(*promo.EndsAt) {
		return Quote{}, domain.Reject(domain.ErrPromotionExpired,
			"promotion %s ended at %s", code, promo.EndsAt.Format(time.RFC3339))
	}

	if in.SubtotalMinor < promo.MinOrderMinor {
		return Quote{}, domain.Reject(domain.ErrBelowMinimum,
			"promotion %s requires order amount %d, got %d", code, promo.MinOrderMinor, in.SubtotalMinor)
	}

	if promo.CustomerTier != "" && promo.CustomerTier != domain.TierAll {
		customer, err := tx.Customers().Get(ctx, in.CustomerID)
		if err != nil {
			return Quote{}, err
		}
		if customer.Tier.Rank() < promo.CustomerTier.Rank() {
			return Quote{}, domain.Reject(domain.ErrTierNotEligible,
				"promotion %s requires tier %s, customer is %s", code, promo.CustomerTier, customer.Tier)
		}
	}

	if promo.UsageLimit > 0 && promo.UsedCount >= promo.UsageLimit {
		return Quote{}, domain.Reject(domain.ErrGlobalLimitReached,
			"promotion %s used %d of %d", code, promo.UsedCount, promo.UsageLimit)
	}

	if promo.PerCustomerLimit > 0 {
		used, err := tx.Promotions().CountUsages(ctx, promo.ID, in.CustomerID)
		if err != nil {
			return Quote{}, errors.Wrapf(err, "count usages of %s", code)
		}
		if used >= promo.PerCustomerLimit {
			return Quote{}, domain.Reject(domain.ErrPerCustomerLimitReached,
				"customer %s already used %s %d time(s)", in.CustomerID, code, used)
		}
	}

	eligible := eligibleAmount(&promo, in)
	if eligible <= 0 {
		return Quote{}, domain.Reject(domain.ErrNoEligibleItems, "promotion %s does not apply to any cart line", code)
	}

	return Quote{
		PromotionID:   promo.ID,
		Code:          promo.Code,
		Kind:          promo.Kind,
		EligibleMinor: eligible,
		DiscountMinor: Discount(&promo, eligible, in.ShippingFeeMinor),
	}, nil
}

// Redeem учитывает использование: условный инкремент used_count, повторная проверка лимита
// на покупателя под блокировкой строки промокода и запись PromotionUsage.
func (e *Engine) Redeem(ctx context.Context, tx domain.Tx, quote Quote, customerID, orderID string) (domain.PromotionUsage, error) {
	promo, err := tx.Promotions().IncrementUsage(ctx, quote.PromotionID)
	if err != nil {
		return domain.PromotionUsage{}, err
	}

	if promo.PerCustomerLimit > 0 {
		used, err := tx.Promotions().CountUsages(ctx, promo.ID, customerID)
		if err != nil {
			return domain.PromotionUsage{}, errors.Wrapf(err, "count usages of %s", promo.Code)
		}
		if used >= promo.PerCustomerLimit {
			return domain.PromotionUsage{}, domain.Reject(domain.ErrPerCustomerLimitReached,
				"customer %s already used %s %d time(s)", customerID, promo.Code, used)
		}
	}

	usage := domain.PromotionUsage{
		ID:            uuid.NewString(),
		PromotionID:   promo.ID,
		CustomerID:    customerID,
		OrderID:       orderID,
		DiscountMinor: quote.DiscountMinor,
		UsedAt:        e.now(),
	}
	if err := tx.Promotions().AddUsage(ctx, usage); err != nil {
		return domain.PromotionUsage{}, errors.Wrapf(err, "record usage of %s", promo.Code)
	}

	e.metrics.RecordPromotionRedeemed()
	e.logger.WithFields(log.Fields{
		"promotion_code": promo.Code,
		"order_id":       orderID,
		"discount_minor": quote.DiscountMinor,
	}).Debug("promotion redeemed")
	return usage, nil
}

// Revert аннулирует применения промокода заказом и уменьшает used_count.
// Повторный вызов ничего не меняет.
func (e *Engine) Revert(ctx context.Context, tx domain.Tx, orderID string) (int, error) {
	usages, err := tx.Promotions().ListUsagesByOrder(ctx, orderID)
	if err != nil {
		return 0, errors.Wrapf(err, "list promotion usages of order %s", orderID)
	}

	reverted := 0
	for _, usage := range usages {
		if usage.VoidedAt != nil {
			continue
		}
		voided, err := tx.Promotions().VoidUsage(ctx, usage.ID, e.now())
		if err != nil {
			return reverted, errors.Wrapf(err, "void promotion usage %s", usage.ID)
		}
		if !voided {
			continue
		}
		if err := tx.Promotions().DecrementUsage(ctx, usage.PromotionID); err != nil {
			return reverted, errors.Wrapf(err, "decrement usage of promotion %s", usage.PromotionID)
		}
		reverted++
		e.metrics.RecordPromotionReverted()
	}
	return reverted, nil
}

// Discount вычисляет скидку по подходящей сумме. Дробная часть отбрасывается.
func Discount(promo *domain.Promotion, eligibleMinor, shippingFeeMinor int64) int64 {
	var discount int64
	switch promo.Kind {
	case domain.DiscountPercentage:
		discount = decimal.NewFromInt(eligibleMinor).Mul(promo.Value).Div(hundred).Floor().IntPart()
		if promo.MaxDiscountMinor > 0 && discount > promo.MaxDiscountMinor {
			discount = promo.MaxDiscountMinor
		}
	case domain.DiscountFixedAmount:
		discount = promo.Value.Floor().IntPart()
		if discount > eligibleMinor {
			discount = eligibleMinor
		}
	case domain.DiscountFreeShipping:
		discount = shippingFeeMinor
	}
	if discount < 0 {
		return 0
	}
	return discount
}

func eligibleAmount(promo *domain.Promotion, in Input) int64 {
	if promo.Scope == "" || promo.Scope == domain.ScopeAll {
		return in.SubtotalMinor
	}
	var eligible int64
	for _, line := range in.Lines {
		if promo.Covers(line.ProductID, line.CategoryID) {
			eligible += line.LineTotalMinor
		}
	}
	return eligible
}
