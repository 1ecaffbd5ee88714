package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountKind задаёт способ расчёта скидки.
type DiscountKind string

const (
	DiscountPercentage   DiscountKind = "percentage"
	DiscountFixedAmount  DiscountKind = "fixed_amount"
	DiscountFreeShipping DiscountKind = "free_shipping"
)

// PromotionScope ограничивает набор товаров, на которые действует промокод.
type PromotionScope string

const (
	ScopeAll        PromotionScope = "all"
	ScopeCategories PromotionScope = "categories"
	ScopeProducts   PromotionScope = "products"
)

// Promotion — правило скидки по коду.
type Promotion struct {
	ID   string
	Code string
	Name string
	Kind DiscountKind
	// Value — процент для percentage и сумма в минимальных единицах для fixed_amount.
	Value            decimal.Decimal
	MinOrderMinor    int64
	MaxDiscountMinor int64 // 0 — без ограничения
	UsageLimit       int64 // 0 — без ограничения
	UsedCount        int64
	PerCustomerLimit int64 // 0 — без ограничения
	// CustomerTier пустой или TierAll — доступно всем.
	CustomerTier Tier
	Scope        PromotionScope
	CategoryIDs  []string
	ProductIDs   []string
	StartsAt     *time.Time
	EndsAt       *time.Time
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NormalizeCode приводит код к каноническому виду для поиска.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate проверяет инварианты определения промокода.
func (p *Promotion) Validate() []error {
	var errs []error

	if NormalizeCode(p.Code) == "" || p.Code != NormalizeCode(p.Code) {
		errs = append(errs, Reject(ErrPromotionInvalid, "promotion code must be non-empty and normalized"))
	}
	switch p.Kind {
	case DiscountPercentage:
		if p.Value.LessThanOrEqual(decimal.Zero) || p.Value.GreaterThan(decimal.NewFromInt(100)) {
			errs = append(errs, Reject(ErrPromotionInvalid, "percentage value must be in (0, 100]"))
		}
	case DiscountFixedAmount:
		if p.Value.LessThanOrEqual(decimal.Zero) || !p.Value.IsInteger() {
			errs = append(errs, Reject(ErrPromotionInvalid, "fixed amount must be a positive whole number of minor units"))
		}
	case DiscountFreeShipping:
	default:
		errs = append(errs, Reject(ErrPromotionInvalid, "unsupported discount kind %q", p.Kind))
	}
	if p.MinOrderMinor < 0 || p.MaxDiscountMinor < 0 || p.UsageLimit < 0 || p.PerCustomerLimit < 0 {
		errs = append(errs, Reject(ErrPromotionInvalid, "limits must be non-negative"))
	}
	if p.UsageLimit > 0 && p.UsedCount > p.UsageLimit {
		errs = append(errs, Reject(ErrPromotionInvalid, "used count exceeds usage limit"))
	}
	if p.StartsAt != nil && p.EndsAt != nil && p.StartsAt.After(*p.EndsAt) {
		errs = append(errs, Reject(ErrPromotionInvalid, "start date is after end date"))
	}
	switch p.Scope {
	case ScopeAll, "":
	case ScopeCategories:
		if len(p.CategoryIDs) == 0 {
			errs = append(errs, Reject(ErrPromotionInvalid, "category scope requires categories"))
		}
	case ScopeProducts:
		if len(p.ProductIDs) == 0 {
			errs = append(errs, Reject(ErrPromotionInvalid, "product scope requires products"))
		}
	default:
		errs = append(errs, Reject(ErrPromotionInvalid, "unsupported scope %q", p.Scope))
	}

	return errs
}

// Covers сообщает, попадает ли товар в область действия промокода.
func (p *Promotion) Covers(productID, categoryID string) bool {
	switch p.Scope {
	case ScopeCategories:
		return containsString(p.CategoryIDs, categoryID)
	case ScopeProducts:
		return containsString(p.ProductIDs, productID)
	default:
		return true
	}
}

// PromotionUsage — одна запись применения промокода к заказу.
type PromotionUsage struct {
	ID            string
	PromotionID   string
	CustomerID    string
	OrderID       string
	DiscountMinor int64
	UsedAt        time.Time
	// VoidedAt заполняется при отмене заказа; аннулированные записи не учитываются в лимитах.
	VoidedAt *time.Time
}

func containsString(values []string, target string) bool {
	if target == "" {
		return false
	}
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
