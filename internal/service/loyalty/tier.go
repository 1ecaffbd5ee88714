package loyalty

import (
	"github.com/cockroachdb/errors"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// TierPolicy — пороги суммы выполненных заказов для уровней покупателя.
type TierPolicy struct {
	SilverMinor   int64
	GoldMinor     int64
	PlatinumMinor int64
}

// DefaultTierPolicy возвращает пороги по умолчанию.
func DefaultTierPolicy() TierPolicy {
	return TierPolicy{
		SilverMinor:   5_000_000,
		GoldMinor:     20_000_000,
		PlatinumMinor: 50_000_000,
	}
}

// Validate проверяет, что пороги положительны и возрастают.
func (p TierPolicy) Validate() error {
	if p.SilverMinor <= 0 || p.GoldMinor <= p.SilverMinor || p.PlatinumMinor <= p.GoldMinor {
		return errors.Newf("tier thresholds must be positive and increasing: silver=%d gold=%d platinum=%d",
			p.SilverMinor, p.GoldMinor, p.PlatinumMinor)
	}
	return nil
}

// Evaluate возвращает уровень, соответствующий сумме покупок.
func (p TierPolicy) Evaluate(totalSpentMinor int64) domain.Tier {
	switch {
	case totalSpentMinor >= p.PlatinumMinor:
		return domain.TierPlatinum
	case totalSpentMinor >= p.GoldMinor:
		return domain.TierGold
	case totalSpentMinor >= p.SilverMinor:
		return domain.TierSilver
	default:
		return domain.TierBronze
	}
}

// Promote возвращает новый уровень, только если он выше текущего. Понижения не бывает.
func (p TierPolicy) Promote(current domain.Tier, totalSpentMinor int64) (domain.Tier, bool) {
	next := p.Evaluate(totalSpentMinor)
	if next.Rank() > current.Rank() {
		return next, true
	}
	return current, false
}
