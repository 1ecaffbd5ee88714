package shipping

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const gramsPerKg = 1000

// FlatRate — базовый тариф плюс доплата за каждый начатый килограмм.
// Заказы от FreeThresholdMinor доставляются бесплатно.
type FlatRate struct {
	BaseFeeMinor       int64
	PerKgFeeMinor      int64
	FreeThresholdMinor int64 // 0 — бесплатной доставки нет
}

// DefaultFlatRate возвращает тариф по умолчанию.
func DefaultFlatRate() FlatRate {
	return FlatRate{BaseFeeMinor: 30000, PerKgFeeMinor: 5000}
}

// Validate проверяет параметры тарифа.
func (f FlatRate) Validate() error {
	if f.BaseFeeMinor < 0 || f.PerKgFeeMinor < 0 || f.FreeThresholdMinor < 0 {
		return errors.Newf("shipping fees must not be negative: base=%d per_kg=%d free_from=%d",
			f.BaseFeeMinor, f.PerKgFeeMinor, f.FreeThresholdMinor)
	}
	return nil
}

// Quote рассчитывает стоимость доставки. Первый килограмм входит в базовый тариф.
func (f FlatRate) Quote(_ context.Context, _ domain.ShippingInfo, lines []domain.PricedLine) (int64, error) {
	var subtotal, grams int64
	for _, line := range lines {
		subtotal += line.LineTotalMinor
		grams += line.WeightGrams * int64(line.Qty)
	}
	if f.FreeThresholdMinor > 0 && subtotal >= f.FreeThresholdMinor {
		return 0, nil
	}

	fee := f.BaseFeeMinor
	if grams > gramsPerKg {
		extraKg := (grams - gramsPerKg + gramsPerKg - 1) / gramsPerKg
		fee += extraKg * f.PerKgFeeMinor
	}
	return fee, nil
}

var _ domain.ShippingCalculator = FlatRate{}
