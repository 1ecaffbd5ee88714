package checkout

import (
	"math"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/promotion"
)

// Line — строка корзины от клиента. Цена клиента только для сверки: действует цена каталога.
type Line struct {
	ProductID              string
	Qty                    int32
	ExpectedUnitPriceMinor int64
}

// Request — входные данные checkout.
type Request struct {
	CustomerID    string
	RequestKey    string
	Lines         []Line
	Shipping      domain.ShippingInfo
	PaymentMethod domain.PaymentMethod
	PromotionCode string
	LoyaltyPoints int64
	Note          string
}

// Validate проверяет запрос до обращения к каталогу и ledger-ам.
func (r *Request) Validate() []error {
	var errs []error

	if r.CustomerID == "" {
		errs = append(errs, domain.ErrCustomerRequired)
	}
	if len(r.Lines) == 0 {
		errs = append(errs, domain.ErrItemsRequired)
	}
	for _, line := range r.Lines {
		if line.ProductID == "" {
			errs = append(errs, domain.ErrProductRequired)
		}
		if line.Qty <= 0 {
			errs = append(errs, domain.ErrItemQtyInvalid)
		}
	}
	errs = append(errs, r.Shipping.Validate()...)
	if !r.PaymentMethod.Valid() {
		errs = append(errs, domain.ErrPaymentMethodInvalid)
	}
	if r.LoyaltyPoints < 0 {
		errs = append(errs, domain.Reject(domain.ErrInvalidPointsAmount, "loyalty points must not be negative"))
	}

	return errs
}

// Result — итог checkout. Replayed означает, что заказ уже был создан тем же ключом запроса.
type Result struct {
	Order    domain.Order
	Replayed bool
}

// Quote — расчёт цены корзины без резервирования.
type Quote struct {
	Lines                  []domain.PricedLine
	SubtotalMinor          int64
	ShippingFeeMinor       int64
	PromotionDiscountMinor int64
	LoyaltyDiscountMinor   int64
	LoyaltyPoints          int64
	TotalMinor             int64
	Promotion              *promotion.Quote
}

// mergeLines складывает количество одинаковых товаров и сортирует строки по product_id.
func mergeLines(lines []Line) ([]Line, error) {
	index := make(map[string]int, len(lines))
	merged := make([]Line, 0, len(lines))
	for _, line := range lines {
		pos, ok := index[line.ProductID]
		if !ok {
			index[line.ProductID] = len(merged)
			merged = append(merged, line)
			continue
		}
		total := int64(merged[pos].Qty) + int64(line.Qty)
		if total > math.MaxInt32 {
			return nil, domain.Reject(domain.ErrItemQtyInvalid, "qty for product %s is too large", line.ProductID)
		}
		merged[pos].Qty = int32(total)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ProductID < merged[j].ProductID
	})
	return merged, nil
}
