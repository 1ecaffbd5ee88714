package domain

import "time"

// Tier — уровень покупателя по накопленной сумме выполненных заказов.
type Tier string

const (
	TierAll      Tier = "all"
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Rank возвращает порядковый номер уровня; неизвестный уровень равен bronze.
func (t Tier) Rank() int {
	switch t {
	case TierSilver:
		return 1
	case TierGold:
		return 2
	case TierPlatinum:
		return 3
	default:
		return 0
	}
}

// Customer — покупатель с встроенным счётом баллов лояльности.
type Customer struct {
	ID              string
	Name            string
	Tier            Tier
	LoyaltyPoints   int64
	TotalSpentMinor int64
	TotalOrders     int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LoyaltyReason — причина изменения баланса баллов.
type LoyaltyReason string

const (
	LoyaltyEarned   LoyaltyReason = "earned"
	LoyaltyRedeemed LoyaltyReason = "redeemed"
	LoyaltyExpired  LoyaltyReason = "expired"
	LoyaltyBonus    LoyaltyReason = "bonus"
	LoyaltyRefund   LoyaltyReason = "refund"
)

// LoyaltyEntry — запись журнала баллов; сумма Delta по журналу равна балансу.
type LoyaltyEntry struct {
	ID         string
	CustomerID string
	Delta      int64
	Reason     LoyaltyReason
	OrderID    string
	CreatedAt  time.Time
}
