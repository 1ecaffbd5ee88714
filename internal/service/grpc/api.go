package grpcsvc

import "time"

// Line — строка корзины.
type Line struct {
	ProductID              string `json:"product_id"`
	Qty                    int32  `json:"qty"`
	ExpectedUnitPriceMinor int64  `json:"expected_unit_price_minor,omitempty"`
}

// Shipping — адрес доставки.
type Shipping struct {
	ReceiverName string `json:"receiver_name"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	City         string `json:"city,omitempty"`
}

// CheckoutRequest — запрос оформления заказа.
// RequestKey можно передать полем или метаданными idempotency-key.
type CheckoutRequest struct {
	CustomerID    string   `json:"customer_id"`
	RequestKey    string   `json:"request_key,omitempty"`
	Lines         []Line   `json:"lines"`
	Shipping      Shipping `json:"shipping"`
	PaymentMethod string   `json:"payment_method"`
	PromotionCode string   `json:"promotion_code,omitempty"`
	LoyaltyPoints int64    `json:"loyalty_points,omitempty"`
	Note          string   `json:"note,omitempty"`
	Lang          string   `json:"lang,omitempty"`
}

// OrderItem — позиция заказа с зафиксированной ценой.
type OrderItem struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Qty            int32  `json:"qty"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	LineTotalMinor int64  `json:"line_total_minor"`
}

// Order — представление заказа для клиентов.
type Order struct {
	OrderID               string      `json:"order_id"`
	OrderCode             string      `json:"order_code"`
	CustomerID            string      `json:"customer_id"`
	Currency              string      `json:"currency"`
	SubtotalMinor         int64       `json:"subtotal_minor"`
	ShippingFeeMinor      int64       `json:"shipping_fee_minor"`
	DiscountMinor         int64       `json:"discount_minor"`
	LoyaltyDiscountMinor  int64       `json:"loyalty_discount_minor"`
	TotalMinor            int64       `json:"total_minor"`
	PromotionCode         string      `json:"promotion_code,omitempty"`
	LoyaltyPointsRedeemed int64       `json:"loyalty_points_redeemed,omitempty"`
	Status                string      `json:"status"`
	StatusLabel           string      `json:"status_label"`
	PaymentMethod         string      `json:"payment_method"`
	PaymentStatus         string      `json:"payment_status"`
	Shipping              Shipping    `json:"shipping"`
	Items                 []OrderItem `json:"items"`
	Version               int64       `json:"version"`
	CreatedAt             time.Time   `json:"created_at"`
	ConfirmedAt           *time.Time  `json:"confirmed_at,omitempty"`
	PreparedAt            *time.Time  `json:"prepared_at,omitempty"`
	ShippedAt             *time.Time  `json:"shipped_at,omitempty"`
	CompletedAt           *time.Time  `json:"completed_at,omitempty"`
	CancelledAt           *time.Time  `json:"cancelled_at,omitempty"`
	ReturnedAt            *time.Time  `json:"returned_at,omitempty"`
}

// CheckoutResponse — результат checkout; Replayed=true для повтора с тем же ключом.
type CheckoutResponse struct {
	Order    Order `json:"order"`
	Replayed bool  `json:"replayed"`
}

// ValidatePromotionRequest — предварительный расчёт корзины с промокодом и баллами.
type ValidatePromotionRequest struct {
	CustomerID    string   `json:"customer_id"`
	Lines         []Line   `json:"lines"`
	Shipping      Shipping `json:"shipping"`
	PaymentMethod string   `json:"payment_method"`
	PromotionCode string   `json:"promotion_code"`
	LoyaltyPoints int64    `json:"loyalty_points,omitempty"`
}

// ValidatePromotionResponse — расчёт без резервирования.
type ValidatePromotionResponse struct {
	PromotionID          string `json:"promotion_id,omitempty"`
	PromotionCode        string `json:"promotion_code,omitempty"`
	DiscountKind         string `json:"discount_kind,omitempty"`
	SubtotalMinor        int64  `json:"subtotal_minor"`
	ShippingFeeMinor     int64  `json:"shipping_fee_minor"`
	DiscountMinor        int64  `json:"discount_minor"`
	LoyaltyPoints        int64  `json:"loyalty_points"`
	LoyaltyDiscountMinor int64  `json:"loyalty_discount_minor"`
	TotalMinor           int64  `json:"total_minor"`
}

// TransitionOrderStatusRequest — смена статуса авторизованным актором.
type TransitionOrderStatusRequest struct {
	OrderID        string `json:"order_id"`
	ExpectedStatus string `json:"expected_status,omitempty"`
	NewStatus      string `json:"new_status"`
	ActorID        string `json:"actor_id"`
	ActorKind      string `json:"actor_kind,omitempty"`
	ActorRole      string `json:"actor_role,omitempty"`
	Note           string `json:"note,omitempty"`
	Lang           string `json:"lang,omitempty"`
}

// HistoryEntry — запись журнала статусов.
type HistoryEntry struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order_id"`
	OldStatus      string    `json:"old_status,omitempty"`
	NewStatus      string    `json:"new_status"`
	NewStatusLabel string    `json:"new_status_label"`
	ActorID        string    `json:"actor_id"`
	ActorKind      string    `json:"actor_kind"`
	Note           string    `json:"note,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TransitionOrderStatusResponse — итог перехода; Applied=false для повторной отмены.
type TransitionOrderStatusResponse struct {
	Entry   HistoryEntry `json:"entry"`
	Order   Order        `json:"order"`
	Applied bool         `json:"applied"`
}

// GetOrderRequest — запрос заказа.
type GetOrderRequest struct {
	OrderID string `json:"order_id"`
	Lang    string `json:"lang,omitempty"`
}

// GetOrderResponse — заказ.
type GetOrderResponse struct {
	Order Order `json:"order"`
}

// GetOrderHistoryRequest — запрос журнала статусов.
type GetOrderHistoryRequest struct {
	OrderID string `json:"order_id"`
	Lang    string `json:"lang,omitempty"`
}

// GetOrderHistoryResponse — журнал в порядке записи.
type GetOrderHistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}
