package domain

import "time"

// OrderStatus описывает жизненный цикл заказа после оформления.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан checkout-ом и ждёт подтверждения магазином.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — магазин принял заказ.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPreparing — заказ собирается на складе.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusShipping — заказ передан в доставку.
	OrderStatusShipping OrderStatus = "shipping"
	// OrderStatusCompleted — заказ вручён и оплачен.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled — заказ отменён до отгрузки.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusReturned — покупатель вернул выполненный заказ.
	OrderStatusReturned OrderStatus = "returned"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing, OrderStatusShipping,
		OrderStatusCompleted, OrderStatusCancelled, OrderStatusReturned:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет дальнейших переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled || s == OrderStatusReturned
}

// PaymentMethod — способ оплаты, выбранный при оформлении.
type PaymentMethod string

const (
	PaymentMethodCOD          PaymentMethod = "cod"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodEWallet      PaymentMethod = "e_wallet"
)

// Valid проверяет поддерживаемые способы оплаты.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodBankTransfer, PaymentMethodCard, PaymentMethodEWallet:
		return true
	default:
		return false
	}
}

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// ShippingInfo — снимок адреса доставки на момент оформления; после создания не меняется.
type ShippingInfo struct {
	ReceiverName string
	Phone        string
	Address      string
	City         string
}

// Validate возвращает ошибки незаполненных полей доставки.
func (s ShippingInfo) Validate() []error {
	var errs []error
	if s.ReceiverName == "" {
		errs = append(errs, ErrReceiverRequired)
	}
	if s.Phone == "" {
		errs = append(errs, ErrPhoneRequired)
	}
	if s.Address == "" {
		errs = append(errs, ErrAddressRequired)
	}
	return errs
}

// OrderItem — позиция заказа с ценой, зафиксированной в момент оформления.
type OrderItem struct {
	ID             string
	ProductID      string
	ProductName    string
	Qty            int32
	UnitPriceMinor int64
	LineTotalMinor int64
	// ReservationID связывает позицию с резервом склада.
	ReservationID string
	CreatedAt     time.Time
}

// Order агрегирует состояние заказа, его позиции и расчёт цены.
type Order struct {
	ID         string
	Code       string
	CustomerID string
	// RequestKey — ключ идемпотентности checkout-запроса (может быть пустым).
	RequestKey string
	Shipping   ShippingInfo
	Items      []OrderItem
	Currency   string

	SubtotalMinor          int64
	ShippingFeeMinor       int64
	PromotionDiscountMinor int64
	LoyaltyDiscountMinor   int64
	TotalMinor             int64

	PromotionID           string
	PromotionCode         string
	LoyaltyPointsRedeemed int64

	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	Status        OrderStatus
	Note          string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time

	ConfirmedAt *time.Time
	PreparedAt  *time.Time
	ShippedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
	ReturnedAt  *time.Time
}

// DiscountMinor возвращает суммарную скидку по заказу.
func (o *Order) DiscountMinor() int64 {
	return o.PromotionDiscountMinor + o.LoyaltyDiscountMinor
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	errs = append(errs, o.Shipping.Validate()...)
	if !o.PaymentMethod.Valid() {
		errs = append(errs, ErrPaymentMethodInvalid)
	}
	if o.SubtotalMinor < 0 || o.ShippingFeeMinor < 0 || o.PromotionDiscountMinor < 0 || o.LoyaltyDiscountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrInvalidTotal)
	}

	// Сверяем subtotal с суммой позиций и total с формулой цены.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrAmountNegative)
		}
		if item.LineTotalMinor != int64(item.Qty)*item.UnitPriceMinor {
			errs = append(errs, ErrAmountMismatch)
		}
		calc += item.LineTotalMinor
	}
	if calc != o.SubtotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}
	if o.TotalMinor != o.SubtotalMinor+o.ShippingFeeMinor-o.PromotionDiscountMinor-o.LoyaltyDiscountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// StampLifecycle проставляет отметку времени для статуса; каждая отметка ставится один раз.
func (o *Order) StampLifecycle(status OrderStatus, at time.Time) {
	set := func(field **time.Time) {
		if *field == nil {
			t := at
			*field = &t
		}
	}
	switch status {
	case OrderStatusConfirmed:
		set(&o.ConfirmedAt)
	case OrderStatusPreparing:
		set(&o.PreparedAt)
	case OrderStatusShipping:
		set(&o.ShippedAt)
	case OrderStatusCompleted:
		set(&o.CompletedAt)
	case OrderStatusCancelled:
		set(&o.CancelledAt)
	case OrderStatusReturned:
		set(&o.ReturnedAt)
	}
}

// StatusHistory — неизменяемая запись журнала переходов статуса заказа.
type StatusHistory struct {
	ID        string
	OrderID   string
	OldStatus OrderStatus // пустой для начальной записи
	NewStatus OrderStatus
	ActorID   string
	ActorKind ActorKind
	Note      string
	CreatedAt time.Time
}
