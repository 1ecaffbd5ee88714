package domain

import "github.com/cockroachdb/errors"

// ErrorKind классифицирует ошибку для внешнего API: пара (kind, reason).
type ErrorKind string

const (
	// KindValidation — запрос некорректен, ни один ledger не затронут.
	KindValidation ErrorKind = "validation"
	// KindBusiness — нарушение бизнес-правила, повтор без изменения состояния бессмысленен.
	KindBusiness ErrorKind = "business"
	// KindNotFound — запрошенная сущность отсутствует.
	KindNotFound ErrorKind = "not_found"
	// KindConflict — конкурентный конфликт, безопасно повторить один раз.
	KindConflict ErrorKind = "conflict"
	// KindInternal — инфраструктурный сбой, операция откатывается целиком.
	KindInternal ErrorKind = "internal"
)

// Ошибки валидации входных данных.
var (
	ErrCustomerRequired      = errors.New("customer_id is required")
	ErrItemsRequired         = errors.New("cart must contain at least one line")
	ErrProductRequired       = errors.New("product_id is required")
	ErrItemQtyInvalid        = errors.New("line qty must be greater than zero")
	ErrReceiverRequired      = errors.New("receiver name is required")
	ErrPhoneRequired         = errors.New("receiver phone is required")
	ErrAddressRequired       = errors.New("shipping address is required")
	ErrPaymentMethodInvalid  = errors.New("payment method is not supported")
	ErrOrderIDRequired       = errors.New("order_id is required")
	ErrStatusInvalid         = errors.New("order status is not supported")
	ErrActorRequired         = errors.New("actor is required")
	ErrCurrencyRequired      = errors.New("currency is required")
	ErrReservationQtyInvalid = errors.New("reservation qty must be greater than zero")
	ErrAmountNegative        = errors.New("amount must be non-negative")
	ErrAmountMismatch        = errors.New("order amounts are inconsistent")
	ErrPromotionInvalid      = errors.New("promotion definition is invalid")
)

// Бизнес-отказы; передаются клиенту как есть.
var (
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrProductUnavailable      = errors.New("product is not available for sale")
	ErrCodeNotFound            = errors.New("promotion code not found")
	ErrPromotionExpired        = errors.New("promotion expired")
	ErrPromotionNotYetStarted  = errors.New("promotion not yet started")
	ErrBelowMinimum            = errors.New("order amount below promotion minimum")
	ErrTierNotEligible         = errors.New("customer tier not eligible for promotion")
	ErrGlobalLimitReached      = errors.New("promotion usage limit reached")
	ErrPerCustomerLimitReached = errors.New("promotion per-customer limit reached")
	ErrNoEligibleItems         = errors.New("no cart items eligible for promotion")
	ErrInsufficientPoints      = errors.New("insufficient loyalty points")
	ErrInvalidPointsAmount     = errors.New("loyalty points amount is invalid")
	ErrIllegalTransition       = errors.New("illegal order status transition")
	ErrInvalidTotal            = errors.New("order total is negative")
)

// Отсутствующие сущности.
var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrCustomerNotFound    = errors.New("customer not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrPromotionNotFound   = errors.New("promotion not found")
	ErrReservationNotFound = errors.New("reservation not found")
)

// Конкурентные конфликты.
var (
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении заказа.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrStatusConflict — текущий статус заказа не совпал с ожидаемым клиентом.
	ErrStatusConflict = errors.New("order status changed concurrently")
	// ErrSerialization — хранилище отклонило транзакцию из-за гонки.
	ErrSerialization = errors.New("transaction serialization failure")
)

// Инфраструктурные ошибки.
var (
	ErrOutboxPublish = errors.New("outbox publish failed")
	ErrDuplicate     = errors.New("record already exists")
)

type classification struct {
	err  error
	kind ErrorKind
	code string
}

var classifications = []classification{
	{ErrCustomerRequired, KindValidation, "CUSTOMER_REQUIRED"},
	{ErrItemsRequired, KindValidation, "ITEMS_REQUIRED"},
	{ErrProductRequired, KindValidation, "PRODUCT_REQUIRED"},
	{ErrItemQtyInvalid, KindValidation, "QTY_INVALID"},
	{ErrReceiverRequired, KindValidation, "RECEIVER_REQUIRED"},
	{ErrPhoneRequired, KindValidation, "PHONE_REQUIRED"},
	{ErrAddressRequired, KindValidation, "ADDRESS_REQUIRED"},
	{ErrPaymentMethodInvalid, KindValidation, "PAYMENT_METHOD_INVALID"},
	{ErrOrderIDRequired, KindValidation, "ORDER_ID_REQUIRED"},
	{ErrStatusInvalid, KindValidation, "STATUS_INVALID"},
	{ErrActorRequired, KindValidation, "ACTOR_REQUIRED"},
	{ErrCurrencyRequired, KindValidation, "CURRENCY_REQUIRED"},
	{ErrReservationQtyInvalid, KindValidation, "QTY_INVALID"},
	{ErrAmountNegative, KindValidation, "AMOUNT_NEGATIVE"},
	{ErrAmountMismatch, KindValidation, "AMOUNT_MISMATCH"},
	{ErrPromotionInvalid, KindValidation, "PROMOTION_INVALID"},

	{ErrInsufficientStock, KindBusiness, "INSUFFICIENT_STOCK"},
	{ErrProductUnavailable, KindBusiness, "PRODUCT_UNAVAILABLE"},
	{ErrCodeNotFound, KindBusiness, "CODE_NOT_FOUND"},
	{ErrPromotionExpired, KindBusiness, "EXPIRED"},
	{ErrPromotionNotYetStarted, KindBusiness, "NOT_YET_STARTED"},
	{ErrBelowMinimum, KindBusiness, "BELOW_MINIMUM"},
	{ErrTierNotEligible, KindBusiness, "TIER_NOT_ELIGIBLE"},
	{ErrGlobalLimitReached, KindBusiness, "GLOBAL_LIMIT_REACHED"},
	{ErrPerCustomerLimitReached, KindBusiness, "PER_CUSTOMER_LIMIT_REACHED"},
	{ErrNoEligibleItems, KindBusiness, "NO_ELIGIBLE_ITEMS"},
	{ErrInsufficientPoints, KindBusiness, "INSUFFICIENT_POINTS"},
	{ErrInvalidPointsAmount, KindBusiness, "INVALID_AMOUNT"},
	{ErrIllegalTransition, KindBusiness, "ILLEGAL_TRANSITION"},
	{ErrInvalidTotal, KindBusiness, "INVALID_TOTAL"},

	{ErrOrderNotFound, KindNotFound, "ORDER_NOT_FOUND"},
	{ErrCustomerNotFound, KindNotFound, "CUSTOMER_NOT_FOUND"},
	{ErrProductNotFound, KindNotFound, "PRODUCT_NOT_FOUND"},
	{ErrPromotionNotFound, KindNotFound, "PROMOTION_NOT_FOUND"},
	{ErrReservationNotFound, KindNotFound, "RESERVATION_NOT_FOUND"},

	{ErrOrderVersionConflict, KindConflict, "VERSION_CONFLICT"},
	{ErrStatusConflict, KindConflict, "STATUS_CONFLICT"},
	{ErrSerialization, KindConflict, "SERIALIZATION_FAILURE"},
}

// Reject строит детальную ошибку и помечает её sentinel-ом, чтобы работал errors.Is.
func Reject(sentinel error, format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), sentinel)
}

// KindOf возвращает класс ошибки; неизвестные ошибки считаются внутренними.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, c := range classifications {
		if errors.Is(err, c.err) {
			return c.kind
		}
	}
	return KindInternal
}

// CodeOf возвращает стабильный машинный код ошибки.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range classifications {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}

// IsRetryable сообщает, можно ли автоматически повторить операцию со свежим состоянием.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConflict
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
