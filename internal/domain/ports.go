package domain

import (
	"context"
	"time"
)

// StockRepository хранит остатки. Decrement и Increment атомарны относительно конкурентных вызовов.
type StockRepository interface {
	Get(ctx context.Context, productID string) (StockRecord, error)
	// Decrement уменьшает остаток только если available >= qty; иначе ErrInsufficientStock.
	Decrement(ctx context.Context, productID string, qty int64) (StockRecord, error)
	Increment(ctx context.Context, productID string, qty int64) (StockRecord, error)
	Put(ctx context.Context, record StockRecord) error
}

// ReservationRepository хранит токены резервирования.
type ReservationRepository interface {
	Create(ctx context.Context, reservation Reservation) error
	Get(ctx context.Context, id string) (Reservation, error)
	ListByOrder(ctx context.Context, orderID string) ([]Reservation, error)
	// Transition меняет статус только из from; возвращает false, если статус уже другой.
	Transition(ctx context.Context, id string, from, to ReservationStatus, at time.Time) (bool, error)
}

// PromotionRepository хранит промокоды и журнал их применений.
type PromotionRepository interface {
	Create(ctx context.Context, promotion Promotion) error
	Get(ctx context.Context, id string) (Promotion, error)
	GetByCode(ctx context.Context, code string) (Promotion, error)
	// IncrementUsage увеличивает used_count, только если лимит не исчерпан; иначе ErrGlobalLimitReached.
	IncrementUsage(ctx context.Context, id string) (Promotion, error)
	DecrementUsage(ctx context.Context, id string) error
	CountUsages(ctx context.Context, promotionID, customerID string) (int64, error)
	AddUsage(ctx context.Context, usage PromotionUsage) error
	ListUsagesByOrder(ctx context.Context, orderID string) ([]PromotionUsage, error)
	VoidUsage(ctx context.Context, usageID string, at time.Time) (bool, error)
}

// CustomerRepository хранит покупателей и баланс баллов.
type CustomerRepository interface {
	Create(ctx context.Context, customer Customer) error
	Get(ctx context.Context, id string) (Customer, error)
	// AdjustPoints атомарно меняет баланс; отрицательный итог даёт ErrInsufficientPoints.
	AdjustPoints(ctx context.Context, id string, delta int64) (int64, error)
	RecordCompletedOrder(ctx context.Context, id string, amountMinor int64) (Customer, error)
	SetTier(ctx context.Context, id string, tier Tier) error
}

// LoyaltyRepository — append-only журнал баллов.
type LoyaltyRepository interface {
	Append(ctx context.Context, entry LoyaltyEntry) error
	List(ctx context.Context, customerID string) ([]LoyaltyEntry, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrDuplicate, если код или ключ запроса заняты.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	GetByRequestKey(ctx context.Context, customerID, key string) (Order, error)
	// ListByCustomer возвращает заказы клиента с опциональным ограничением на количество.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// StatusHistoryRepository — append-only журнал переходов статуса.
type StatusHistoryRepository interface {
	Append(ctx context.Context, entry StatusHistory) error
	List(ctx context.Context, orderID string) ([]StatusHistory, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// Tx — набор репозиториев, привязанных к одной транзакции.
type Tx interface {
	Stock() StockRepository
	Reservations() ReservationRepository
	Promotions() PromotionRepository
	Customers() CustomerRepository
	Loyalty() LoyaltyRepository
	Orders() OrderRepository
	History() StatusHistoryRepository
	Outbox() OutboxRepository
}

// UnitOfWork — граница транзакции: либо применяются все изменения fn, либо ни одного.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	WithinReadOnly(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
