package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

// Типы событий, которые ядро публикует для внешнего сервиса уведомлений.
const (
	EventOrderCreated         = "OrderCreated"
	EventOrderStatusChanged   = "OrderStatusChanged"
	EventOrderCancelled       = "OrderCancelled"
	EventOrderCompleted       = "OrderCompleted"
	EventStockLow             = "StockLow"
	EventLoyaltyPointsEarned  = "LoyaltyPointsEarned"
	EventCustomerTierUpgraded = "CustomerTierUpgraded"
)

// Типы агрегатов в outbox.
const (
	AggregateOrder    = "order"
	AggregateProduct  = "product"
	AggregateCustomer = "customer"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// NewOutboxMessage сериализует payload в JSON-сообщение outbox.
func NewOutboxMessage(aggregateType, aggregateID, eventType string, payload interface{}) (OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, errors.Wrapf(err, "marshal %s payload", eventType)
	}
	return OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
	}, nil
}

// EnqueueEvent сериализует payload и ставит событие в outbox текущей транзакции.
func EnqueueEvent(ctx context.Context, repo OutboxRepository, aggregateType, aggregateID, eventType string, payload interface{}) error {
	msg, err := NewOutboxMessage(aggregateType, aggregateID, eventType, payload)
	if err != nil {
		return err
	}
	if _, err := repo.Enqueue(ctx, msg); err != nil {
		return errors.Wrapf(err, "enqueue %s", eventType)
	}
	return nil
}

// OrderCreatedEvent — payload события OrderCreated.
type OrderCreatedEvent struct {
	OrderID    string      `json:"order_id"`
	OrderCode  string      `json:"order_code"`
	CustomerID string      `json:"customer_id"`
	TotalMinor int64       `json:"total_minor"`
	Currency   string      `json:"currency"`
	Status     OrderStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
}

// OrderStatusChangedEvent — payload переходов статуса (включая отмену и завершение).
type OrderStatusChangedEvent struct {
	OrderID    string      `json:"order_id"`
	OrderCode  string      `json:"order_code"`
	CustomerID string      `json:"customer_id"`
	OldStatus  OrderStatus `json:"old_status"`
	NewStatus  OrderStatus `json:"new_status"`
	ActorID    string      `json:"actor_id"`
	Note       string      `json:"note,omitempty"`
	ChangedAt  time.Time   `json:"changed_at"`
}

// StockLowEvent — payload события StockLow.
type StockLowEvent struct {
	ProductID        string `json:"product_id"`
	Available        int64  `json:"available"`
	ReorderThreshold int64  `json:"reorder_threshold"`
}

// LoyaltyPointsEarnedEvent — payload начисления баллов.
type LoyaltyPointsEarnedEvent struct {
	CustomerID string `json:"customer_id"`
	OrderID    string `json:"order_id"`
	Points     int64  `json:"points"`
	Balance    int64  `json:"balance"`
}

// CustomerTierUpgradedEvent — payload повышения уровня.
type CustomerTierUpgradedEvent struct {
	CustomerID      string `json:"customer_id"`
	OldTier         Tier   `json:"old_tier"`
	NewTier         Tier   `json:"new_tier"`
	TotalSpentMinor int64  `json:"total_spent_minor"`
}
