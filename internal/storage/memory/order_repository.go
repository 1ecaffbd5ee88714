package memory

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type orderRepo struct {
	tx *memTx
}

// Create сохраняет новый заказ, если ID, код и ключ запроса ещё не заняты.
func (r *orderRepo) Create(_ context.Context, order domain.Order) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	s := r.tx.s
	if _, exists := s.orders[order.ID]; exists {
		return errors.Wrapf(domain.ErrDuplicate, "order %s", order.ID)
	}
	if _, exists := s.orderCodes[order.Code]; exists && order.Code != "" {
		return errors.Wrapf(domain.ErrDuplicate, "order code %s", order.Code)
	}
	if order.RequestKey != "" {
		key := requestKey(order.CustomerID, order.RequestKey)
		if _, exists := s.requestKeys[key]; exists {
			return errors.Wrapf(domain.ErrDuplicate, "request key %s", order.RequestKey)
		}
		put(r.tx, s.requestKeys, key, order.ID)
	}
	if order.Code != "" {
		put(r.tx, s.orderCodes, order.Code, order.ID)
	}
	put(r.tx, s.orders, order.ID, cloneOrder(order))
	return nil
}

// Get возвращает копию заказа или ErrOrderNotFound.
func (r *orderRepo) Get(_ context.Context, id string) (domain.Order, error) {
	order, ok := r.tx.s.orders[id]
	if !ok {
		return domain.Order{}, errors.Wrapf(domain.ErrOrderNotFound, "order %s", id)
	}
	return cloneOrder(order), nil
}

func (r *orderRepo) GetByRequestKey(ctx context.Context, customerID, key string) (domain.Order, error) {
	id, ok := r.tx.s.requestKeys[requestKey(customerID, key)]
	if !ok {
		return domain.Order{}, errors.Wrapf(domain.ErrOrderNotFound, "request key %s", key)
	}
	return r.Get(ctx, id)
}

// ListByCustomer возвращает заказы клиента от новых к старым, ограничивая выборку limit (если >0).
func (r *orderRepo) ListByCustomer(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
	result := make([]domain.Order, 0)
	for _, order := range r.tx.s.orders {
		if order.CustomerID != customerID {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepo) Save(_ context.Context, order domain.Order) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	current, ok := r.tx.s.orders[order.ID]
	if !ok {
		return errors.Wrapf(domain.ErrOrderNotFound, "order %s", order.ID)
	}
	if current.Version != order.Version {
		return errors.Wrapf(domain.ErrOrderVersionConflict,
			"order %s: stored version %d, got %d", order.ID, current.Version, order.Version)
	}
	order.Version++
	order.UpdatedAt = time.Now().UTC()
	put(r.tx, r.tx.s.orders, order.ID, cloneOrder(order))
	return nil
}

type historyRepo struct {
	tx *memTx
}

func (r *historyRepo) Append(_ context.Context, entry domain.StatusHistory) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	appendTo(r.tx, r.tx.s.history, entry.OrderID, entry)
	return nil
}

func (r *historyRepo) List(_ context.Context, orderID string) ([]domain.StatusHistory, error) {
	entries := r.tx.s.history[orderID]
	result := make([]domain.StatusHistory, len(entries))
	copy(result, entries)
	return result, nil
}

func requestKey(customerID, key string) string {
	return customerID + "\x00" + key
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	o.ConfirmedAt = cloneTime(o.ConfirmedAt)
	o.PreparedAt = cloneTime(o.PreparedAt)
	o.ShippedAt = cloneTime(o.ShippedAt)
	o.CompletedAt = cloneTime(o.CompletedAt)
	o.CancelledAt = cloneTime(o.CancelledAt)
	o.ReturnedAt = cloneTime(o.ReturnedAt)
	return o
}

var (
	_ domain.OrderRepository         = (*orderRepo)(nil)
	_ domain.StatusHistoryRepository = (*historyRepo)(nil)
)
