package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const orderColumns = `
	id, code, customer_id, request_key,
	receiver_name, receiver_phone, shipping_address, shipping_city, currency,
	subtotal_minor, shipping_fee_minor, promotion_discount_minor, loyalty_discount_minor, total_minor,
	promotion_id, promotion_code, loyalty_points_redeemed,
	payment_method, payment_status, status, note, version, created_at, updated_at,
	confirmed_at, prepared_at, shipped_at, completed_at, cancelled_at, returned_at`

type orderRepository struct {
	q queryer
}

// Create вставляет заказ и его позиции; занятый код или ключ запроса дают ErrDuplicate.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,
			$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30
		)
	`,
		order.ID, order.Code, order.CustomerID, nullString(order.RequestKey),
		order.Shipping.ReceiverName, order.Shipping.Phone, order.Shipping.Address, order.Shipping.City,
		order.Currency,
		order.SubtotalMinor, order.ShippingFeeMinor, order.PromotionDiscountMinor,
		order.LoyaltyDiscountMinor, order.TotalMinor,
		order.PromotionID, order.PromotionCode, order.LoyaltyPointsRedeemed,
		string(order.PaymentMethod), string(order.PaymentStatus), string(order.Status), order.Note,
		order.Version, order.CreatedAt.UTC(), order.UpdatedAt.UTC(),
		nullTime(order.ConfirmedAt), nullTime(order.PreparedAt), nullTime(order.ShippedAt),
		nullTime(order.CompletedAt), nullTime(order.CancelledAt), nullTime(order.ReturnedAt),
	)
	if isUniqueViolation(err) {
		return errors.Wrapf(domain.ErrDuplicate, "order %s (%s)", order.ID, order.Code)
	}
	if err != nil {
		return errors.Wrap(err, "insert order")
	}

	for i, item := range order.Items {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, position, product_id, product_name, qty,
				unit_price_minor, line_total_minor, reservation_id, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			item.ID, order.ID, i, item.ProductID, item.ProductName, item.Qty,
			item.UnitPriceMinor, item.LineTotalMinor, item.ReservationID, item.CreatedAt.UTC(),
		); err != nil {
			if isUniqueViolation(err) {
				return errors.Wrapf(domain.ErrDuplicate, "order item %s", item.ID)
			}
			return errors.Wrap(err, "insert order item")
		}
	}

	return nil
}

// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, errors.Wrapf(domain.ErrOrderNotFound, "order %s", id)
	}
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "get order")
	}

	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) GetByRequestKey(ctx context.Context, customerID, key string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.q.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE customer_id = $1
		  AND request_key = $2
	`, customerID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, errors.Wrapf(domain.ErrOrderNotFound, "request key %s", key)
	}
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "get order by request key")
	}

	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// ListByCustomer возвращает заказы клиента от новых к старым; limit<=0 снимает ограничение.
func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.q.QueryContext(ctx, query+" LIMIT $2", customerID, limit)
	} else {
		rows, err = r.q.QueryContext(ctx, query, customerID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, errors.Wrap(err, "scan order row")
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, errors.Wrap(err, "iterate order rows")
	}
	_ = rows.Close()

	// Позиции догружаем после закрытия курсора: в транзакции одно соединение.
	for i := range orders {
		if orders[i].Items, err = r.loadItems(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// Save применяет изменения заказа с проверкой версии (optimistic locking).
// Позиции, адрес и суммы после оформления не меняются и здесь не перезаписываются.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $3,
		    status = $4,
		    note = $5,
		    version = version + 1,
		    updated_at = $6,
		    confirmed_at = $7,
		    prepared_at = $8,
		    shipped_at = $9,
		    completed_at = $10,
		    cancelled_at = $11,
		    returned_at = $12
		WHERE id = $1
		  AND version = $2
	`,
		order.ID, order.Version,
		string(order.PaymentStatus), string(order.Status), order.Note, time.Now().UTC(),
		nullTime(order.ConfirmedAt), nullTime(order.PreparedAt), nullTime(order.ShippedAt),
		nullTime(order.CompletedAt), nullTime(order.CancelledAt), nullTime(order.ReturnedAt),
	)
	if err != nil {
		return errors.Wrap(err, "update order")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected > 0 {
		return nil
	}

	var stored int64
	err = r.q.QueryRowContext(ctx, `SELECT version FROM orders WHERE id = $1`, order.ID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(domain.ErrOrderNotFound, "order %s", order.ID)
	}
	if err != nil {
		return errors.Wrap(err, "check order version")
	}
	return errors.Wrapf(domain.ErrOrderVersionConflict,
		"order %s: stored version %d, got %d", order.ID, stored, order.Version)
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, product_id, product_name, qty, unit_price_minor, line_total_minor, reservation_id, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "load order items")
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.ProductID, &item.ProductName, &item.Qty,
			&item.UnitPriceMinor, &item.LineTotalMinor, &item.ReservationID, &item.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan order item")
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate order items")
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                                domain.Order
		requestKey                           sql.NullString
		paymentMethod, paymentStatus, status string
		confirmed, prepared, shipped         sql.NullTime
		completed, cancelled, returned       sql.NullTime
	)
	if err := row.Scan(
		&order.ID, &order.Code, &order.CustomerID, &requestKey,
		&order.Shipping.ReceiverName, &order.Shipping.Phone, &order.Shipping.Address, &order.Shipping.City,
		&order.Currency,
		&order.SubtotalMinor, &order.ShippingFeeMinor, &order.PromotionDiscountMinor,
		&order.LoyaltyDiscountMinor, &order.TotalMinor,
		&order.PromotionID, &order.PromotionCode, &order.LoyaltyPointsRedeemed,
		&paymentMethod, &paymentStatus, &status, &order.Note,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
		&confirmed, &prepared, &shipped, &completed, &cancelled, &returned,
	); err != nil {
		return domain.Order{}, err
	}

	order.RequestKey = requestKey.String
	order.PaymentMethod = domain.PaymentMethod(paymentMethod)
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	order.ConfirmedAt = timePtr(confirmed)
	order.PreparedAt = timePtr(prepared)
	order.ShippedAt = timePtr(shipped)
	order.CompletedAt = timePtr(completed)
	order.CancelledAt = timePtr(cancelled)
	order.ReturnedAt = timePtr(returned)
	return order, nil
}

type historyRepository struct {
	q queryer
}

func (r *historyRepository) Append(ctx context.Context, entry domain.StatusHistory) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO order_status_history (id, order_id, old_status, new_status, actor_id, actor_kind, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		entry.ID, entry.OrderID, string(entry.OldStatus), string(entry.NewStatus),
		entry.ActorID, string(entry.ActorKind), entry.Note, entry.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return errors.Wrapf(domain.ErrDuplicate, "status history %s", entry.ID)
	}
	if err != nil {
		return errors.Wrap(err, "append status history")
	}
	return nil
}

// List возвращает журнал переходов в порядке записи.
func (r *historyRepository) List(ctx context.Context, orderID string) ([]domain.StatusHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, old_status, new_status, actor_id, actor_kind, note, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY seq
	`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list status history")
	}
	defer rows.Close()

	result := make([]domain.StatusHistory, 0)
	for rows.Next() {
		var (
			entry                      domain.StatusHistory
			oldStatus, newStatus, kind string
		)
		if err := rows.Scan(
			&entry.ID, &entry.OrderID, &oldStatus, &newStatus,
			&entry.ActorID, &kind, &entry.Note, &entry.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan status history")
		}
		entry.OldStatus = domain.OrderStatus(oldStatus)
		entry.NewStatus = domain.OrderStatus(newStatus)
		entry.ActorKind = domain.ActorKind(kind)
		entry.CreatedAt = entry.CreatedAt.UTC()
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate status history")
	}
	return result, nil
}

var (
	_ domain.OrderRepository         = (*orderRepository)(nil)
	_ domain.StatusHistoryRepository = (*historyRepository)(nil)
)
