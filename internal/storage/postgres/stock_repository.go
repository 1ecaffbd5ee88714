package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type stockRepository struct {
	q queryer
}

func (r *stockRepository) Get(ctx context.Context, productID string) (domain.StockRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	record, err := scanStock(r.q.QueryRowContext(ctx, `
		SELECT product_id, available, reorder_threshold, updated_at
		FROM stock
		WHERE product_id = $1
	`, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StockRecord{}, errors.Wrapf(domain.ErrProductNotFound, "stock for product %s", productID)
	}
	if err != nil {
		return domain.StockRecord{}, errors.Wrap(err, "get stock")
	}
	return record, nil
}

// Decrement списывает остаток одним условным UPDATE: строка меняется только при available >= qty.
func (r *stockRepository) Decrement(ctx context.Context, productID string, qty int64) (domain.StockRecord, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	record, err := scanStock(r.q.QueryRowContext(queryCtx, `
		UPDATE stock
		SET available = available - $2,
		    updated_at = $3
		WHERE product_id = $1
		  AND available >= $2
		RETURNING product_id, available, reorder_threshold, updated_at
	`, productID, qty, time.Now().UTC()))
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.StockRecord{}, errors.Wrap(err, "decrement stock")
	}

	current, getErr := r.Get(ctx, productID)
	if getErr != nil {
		return domain.StockRecord{}, getErr
	}
	return current, domain.Reject(domain.ErrInsufficientStock,
		"product %s: requested %d, available %d", productID, qty, current.Available)
}

func (r *stockRepository) Increment(ctx context.Context, productID string, qty int64) (domain.StockRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	record, err := scanStock(r.q.QueryRowContext(ctx, `
		UPDATE stock
		SET available = available + $2,
		    updated_at = $3
		WHERE product_id = $1
		RETURNING product_id, available, reorder_threshold, updated_at
	`, productID, qty, time.Now().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StockRecord{}, errors.Wrapf(domain.ErrProductNotFound, "stock for product %s", productID)
	}
	if err != nil {
		return domain.StockRecord{}, errors.Wrap(err, "increment stock")
	}
	return record, nil
}

func (r *stockRepository) Put(ctx context.Context, record domain.StockRecord) error {
	if record.ProductID == "" {
		return domain.ErrProductRequired
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO stock (product_id, available, reorder_threshold, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id) DO UPDATE
		SET available = EXCLUDED.available,
		    reorder_threshold = EXCLUDED.reorder_threshold,
		    updated_at = EXCLUDED.updated_at
	`, record.ProductID, record.Available, record.ReorderThreshold, record.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "put stock")
	}
	return nil
}

func scanStock(row *sql.Row) (domain.StockRecord, error) {
	var record domain.StockRecord
	if err := row.Scan(&record.ProductID, &record.Available, &record.ReorderThreshold, &record.UpdatedAt); err != nil {
		return domain.StockRecord{}, err
	}
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

type reservationRepository struct {
	q queryer
}

func (r *reservationRepository) Create(ctx context.Context, reservation domain.Reservation) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO stock_reservations (id, order_id, product_id, qty, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		reservation.ID, reservation.OrderID, reservation.ProductID, reservation.Qty,
		string(reservation.Status), reservation.CreatedAt.UTC(), reservation.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return errors.Wrapf(domain.ErrDuplicate, "reservation %s", reservation.ID)
	}
	if err != nil {
		return errors.Wrap(err, "insert reservation")
	}
	return nil
}

func (r *reservationRepository) Get(ctx context.Context, id string) (domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		reservation domain.Reservation
		status      string
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, order_id, product_id, qty, status, created_at, updated_at
		FROM stock_reservations
		WHERE id = $1
	`, id).Scan(
		&reservation.ID, &reservation.OrderID, &reservation.ProductID, &reservation.Qty,
		&status, &reservation.CreatedAt, &reservation.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reservation{}, errors.Wrapf(domain.ErrReservationNotFound, "reservation %s", id)
	}
	if err != nil {
		return domain.Reservation{}, errors.Wrap(err, "get reservation")
	}
	reservation.Status = domain.ReservationStatus(status)
	return normalizeReservation(reservation), nil
}

func (r *reservationRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, product_id, qty, status, created_at, updated_at
		FROM stock_reservations
		WHERE order_id = $1
		ORDER BY product_id, id
	`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list reservations")
	}
	defer rows.Close()

	result := make([]domain.Reservation, 0)
	for rows.Next() {
		var (
			reservation domain.Reservation
			status      string
		)
		if err := rows.Scan(
			&reservation.ID, &reservation.OrderID, &reservation.ProductID, &reservation.Qty,
			&status, &reservation.CreatedAt, &reservation.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan reservation")
		}
		reservation.Status = domain.ReservationStatus(status)
		result = append(result, normalizeReservation(reservation))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate reservations")
	}
	return result, nil
}

// Transition меняет статус резерва только из from; повторный вызов возвращает false без ошибки.
func (r *reservationRepository) Transition(ctx context.Context, id string, from, to domain.ReservationStatus, at time.Time) (bool, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(queryCtx, `
		UPDATE stock_reservations
		SET status = $3,
		    updated_at = $4
		WHERE id = $1
		  AND status = $2
	`, id, string(from), string(to), at.UTC())
	if err != nil {
		return false, errors.Wrap(err, "transition reservation")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected for reservation")
	}
	if affected > 0 {
		return true, nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func normalizeReservation(reservation domain.Reservation) domain.Reservation {
	reservation.CreatedAt = reservation.CreatedAt.UTC()
	reservation.UpdatedAt = reservation.UpdatedAt.UTC()
	return reservation
}

var (
	_ domain.StockRepository       = (*stockRepository)(nil)
	_ domain.ReservationRepository = (*reservationRepository)(nil)
)
