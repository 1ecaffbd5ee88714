package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const customerColumns = `id, name, tier, loyalty_points, total_spent_minor, total_orders, created_at, updated_at`

type customerRepository struct {
	q queryer
}

func (r *customerRepository) Create(ctx context.Context, customer domain.Customer) error {
	now := time.Now().UTC()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}
	customer.UpdatedAt = now
	if customer.Tier == "" {
		customer.Tier = domain.TierBronze
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		customer.ID, customer.Name, string(customer.Tier), customer.LoyaltyPoints,
		customer.TotalSpentMinor, customer.TotalOrders, customer.CreatedAt.UTC(), customer.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return errors.Wrapf(domain.ErrDuplicate, "customer %s", customer.ID)
	}
	if err != nil {
		return errors.Wrap(err, "insert customer")
	}
	return nil
}

func (r *customerRepository) Get(ctx context.Context, id string) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	customer, err := scanCustomer(r.q.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, errors.Wrapf(domain.ErrCustomerNotFound, "customer %s", id)
	}
	if err != nil {
		return domain.Customer{}, errors.Wrap(err, "get customer")
	}
	return customer, nil
}

// AdjustPoints меняет баланс условным UPDATE: списание проходит, только если баланс не уйдёт в минус.
func (r *customerRepository) AdjustPoints(ctx context.Context, id string, delta int64) (int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var balance int64
	err := r.q.QueryRowContext(queryCtx, `
		UPDATE customers
		SET loyalty_points = loyalty_points + $2,
		    updated_at = $3
		WHERE id = $1
		  AND loyalty_points + $2 >= 0
		RETURNING loyalty_points
	`, id, delta, time.Now().UTC()).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrap(err, "adjust loyalty points")
	}

	current, getErr := r.Get(ctx, id)
	if getErr != nil {
		return 0, getErr
	}
	return current.LoyaltyPoints, domain.Reject(domain.ErrInsufficientPoints,
		"customer %s has %d points, delta %d", id, current.LoyaltyPoints, delta)
}

func (r *customerRepository) RecordCompletedOrder(ctx context.Context, id string, amountMinor int64) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	customer, err := scanCustomer(r.q.QueryRowContext(ctx, `
		UPDATE customers
		SET total_spent_minor = total_spent_minor + $2,
		    total_orders = total_orders + 1,
		    updated_at = $3
		WHERE id = $1
		RETURNING `+customerColumns, id, amountMinor, time.Now().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, errors.Wrapf(domain.ErrCustomerNotFound, "customer %s", id)
	}
	if err != nil {
		return domain.Customer{}, errors.Wrap(err, "record completed order")
	}
	return customer, nil
}

func (r *customerRepository) SetTier(ctx context.Context, id string, tier domain.Tier) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE customers
		SET tier = $2,
		    updated_at = $3
		WHERE id = $1
	`, id, string(tier), time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "set customer tier")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected for customer")
	}
	if affected == 0 {
		return errors.Wrapf(domain.ErrCustomerNotFound, "customer %s", id)
	}
	return nil
}

func scanCustomer(row *sql.Row) (domain.Customer, error) {
	var (
		customer domain.Customer
		tier     string
	)
	if err := row.Scan(
		&customer.ID, &customer.Name, &tier, &customer.LoyaltyPoints,
		&customer.TotalSpentMinor, &customer.TotalOrders, &customer.CreatedAt, &customer.UpdatedAt,
	); err != nil {
		return domain.Customer{}, err
	}
	customer.Tier = domain.Tier(tier)
	customer.CreatedAt = customer.CreatedAt.UTC()
	customer.UpdatedAt = customer.UpdatedAt.UTC()
	return customer, nil
}

type loyaltyRepository struct {
	q queryer
}

func (r *loyaltyRepository) Append(ctx context.Context, entry domain.LoyaltyEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO loyalty_entries (id, customer_id, delta, reason, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.CustomerID, entry.Delta, string(entry.Reason), entry.OrderID, entry.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return errors.Wrapf(domain.ErrDuplicate, "loyalty entry %s", entry.ID)
	}
	if err != nil {
		return errors.Wrap(err, "append loyalty entry")
	}
	return nil
}

// List возвращает журнал в порядке записи.
func (r *loyaltyRepository) List(ctx context.Context, customerID string) ([]domain.LoyaltyEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, customer_id, delta, reason, order_id, created_at
		FROM loyalty_entries
		WHERE customer_id = $1
		ORDER BY seq
	`, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "list loyalty entries")
	}
	defer rows.Close()

	result := make([]domain.LoyaltyEntry, 0)
	for rows.Next() {
		var (
			entry  domain.LoyaltyEntry
			reason string
		)
		if err := rows.Scan(&entry.ID, &entry.CustomerID, &entry.Delta, &reason, &entry.OrderID, &entry.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan loyalty entry")
		}
		entry.Reason = domain.LoyaltyReason(reason)
		entry.CreatedAt = entry.CreatedAt.UTC()
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate loyalty entries")
	}
	return result, nil
}

var (
	_ domain.CustomerRepository = (*customerRepository)(nil)
	_ domain.LoyaltyRepository  = (*loyaltyRepository)(nil)
)
