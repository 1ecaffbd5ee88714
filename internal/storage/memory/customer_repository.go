package memory

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type customerRepo struct {
	tx *memTx
}

func (r *customerRepo) Create(_ context.Context, customer domain.Customer) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if _, exists := r.tx.s.customers[customer.ID]; exists {
		return errors.Wrapf(domain.ErrDuplicate, "customer %s", customer.ID)
	}
	now := time.Now().UTC()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}
	customer.UpdatedAt = now
	if customer.Tier == "" {
		customer.Tier = domain.TierBronze
	}
	put(r.tx, r.tx.s.customers, customer.ID, customer)
	return nil
}

func (r *customerRepo) Get(_ context.Context, id string) (domain.Customer, error) {
	customer, ok := r.tx.s.customers[id]
	if !ok {
		return domain.Customer{}, errors.Wrapf(domain.ErrCustomerNotFound, "customer %s", id)
	}
	return customer, nil
}

func (r *customerRepo) AdjustPoints(_ context.Context, id string, delta int64) (int64, error) {
	if err := r.tx.writable(); err != nil {
		return 0, err
	}
	customer, ok := r.tx.s.customers[id]
	if !ok {
		return 0, errors.Wrapf(domain.ErrCustomerNotFound, "customer %s", id)
	}
	if customer.LoyaltyPoints+delta < 0 {
		return customer.LoyaltyPoints, domain.Reject(domain.ErrInsufficientPoints,
			"customer %s has %d points, delta %d", id, customer.LoyaltyPoints, delta)
	}
	customer.LoyaltyPoints += delta
	customer.UpdatedAt = time.Now().UTC()
	put(r.tx, r.tx.s.customers, id, customer)
	return customer.LoyaltyPoints, nil
}

func (r *customerRepo) RecordCompletedOrder(_ context.Context, id string, amountMinor int64) (domain.Customer, error) {
	if err := r.tx.writable(); err != nil {
		return domain.Customer{}, err
	}
	customer, ok := r.tx.s.customers[id]
	if !ok {
		return domain.Customer{}, errors.Wrapf(domain.ErrCustomerNotFound, "customer %s", id)
	}
	customer.TotalSpentMinor += amountMinor
	customer.TotalOrders++
	customer.UpdatedAt = time.Now().UTC()
	put(r.tx, r.tx.s.customers, id, customer)
	return customer, nil
}

func (r *customerRepo) SetTier(_ context.Context, id string, tier domain.Tier) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	customer, ok := r.tx.s.customers[id]
	if !ok {
		return errors.Wrapf(domain.ErrCustomerNotFound, "customer %s", id)
	}
	customer.Tier = tier
	customer.UpdatedAt = time.Now().UTC()
	put(r.tx, r.tx.s.customers, id, customer)
	return nil
}

type loyaltyRepo struct {
	tx *memTx
}

func (r *loyaltyRepo) Append(_ context.Context, entry domain.LoyaltyEntry) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	appendTo(r.tx, r.tx.s.loyalty, entry.CustomerID, entry)
	return nil
}

func (r *loyaltyRepo) List(_ context.Context, customerID string) ([]domain.LoyaltyEntry, error) {
	entries := r.tx.s.loyalty[customerID]
	result := make([]domain.LoyaltyEntry, len(entries))
	copy(result, entries)
	return result, nil
}

var (
	_ domain.CustomerRepository = (*customerRepo)(nil)
	_ domain.LoyaltyRepository  = (*loyaltyRepo)(nil)
)
