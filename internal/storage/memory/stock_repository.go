package memory

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type stockRepo struct {
	tx *memTx
}

func (r *stockRepo) Get(_ context.Context, productID string) (domain.StockRecord, error) {
	record, ok := r.tx.s.stock[productID]
	if !ok {
		return domain.StockRecord{}, errors.Wrapf(domain.ErrProductNotFound, "stock for product %s", productID)
	}
	return record, nil
}

func (r *stockRepo) Decrement(_ context.Context, productID string, qty int64) (domain.StockRecord, error) {
	if err := r.tx.writable(); err != nil {
		return domain.StockRecord{}, err
	}
	record, ok := r.tx.s.stock[productID]
	if !ok {
		return domain.StockRecord{}, errors.Wrapf(domain.ErrProductNotFound, "stock for product %s", productID)
	}
	if record.Available < qty {
		return record, domain.Reject(domain.ErrInsufficientStock,
			"product %s: requested %d, available %d", productID, qty, record.Available)
	}
	record.Available -= qty
	record.UpdatedAt = time.Now().UTC()
	put(r.tx, r.tx.s.stock, productID, record)
	return record, nil
}

func (r *stockRepo) Increment(_ context.Context, productID string, qty int64) (domain.StockRecord, error) {
	if err := r.tx.writable(); err != nil {
		return domain.StockRecord{}, err
	}
	record, ok := r.tx.s.stock[productID]
	if !ok {
		return domain.StockRecord{}, errors.Wrapf(domain.ErrProductNotFound, "stock for product %s", productID)
	}
	record.Available += qty
	record.UpdatedAt = time.Now().UTC()
	put(r.tx, r.tx.s.stock, productID, record)
	return record, nil
}

func (r *stockRepo) Put(_ context.Context, record domain.StockRecord) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if record.ProductID == "" {
		return domain.ErrProductRequired
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	put(r.tx, r.tx.s.stock, record.ProductID, record)
	return nil
}

type reservationRepo struct {
	tx *memTx
}

func (r *reservationRepo) Create(_ context.Context, reservation domain.Reservation) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if _, exists := r.tx.s.reservations[reservation.ID]; exists {
		return errors.Wrapf(domain.ErrDuplicate, "reservation %s", reservation.ID)
	}
	put(r.tx, r.tx.s.reservations, reservation.ID, reservation)
	return nil
}

func (r *reservationRepo) Get(_ context.Context, id string) (domain.Reservation, error) {
	reservation, ok := r.tx.s.reservations[id]
	if !ok {
		return domain.Reservation{}, errors.Wrapf(domain.ErrReservationNotFound, "reservation %s", id)
	}
	return reservation, nil
}

func (r *reservationRepo) ListByOrder(_ context.Context, orderID string) ([]domain.Reservation, error) {
	result := make([]domain.Reservation, 0)
	for _, reservation := range r.tx.s.reservations {
		if reservation.OrderID == orderID {
			result = append(result, reservation)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ProductID < result[j].ProductID
	})
	return result, nil
}

func (r *reservationRepo) Transition(_ context.Context, id string, from, to domain.ReservationStatus, at time.Time) (bool, error) {
	if err := r.tx.writable(); err != nil {
		return false, err
	}
	reservation, ok := r.tx.s.reservations[id]
	if !ok {
		return false, errors.Wrapf(domain.ErrReservationNotFound, "reservation %s", id)
	}
	if reservation.Status != from {
		return false, nil
	}
	reservation.Status = to
	reservation.UpdatedAt = at
	put(r.tx, r.tx.s.reservations, id, reservation)
	return true, nil
}

var (
	_ domain.StockRepository       = (*stockRepo)(nil)
	_ domain.ReservationRepository = (*reservationRepo)(nil)
)
