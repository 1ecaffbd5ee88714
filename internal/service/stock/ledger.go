package stock

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Ledger владеет доступным остатком товаров: резервирует, фиксирует и возвращает количество.
// Все операции выполняются внутри транзакции вызывающего.
type Ledger struct {
	logger  *log.Entry
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewLedger создаёт StockLedger.
func NewLedger(logger *log.Entry, m *metrics.Metrics) *Ledger {
	if logger == nil {
		logger = log.WithField("component", "stock-ledger")
	}
	return &Ledger{
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Reserve атомарно уменьшает остаток и выпускает токен резервирования.
// При нехватке возвращает ошибку ErrInsufficientStock с именем товара.
func (l *Ledger) Reserve(ctx context.Context, tx domain.Tx, orderID, productID string, qty int32) (domain.Reservation, error) {
	now := l.now()
	reservation := domain.Reservation{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		ProductID: productID,
		Qty:       qty,
		Status:    domain.ReservationStatusReserved,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errs := reservation.Validate(); len(errs) > 0 {
		return domain.Reservation{}, errs[0]
	}

	after, err := tx.Stock().Decrement(ctx, productID, int64(qty))
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			l.logger.WithFields(log.Fields{
				"product_id": productID,
				"order_id":   orderID,
				"qty":        qty,
			}).Info("stock reservation rejected")
		}
		return domain.Reservation{}, err
	}

	if err := tx.Reservations().Create(ctx, reservation); err != nil {
		return domain.Reservation{}, errors.Wrapf(err, "create reservation for product %s", productID)
	}

	if err := l.emitIfCrossedLow(ctx, tx, after, int64(qty)); err != nil {
		return domain.Reservation{}, err
	}
	return reservation, nil
}

// Commit закрепляет резерв за заказом. Повторный вызов и вызов на возвращённом резерве ничего не делают.
func (l *Ledger) Commit(ctx context.Context, tx domain.Tx, reservationID string) error {
	committed, err := tx.Reservations().Transition(ctx, reservationID,
		domain.ReservationStatusReserved, domain.ReservationStatusCommitted, l.now())
	if err != nil {
		return errors.Wrapf(err, "commit reservation %s", reservationID)
	}
	if !committed {
		l.logger.WithField("reservation_id", reservationID).Debug("reservation already finalized, commit skipped")
	}
	return nil
}

// Release возвращает количество в остаток. Повторный вызов ничего не делает.
// Закреплённый резерв тоже возвращается: это путь отмены заказа.
func (l *Ledger) Release(ctx context.Context, tx domain.Tx, reservationID string) (bool, error) {
	reservation, err := tx.Reservations().Get(ctx, reservationID)
	if err != nil {
		return false, err
	}
	return l.release(ctx, tx, reservation)
}

// ReleaseOrder возвращает все ещё удерживаемые резервы заказа и сообщает их количество.
func (l *Ledger) ReleaseOrder(ctx context.Context, tx domain.Tx, orderID string) (int, error) {
	reservations, err := tx.Reservations().ListByOrder(ctx, orderID)
	if err != nil {
		return 0, errors.Wrapf(err, "list reservations of order %s", orderID)
	}

	released := 0
	for _, reservation := range reservations {
		ok, err := l.release(ctx, tx, reservation)
		if err != nil {
			return released, err
		}
		if ok {
			released++
		}
	}
	return released, nil
}

func (l *Ledger) release(ctx context.Context, tx domain.Tx, reservation domain.Reservation) (bool, error) {
	if reservation.Status == domain.ReservationStatusReleased {
		return false, nil
	}

	switched, err := tx.Reservations().Transition(ctx, reservation.ID,
		reservation.Status, domain.ReservationStatusReleased, l.now())
	if err != nil {
		return false, errors.Wrapf(err, "release reservation %s", reservation.ID)
	}
	if !switched {
		return false, nil
	}

	if _, err := tx.Stock().Increment(ctx, reservation.ProductID, int64(reservation.Qty)); err != nil {
		return false, errors.Wrapf(err, "restore stock for product %s", reservation.ProductID)
	}
	return true, nil
}

// emitIfCrossedLow ставит StockLow в outbox, только когда остаток впервые опускается до порога.
func (l *Ledger) emitIfCrossedLow(ctx context.Context, tx domain.Tx, after domain.StockRecord, qty int64) error {
	before := after.Available + qty
	if !after.Low() || before <= after.ReorderThreshold {
		return nil
	}

	l.logger.WithFields(log.Fields{
		"product_id": after.ProductID,
		"available":  after.Available,
		"threshold":  after.ReorderThreshold,
	}).Warn("stock reached reorder threshold")
	l.metrics.RecordStockLow()

	return domain.EnqueueEvent(ctx, tx.Outbox(), domain.AggregateProduct, after.ProductID, domain.EventStockLow,
		domain.StockLowEvent{
			ProductID:        after.ProductID,
			Available:        after.Available,
			ReorderThreshold: after.ReorderThreshold,
		})
}
