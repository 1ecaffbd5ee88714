package domain

import "time"

// StockRecord — доступный остаток товара; меняется только через StockLedger.
type StockRecord struct {
	ProductID        string
	Available        int64
	ReorderThreshold int64
	UpdatedAt        time.Time
}

// Low сообщает, что остаток на уровне порога дозаказа или ниже.
func (s StockRecord) Low() bool {
	return s.Available <= s.ReorderThreshold
}

// ReservationStatus отражает статус резервирования товара на складе.
type ReservationStatus string

const (
	// ReservationStatusReserved — остаток уже уменьшен, резерв ещё не финализирован.
	ReservationStatusReserved ReservationStatus = "reserved"
	// ReservationStatusCommitted — резерв закреплён за созданным заказом.
	ReservationStatusCommitted ReservationStatus = "committed"
	// ReservationStatusReleased — количество возвращено в остаток.
	ReservationStatusReleased ReservationStatus = "released"
)

// Reservation — токен резервирования: кто, что и сколько держит.
type Reservation struct {
	ID        string
	OrderID   string
	ProductID string
	Qty       int32
	Status    ReservationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет, корректно ли заполнены ключевые поля резервирования.
func (r *Reservation) Validate() []error {
	var errs []error

	if r.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if r.ProductID == "" {
		errs = append(errs, ErrProductRequired)
	}
	if r.Qty <= 0 {
		errs = append(errs, ErrReservationQtyInvalid)
	}

	return errs
}
