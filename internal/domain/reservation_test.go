package domain

import (
	"testing"
	"time"
)

func TestReservation_Validate(t *testing.T) {
	tests := []struct {
		name        string
		reservation *Reservation
		errCount    int
	}{
		{
			name: "valid reservation",
			reservation: &Reservation{
				OrderID:   "order-123",
				ProductID: "p-001",
				Qty:       5,
				Status:    ReservationStatusReserved,
				CreatedAt: time.Now(),
			},
			errCount: 0,
		},
		{
			name:        "missing order ID",
			reservation: &Reservation{ProductID: "p-001", Qty: 5},
			errCount:    1,
		},
		{
			name:        "zero quantity",
			reservation: &Reservation{OrderID: "order-123", ProductID: "p-001"},
			errCount:    1,
		},
		{
			name:        "all fields missing",
			reservation: &Reservation{Status: ReservationStatusReserved},
			errCount:    3, // orderID, productID, qty
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.reservation.Validate()
			if len(errs) != tt.errCount {
				t.Errorf("expected %d errors, got %d: %v", tt.errCount, len(errs), errs)
			}
		})
	}
}

func TestStockRecord_Low(t *testing.T) {
	if !(StockRecord{Available: 5, ReorderThreshold: 5}).Low() {
		t.Error("available equal to threshold is low")
	}
	if (StockRecord{Available: 6, ReorderThreshold: 5}).Low() {
		t.Error("available above threshold is not low")
	}
}
