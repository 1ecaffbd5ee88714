package shipping

import (
	"context"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestFlatRate_Quote(t *testing.T) {
	rate := FlatRate{BaseFeeMinor: 30000, PerKgFeeMinor: 5000, FreeThresholdMinor: 2000000}

	tests := []struct {
		name  string
		lines []domain.PricedLine
		want  int64
	}{
		{
			name:  "light parcel pays base fee",
			lines: []domain.PricedLine{{Qty: 2, WeightGrams: 400, LineTotalMinor: 100000}},
			want:  30000,
		},
		{
			name:  "every started kilogram above the first",
			lines: []domain.PricedLine{{Qty: 1, WeightGrams: 2100, LineTotalMinor: 100000}},
			want:  30000 + 2*5000,
		},
		{
			name:  "free above threshold",
			lines: []domain.PricedLine{{Qty: 1, WeightGrams: 9000, LineTotalMinor: 2000000}},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rate.Quote(context.Background(), domain.ShippingInfo{}, tt.lines)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestFlatRate_Validate(t *testing.T) {
	if err := DefaultFlatRate().Validate(); err != nil {
		t.Fatalf("default rate must be valid: %v", err)
	}
	if err := (FlatRate{BaseFeeMinor: -1}).Validate(); err == nil {
		t.Fatalf("expected error for negative fee")
	}
}
