package orderstate

import (
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestLabelerFor(t *testing.T) {
	tests := []struct {
		lang   string
		status domain.OrderStatus
		want   string
	}{
		{"en", domain.OrderStatusShipping, "Out for delivery"},
		{"vi-VN", domain.OrderStatusCancelled, "Đã hủy"},
		{"", domain.OrderStatusPending, "Pending confirmation"},
		{"en", domain.OrderStatus("lost"), "lost"},
	}
	for _, tt := range tests {
		if got := LabelerFor(tt.lang).Label(tt.status); got != tt.want {
			t.Errorf("LabelerFor(%q).Label(%s) = %q, want %q", tt.lang, tt.status, got, tt.want)
		}
	}
}

func TestLabelTablesCoverEveryStatus(t *testing.T) {
	statuses := []domain.OrderStatus{
		domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusPreparing,
		domain.OrderStatusShipping, domain.OrderStatusCompleted, domain.OrderStatusCancelled,
		domain.OrderStatusReturned,
	}
	for _, table := range []LabelTable{EnglishLabels, VietnameseLabels} {
		for _, status := range statuses {
			if _, ok := table[status]; !ok {
				t.Errorf("missing label for %s", status)
			}
		}
	}
}
