package orderstate

import (
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Labeler возвращает отображаемое название статуса. Логика переходов от него не зависит.
type Labeler interface {
	Label(status domain.OrderStatus) string
}

// LabelTable — таблица названий; неизвестный статус отображается как есть.
type LabelTable map[domain.OrderStatus]string

// Label реализует Labeler.
func (t LabelTable) Label(status domain.OrderStatus) string {
	if label, ok := t[status]; ok {
		return label
	}
	return string(status)
}

// EnglishLabels — названия по умолчанию.
var EnglishLabels = LabelTable{
	domain.OrderStatusPending:   "Pending confirmation",
	domain.OrderStatusConfirmed: "Confirmed",
	domain.OrderStatusPreparing: "Preparing",
	domain.OrderStatusShipping:  "Out for delivery",
	domain.OrderStatusCompleted: "Completed",
	domain.OrderStatusCancelled: "Cancelled",
	domain.OrderStatusReturned:  "Returned",
}

// VietnameseLabels — названия для витрины на вьетнамском.
var VietnameseLabels = LabelTable{
	domain.OrderStatusPending:   "Chờ xác nhận",
	domain.OrderStatusConfirmed: "Đã xác nhận",
	domain.OrderStatusPreparing: "Đang chuẩn bị hàng",
	domain.OrderStatusShipping:  "Đang giao hàng",
	domain.OrderStatusCompleted: "Hoàn thành",
	domain.OrderStatusCancelled: "Đã hủy",
	domain.OrderStatusReturned:  "Đã trả hàng",
}

// LabelerFor выбирает таблицу по языковому тегу (en, vi, vi-VN ...).
func LabelerFor(lang string) Labeler {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(lang)), "vi") {
		return VietnameseLabels
	}
	return EnglishLabels
}
