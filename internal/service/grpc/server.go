package grpcsvc

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/orderstate"
)

const (
	idempotencyKeyHeader = "idempotency-key"
	langHeader           = "accept-language"
)

// CheckoutService реализует CheckoutServiceServer поверх checkout и машины состояний.
// Авторизация выполняется до вызова: актор в запросе считается проверенным.
type CheckoutService struct {
	checkout *checkout.Orchestrator
	orders   *orderstate.Machine
	logger   *log.Entry
}

// NewCheckoutService создаёт gRPC-сервис.
func NewCheckoutService(orchestrator *checkout.Orchestrator, machine *orderstate.Machine, logger *log.Entry) *CheckoutService {
	if logger == nil {
		logger = log.WithField("component", "checkout-grpc")
	}
	return &CheckoutService{
		checkout: orchestrator,
		orders:   machine,
		logger:   logger,
	}
}

// Checkout оформляет заказ.
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	requestKey := strings.TrimSpace(req.RequestKey)
	if requestKey == "" {
		requestKey = readMetadata(ctx, idempotencyKeyHeader)
	}

	result, err := s.checkout.Checkout(ctx, checkout.Request{
		CustomerID:    req.CustomerID,
		RequestKey:    requestKey,
		Lines:         toCheckoutLines(req.Lines),
		Shipping:      toShippingInfo(req.Shipping),
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		PromotionCode: req.PromotionCode,
		LoyaltyPoints: req.LoyaltyPoints,
		Note:          req.Note,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	labels := s.labeler(ctx, req.Lang)
	return &CheckoutResponse{
		Order:    toOrder(result.Order, labels),
		Replayed: result.Replayed,
	}, nil
}

// ValidatePromotion рассчитывает скидки корзины без резервирования и без расхода лимитов.
func (s *CheckoutService) ValidatePromotion(ctx context.Context, req *ValidatePromotionRequest) (*ValidatePromotionResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if strings.TrimSpace(req.PromotionCode) == "" {
		return nil, toStatus(domain.Reject(domain.ErrCodeNotFound, "promotion code is required"))
	}

	quote, err := s.checkout.Preview(ctx, checkout.Request{
		CustomerID:    req.CustomerID,
		Lines:         toCheckoutLines(req.Lines),
		Shipping:      toShippingInfo(req.Shipping),
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		PromotionCode: req.PromotionCode,
		LoyaltyPoints: req.LoyaltyPoints,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &ValidatePromotionResponse{
		SubtotalMinor:        quote.SubtotalMinor,
		ShippingFeeMinor:     quote.ShippingFeeMinor,
		DiscountMinor:        quote.PromotionDiscountMinor,
		LoyaltyPoints:        quote.LoyaltyPoints,
		LoyaltyDiscountMinor: quote.LoyaltyDiscountMinor,
		TotalMinor:           quote.TotalMinor,
	}
	if quote.Promotion != nil {
		resp.PromotionID = quote.Promotion.PromotionID
		resp.PromotionCode = quote.Promotion.Code
		resp.DiscountKind = string(quote.Promotion.Kind)
	}
	return resp, nil
}

// TransitionOrderStatus меняет статус заказа и возвращает запись журнала.
func (s *CheckoutService) TransitionOrderStatus(ctx context.Context, req *TransitionOrderStatusRequest) (*TransitionOrderStatusResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	actorKind := domain.ActorKind(req.ActorKind)
	if actorKind == "" {
		actorKind = domain.ActorEmployee
	}
	change, err := s.orders.Transition(ctx, orderstate.TransitionRequest{
		OrderID: req.OrderID,
		From:    domain.OrderStatus(req.ExpectedStatus),
		To:      domain.OrderStatus(req.NewStatus),
		Actor: domain.Actor{
			ID:   req.ActorID,
			Kind: actorKind,
			Role: req.ActorRole,
		},
		Note: req.Note,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	labels := s.labeler(ctx, req.Lang)
	return &TransitionOrderStatusResponse{
		Entry:   toHistoryEntry(change.Entry, labels),
		Order:   toOrder(change.Order, labels),
		Applied: change.Applied,
	}, nil
}

// GetOrder возвращает заказ.
func (s *CheckoutService) GetOrder(ctx context.Context, req *GetOrderRequest) (*GetOrderResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, toStatus(domain.ErrOrderIDRequired)
	}
	order, err := s.orders.Order(ctx, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetOrderResponse{Order: toOrder(order, s.labeler(ctx, req.Lang))}, nil
}

// GetOrderHistory возвращает журнал переходов заказа.
func (s *CheckoutService) GetOrderHistory(ctx context.Context, req *GetOrderHistoryRequest) (*GetOrderHistoryResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, toStatus(domain.ErrOrderIDRequired)
	}
	history, err := s.orders.History(ctx, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}

	labels := s.labeler(ctx, req.Lang)
	entries := make([]HistoryEntry, 0, len(history))
	for _, entry := range history {
		entries = append(entries, toHistoryEntry(entry, labels))
	}
	return &GetOrderHistoryResponse{Entries: entries}, nil
}

// labeler выбирает язык: поле запроса, затем accept-language из метаданных.
func (s *CheckoutService) labeler(ctx context.Context, lang string) orderstate.Labeler {
	if lang == "" {
		lang = readMetadata(ctx, langHeader)
	}
	return orderstate.LabelerFor(lang)
}

func readMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, value := range md.Get(key) {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func toCheckoutLines(lines []Line) []checkout.Line {
	result := make([]checkout.Line, 0, len(lines))
	for _, line := range lines {
		result = append(result, checkout.Line{
			ProductID:              line.ProductID,
			Qty:                    line.Qty,
			ExpectedUnitPriceMinor: line.ExpectedUnitPriceMinor,
		})
	}
	return result
}

func toShippingInfo(s Shipping) domain.ShippingInfo {
	return domain.ShippingInfo{
		ReceiverName: strings.TrimSpace(s.ReceiverName),
		Phone:        strings.TrimSpace(s.Phone),
		Address:      strings.TrimSpace(s.Address),
		City:         strings.TrimSpace(s.City),
	}
}

func toOrder(order domain.Order, labels orderstate.Labeler) Order {
	items := make([]OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItem{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
			LineTotalMinor: item.LineTotalMinor,
		})
	}

	return Order{
		OrderID:               order.ID,
		OrderCode:             order.Code,
		CustomerID:            order.CustomerID,
		Currency:              order.Currency,
		SubtotalMinor:         order.SubtotalMinor,
		ShippingFeeMinor:      order.ShippingFeeMinor,
		DiscountMinor:         order.PromotionDiscountMinor,
		LoyaltyDiscountMinor:  order.LoyaltyDiscountMinor,
		TotalMinor:            order.TotalMinor,
		PromotionCode:         order.PromotionCode,
		LoyaltyPointsRedeemed: order.LoyaltyPointsRedeemed,
		Status:                string(order.Status),
		StatusLabel:           labels.Label(order.Status),
		PaymentMethod:         string(order.PaymentMethod),
		PaymentStatus:         string(order.PaymentStatus),
		Shipping: Shipping{
			ReceiverName: order.Shipping.ReceiverName,
			Phone:        order.Shipping.Phone,
			Address:      order.Shipping.Address,
			City:         order.Shipping.City,
		},
		Items:       items,
		Version:     order.Version,
		CreatedAt:   order.CreatedAt,
		ConfirmedAt: order.ConfirmedAt,
		PreparedAt:  order.PreparedAt,
		ShippedAt:   order.ShippedAt,
		CompletedAt: order.CompletedAt,
		CancelledAt: order.CancelledAt,
		ReturnedAt:  order.ReturnedAt,
	}
}

func toHistoryEntry(entry domain.StatusHistory, labels orderstate.Labeler) HistoryEntry {
	return HistoryEntry{
		ID:             entry.ID,
		OrderID:        entry.OrderID,
		OldStatus:      string(entry.OldStatus),
		NewStatus:      string(entry.NewStatus),
		NewStatusLabel: labels.Label(entry.NewStatus),
		ActorID:        entry.ActorID,
		ActorKind:      string(entry.ActorKind),
		Note:           entry.Note,
		CreatedAt:      entry.CreatedAt,
	}
}

var _ CheckoutServiceServer = (*CheckoutService)(nil)
