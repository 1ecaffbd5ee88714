package orderstate

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/loyalty"
	"github.com/vladislavdragonenkov/storefront/internal/service/promotion"
	"github.com/vladislavdragonenkov/storefront/internal/service/stock"
)

const maxAttempts = 2

// transitions описывает допустимые переходы статусов заказа.
var transitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed: {domain.OrderStatusPreparing, domain.OrderStatusCancelled},
	domain.OrderStatusPreparing: {domain.OrderStatusShipping, domain.OrderStatusCancelled},
	domain.OrderStatusShipping:  {domain.OrderStatusCompleted},
	domain.OrderStatusCompleted: {domain.OrderStatusReturned},
}

// CanTransition сообщает, разрешён ли переход from -> to.
func CanTransition(from, to domain.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses возвращает статусы, достижимые из from одним переходом.
func NextStatuses(from domain.OrderStatus) []domain.OrderStatus {
	return append([]domain.OrderStatus(nil), transitions[from]...)
}

// TransitionRequest — запрос на смену статуса от уже авторизованного актора.
type TransitionRequest struct {
	OrderID string
	// From — статус, который видел клиент; пустое значение отключает проверку.
	From  domain.OrderStatus
	To    domain.OrderStatus
	Actor domain.Actor
	Note  string
}

// Validate проверяет поля запроса.
func (r *TransitionRequest) Validate() error {
	switch {
	case r.OrderID == "":
		return domain.ErrOrderIDRequired
	case !r.To.Valid():
		return domain.Reject(domain.ErrStatusInvalid, "unknown target status %q", r.To)
	case r.From != "" && !r.From.Valid():
		return domain.Reject(domain.ErrStatusInvalid, "unknown expected status %q", r.From)
	case r.Actor.ID == "":
		return domain.ErrActorRequired
	}
	return nil
}

// Change — итог перехода. Applied=false означает идемпотентный повтор отмены.
type Change struct {
	Order   domain.Order
	Entry   domain.StatusHistory
	Applied bool
}

// Dependencies — коллабораторы OrderStateMachine.
type Dependencies struct {
	UnitOfWork domain.UnitOfWork
	Stock      *stock.Ledger
	Promotions *promotion.Engine
	Loyalty    *loyalty.Ledger
	Logger     *log.Entry
	Metrics    *metrics.Metrics
}

// Machine управляет переходами статусов заказа и ведёт журнал истории.
type Machine struct {
	uow        domain.UnitOfWork
	stock      *stock.Ledger
	promotions *promotion.Engine
	loyalty    *loyalty.Ledger
	logger     *log.Entry
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewMachine создаёт машину состояний.
func NewMachine(deps Dependencies) (*Machine, error) {
	if deps.UnitOfWork == nil {
		return nil, errors.New("orderstate: unit of work is required")
	}
	if deps.Stock == nil || deps.Promotions == nil || deps.Loyalty == nil {
		return nil, errors.New("orderstate: stock, promotion and loyalty ledgers are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "order-state")
	}
	return &Machine{
		uow:        deps.UnitOfWork,
		stock:      deps.Stock,
		promotions: deps.Promotions,
		loyalty:    deps.Loyalty,
		logger:     logger,
		metrics:    deps.Metrics,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Transition применяет переход. Конфликт версий повторяется один раз на свежем состоянии.
func (m *Machine) Transition(ctx context.Context, req TransitionRequest) (Change, error) {
	if err := req.Validate(); err != nil {
		return Change{}, err
	}

	var (
		change Change
		err    error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		change, err = m.apply(ctx, req)
		if err == nil || !domain.IsVersionConflict(err) || attempt == maxAttempts {
			break
		}
		m.logger.WithField("order_id", req.OrderID).Warn("order version conflict, retrying transition")
	}

	fields := log.Fields{
		"order_id": req.OrderID,
		"to":       req.To,
		"actor_id": req.Actor.ID,
	}
	if err != nil {
		m.metrics.RecordTransitionRejected(domain.CodeOf(err))
		entry := m.logger.WithError(err).WithFields(fields)
		if domain.KindOf(err) == domain.KindInternal {
			entry.Error("order transition failed")
		} else {
			entry.Info("order transition rejected")
		}
		return Change{}, err
	}

	if change.Applied {
		m.metrics.RecordTransition(string(change.Entry.OldStatus), string(change.Entry.NewStatus))
		m.logger.WithFields(fields).WithField("from", change.Entry.OldStatus).Info("order status changed")
	}
	return change, nil
}

func (m *Machine) apply(ctx context.Context, req TransitionRequest) (Change, error) {
	var change Change
	err := m.uow.Within(ctx, func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.Orders().Get(ctx, req.OrderID)
		if err != nil {
			return err
		}

		// Повторная отмена не ошибка: клиенты повторяют запрос после таймаута.
		if req.To == domain.OrderStatusCancelled && order.Status == domain.OrderStatusCancelled {
			entry, err := lastEntry(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			change = Change{Order: order, Entry: entry}
			return nil
		}

		if req.From != "" && order.Status != req.From {
			return domain.Reject(domain.ErrStatusConflict,
				"order %s is %s, expected %s", order.ID, order.Status, req.From)
		}
		if !CanTransition(order.Status, req.To) {
			return domain.Reject(domain.ErrIllegalTransition,
				"order %s: %s -> %s is not allowed", order.ID, order.Status, req.To)
		}

		now := m.now()
		old := order.Status
		order.Status = req.To
		order.StampLifecycle(req.To, now)
		switch req.To {
		case domain.OrderStatusCompleted:
			order.PaymentStatus = domain.PaymentStatusPaid
		case domain.OrderStatusReturned:
			order.PaymentStatus = domain.PaymentStatusRefunded
		}

		if err := tx.Orders().Save(ctx, order); err != nil {
			return err
		}
		order.Version++

		switch req.To {
		case domain.OrderStatusCancelled:
			if err := m.compensate(ctx, tx, order); err != nil {
				return err
			}
		case domain.OrderStatusCompleted:
			if _, err := m.loyalty.RecordCompletion(ctx, tx, order.CustomerID, order.ID, order.TotalMinor); err != nil {
				return err
			}
		}

		entry := domain.StatusHistory{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			OldStatus: old,
			NewStatus: req.To,
			ActorID:   req.Actor.ID,
			ActorKind: req.Actor.Kind,
			Note:      req.Note,
			CreatedAt: now,
		}
		if err := tx.History().Append(ctx, entry); err != nil {
			return errors.Wrap(err, "append status history")
		}

		err = domain.EnqueueEvent(ctx, tx.Outbox(), domain.AggregateOrder, order.ID, eventType(req.To),
			domain.OrderStatusChangedEvent{
				OrderID:    order.ID,
				OrderCode:  order.Code,
				CustomerID: order.CustomerID,
				OldStatus:  old,
				NewStatus:  req.To,
				ActorID:    req.Actor.ID,
				Note:       req.Note,
				ChangedAt:  now,
			})
		if err != nil {
			return err
		}

		change = Change{Order: order, Entry: entry, Applied: true}
		return nil
	})
	if err != nil {
		return Change{}, err
	}
	return change, nil
}

// compensate отменяет побочные эффекты checkout: склад, промокод и баллы.
func (m *Machine) compensate(ctx context.Context, tx domain.Tx, order domain.Order) error {
	released, err := m.stock.ReleaseOrder(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	reverted, err := m.promotions.Revert(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	if order.LoyaltyPointsRedeemed > 0 {
		if _, err := m.loyalty.Refund(ctx, tx, order.CustomerID, order.ID, order.LoyaltyPointsRedeemed); err != nil {
			return err
		}
	}

	m.logger.WithFields(log.Fields{
		"order_id":            order.ID,
		"reservations":        released,
		"promotions_reverted": reverted,
		"points_refunded":     order.LoyaltyPointsRedeemed,
	}).Debug("checkout side effects reversed")
	return nil
}

// Order возвращает заказ.
func (m *Machine) Order(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	err := m.uow.WithinReadOnly(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		order, err = tx.Orders().Get(ctx, orderID)
		return err
	})
	return order, err
}

// Status возвращает текущий статус заказа.
func (m *Machine) Status(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	order, err := m.Order(ctx, orderID)
	if err != nil {
		return "", err
	}
	return order.Status, nil
}

// History возвращает журнал переходов в порядке записи.
func (m *Machine) History(ctx context.Context, orderID string) ([]domain.StatusHistory, error) {
	var history []domain.StatusHistory
	err := m.uow.WithinReadOnly(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Orders().Get(ctx, orderID); err != nil {
			return err
		}
		var err error
		history, err = tx.History().List(ctx, orderID)
		return err
	})
	return history, err
}

func lastEntry(ctx context.Context, tx domain.Tx, orderID string) (domain.StatusHistory, error) {
	history, err := tx.History().List(ctx, orderID)
	if err != nil {
		return domain.StatusHistory{}, err
	}
	if len(history) == 0 {
		return domain.StatusHistory{}, errors.Newf("order %s has no status history", orderID)
	}
	return history[len(history)-1], nil
}

func eventType(status domain.OrderStatus) string {
	switch status {
	case domain.OrderStatusCancelled:
		return domain.EventOrderCancelled
	case domain.OrderStatusCompleted:
		return domain.EventOrderCompleted
	default:
		return domain.EventOrderStatusChanged
	}
}
