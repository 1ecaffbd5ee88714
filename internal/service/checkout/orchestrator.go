package checkout

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/idgen"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/loyalty"
	"github.com/vladislavdragonenkov/storefront/internal/service/promotion"
	"github.com/vladislavdragonenkov/storefront/internal/service/stock"
)

const maxAttempts = 2

// Dependencies — коллабораторы CheckoutOrchestrator.
type Dependencies struct {
	UnitOfWork domain.UnitOfWork
	Catalog    domain.Catalog
	Shipping   domain.ShippingCalculator
	Stock      *stock.Ledger
	Promotions *promotion.Engine
	Loyalty    *loyalty.Ledger
	IDs        *idgen.Generator
	Currency   string
	Logger     *log.Entry
	Metrics    *metrics.Metrics
}

// Orchestrator превращает корзину в заказ одной транзакцией:
// либо применяются все побочные эффекты, либо ни одного.
type Orchestrator struct {
	uow        domain.UnitOfWork
	catalog    domain.Catalog
	shipping   domain.ShippingCalculator
	stock      *stock.Ledger
	promotions *promotion.Engine
	loyalty    *loyalty.Ledger
	ids        *idgen.Generator
	currency   string
	logger     *log.Entry
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewOrchestrator проверяет зависимости и создаёт оркестратор.
func NewOrchestrator(deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.UnitOfWork == nil:
		return nil, errors.New("checkout: unit of work is required")
	case deps.Catalog == nil:
		return nil, errors.New("checkout: catalog is required")
	case deps.Shipping == nil:
		return nil, errors.New("checkout: shipping calculator is required")
	case deps.Stock == nil || deps.Promotions == nil || deps.Loyalty == nil:
		return nil, errors.New("checkout: stock, promotion and loyalty ledgers are required")
	case deps.IDs == nil:
		return nil, errors.New("checkout: id generator is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}
	currency := deps.Currency
	if currency == "" {
		currency = "VND"
	}

	return &Orchestrator{
		uow:        deps.UnitOfWork,
		catalog:    deps.Catalog,
		shipping:   deps.Shipping,
		stock:      deps.Stock,
		promotions: deps.Promotions,
		loyalty:    deps.Loyalty,
		ids:        deps.IDs,
		currency:   currency,
		logger:     logger,
		metrics:    deps.Metrics,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Checkout оформляет заказ. Конкурентный конфликт повторяется один раз на свежем состоянии.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (Result, error) {
	done := o.metrics.CheckoutStarted()

	result, err := o.checkout(ctx, req)
	if err != nil {
		done(domain.CodeOf(err))
		o.logFailure(req, err)
		return Result{}, err
	}

	outcome := metrics.ResultCreated
	if result.Replayed {
		outcome = metrics.ResultReplayed
	}
	done(outcome)

	o.logger.WithFields(log.Fields{
		"order_id":    result.Order.ID,
		"order_code":  result.Order.Code,
		"customer_id": result.Order.CustomerID,
		"total_minor": result.Order.TotalMinor,
		"replayed":    result.Replayed,
	}).Info("checkout completed")
	return result, nil
}

func (o *Orchestrator) checkout(ctx context.Context, req Request) (Result, error) {
	if errs := req.Validate(); len(errs) > 0 {
		return Result{}, errs[0]
	}
	lines, err := mergeLines(req.Lines)
	if err != nil {
		return Result{}, err
	}

	priced, err := o.price(ctx, lines)
	if err != nil {
		return Result{}, err
	}
	fee, err := o.shipping.Quote(ctx, req.Shipping, priced)
	if err != nil {
		return Result{}, errors.Wrap(err, "quote shipping fee")
	}

	var result Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = o.place(ctx, req, priced, fee)
		if err == nil || !domain.IsRetryable(err) || attempt == maxAttempts {
			break
		}
		o.logger.WithError(err).WithField("customer_id", req.CustomerID).Warn("checkout conflict, retrying")
	}
	return result, err
}

// place выполняет шаги checkout в одной транзакции.
func (o *Orchestrator) place(ctx context.Context, req Request, priced []domain.PricedLine, fee int64) (Result, error) {
	var result Result
	err := o.uow.Within(ctx, func(ctx context.Context, tx domain.Tx) error {
		if req.RequestKey != "" {
			existing, err := tx.Orders().GetByRequestKey(ctx, req.CustomerID, req.RequestKey)
			switch {
			case err == nil:
				result = Result{Order: existing, Replayed: true}
				return nil
			case !errors.Is(err, domain.ErrOrderNotFound):
				return errors.Wrap(err, "lookup request key")
			}
		}

		if _, err := tx.Customers().Get(ctx, req.CustomerID); err != nil {
			return err
		}

		now := o.now()
		orderID := o.ids.NewID()

		// Резервы берутся в порядке product_id, раньше скидок.
		items := make([]domain.OrderItem, 0, len(priced))
		for _, line := range priced {
			reservation, err := o.stock.Reserve(ctx, tx, orderID, line.ProductID, line.Qty)
			if err != nil {
				return err
			}
			items = append(items, domain.OrderItem{
				ID:             o.ids.NewID(),
				ProductID:      line.ProductID,
				ProductName:    line.ProductName,
				Qty:            line.Qty,
				UnitPriceMinor: line.UnitPriceMinor,
				LineTotalMinor: line.LineTotalMinor,
				ReservationID:  reservation.ID,
				CreatedAt:      now,
			})
		}

		quote, err := o.quote(ctx, tx, req, priced, fee)
		if err != nil {
			return err
		}

		order := domain.Order{
			ID:                     orderID,
			Code:                   o.ids.OrderCode(),
			CustomerID:             req.CustomerID,
			RequestKey:             req.RequestKey,
			Shipping:               req.Shipping,
			Items:                  items,
			Currency:               o.currency,
			SubtotalMinor:          quote.SubtotalMinor,
			ShippingFeeMinor:       quote.ShippingFeeMinor,
			PromotionDiscountMinor: quote.PromotionDiscountMinor,
			LoyaltyDiscountMinor:   quote.LoyaltyDiscountMinor,
			TotalMinor:             quote.TotalMinor,
			LoyaltyPointsRedeemed:  quote.LoyaltyPoints,
			PaymentMethod:          req.PaymentMethod,
			PaymentStatus:          domain.PaymentStatusUnpaid,
			Status:                 domain.OrderStatusPending,
			Note:                   req.Note,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		if quote.Promotion != nil {
			order.PromotionID = quote.Promotion.PromotionID
			order.PromotionCode = quote.Promotion.Code
		}
		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errors.Wrapf(errs[0], "order %s violates pricing invariants", order.Code)
		}

		if err := tx.Orders().Create(ctx, order); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				// Параллельный запрос с тем же ключом успел раньше; повтор вернёт его заказ.
				return errors.Mark(err, domain.ErrSerialization)
			}
			return errors.Wrap(err, "persist order")
		}

		for _, item := range items {
			if err := o.stock.Commit(ctx, tx, item.ReservationID); err != nil {
				return err
			}
		}
		if quote.Promotion != nil {
			if _, err := o.promotions.Redeem(ctx, tx, *quote.Promotion, order.CustomerID, order.ID); err != nil {
				return err
			}
		}
		if quote.LoyaltyPoints > 0 {
			if _, err := o.loyalty.Debit(ctx, tx, order.CustomerID, order.ID, quote.LoyaltyPoints); err != nil {
				return err
			}
		}

		entry := domain.StatusHistory{
			ID:        o.ids.NewID(),
			OrderID:   order.ID,
			NewStatus: domain.OrderStatusPending,
			ActorID:   order.CustomerID,
			ActorKind: domain.ActorCustomer,
			Note:      req.Note,
			CreatedAt: now,
		}
		if err := tx.History().Append(ctx, entry); err != nil {
			return errors.Wrap(err, "append initial status history")
		}

		err = domain.EnqueueEvent(ctx, tx.Outbox(), domain.AggregateOrder, order.ID, domain.EventOrderCreated,
			domain.OrderCreatedEvent{
				OrderID:    order.ID,
				OrderCode:  order.Code,
				CustomerID: order.CustomerID,
				TotalMinor: order.TotalMinor,
				Currency:   order.Currency,
				Status:     order.Status,
				CreatedAt:  order.CreatedAt,
			})
		if err != nil {
			return err
		}

		result = Result{Order: order}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// Preview рассчитывает цену корзины и проверяет промокод и баллы без резервирования.
func (o *Orchestrator) Preview(ctx context.Context, req Request) (Quote, error) {
	if errs := req.Validate(); len(errs) > 0 {
		return Quote{}, errs[0]
	}
	lines, err := mergeLines(req.Lines)
	if err != nil {
		return Quote{}, err
	}
	priced, err := o.price(ctx, lines)
	if err != nil {
		return Quote{}, err
	}
	fee, err := o.shipping.Quote(ctx, req.Shipping, priced)
	if err != nil {
		return Quote{}, errors.Wrap(err, "quote shipping fee")
	}

	var quote Quote
	err = o.uow.WithinReadOnly(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Customers().Get(ctx, req.CustomerID); err != nil {
			return err
		}
		quote, err = o.quote(ctx, tx, req, priced, fee)
		return err
	})
	if err != nil {
		return Quote{}, err
	}
	return quote, nil
}

// quote применяет промокод к товарам, затем баллы к сумме после промокода.
func (o *Orchestrator) quote(ctx context.Context, tx domain.Tx, req Request, priced []domain.PricedLine, fee int64) (Quote, error) {
	quote := Quote{Lines: priced, ShippingFeeMinor: fee}
	for _, line := range priced {
		quote.SubtotalMinor += line.LineTotalMinor
	}

	if domain.NormalizeCode(req.PromotionCode) != "" {
		promo, err := o.promotions.Validate(ctx, tx, promotion.Input{
			Code:             req.PromotionCode,
			CustomerID:       req.CustomerID,
			SubtotalMinor:    quote.SubtotalMinor,
			ShippingFeeMinor: fee,
			Lines:            priced,
		})
		if err != nil {
			return Quote{}, err
		}
		quote.Promotion = &promo
		quote.PromotionDiscountMinor = promo.DiscountMinor
	}

	if req.LoyaltyPoints > 0 {
		var itemDiscount int64
		if quote.Promotion != nil {
			itemDiscount = quote.Promotion.ItemDiscountMinor()
		}
		redemption, err := o.loyalty.Redeem(ctx, tx, req.CustomerID, req.LoyaltyPoints, quote.SubtotalMinor-itemDiscount)
		if err != nil {
			return Quote{}, err
		}
		quote.LoyaltyPoints = redemption.Points
		quote.LoyaltyDiscountMinor = redemption.DiscountMinor
	}

	quote.TotalMinor = quote.SubtotalMinor + quote.ShippingFeeMinor - quote.PromotionDiscountMinor - quote.LoyaltyDiscountMinor
	if quote.TotalMinor < 0 {
		return Quote{}, domain.Reject(domain.ErrInvalidTotal, "computed total %d is negative", quote.TotalMinor)
	}
	return quote, nil
}

// price переоценивает строки по каталогу: цена сервера всегда главнее цены клиента.
func (o *Orchestrator) price(ctx context.Context, lines []Line) ([]domain.PricedLine, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	items, err := o.catalog.Lookup(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "catalog lookup")
	}

	priced := make([]domain.PricedLine, 0, len(lines))
	for _, line := range lines {
		item, ok := items[line.ProductID]
		if !ok {
			return nil, errors.Wrapf(domain.ErrProductNotFound, "product %s", line.ProductID)
		}
		if !item.Active {
			return nil, domain.Reject(domain.ErrProductUnavailable, "product %s is not for sale", line.ProductID)
		}
		if line.ExpectedUnitPriceMinor > 0 && line.ExpectedUnitPriceMinor != item.PriceMinor {
			o.logger.WithFields(log.Fields{
				"product_id":    line.ProductID,
				"client_price":  line.ExpectedUnitPriceMinor,
				"catalog_price": item.PriceMinor,
			}).Debug("client price differs from catalog, catalog price applied")
		}
		priced = append(priced, domain.PricedLine{
			ProductID:      line.ProductID,
			ProductName:    item.Name,
			CategoryID:     item.CategoryID,
			Qty:            line.Qty,
			UnitPriceMinor: item.PriceMinor,
			LineTotalMinor: int64(line.Qty) * item.PriceMinor,
			WeightGrams:    item.WeightGrams,
		})
	}
	return priced, nil
}

func (o *Orchestrator) logFailure(req Request, err error) {
	entry := o.logger.WithError(err).WithFields(log.Fields{
		"customer_id":    req.CustomerID,
		"promotion_code": req.PromotionCode,
		"reason":         domain.CodeOf(err),
	})
	switch domain.KindOf(err) {
	case domain.KindInternal:
		entry.Error("checkout failed")
	case domain.KindConflict:
		entry.Warn("checkout rejected")
	default:
		entry.Info("checkout rejected")
	}
}
