package app

import (
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/idgen"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	grpcsvc "github.com/vladislavdragonenkov/storefront/internal/service/grpc"
	"github.com/vladislavdragonenkov/storefront/internal/service/loyalty"
	"github.com/vladislavdragonenkov/storefront/internal/service/orderstate"
	"github.com/vladislavdragonenkov/storefront/internal/service/promotion"
	"github.com/vladislavdragonenkov/storefront/internal/service/stock"
)

// Services — доменные сервисы поверх выбранного хранилища.
type Services struct {
	Checkout     *checkout.Orchestrator
	Orders       *orderstate.Machine
	Loyalty      *loyalty.Ledger
	CheckoutGRPC *grpcsvc.CheckoutService
}

// NewServices собирает ledgers, оркестратор checkout и машину состояний заказа.
func NewServices(cfg Config, deps runtimeDependencies, m *metrics.Metrics, logger *log.Entry) (*Services, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	ids, err := idgen.New(cfg.NodeID)
	if err != nil {
		return nil, errors.Wrap(err, "create id generator")
	}

	stockLedger := stock.NewLedger(logger.WithField("component", "stock"), m)
	promotions := promotion.NewEngine(logger.WithField("component", "promotion"), m)
	loyaltyLedger := loyalty.NewLedger(cfg.LoyaltyPolicy(), logger.WithField("component", "loyalty"), m)

	orchestrator, err := checkout.NewOrchestrator(checkout.Dependencies{
		UnitOfWork: deps.uow,
		Catalog:    deps.catalog,
		Shipping:   cfg.ShippingRate(),
		Stock:      stockLedger,
		Promotions: promotions,
		Loyalty:    loyaltyLedger,
		IDs:        ids,
		Currency:   cfg.Currency,
		Logger:     logger.WithField("component", "checkout"),
		Metrics:    m,
	})
	if err != nil {
		return nil, err
	}

	machine, err := orderstate.NewMachine(orderstate.Dependencies{
		UnitOfWork: deps.uow,
		Stock:      stockLedger,
		Promotions: promotions,
		Loyalty:    loyaltyLedger,
		Logger:     logger.WithField("component", "order-state"),
		Metrics:    m,
	})
	if err != nil {
		return nil, err
	}

	return &Services{
		Checkout:     orchestrator,
		Orders:       machine,
		Loyalty:      loyaltyLedger,
		CheckoutGRPC: grpcsvc.NewCheckoutService(orchestrator, machine, logger.WithField("layer", "grpc")),
	}, nil
}
