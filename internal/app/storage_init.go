package app

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/storage/demo"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

// runtimeDependencies — хранилище, выбранное по StorageDriver.
type runtimeDependencies struct {
	uow     domain.UnitOfWork
	catalog domain.Catalog
	outbox  domain.OutboxRepository
	storage healthcheck.Pinger
	close   func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if driver == "" {
		driver = StorageDriverMemory
	}

	switch driver {
	case StorageDriverMemory:
		return initMemoryStorage(ctx, cfg, logger)
	case StorageDriverPostgres:
		return initPostgresStorage(ctx, cfg, logger)
	default:
		return runtimeDependencies{}, errors.Newf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initMemoryStorage(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	store := memory.NewStore()
	catalog := memory.NewCatalog()

	if cfg.SeedDemoData {
		if err := memory.SeedDemo(ctx, store, catalog); err != nil {
			return runtimeDependencies{}, errors.Wrap(err, "seed demo data")
		}
		logger.WithField("customer_id", memory.DemoCustomerID).Info("demo data seeded")
	}

	logger.Info("storage driver: memory")
	return runtimeDependencies{
		uow:     store,
		catalog: catalog,
		outbox:  store.Outbox(),
		storage: healthcheck.PingFunc(func(context.Context) error { return nil }),
		close:   func() error { return nil },
	}, nil
}

func initPostgresStorage(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return runtimeDependencies{}, errors.New("postgres dsn is required for postgres storage driver")
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return runtimeDependencies{}, err
	}

	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return runtimeDependencies{}, errors.Wrap(err, "apply migrations")
		}
		state, err := store.MigrationStatus(ctx)
		if err == nil {
			logger.WithFields(log.Fields{
				"version": state.Version,
				"applied": state.Applied,
			}).Info("postgres schema is up to date")
		}
	}

	catalog := postgres.NewCatalog(store)
	if cfg.SeedDemoData {
		if err := demo.Seed(ctx, store, catalog); err != nil {
			_ = store.Close()
			return runtimeDependencies{}, errors.Wrap(err, "seed demo data")
		}
		logger.WithField("customer_id", demo.CustomerID).Info("demo data seeded")
	}

	logger.Info("storage driver: postgres")
	return runtimeDependencies{
		uow:     store,
		catalog: catalog,
		outbox:  store.Outbox(),
		storage: store,
		close:   store.Close,
	}, nil
}
