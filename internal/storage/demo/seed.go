// Package demo содержит демонстрационный набор данных для локального запуска.
package demo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Идентификаторы демонстрационных данных.
const (
	CustomerID  = "customer-demo"
	PromotionID = "promo-sale10"
)

// CatalogWriter принимает товары демонстрационного каталога.
type CatalogWriter interface {
	Put(ctx context.Context, item domain.CatalogItem) error
}

type product struct {
	item      domain.CatalogItem
	available int64
	threshold int64
}

var products = []product{
	{domain.CatalogItem{ProductID: "sku-coffee", Name: "Arabica beans 1kg", CategoryID: "grocery", PriceMinor: 250000, WeightGrams: 1000, Active: true}, 40, 5},
	{domain.CatalogItem{ProductID: "sku-mug", Name: "Ceramic mug", CategoryID: "kitchen", PriceMinor: 120000, WeightGrams: 350, Active: true}, 25, 3},
	{domain.CatalogItem{ProductID: "sku-kettle", Name: "Gooseneck kettle", CategoryID: "kitchen", PriceMinor: 890000, WeightGrams: 1200, Active: true}, 8, 2},
	{domain.CatalogItem{ProductID: "sku-filter", Name: "Paper filters x100", CategoryID: "grocery", PriceMinor: 60000, WeightGrams: 150, Active: true}, 100, 10},
}

// Seed заполняет хранилище небольшим каталогом, покупателем и промокодом SALE10.
// Повторный вызов ничего не меняет: наличие демо-покупателя означает, что данные уже есть.
func Seed(ctx context.Context, uow domain.UnitOfWork, catalog CatalogWriter) error {
	for _, p := range products {
		if err := catalog.Put(ctx, p.item); err != nil {
			return errors.Wrapf(err, "seed catalog %s", p.item.ProductID)
		}
	}

	now := time.Now().UTC()
	return uow.Within(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Customers().Get(ctx, CustomerID)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, domain.ErrCustomerNotFound):
			return errors.Wrap(err, "check demo customer")
		}

		for _, p := range products {
			record := domain.StockRecord{ProductID: p.item.ProductID, Available: p.available, ReorderThreshold: p.threshold}
			if err := tx.Stock().Put(ctx, record); err != nil {
				return errors.Wrapf(err, "seed stock %s", p.item.ProductID)
			}
		}

		customer := domain.Customer{ID: CustomerID, Name: "Demo Customer", Tier: domain.TierBronze}
		if err := tx.Customers().Create(ctx, customer); err != nil {
			return errors.Wrap(err, "seed customer")
		}
		if _, err := tx.Customers().AdjustPoints(ctx, CustomerID, 500); err != nil {
			return errors.Wrap(err, "seed points")
		}
		bonus := domain.LoyaltyEntry{ID: "loyalty-demo-bonus", CustomerID: CustomerID, Delta: 500, Reason: domain.LoyaltyBonus, CreatedAt: now}
		if err := tx.Loyalty().Append(ctx, bonus); err != nil {
			return errors.Wrap(err, "seed loyalty history")
		}

		promotion := domain.Promotion{
			ID:               PromotionID,
			Code:             "SALE10",
			Name:             "10% off, up to 50 000",
			Kind:             domain.DiscountPercentage,
			Value:            decimal.NewFromInt(10),
			MaxDiscountMinor: 50000,
			UsageLimit:       1000,
			PerCustomerLimit: 1,
			CustomerTier:     domain.TierAll,
			Scope:            domain.ScopeAll,
			Active:           true,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.Promotions().Create(ctx, promotion); err != nil {
			return errors.Wrap(err, "seed promotion")
		}
		return nil
	})
}
