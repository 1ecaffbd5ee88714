package memory

import (
	"context"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/demo"
)

// Идентификаторы демонстрационных данных.
const (
	DemoCustomerID  = demo.CustomerID
	DemoPromotionID = demo.PromotionID
)

// SeedDemo заполняет in-memory хранилище и каталог демонстрационными данными.
func SeedDemo(ctx context.Context, store *Store, catalog *Catalog) error {
	return demo.Seed(ctx, store, catalogWriter{catalog: catalog})
}

type catalogWriter struct {
	catalog *Catalog
}

func (w catalogWriter) Put(_ context.Context, item domain.CatalogItem) error {
	w.catalog.Put(item)
	return nil
}
