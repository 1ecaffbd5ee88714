package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Catalog — in-memory справочник товаров.
type Catalog struct {
	mu    sync.RWMutex
	items map[string]domain.CatalogItem
}

// NewCatalog создаёт каталог с начальным набором товаров.
func NewCatalog(items ...domain.CatalogItem) *Catalog {
	c := &Catalog{items: make(map[string]domain.CatalogItem, len(items))}
	for _, item := range items {
		c.items[item.ProductID] = item
	}
	return c
}

// Put добавляет или обновляет товар.
func (c *Catalog) Put(item domain.CatalogItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[item.ProductID] = item
}

// Lookup возвращает найденные товары; отсутствующие id не попадают в результат.
func (c *Catalog) Lookup(_ context.Context, productIDs []string) (map[string]domain.CatalogItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]domain.CatalogItem, len(productIDs))
	for _, id := range productIDs {
		if item, ok := c.items[id]; ok {
			result[id] = item
		}
	}
	return result, nil
}

var _ domain.Catalog = (*Catalog)(nil)
