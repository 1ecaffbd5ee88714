package postgres

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Catalog читает справочник товаров из таблицы products.
type Catalog struct {
	q queryer
}

// NewCatalog создаёт каталог поверх подключения хранилища.
func NewCatalog(store *Store) *Catalog {
	return &Catalog{q: store.DB()}
}

// Lookup возвращает найденные товары; отсутствующие id не попадают в результат.
func (c *Catalog) Lookup(ctx context.Context, productIDs []string) (map[string]domain.CatalogItem, error) {
	result := make(map[string]domain.CatalogItem, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := c.q.QueryContext(ctx, `
		SELECT id, name, category_id, price_minor, weight_grams, active
		FROM products
		WHERE id = ANY($1)
	`, productIDs)
	if err != nil {
		return nil, errors.Wrap(err, "lookup catalog items")
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.CatalogItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.CategoryID, &item.PriceMinor, &item.WeightGrams, &item.Active); err != nil {
			return nil, errors.Wrap(err, "scan catalog item")
		}
		result[item.ProductID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate catalog items")
	}
	return result, nil
}

// Put добавляет или обновляет товар.
func (c *Catalog) Put(ctx context.Context, item domain.CatalogItem) error {
	if item.ProductID == "" {
		return domain.ErrProductRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := c.q.ExecContext(ctx, `
		INSERT INTO products (id, name, category_id, price_minor, weight_grams, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    category_id = EXCLUDED.category_id,
		    price_minor = EXCLUDED.price_minor,
		    weight_grams = EXCLUDED.weight_grams,
		    active = EXCLUDED.active,
		    updated_at = NOW()
	`, item.ProductID, item.Name, item.CategoryID, item.PriceMinor, item.WeightGrams, item.Active)
	if err != nil {
		return errors.Wrap(err, "put catalog item")
	}
	return nil
}

var _ domain.Catalog = (*Catalog)(nil)
