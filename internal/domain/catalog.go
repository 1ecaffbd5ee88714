package domain

import "context"

// CatalogItem — актуальные данные товара из каталога.
type CatalogItem struct {
	ProductID   string
	Name        string
	CategoryID  string
	PriceMinor  int64
	WeightGrams int64
	Active      bool
}

// Catalog — внешний справочник товаров; цена из него всегда главнее цены клиента.
type Catalog interface {
	Lookup(ctx context.Context, productIDs []string) (map[string]CatalogItem, error)
}

// PricedLine — строка корзины после переоценки по каталогу.
type PricedLine struct {
	ProductID      string
	ProductName    string
	CategoryID     string
	Qty            int32
	UnitPriceMinor int64
	LineTotalMinor int64
	WeightGrams    int64
}

// ShippingCalculator рассчитывает стоимость доставки по адресу и составу корзины.
type ShippingCalculator interface {
	Quote(ctx context.Context, to ShippingInfo, lines []PricedLine) (int64, error)
}
