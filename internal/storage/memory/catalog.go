package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

// Catalog: in-memory справочник товаров и скидок.
type Catalog struct {
	mu        sync.RWMutex
	products  map[string]domain.Product
	discounts map[string]domain.Discount
}

// NewCatalog создаёт пустой каталог.
func NewCatalog() *Catalog {
	return &Catalog{
		products:  make(map[string]domain.Product),
		discounts: make(map[string]domain.Discount),
	}
}

// NewSeededCatalog создаёт каталог с демонстрационными товарами и скидками
// (те же данные, что кладёт сид-миграция PostgreSQL).
func NewSeededCatalog() *Catalog {
	c := NewCatalog()
	for _, p := range SeedProducts() {
		c.PutProduct(p)
	}
	for _, d := range SeedDiscounts() {
		c.PutDiscount(d)
	}
	return c
}

// PutProduct добавляет или заменяет товар.
func (c *Catalog) PutProduct(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

// PutDiscount добавляет или заменяет скидку. Код регистронезависим.
func (c *Catalog) PutDiscount(d domain.Discount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discounts[normalizeCode(d.Code)] = d
}

// GetProduct возвращает товар или ErrProductNotFound.
func (c *Catalog) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

// GetDiscountByCode возвращает скидку или ErrDiscountNotFound.
func (c *Catalog) GetDiscountByCode(ctx context.Context, code string) (domain.Discount, error) {
	if err := ctx.Err(); err != nil {
		return domain.Discount{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.discounts[normalizeCode(code)]
	if !ok {
		return domain.Discount{}, domain.ErrDiscountNotFound
	}
	return d, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// SeedProducts возвращает демонстрационный набор товаров.
func SeedProducts() []domain.Product {
	return []domain.Product{
		{ID: "11111111-1111-1111-1111-111111111111", Name: "Wireless Mouse", Price: domain.MustMoney("99.90")},
		{ID: "22222222-2222-2222-2222-222222222222", Name: "Mechanical Keyboard", Price: domain.MustMoney("250.00")},
		{ID: "33333333-3333-3333-3333-333333333333", Name: "USB-C Hub", Price: domain.MustMoney("89.00")},
		{ID: "44444444-4444-4444-4444-444444444444", Name: "HD Webcam", Price: domain.MustMoney("180.00")},
		{ID: "55555555-5555-5555-5555-555555555555", Name: "Noise Cancelling Headphones", Price: domain.MustMoney("520.50")},
	}
}

// SeedDiscounts возвращает демонстрационный набор скидок.
func SeedDiscounts() []domain.Discount {
	return []domain.Discount{
		{Code: "WELCOME10", Value: decimal.NewFromInt(10), Kind: domain.DiscountFixedAmount},
		{Code: "SUMMER20", Value: decimal.NewFromInt(20), Kind: domain.DiscountPercentage},
		{Code: "FIXED50", Value: decimal.NewFromInt(50), Kind: domain.DiscountFixedAmount},
	}
}

var (
	_ domain.ProductCatalog = (*Catalog)(nil)
	_ domain.DiscountLookup = (*Catalog)(nil)
)
