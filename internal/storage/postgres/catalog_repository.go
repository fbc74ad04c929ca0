package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

// CatalogRepository читает справочники products и discounts.
type CatalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт PostgreSQL-каталог товаров и скидок.
func NewCatalogRepository(store *Store) *CatalogRepository {
	return &CatalogRepository{db: store.DB()}
}

// GetProduct возвращает товар или ErrProductNotFound.
func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		product domain.Product
		price   decimal.Decimal
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, price FROM products WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	product.Price = domain.NewMoney(price)
	return product, nil
}

// GetDiscountByCode ищет скидку без учёта регистра кода.
func (r *CatalogRepository) GetDiscountByCode(ctx context.Context, code string) (domain.Discount, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		discount domain.Discount
		kind     string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT code, value, kind FROM discounts WHERE upper(code) = $1
	`, strings.ToUpper(strings.TrimSpace(code))).Scan(&discount.Code, &discount.Value, &kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Discount{}, domain.ErrDiscountNotFound
		}
		return domain.Discount{}, fmt.Errorf("select discount: %w", err)
	}

	discount.Kind = domain.DiscountKind(kind)
	return discount, nil
}

// PutProduct добавляет или обновляет товар. Используется тестами и сидированием.
func (r *CatalogRepository) PutProduct(ctx context.Context, p domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price
	`, p.ID, p.Name, p.Price.Amount()); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// PutDiscount добавляет или обновляет скидку. Записать можно только известный вид.
func (r *CatalogRepository) PutDiscount(ctx context.Context, d domain.Discount) error {
	if _, err := domain.ParseDiscountKind(string(d.Kind)); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO discounts (code, value, kind) VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET value = EXCLUDED.value, kind = EXCLUDED.kind
	`, d.Code, d.Value, string(d.Kind)); err != nil {
		return fmt.Errorf("upsert discount: %w", err)
	}
	return nil
}

var (
	_ domain.ProductCatalog = (*CatalogRepository)(nil)
	_ domain.DiscountLookup = (*CatalogRepository)(nil)
)
