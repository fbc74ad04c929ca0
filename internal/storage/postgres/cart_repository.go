package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

const (
	constraintCartDiscount    = "fk_carts_discount"
	constraintCartItemProduct = "fk_cart_items_product"
)

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
// Позиции хранятся в cart_items, имя и цена товара берутся из products при чтении.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{db: store.DB()}
}

func (r *cartRepository) Create(ctx context.Context, cart domain.Cart) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO carts (id, user_id, discount_code, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, cart.ID, cart.UserID, discountCode(cart), cart.Version, cart.CreatedAt, cart.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrCartExists
			}
			return mapWriteError(err, "insert cart")
		}

		for position, item := range cart.Items() {
			if err := insertItem(ctx, tx, cart.ID, item, position); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *cartRepository) Get(ctx context.Context, id string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var cart domain.Cart
	err := withTxOptions(ctx, r.db, snapshotReadTx, func(tx *sql.Tx) error {
		loaded, err := getCartTx(ctx, tx, id)
		if err != nil {
			return err
		}
		cart = loaded
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// getCartTx читает строку корзины и её позиции в одной транзакции,
// чтобы версия соответствовала набору позиций.
func getCartTx(ctx context.Context, tx *sql.Tx, id string) (domain.Cart, error) {
	var (
		userID               string
		version              int64
		createdAt, updatedAt time.Time
		code, kind           sql.NullString
		value                decimal.NullDecimal
	)
	err := tx.QueryRowContext(ctx, `
		SELECT c.id, c.user_id, c.version, c.created_at, c.updated_at,
		       d.code, d.value, d.kind
		FROM carts c
		LEFT JOIN discounts d ON d.code = c.discount_code
		WHERE c.id = $1
	`, id).Scan(&id, &userID, &version, &createdAt, &updatedAt, &code, &value, &kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}

	cart, err := domain.RestoreCart(id, userID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("restore cart %s: %w", id, err)
	}
	cart.Version = version
	cart.CreatedAt = createdAt.UTC()
	cart.UpdatedAt = updatedAt.UTC()

	if err := loadItemsTx(ctx, tx, &cart); err != nil {
		return domain.Cart{}, err
	}
	if code.Valid {
		cart.ApplyDiscount(domain.Discount{
			Code:  code.String,
			Value: value.Decimal,
			Kind:  domain.DiscountKind(kind.String),
		})
	}

	return cart, nil
}

// Update сверяет версию и приводит набор строк cart_items к состоянию cart:
// удаляет пропавшие позиции, добавляет новые и перезаписывает количество.
func (r *cartRepository) Update(ctx context.Context, id string, cart domain.Cart) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE carts
			SET discount_code = $1,
			    version = version + 1,
			    updated_at = $2
			WHERE id = $3
			  AND version = $4
		`, discountCode(cart), time.Now().UTC(), id, cart.Version)
		if err != nil {
			return mapWriteError(err, "update cart")
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			exists, err := cartExistsTx(ctx, tx, id)
			if err != nil {
				return err
			}
			if !exists {
				return domain.ErrCartNotFound
			}
			return domain.ErrCartVersionConflict
		}

		stored, err := loadQuantitiesTx(ctx, tx, id)
		if err != nil {
			return err
		}
		return reconcileItems(ctx, tx, id, stored, cart.Items())
	})
}

func (r *cartRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCartNotFound
	}
	return nil
}

func loadItemsTx(ctx context.Context, tx *sql.Tx, cart *domain.Cart) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT p.id, p.name, p.price, ci.quantity
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.position ASC, ci.created_at ASC
	`, cart.ID)
	if err != nil {
		return fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			product domain.Product
			price   decimal.Decimal
			qty     int
		)
		if err := rows.Scan(&product.ID, &product.Name, &price, &qty); err != nil {
			return fmt.Errorf("scan cart item: %w", err)
		}
		product.Price = domain.NewMoney(price)
		if err := cart.AddItem(product, qty); err != nil {
			return fmt.Errorf("restore cart item %s: %w", product.ID, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate cart items: %w", err)
	}

	return nil
}

func loadQuantitiesTx(ctx context.Context, tx *sql.Tx, cartID string) (map[string]int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM cart_items
		WHERE cart_id = $1
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart quantities: %w", err)
	}
	defer rows.Close()

	stored := make(map[string]int)
	for rows.Next() {
		var (
			productID string
			quantity  int
		)
		if err := rows.Scan(&productID, &quantity); err != nil {
			return nil, fmt.Errorf("scan cart quantity: %w", err)
		}
		stored[productID] = quantity
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart quantities: %w", err)
	}
	return stored, nil
}

func reconcileItems(ctx context.Context, tx *sql.Tx, cartID string, stored map[string]int, items []domain.CartItem) error {
	wanted := make(map[string]struct{}, len(items))
	for _, item := range items {
		wanted[item.Product.ID] = struct{}{}
	}

	for productID := range stored {
		if _, ok := wanted[productID]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2
		`, cartID, productID); err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
	}

	for position, item := range items {
		quantity, ok := stored[item.Product.ID]
		if !ok {
			if err := insertItem(ctx, tx, cartID, item, position); err != nil {
				return err
			}
			continue
		}
		if quantity == item.Quantity {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE cart_items SET quantity = $1
			WHERE cart_id = $2 AND product_id = $3
		`, item.Quantity, cartID, item.Product.ID); err != nil {
			return fmt.Errorf("update cart item quantity: %w", err)
		}
	}

	return nil
}

func insertItem(ctx context.Context, tx *sql.Tx, cartID string, item domain.CartItem, position int) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity, position)
		VALUES ($1, $2, $3, $4)
	`, cartID, item.Product.ID, item.Quantity, position); err != nil {
		return mapWriteError(err, "insert cart item")
	}
	return nil
}

func cartExistsTx(ctx context.Context, tx *sql.Tx, cartID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM carts WHERE id = $1`, cartID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check cart exists: %w", err)
}

func discountCode(cart domain.Cart) sql.NullString {
	d, ok := cart.Discount()
	if !ok {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Code, Valid: true}
}

// mapWriteError переводит нарушения внешних ключей в доменные NotFound.
func mapWriteError(err error, op string) error {
	switch foreignKeyConstraint(err) {
	case constraintCartItemProduct:
		return fmt.Errorf("%s: %w", op, domain.ErrProductNotFound)
	case constraintCartDiscount:
		return fmt.Errorf("%s: %w", op, domain.ErrDiscountNotFound)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

var _ domain.CartRepository = (*cartRepository)(nil)
