// Package cache содержит формат снимка корзины, общий для кэш-адаптеров.
package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

type snapshot struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Version   int64          `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Items     []snapshotItem `json:"items"`
	Discount  *snapshotCode  `json:"discount,omitempty"`
}

type snapshotItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

type snapshotCode struct {
	Code  string          `json:"code"`
	Value decimal.Decimal `json:"value"`
	Kind  string          `json:"kind"`
}

// Encode сериализует корзину в JSON-снимок.
func Encode(cart domain.Cart) ([]byte, error) {
	s := snapshot{
		ID:        cart.ID,
		UserID:    cart.UserID,
		Version:   cart.Version,
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
	for _, item := range cart.Items() {
		s.Items = append(s.Items, snapshotItem{
			ProductID: item.Product.ID,
			Name:      item.Product.Name,
			Price:     item.Product.Price.Amount(),
			Quantity:  item.Quantity,
		})
	}
	if d, ok := cart.Discount(); ok {
		s.Discount = &snapshotCode{Code: d.Code, Value: d.Value, Kind: string(d.Kind)}
	}

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal cart snapshot: %w", err)
	}
	return data, nil
}

// Decode восстанавливает корзину из снимка через доменные мутации,
// поэтому испорченный снимок (пустой ID, количество <= 0) даёт ошибку.
func Decode(data []byte) (domain.Cart, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.Cart{}, fmt.Errorf("unmarshal cart snapshot: %w", err)
	}

	cart, err := domain.RestoreCart(s.ID, s.UserID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("restore cart snapshot: %w", err)
	}
	cart.Version = s.Version
	cart.CreatedAt = s.CreatedAt
	cart.UpdatedAt = s.UpdatedAt

	for _, item := range s.Items {
		product := domain.Product{ID: item.ProductID, Name: item.Name, Price: domain.NewMoney(item.Price)}
		if err := cart.AddItem(product, item.Quantity); err != nil {
			return domain.Cart{}, fmt.Errorf("restore snapshot item %s: %w", item.ProductID, err)
		}
	}
	if s.Discount != nil {
		// Неизвестный вид сохраняется как есть и даёт нулевой вычет.
		cart.ApplyDiscount(domain.Discount{Code: s.Discount.Code, Value: s.Discount.Value, Kind: domain.DiscountKind(s.Discount.Kind)})
	}

	return cart, nil
}
