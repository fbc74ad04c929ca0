package domain

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxQuantity: предельное количество одной позиции (колонка INTEGER в PostgreSQL).
const MaxQuantity = math.MaxInt32

// Cart: агрегат корзины. Позиции уникальны по product id и всегда имеют
// количество > 0. Итог не хранится, а пересчитывается из позиций и скидки.
//
// Cart принадлежит вызывающему коду; между горутинами передавайте Clone().
type Cart struct {
	ID     string
	UserID string
	// Version используется для optimistic locking в хранилище.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time

	items    []CartItem
	discount *Discount
}

// NewCart создаёт пустую корзину владельца с новым идентификатором.
func NewCart(userID string) (Cart, error) {
	return RestoreCart(uuid.NewString(), userID)
}

// RestoreCart собирает пустую корзину с известным ID. Позиции и скидка
// добавляются через AddItem/ApplyDiscount, чтобы инварианты проверялись
// так же, как при обычных мутациях.
func RestoreCart(id, userID string) (Cart, error) {
	if strings.TrimSpace(id) == "" {
		return Cart{}, ErrCartIDRequired
	}
	if strings.TrimSpace(userID) == "" {
		return Cart{}, ErrOwnerRequired
	}
	now := time.Now().UTC()
	return Cart{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// AddItem добавляет товар или увеличивает количество существующей позиции.
func (c *Cart) AddItem(product Product, quantity int) error {
	if quantity <= 0 {
		return ErrQuantityInvalid
	}
	if quantity > MaxQuantity {
		return ErrQuantityInvalid
	}
	if strings.TrimSpace(product.ID) == "" {
		return ErrProductIDRequired
	}
	if idx := c.indexOf(product.ID); idx >= 0 {
		if c.items[idx].Quantity > MaxQuantity-quantity {
			return ErrQuantityInvalid
		}
		c.items[idx].Quantity += quantity
		return nil
	}
	c.items = append(c.items, CartItem{Product: product, Quantity: quantity})
	return nil
}

// UpdateQuantity сдвигает количество позиции на delta.
// Отсутствующая позиция: молчаливый no-op; если количество стало <= 0,
// позиция удаляется. Сумма выше MaxQuantity отклоняется без изменений.
func (c *Cart) UpdateQuantity(productID string, delta int) error {
	idx := c.indexOf(productID)
	if idx < 0 {
		return nil
	}
	current := c.items[idx].Quantity
	if delta > 0 && current > MaxQuantity-delta {
		return ErrQuantityInvalid
	}
	if delta <= -current {
		c.removeAt(idx)
		return nil
	}
	c.items[idx].Quantity = current + delta
	return nil
}

// RemoveItem удаляет позицию, если она есть.
func (c *Cart) RemoveItem(productID string) {
	if idx := c.indexOf(productID); idx >= 0 {
		c.removeAt(idx)
	}
}

// ApplyDiscount заменяет ранее применённую скидку без условий.
func (c *Cart) ApplyDiscount(discount Discount) {
	d := discount
	c.discount = &d
}

// HasItem сообщает, есть ли в корзине позиция для товара.
func (c Cart) HasItem(productID string) bool {
	return c.indexOf(productID) >= 0
}

// Item возвращает позицию по product id.
func (c Cart) Item(productID string) (CartItem, bool) {
	idx := c.indexOf(productID)
	if idx < 0 {
		return CartItem{}, false
	}
	return c.items[idx], true
}

// Items возвращает копию позиций в порядке добавления.
func (c Cart) Items() []CartItem {
	out := make([]CartItem, len(c.items))
	copy(out, c.items)
	return out
}

// Discount возвращает применённую скидку.
func (c Cart) Discount() (Discount, bool) {
	if c.discount == nil {
		return Discount{}, false
	}
	return *c.discount, true
}

// Subtotal: сумма цена × количество по всем позициям.
func (c Cart) Subtotal() Money {
	total := Zero()
	for _, item := range c.items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// DiscountAmount: фактически применённый вычет (не больше подытога).
func (c Cart) DiscountAmount() Money {
	if c.discount == nil {
		return Zero()
	}
	subtotal := c.Subtotal()
	deduction := c.discount.Deduction(subtotal)
	if deduction.Amount().GreaterThan(subtotal.Amount()) {
		return subtotal
	}
	if deduction.IsNegative() {
		return Zero()
	}
	return deduction
}

// CalculateTotal возвращает подытог минус скидка. Итог не уходит ниже нуля.
func (c Cart) CalculateTotal() Money {
	return c.Subtotal().Sub(c.DiscountAmount())
}

// Clone возвращает независимую копию агрегата.
func (c Cart) Clone() Cart {
	clone := c
	clone.items = c.Items()
	if c.discount != nil {
		d := *c.discount
		clone.discount = &d
	}
	return clone
}

func (c Cart) indexOf(productID string) int {
	for i, item := range c.items {
		if item.Product.ID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(idx int) {
	c.items = append(c.items[:idx], c.items[idx+1:]...)
}
