package cart

import "github.com/vladislavdragonenkov/shopcart/internal/domain"

// CartView: представление корзины для внешнего слоя. Суммы отформатированы
// с двумя знаками после запятой.
type CartView struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	Items          []ItemView    `json:"items"`
	Discount       *DiscountView `json:"discount,omitempty"`
	Subtotal       string        `json:"subtotal"`
	DiscountAmount string        `json:"discount_amount"`
	Total          string        `json:"total"`
	Version        int64         `json:"version"`
}

// ItemView: позиция корзины.
type ItemView struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitPrice   string `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	LineTotal   string `json:"line_total"`
}

// DiscountView: применённая скидка.
type DiscountView struct {
	Code  string `json:"code"`
	Value string `json:"value"`
	Kind  string `json:"kind"`
}

// NewCartView строит представление по агрегату.
func NewCartView(cart domain.Cart) CartView {
	items := cart.Items()
	view := CartView{
		ID:             cart.ID,
		UserID:         cart.UserID,
		Items:          make([]ItemView, 0, len(items)),
		Subtotal:       cart.Subtotal().String(),
		DiscountAmount: cart.DiscountAmount().String(),
		Total:          cart.CalculateTotal().String(),
		Version:        cart.Version,
	}
	for _, item := range items {
		view.Items = append(view.Items, ItemView{
			ProductID:   item.Product.ID,
			ProductName: item.Product.Name,
			UnitPrice:   item.Product.Price.String(),
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal().String(),
		})
	}
	if d, ok := cart.Discount(); ok {
		view.Discount = &DiscountView{
			Code:  d.Code,
			Value: d.Value.String(),
			Kind:  string(d.Kind),
		}
	}
	return view
}

// Item возвращает позицию представления по product id.
func (v CartView) Item(productID string) (ItemView, bool) {
	for _, item := range v.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return ItemView{}, false
}
