package domain

// Product: справочные данные внешнего каталога, используются по значению.
type Product struct {
	ID    string
	Name  string
	Price Money
}

// CartItem: позиция корзины: товар и количество (>= 1).
type CartItem struct {
	Product  Product
	Quantity int
}

// LineTotal возвращает стоимость позиции: цена × количество.
func (i CartItem) LineTotal() Money {
	return i.Product.Price.Mul(i.Quantity)
}
