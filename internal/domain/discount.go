package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DiscountKind задаёт способ расчёта скидки.
type DiscountKind string

const (
	// DiscountPercentage вычитает value процентов от подытога.
	DiscountPercentage DiscountKind = "percentage"
	// DiscountFixedAmount вычитает фиксированную сумму value.
	DiscountFixedAmount DiscountKind = "fixed_amount"
)

var hundred = decimal.NewFromInt(100)

// ParseDiscountKind разбирает сохранённое значение вида скидки.
func ParseDiscountKind(s string) (DiscountKind, error) {
	switch DiscountKind(s) {
	case DiscountPercentage, DiscountFixedAmount:
		return DiscountKind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown discount kind %q", ErrInvalidArgument, s)
	}
}

// Discount: код скидки, её значение и вид. Неизменяема после загрузки.
type Discount struct {
	Code  string
	Value decimal.Decimal
	Kind  DiscountKind
}

// Deduction возвращает сумму вычета для подытога.
func (d Discount) Deduction(subtotal Money) Money {
	return ComputeDeduction(d.Kind, d.Value, subtotal)
}

// ComputeDeduction: чистая функция расчёта вычета.
// Неизвестный вид скидки даёт нулевой вычет.
func ComputeDeduction(kind DiscountKind, value decimal.Decimal, subtotal Money) Money {
	switch kind {
	case DiscountPercentage:
		return NewMoney(subtotal.Amount().Mul(value).Div(hundred))
	case DiscountFixedAmount:
		return NewMoney(value)
	default:
		return Zero()
	}
}
