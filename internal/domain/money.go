package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money: неизменяемая денежная сумма без привязки к валюте.
// Нулевое значение равно нулю.
type Money struct {
	amount decimal.Decimal
}

// NewMoney создаёт сумму из decimal.
func NewMoney(amount decimal.Decimal) Money {
	return Money{amount: amount}
}

// MoneyFromString разбирает сумму из строки ("99.90").
func MoneyFromString(s string) (Money, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	return Money{amount: amount}, nil
}

// MustMoney как MoneyFromString, но паникует. Для констант и тестов.
func MustMoney(s string) Money {
	m, err := MoneyFromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero возвращает нулевую сумму.
func Zero() Money {
	return Money{}
}

// Amount возвращает значение как decimal.
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

func (m Money) Sub(other Money) Money {
	return Money{amount: m.amount.Sub(other.amount)}
}

// Mul умножает сумму на целое количество.
func (m Money) Mul(qty int) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(int64(qty)))}
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Equal сравнивает суммы по значению (1.0 == 1.00).
func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount)
}

// String форматирует сумму с двумя знаками после запятой.
func (m Money) String() string {
	return m.amount.StringFixed(2)
}
