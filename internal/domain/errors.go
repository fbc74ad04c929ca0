package domain

import (
	"errors"
	"fmt"
)

// Базовые виды ошибок, которые пересекают границу ядра.
var (
	// ErrNotFound: корзина, товар или скидка отсутствуют.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument: некорректные входные данные (количество, владелец).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict: конфликт при сохранении (версия, дубликат).
	ErrConflict = errors.New("conflict")
)

var (
	// ErrCartNotFound возвращается, если корзина не найдена в хранилище.
	ErrCartNotFound = fmt.Errorf("cart %w", ErrNotFound)
	// ErrProductNotFound возвращается, если каталог не знает товар.
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	// ErrDiscountNotFound возвращается, если код скидки неизвестен.
	ErrDiscountNotFound = fmt.Errorf("discount %w", ErrNotFound)
	// ErrQuantityInvalid: количество должно быть в диапазоне 1..MaxQuantity.
	ErrQuantityInvalid = fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidArgument, MaxQuantity)
	// ErrOwnerRequired: не передан идентификатор владельца корзины.
	ErrOwnerRequired = fmt.Errorf("%w: owner id is required", ErrInvalidArgument)
	// ErrCartIDRequired: не передан идентификатор корзины.
	ErrCartIDRequired = fmt.Errorf("%w: cart id is required", ErrInvalidArgument)
	// ErrProductIDRequired: не передан идентификатор товара.
	ErrProductIDRequired = fmt.Errorf("%w: product id is required", ErrInvalidArgument)
	// ErrDiscountCodeRequired: не передан код скидки.
	ErrDiscountCodeRequired = fmt.Errorf("%w: discount code is required", ErrInvalidArgument)
	// ErrCartVersionConflict сигнализирует, что корзину изменили параллельно.
	ErrCartVersionConflict = fmt.Errorf("cart version %w", ErrConflict)
	// ErrCartExists возвращается при повторном создании корзины с тем же ID.
	ErrCartExists = fmt.Errorf("cart already exists: %w", ErrConflict)
	// ErrCacheMiss: в кэше нет записи (или запись испорчена). Наружу не выходит.
	ErrCacheMiss = errors.New("cart cache miss")
)

// ErrorKind: структурированный вид ошибки для внешнего слоя.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "not_found"
	KindInvalidArgument ErrorKind = "invalid_argument"
	KindConflict        ErrorKind = "conflict"
	KindInternal        ErrorKind = "internal"
)

// IsNotFound проверяет, относится ли ошибка к отсутствующей сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidArgument проверяет, связана ли ошибка с некорректным вводом.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsConflict проверяет, является ли ошибка конфликтом сохранения.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// KindOf сводит произвольную ошибку к одному из видов таксономии.
// nil даёт пустую строку.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case IsNotFound(err):
		return KindNotFound
	case IsInvalidArgument(err):
		return KindInvalidArgument
	case IsConflict(err):
		return KindConflict
	default:
		return KindInternal
	}
}
