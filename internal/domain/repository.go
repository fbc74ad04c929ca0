package domain

import (
	"context"
	"time"
)

// CartRepository описывает долговременное хранилище корзин (источник истины).
type CartRepository interface {
	// Get возвращает корзину по идентификатору или ErrCartNotFound.
	Get(ctx context.Context, id string) (Cart, error)
	// Create сохраняет новую корзину. ErrCartExists, если ID уже занят.
	Create(ctx context.Context, cart Cart) error
	// Update полностью заменяет набор позиций и скидку корзины в одной транзакции.
	// Версия cart.Version должна совпадать с сохранённой, иначе ErrCartVersionConflict.
	// При успехе сохранённая версия увеличивается на единицу.
	Update(ctx context.Context, id string, cart Cart) error
	// Delete удаляет корзину. ErrCartNotFound, если её нет.
	Delete(ctx context.Context, id string) error
}

// CartCache: кэш снимков корзины с TTL, ключ: ID корзины.
type CartCache interface {
	// Get возвращает корзину из кэша или ErrCacheMiss.
	Get(ctx context.Context, id string) (Cart, error)
	// Put кладёт снимок корзины на ttl. Снимок старше уже записанной версии
	// отбрасывается без ошибки, в том числе после Invalidate.
	Put(ctx context.Context, cart Cart, ttl time.Duration) error
	// Invalidate удаляет запись; отсутствие записи ошибкой не считается.
	Invalidate(ctx context.Context, id string) error
}

// ProductCatalog: внешний каталог товаров, только чтение.
type ProductCatalog interface {
	// GetProduct возвращает товар или ErrProductNotFound.
	GetProduct(ctx context.Context, id string) (Product, error)
}

// DiscountLookup: внешний справочник скидок, только чтение.
type DiscountLookup interface {
	// GetDiscountByCode возвращает скидку или ErrDiscountNotFound.
	GetDiscountByCode(ctx context.Context, code string) (Discount, error)
}
