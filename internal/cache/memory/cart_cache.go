// Package memory реализует кэш корзин в памяти процесса.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shopcart/internal/cache"
	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

type entry struct {
	data []byte
	// expiresAt нулевой, если запись бессрочная.
	expiresAt time.Time
}

// fence помнит версию последнего записанного снимка и переживает Invalidate.
type fence struct {
	version   int64
	expiresAt time.Time
}

// CartCache хранит сериализованные снимки корзин с TTL.
// Снимки хранятся в байтах, чтобы поведение совпадало с Redis-адаптером.
type CartCache struct {
	mu      sync.Mutex
	entries map[string]entry
	fences  map[string]fence
	now     func() time.Time
}

// Option настраивает CartCache.
type Option func(*CartCache)

// WithClock подменяет источник времени (для тестов TTL).
func WithClock(now func() time.Time) Option {
	return func(c *CartCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCartCache создаёт пустой in-memory кэш.
func NewCartCache(opts ...Option) *CartCache {
	c := &CartCache{
		entries: make(map[string]entry),
		fences:  make(map[string]fence),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get возвращает корзину или ErrCacheMiss. Просроченная или испорченная
// запись удаляется.
func (c *CartCache) Get(ctx context.Context, id string) (domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return domain.Cart{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return domain.Cart{}, domain.ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, id)
		return domain.Cart{}, domain.ErrCacheMiss
	}

	cart, err := cache.Decode(e.data)
	if err != nil {
		delete(c.entries, id)
		return domain.Cart{}, domain.ErrCacheMiss
	}
	return cart, nil
}

// Put сохраняет снимок корзины. ttl <= 0 означает запись без срока жизни.
// Снимок версии ниже уже записанной отбрасывается.
func (c *CartCache) Put(ctx context.Context, cart domain.Cart, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := cache.Encode(cart)
	if err != nil {
		return err
	}

	now := c.now()
	e := entry{data: data}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.fences[cart.ID]; ok {
		expired := !f.expiresAt.IsZero() && !now.Before(f.expiresAt)
		if !expired && f.version > cart.Version {
			return nil
		}
	}
	c.entries[cart.ID] = e
	c.fences[cart.ID] = fence{version: cart.Version, expiresAt: e.expiresAt}
	return nil
}

// Invalidate удаляет запись. Отсутствие записи ошибкой не считается.
func (c *CartCache) Invalidate(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

// Len возвращает число записей, включая ещё не вычищенные просроченные.
func (c *CartCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

var _ domain.CartCache = (*CartCache)(nil)
