package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

// cartRepositoryInMemory: простая in-memory реализация CartRepository.
type cartRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Cart
}

// NewCartRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{
		items: make(map[string]domain.Cart),
	}
}

// Create сохраняет новую корзину, если ID ещё не занят.
func (r *cartRepositoryInMemory) Create(ctx context.Context, cart domain.Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[cart.ID]; exists {
		return domain.ErrCartExists
	}
	// Храним копию, чтобы вызывающий код не мутировал состояние хранилища.
	r.items[cart.ID] = cart.Clone()
	return nil
}

// Get возвращает копию корзины или ErrCartNotFound.
func (r *cartRepositoryInMemory) Get(ctx context.Context, id string) (domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return domain.Cart{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.items[id]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cart.Clone(), nil
}

// Update заменяет корзину целиком, проверяя версию (optimistic locking).
func (r *cartRepositoryInMemory) Update(ctx context.Context, id string, cart domain.Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.ErrCartNotFound
	}
	if current.Version != cart.Version {
		return domain.ErrCartVersionConflict
	}

	next := cart.Clone()
	next.ID = id
	next.UserID = current.UserID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	next.Version = current.Version + 1
	r.items[id] = next
	return nil
}

// Delete удаляет корзину по идентификатору.
func (r *cartRepositoryInMemory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrCartNotFound
	}
	delete(r.items, id)
	return nil
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
