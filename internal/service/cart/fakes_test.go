package cart_test

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

// recorder фиксирует последовательность обращений к хранилищу и кэшу.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *recorder) Count(call string) int {
	n := 0
	for _, c := range r.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

type recordingRepo struct {
	inner domain.CartRepository
	rec   *recorder

	updateErr error
	// afterUpdate вызывается после успешной записи.
	afterUpdate func()
}

func (r *recordingRepo) Get(ctx context.Context, id string) (domain.Cart, error) {
	r.rec.record("store.get")
	return r.inner.Get(ctx, id)
}

func (r *recordingRepo) Create(ctx context.Context, cart domain.Cart) error {
	r.rec.record("store.create")
	return r.inner.Create(ctx, cart)
}

func (r *recordingRepo) Update(ctx context.Context, id string, cart domain.Cart) error {
	r.rec.record("store.update")
	if r.updateErr != nil {
		return r.updateErr
	}
	if err := r.inner.Update(ctx, id, cart); err != nil {
		return err
	}
	if r.afterUpdate != nil {
		r.afterUpdate()
	}
	return nil
}

func (r *recordingRepo) Delete(ctx context.Context, id string) error {
	r.rec.record("store.delete")
	return r.inner.Delete(ctx, id)
}

type recordingCache struct {
	inner domain.CartCache
	rec   *recorder

	getErr        error
	putErr        error
	invalidateErr error
	lastTTL       time.Duration
}

func (c *recordingCache) Get(ctx context.Context, id string) (domain.Cart, error) {
	c.rec.record("cache.get")
	if c.getErr != nil {
		return domain.Cart{}, c.getErr
	}
	return c.inner.Get(ctx, id)
}

func (c *recordingCache) Put(ctx context.Context, cart domain.Cart, ttl time.Duration) error {
	c.rec.record("cache.put")
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.putErr != nil {
		return c.putErr
	}
	c.lastTTL = ttl
	return c.inner.Put(ctx, cart, ttl)
}

func (c *recordingCache) Invalidate(ctx context.Context, id string) error {
	c.rec.record("cache.invalidate")
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.invalidateErr != nil {
		return c.invalidateErr
	}
	return c.inner.Invalidate(ctx, id)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.CartEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, event domain.CartEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) Types() []domain.CartEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.CartEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
