package cart_test

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	cachemem "github.com/vladislavdragonenkov/shopcart/internal/cache/memory"
	"github.com/vladislavdragonenkov/shopcart/internal/domain"
	"github.com/vladislavdragonenkov/shopcart/internal/metrics"
	"github.com/vladislavdragonenkov/shopcart/internal/service/cart"
	storagemem "github.com/vladislavdragonenkov/shopcart/internal/storage/memory"
)

const (
	mouseID    = "11111111-1111-1111-1111-111111111111"
	keyboardID = "22222222-2222-2222-2222-222222222222"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	svc       *cart.Service
	rec       *recorder
	repo      *recordingRepo
	cache     *recordingCache
	publisher *fakePublisher
	metrics   *metrics.CartMetrics
}

func newFixture(t *testing.T, opts ...cart.Option) *fixture {
	t.Helper()

	logger := log.New()
	logger.SetOutput(io.Discard)

	rec := &recorder{}
	f := &fixture{
		rec:       rec,
		repo:      &recordingRepo{inner: storagemem.NewCartRepository(), rec: rec},
		cache:     &recordingCache{inner: cachemem.NewCartCache(), rec: rec},
		publisher: &fakePublisher{},
		metrics:   metrics.NewCartMetricsWithRegisterer(prometheus.NewRegistry()),
	}
	catalog := storagemem.NewSeededCatalog()

	all := append([]cart.Option{
		cart.WithLogger(log.NewEntry(logger)),
		cart.WithPublisher(f.publisher),
		cart.WithMetrics(f.metrics),
	}, opts...)
	f.svc = cart.NewService(f.repo, f.cache, catalog, catalog, all...)
	return f
}

func (f *fixture) createCart(t *testing.T) string {
	t.Helper()
	id, err := f.svc.CreateCart(context.Background(), "user-U")
	require.NoError(t, err)
	f.rec.Reset()
	return id
}

func TestService_CreateCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.CreateCart(ctx, "user-U")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, []string{"store.create"}, f.rec.Calls(), "create must not touch the cache")
	assert.Equal(t, []domain.CartEventType{domain.CartEventCreated}, f.publisher.Types())

	_, err = f.svc.CreateCart(ctx, "  ")
	assert.True(t, domain.IsInvalidArgument(err), "expected invalid argument, got %v", err)
}

func TestService_CacheAsideScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createCart(t)

	// Первое чтение: промах кэша, ответ из хранилища, кэш не заполняется.
	view, err := f.svc.GetCart(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Equal(t, []string{"cache.get", "store.get"}, f.rec.Calls())
	_, err = f.cache.inner.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrCacheMiss, "read must not repopulate the cache")

	require.NoError(t, f.svc.AddItem(ctx, id, mouseID, 2))

	// Подкладываем в кэш устаревший снимок: мутация обязана читать хранилище.
	stale, err := f.repo.inner.Get(ctx, id)
	require.NoError(t, err)
	require.NoError(t, stale.UpdateQuantity(mouseID, 97))
	require.NoError(t, f.cache.inner.Put(ctx, stale, time.Minute))

	f.rec.Reset()
	require.NoError(t, f.svc.AddItem(ctx, id, mouseID, 3))
	assert.Equal(t, []string{"store.get", "store.update", "cache.invalidate", "cache.put"}, f.rec.Calls())

	f.rec.Reset()
	view, err = f.svc.GetCart(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"cache.get"}, f.rec.Calls(), "cache hit must not consult the store")
	require.Len(t, view.Items, 1)
	assert.Equal(t, 5, view.Items[0].Quantity)
	assert.Equal(t, "499.50", view.Total)
	assert.Equal(t, int64(2), view.Version)
	assert.Equal(t, cart.DefaultCacheTTL, f.cache.lastTTL)
}

func TestService_ApplyDiscountInvalidatesBeforeStoreRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createCart(t)

	require.NoError(t, f.svc.AddItem(ctx, id, keyboardID, 1))
	addCalls := f.rec.Calls()
	assert.Less(t, indexOf(addCalls, "store.get"), indexOf(addCalls, "cache.invalidate"),
		"add item invalidates only after the authoritative read and write")

	f.rec.Reset()
	require.NoError(t, f.svc.ApplyDiscount(ctx, id, "summer20"))
	assert.Equal(t, []string{"cache.invalidate", "store.get", "store.update", "cache.put"}, f.rec.Calls())

	view, err := f.svc.GetCart(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, view.Discount)
	assert.Equal(t, "SUMMER20", view.Discount.Code)
	assert.Equal(t, "250.00", view.Subtotal)
	assert.Equal(t, "50.00", view.DiscountAmount)
	assert.Equal(t, "200.00", view.Total)
}

func TestService_ApplyDiscountErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createCart(t)

	err := f.svc.ApplyDiscount(ctx, id, "NOPE")
	assert.ErrorIs(t, err, domain.ErrDiscountNotFound)
	assert.Zero(t, f.rec.Count("store.update"))

	err = f.svc.ApplyDiscount(ctx, "missing", "SUMMER20")
	assert.ErrorIs(t, err, domain.ErrCartNotFound)

	err = f.svc.ApplyDiscount(ctx, id, " ")
	assert.ErrorIs(t, err, domain.ErrDiscountCodeRequired)
}

func TestService_FixedDiscountAboveSubtotalFloorsAtZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createCart(t)

	require.NoError(t, f.svc.AddItem(ctx, id, "33333333-3333-3333-3333-333333333333", 1))
	require.NoError(t, f.svc.ApplyDiscount(ctx, id, "WELCOME10"))
	require.NoError(t, f.svc.RemoveItem(ctx, id, "33333333-3333-3333-3333-333333333333"))
	require.NoError(t, f.svc.ApplyDiscount(ctx, id, "FIXED50"))

	view, err := f.svc.GetCart(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "0.00", view.Total)
	assert.Equal(t, "0.00", view.DiscountAmount)
}

func TestService_AddItemUnknownProductDoesNotWrite(t *testing.T) {
	f := newFixture(t)
	id := f.createCart(t)

	err := f.svc.AddItem(context.Background(), id, "no-such-product", 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.True(t, domain.IsNotFound(err))
	assert.Equal(t, []string{"store.get"}, f.rec.Calls())
}

func TestService_AddItemRejectsNonPositiveQuantityBeforeIO(t *testing.T) {
	f := newFixture(t)
	id := f.createCart(t)

	for _, qty := range []int{0, -1} {
		err := f.svc.AddItem(context.Background(), id, mouseID, qty)
		assert.True(t, domain.IsInvalidArgument(err), "qty %d: expected invalid argument, got %v", qty, err)
	}
	assert.Empty(t, f.rec.Calls())
}

func TestService_AddItemRejectsQuantityAboveLimitBeforeIO(t *testing.T) {
	f := newFixture(t)
	id := f.createCart(t)

	err := f.svc.AddItem(context.Background(), id, mouseID, math.MaxInt)
	assert.ErrorIs(t, err, domain.ErrQuantityInvalid)
	assert.Empty(t, f.rec.Calls())
}

func TestService_AddItemMergeOverflowKeepsLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createCart(t)
	require.NoError(t, f.svc.AddItem(ctx, id, mouseID, 1))

	f.rec.Reset()
	err := f.svc.AddItem(ctx, id, mouseID, domain.MaxQuantity)
	assert.ErrorIs(t, err, domain.ErrQuantityInvalid)
	assert.True(t, domain.IsInvalidArgument(err))
	assert.Equal(t, []string{"store.get"}, f.rec.Calls(), "rejected merge must not write")

	view, err := f.svc.GetCart(ctx, id)
	require.NoError(t, err)
	item, ok := view.Item(mouseID)
	require.True(t, ok, "line must survive a rejected merge")
	assert.Equal(t, 1, item.Quantity)
}

func TestService_AddItemMissingCart(t *testing.T) {
	f := newFixture(t)
	err := f.svc.AddItem(context.Background(), "missing", mouseID, 1)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestService_RemoveItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createCart(t)
	require.NoError(t, f.svc.AddItem(ctx, id, mouseID, 1))
	require.NoError(t, f.svc.AddItem(ctx, id, keyboardID, 1))

	f.rec.Reset()
	require.NoError(t, f.svc.RemoveItem(ctx, id, "absent"))
	assert.Equal(t, []string{"store.get"}, f.rec.Calls(), "removing an absent line is a no-op")

	f.rec.Reset()
	require.NoError(t, f.svc.RemoveItem(ctx, id, mouseID))
	assert.Equal(t, []string{"store.get", "store.update", "cache.invalidate", "cache.put"}, f.rec.Calls())

	view, err := f.svc.GetCart(ctx, id)
	require.NoError(t, err)
	_, ok := view.Item(mouseID)
	assert.False(t, ok)
	_, ok = view.Item(keyboardID)
	assert.True(t, ok)

	assert.ErrorIs(t, f.svc.RemoveItem(ctx, "missing", mouseID), domain.ErrCartNotFound)
}

func TestService_CanceledBeforeWriteHasNoEffect(t *testing.T) {
	f := newFixture(t)
	id := f.createCart(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.svc.AddItem(ctx, id, mouseID, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.rec.Count("store.update"))
	assert.Zero(t, f.rec.Count("cache.put"))
}

func TestService_CanceledAfterWriteCompletesTail(t *testing.T) {
	f := newFixture(t)
	id := f.createCart(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.repo.afterUpdate = cancel

	require.NoError(t, f.svc.AddItem(ctx, id, mouseID, 2))
	assert.Equal(t, 1, f.rec.Count("cache.put"))

	cached, err := f.cache.inner.Get(context.Background(), id)
	require.NoError(t, err)
	item, ok := cached.Item(mouseID)
	require.True(t, ok)
	assert.Equal(t, 2, item.Quantity)
	assert.Contains(t, f.publisher.Types(), domain.CartEventItemAdded)
}

func TestService_InterleavedMutationsDoNotCacheOlderVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createCart(t)

	// Вторая мутация целиком проходит между записью первой и её обновлением кэша.
	var nested bool
	f.repo.afterUpdate = func() {
		if nested {
			return
		}
		nested = true
		require.NoError(t, f.svc.AddItem(ctx, id, keyboardID, 1))
	}
	require.NoError(t, f.svc.AddItem(ctx, id, mouseID, 1))

	view, err := f.svc.GetCart(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.Version)
	assert.Len(t, view.Items, 2)
}

func TestService_VersionConflictSurfaces(t *testing.T) {
	f := newFixture(t)
	id := f.createCart(t)
	f.repo.updateErr = domain.ErrCartVersionConflict

	err := f.svc.AddItem(context.Background(), id, mouseID, 1)
	assert.True(t, domain.IsConflict(err), "expected conflict, got %v", err)
	assert.Zero(t, f.rec.Count("cache.put"), "cache must not be repopulated after a failed write")
}

func TestService_CacheFailures(t *testing.T) {
	t.Run("read degrades to store", func(t *testing.T) {
		f := newFixture(t)
		id := f.createCart(t)
		f.cache.getErr = errors.New("connection refused")

		view, err := f.svc.GetCart(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, view.ID)
		assert.Equal(t, []string{"cache.get", "store.get"}, f.rec.Calls())
	})

	t.Run("repopulate failure is reported", func(t *testing.T) {
		f := newFixture(t)
		id := f.createCart(t)
		f.cache.putErr = errors.New("connection refused")

		err := f.svc.AddItem(context.Background(), id, mouseID, 1)
		require.Error(t, err)

		stored, getErr := f.repo.inner.Get(context.Background(), id)
		require.NoError(t, getErr)
		assert.True(t, stored.HasItem(mouseID), "store write must have happened")
	})

	t.Run("apply discount stops when invalidation fails", func(t *testing.T) {
		f := newFixture(t)
		id := f.createCart(t)
		f.cache.invalidateErr = errors.New("connection refused")

		require.Error(t, f.svc.ApplyDiscount(context.Background(), id, "SUMMER20"))
		assert.Equal(t, []string{"cache.invalidate"}, f.rec.Calls())
	})
}

func TestService_GetCartNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetCart(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrCartNotFound)

	_, err = f.svc.GetCart(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrCartIDRequired)
}

func TestService_DeleteCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createCart(t)
	require.NoError(t, f.svc.AddItem(ctx, id, mouseID, 1))

	f.rec.Reset()
	require.NoError(t, f.svc.DeleteCart(ctx, id))
	assert.Equal(t, []string{"store.get", "store.delete", "cache.invalidate"}, f.rec.Calls())

	_, err := f.svc.GetCart(ctx, id)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
	assert.ErrorIs(t, f.svc.DeleteCart(ctx, id), domain.ErrCartNotFound)
	assert.Contains(t, f.publisher.Types(), domain.CartEventDeleted)
}

func TestService_PublishFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")

	id, err := f.svc.CreateCart(context.Background(), "user-U")
	require.NoError(t, err)
	require.NoError(t, f.svc.AddItem(context.Background(), id, mouseID, 1))
}

func TestService_CustomCacheTTL(t *testing.T) {
	f := newFixture(t, cart.WithCacheTTL(time.Minute))
	id := f.createCart(t)

	require.NoError(t, f.svc.AddItem(context.Background(), id, mouseID, 1))
	assert.Equal(t, time.Minute, f.cache.lastTTL)
}

func TestService_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, cart.WithMetrics(metrics.NewCartMetricsWithRegisterer(reg)))
	ctx := context.Background()
	id := f.createCart(t)

	_, err := f.svc.GetCart(ctx, id)
	require.NoError(t, err)
	require.NoError(t, f.svc.AddItem(ctx, id, mouseID, 1))
	_, err = f.svc.GetCart(ctx, id)
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.AddItem(ctx, id, "ghost", 1), domain.ErrProductNotFound)

	assert.Equal(t, 1.0, counterValue(t, reg, "shopcart_cart_cache_requests_total", map[string]string{"result": "miss"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "shopcart_cart_cache_requests_total", map[string]string{"result": "hit"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "shopcart_cart_operations_total", map[string]string{"operation": "add_item", "result": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "shopcart_cart_operations_total", map[string]string{"operation": "add_item", "result": "not_found"}))
	assert.Equal(t, 2.0, counterValue(t, reg, "shopcart_cart_operations_total", map[string]string{"operation": "get_cart", "result": "ok"}))
	assert.Equal(t, 2.0, counterValue(t, reg, "shopcart_cart_events_published_total", map[string]string{"result": "ok"}))
}

// counterValue ищет счётчик с точным набором label-ов.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			if matchLabels(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	if len(m.GetLabel()) != len(labels) {
		return false
	}
	for _, pair := range m.GetLabel() {
		if labels[pair.GetName()] != pair.GetValue() {
			return false
		}
	}
	return true
}

func indexOf(calls []string, call string) int {
	for i, c := range calls {
		if c == call {
			return i
		}
	}
	return -1
}
