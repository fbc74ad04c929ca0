// Package cart реализует cache-aside оркестрацию операций корзины поверх
// хранилища (источник истины) и кэша снимков.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
	"github.com/vladislavdragonenkov/shopcart/internal/metrics"
)

// DefaultCacheTTL: срок жизни снимка корзины в кэше.
const DefaultCacheTTL = 10 * time.Minute

const (
	opCreateCart    = "create_cart"
	opGetCart       = "get_cart"
	opAddItem       = "add_item"
	opRemoveItem    = "remove_item"
	opApplyDiscount = "apply_discount"
	opDeleteCart    = "delete_cart"
)

// Service: оркестратор операций корзины.
//
// Порядок для всех мутаций: запись в хранилище всегда раньше повторного
// заполнения кэша. AddItem и RemoveItem инвалидируют кэш сразу после записи,
// ApplyDiscount инвалидирует его до чтения из хранилища. После успешной записи
// хвост (кэш, событие) выполняется даже при отмене контекста вызывающим.
type Service struct {
	carts     domain.CartRepository
	cache     domain.CartCache
	catalog   domain.ProductCatalog
	discounts domain.DiscountLookup

	publisher domain.EventPublisher
	metrics   *metrics.CartMetrics
	cacheTTL  time.Duration
	logger    *log.Entry
}

// Option настраивает Service.
type Option func(*Service)

// WithPublisher включает публикацию событий корзины.
func WithPublisher(publisher domain.EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithMetrics включает сбор метрик.
func WithMetrics(m *metrics.CartMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCacheTTL задаёт TTL снимков в кэше.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService создаёт оркестратор.
func NewService(
	carts domain.CartRepository,
	cache domain.CartCache,
	catalog domain.ProductCatalog,
	discounts domain.DiscountLookup,
	opts ...Option,
) *Service {
	s := &Service{
		carts:     carts,
		cache:     cache,
		catalog:   catalog,
		discounts: discounts,
		cacheTTL:  DefaultCacheTTL,
		logger:    log.New().WithField("component", "cart"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("layer", "service")
	return s
}

// CreateCart создаёт пустую корзину владельца. Кэш не заполняется:
// снимок появится после первой мутации.
func (s *Service) CreateCart(ctx context.Context, ownerID string) (_ string, err error) {
	defer s.observe(opCreateCart)(&err)

	cart, err := domain.NewCart(ownerID)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.carts.Create(ctx, cart); err != nil {
		return "", fmt.Errorf("create cart: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"cart_id": cart.ID,
		"user_id": cart.UserID,
	}).Info("cart created")
	s.publish(context.WithoutCancel(ctx), domain.CartEventCreated, cart, nil)

	return cart.ID, nil
}

// GetCart читает корзину: сначала кэш, при промахе хранилище.
// Чтение кэш не заполняет.
func (s *Service) GetCart(ctx context.Context, cartID string) (_ CartView, err error) {
	defer s.observe(opGetCart)(&err)

	if strings.TrimSpace(cartID) == "" {
		return CartView{}, domain.ErrCartIDRequired
	}

	cached, err := s.cache.Get(ctx, cartID)
	switch {
	case err == nil:
		s.metrics.RecordCacheLookup(metrics.ResultHit)
		return NewCartView(cached), nil
	case errors.Is(err, domain.ErrCacheMiss):
		s.metrics.RecordCacheLookup(metrics.ResultMiss)
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return CartView{}, ctxErr
		}
		// Недоступный кэш деградирует до чтения из хранилища.
		s.metrics.RecordCacheLookup(metrics.ResultError)
		s.logger.WithError(err).WithField("cart_id", cartID).Warn("cart cache lookup failed, reading store")
	}

	cart, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return CartView{}, fmt.Errorf("get cart %s: %w", cartID, err)
	}
	return NewCartView(cart), nil
}

// AddItem добавляет товар в корзину или увеличивает количество существующей
// позиции. Корзина читается из хранилища, не из кэша.
func (s *Service) AddItem(ctx context.Context, cartID, productID string, quantity int) (err error) {
	defer s.observe(opAddItem)(&err)

	if quantity <= 0 || quantity > domain.MaxQuantity {
		return domain.ErrQuantityInvalid
	}
	if err := requireIDs(cartID, productID); err != nil {
		return err
	}

	cart, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return fmt.Errorf("get cart %s: %w", cartID, err)
	}

	if cart.HasItem(productID) {
		if err := cart.UpdateQuantity(productID, quantity); err != nil {
			return err
		}
	} else {
		product, err := s.catalog.GetProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("get product %s: %w", productID, err)
		}
		if err := cart.AddItem(product, quantity); err != nil {
			return err
		}
	}

	if err := s.persist(ctx, &cart); err != nil {
		return err
	}

	tail := context.WithoutCancel(ctx)
	if err := s.refreshCache(tail, cart, true); err != nil {
		return err
	}

	item, _ := cart.Item(productID)
	s.logger.WithFields(log.Fields{
		"cart_id":    cart.ID,
		"product_id": productID,
		"quantity":   item.Quantity,
		"version":    cart.Version,
	}).Info("item added to cart")
	s.publish(tail, domain.CartEventItemAdded, cart, map[string]string{
		"product_id": productID,
		"quantity":   strconv.Itoa(item.Quantity),
	})

	return nil
}

// RemoveItem удаляет позицию. Отсутствующая позиция: успешный no-op без записи.
func (s *Service) RemoveItem(ctx context.Context, cartID, productID string) (err error) {
	defer s.observe(opRemoveItem)(&err)

	if err := requireIDs(cartID, productID); err != nil {
		return err
	}

	cart, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return fmt.Errorf("get cart %s: %w", cartID, err)
	}
	if !cart.HasItem(productID) {
		s.logger.WithFields(log.Fields{
			"cart_id":    cartID,
			"product_id": productID,
		}).Debug("item not in cart, nothing to remove")
		return nil
	}
	cart.RemoveItem(productID)

	if err := s.persist(ctx, &cart); err != nil {
		return err
	}

	tail := context.WithoutCancel(ctx)
	if err := s.refreshCache(tail, cart, true); err != nil {
		return err
	}

	s.logger.WithFields(log.Fields{
		"cart_id":    cart.ID,
		"product_id": productID,
		"version":    cart.Version,
	}).Info("item removed from cart")
	s.publish(tail, domain.CartEventItemRemoved, cart, map[string]string{"product_id": productID})

	return nil
}

// ApplyDiscount применяет скидку по коду, заменяя предыдущую.
// Кэш инвалидируется до чтения из хранилища.
func (s *Service) ApplyDiscount(ctx context.Context, cartID, code string) (err error) {
	defer s.observe(opApplyDiscount)(&err)

	if strings.TrimSpace(cartID) == "" {
		return domain.ErrCartIDRequired
	}
	if strings.TrimSpace(code) == "" {
		return domain.ErrDiscountCodeRequired
	}

	if err := s.cache.Invalidate(ctx, cartID); err != nil {
		return fmt.Errorf("invalidate cart cache %s: %w", cartID, err)
	}

	cart, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return fmt.Errorf("get cart %s: %w", cartID, err)
	}
	discount, err := s.discounts.GetDiscountByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("get discount %s: %w", code, err)
	}
	cart.ApplyDiscount(discount)

	if err := s.persist(ctx, &cart); err != nil {
		return err
	}

	tail := context.WithoutCancel(ctx)
	if err := s.refreshCache(tail, cart, false); err != nil {
		return err
	}

	s.logger.WithFields(log.Fields{
		"cart_id":       cart.ID,
		"discount_code": discount.Code,
		"total":         cart.CalculateTotal().String(),
	}).Info("discount applied to cart")
	s.publish(tail, domain.CartEventDiscountApplied, cart, map[string]string{
		"discount_code": discount.Code,
		"discount_kind": string(discount.Kind),
	})

	return nil
}

// DeleteCart удаляет корзину из хранилища и затем её снимок из кэша.
func (s *Service) DeleteCart(ctx context.Context, cartID string) (err error) {
	defer s.observe(opDeleteCart)(&err)

	if strings.TrimSpace(cartID) == "" {
		return domain.ErrCartIDRequired
	}
	cart, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return fmt.Errorf("get cart %s: %w", cartID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.carts.Delete(ctx, cartID); err != nil {
		return fmt.Errorf("delete cart %s: %w", cartID, err)
	}

	tail := context.WithoutCancel(ctx)
	if err := s.cache.Invalidate(tail, cartID); err != nil {
		return fmt.Errorf("invalidate cart cache %s: %w", cartID, err)
	}

	s.logger.WithField("cart_id", cartID).Info("cart deleted")
	s.publish(tail, domain.CartEventDeleted, cart, nil)
	return nil
}

// persist записывает корзину с проверкой версии. Отменённый до записи
// контекст не приводит ни к каким побочным эффектам.
func (s *Service) persist(ctx context.Context, cart *domain.Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.carts.Update(ctx, cart.ID, *cart); err != nil {
		return fmt.Errorf("update cart %s: %w", cart.ID, err)
	}
	// Версия снимка должна совпасть с сохранённой.
	cart.Version++
	cart.UpdatedAt = time.Now().UTC()
	return nil
}

// refreshCache кладёт в кэш только что записанную корзину. Ошибки кэша
// возвращаются вызывающему, запись в хранилище при этом уже выполнена.
func (s *Service) refreshCache(ctx context.Context, cart domain.Cart, invalidate bool) error {
	var errs []error
	if invalidate {
		if err := s.cache.Invalidate(ctx, cart.ID); err != nil {
			errs = append(errs, fmt.Errorf("invalidate cart cache %s: %w", cart.ID, err))
		}
	}
	if err := s.cache.Put(ctx, cart, s.cacheTTL); err != nil {
		errs = append(errs, fmt.Errorf("repopulate cart cache %s: %w", cart.ID, err))
	}
	if len(errs) > 0 {
		s.logger.WithError(errors.Join(errs...)).WithField("cart_id", cart.ID).Error("cart cache refresh failed after store write")
	}
	return errors.Join(errs...)
}

func (s *Service) publish(ctx context.Context, eventType domain.CartEventType, cart domain.Cart, attrs map[string]string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, domain.NewCartEvent(eventType, cart, attrs)); err != nil {
		s.metrics.RecordEventPublished(metrics.ResultError)
		s.logger.WithError(err).WithFields(log.Fields{
			"cart_id":    cart.ID,
			"event_type": eventType,
		}).Warn("failed to publish cart event")
		return
	}
	s.metrics.RecordEventPublished(metrics.ResultOK)
}

// observe фиксирует длительность и результат операции.
// Использование: defer s.observe(op)(&err).
func (s *Service) observe(operation string) func(*error) {
	start := time.Now()
	s.metrics.OperationStarted()
	return func(errp *error) {
		result := metrics.ResultOK
		if errp != nil && *errp != nil {
			result = string(domain.KindOf(*errp))
		}
		s.metrics.OperationFinished(operation, result, time.Since(start))
	}
}

func requireIDs(cartID, productID string) error {
	if strings.TrimSpace(cartID) == "" {
		return domain.ErrCartIDRequired
	}
	if strings.TrimSpace(productID) == "" {
		return domain.ErrProductIDRequired
	}
	return nil
}
