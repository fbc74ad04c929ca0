package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcart/internal/cache"
	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

// DefaultKeyPrefix используется, если префикс не задан.
const DefaultKeyPrefix = "cart"

// putIfNotOlder записывает снимок, только если рядом не лежит отметка более
// новой версии. Отметка переживает Invalidate, поэтому запоздавший Put
// старой версии не затирает уже удалённый или обновлённый снимок.
var putIfNotOlder = goredis.NewScript(`
local fence = redis.call('GET', KEYS[2])
if fence and tonumber(fence) > tonumber(ARGV[2]) then
  return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
  redis.call('SET', KEYS[2], ARGV[2], 'PX', ttl)
else
  redis.call('SET', KEYS[1], ARGV[1])
  redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

// CartCache хранит JSON-снимки корзин под ключами "<prefix>:{<cartID>}"
// и версию последнего записанного снимка под "<prefix>:{<cartID>}:version".
type CartCache struct {
	client goredis.UniversalClient
	prefix string
	logger *log.Entry
}

// NewCartCache создаёт кэш поверх готового клиента.
func NewCartCache(client goredis.UniversalClient, prefix string, logger *log.Entry) *CartCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &CartCache{
		client: client,
		prefix: prefix,
		logger: logger.WithField("component", "redis_cart_cache"),
	}
}

// Hash tag держит оба ключа корзины в одном слоте Redis Cluster.
func (c *CartCache) key(id string) string {
	return fmt.Sprintf("%s:{%s}", c.prefix, id)
}

func (c *CartCache) versionKey(id string) string {
	return c.key(id) + ":version"
}

// Get возвращает корзину или ErrCacheMiss. Снимок, который не удалось
// разобрать, удаляется и считается промахом.
func (c *CartCache) Get(ctx context.Context, id string) (domain.Cart, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.Cart{}, domain.ErrCacheMiss
		}
		return domain.Cart{}, fmt.Errorf("redis get %s: %w", id, err)
	}

	cart, err := cache.Decode(data)
	if err != nil {
		c.logger.WithError(err).WithField("cart_id", id).Warn("corrupt cart snapshot, evicting")
		if delErr := c.client.Del(ctx, c.key(id)).Err(); delErr != nil {
			c.logger.WithError(delErr).WithField("cart_id", id).Warn("failed to evict corrupt snapshot")
		}
		return domain.Cart{}, domain.ErrCacheMiss
	}
	return cart, nil
}

// Put сохраняет снимок на ttl. ttl <= 0 сохраняет запись без срока жизни.
// Снимок версии ниже уже записанной молча отбрасывается.
func (c *CartCache) Put(ctx context.Context, cart domain.Cart, ttl time.Duration) error {
	data, err := cache.Encode(cart)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	keys := []string{c.key(cart.ID), c.versionKey(cart.ID)}
	stored, err := putIfNotOlder.Run(ctx, c.client, keys, data, cart.Version, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis set %s: %w", cart.ID, err)
	}
	if stored == 0 {
		c.logger.WithFields(log.Fields{
			"cart_id": cart.ID,
			"version": cart.Version,
		}).Debug("skipped stale cart snapshot")
	}
	return nil
}

// Invalidate удаляет запись. DEL по отсутствующему ключу не ошибка.
func (c *CartCache) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", id, err)
	}
	return nil
}

// Ping проверяет доступность Redis для readiness.
func (c *CartCache) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	return c.client.Ping(pingCtx).Err()
}

var _ domain.CartCache = (*CartCache)(nil)
