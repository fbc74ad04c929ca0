package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"

	cachememory "github.com/vladislavdragonenkov/shopcart/internal/cache/memory"
	"github.com/vladislavdragonenkov/shopcart/internal/cache/redis"
	"github.com/vladislavdragonenkov/shopcart/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/shopcart/internal/health"
	"github.com/vladislavdragonenkov/shopcart/internal/storage/memory"
	"github.com/vladislavdragonenkov/shopcart/internal/storage/postgres"
)

const dependencyCheckTimeout = 2 * time.Second

// runtimeDependencies содержит инфраструктуру, выбранную конфигурацией.
type runtimeDependencies struct {
	carts     domain.CartRepository
	cache     domain.CartCache
	catalog   domain.ProductCatalog
	discounts domain.DiscountLookup
	// publisher равен nil, если Kafka не настроена.
	publisher domain.EventPublisher

	storageChecker healthcheck.Checker
	cacheChecker   healthcheck.Checker

	closers []func() error
}

// closeFn закрывает ресурсы в обратном порядке открытия.
func (d *runtimeDependencies) closeFn() error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, closeOne := range slices.Backward(d.closers) {
		if err := closeOne(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (deps *runtimeDependencies, err error) {
	deps = &runtimeDependencies{}
	defer func() {
		if err != nil {
			err = errors.Join(err, deps.closeFn())
			deps = nil
		}
	}()

	if err := initStorage(ctx, cfg, deps, logger); err != nil {
		return deps, err
	}
	if err := initCache(ctx, cfg, deps, logger); err != nil {
		return deps, err
	}

	producer, kafkaErr := initKafkaProducer(cfg, logger)
	if kafkaErr == nil && producer != nil {
		deps.publisher = producer
		deps.closers = append(deps.closers, func() error { return closeKafka(producer, logger) })
	}
	return deps, nil
}

func initStorage(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		catalog := memory.NewSeededCatalog()
		deps.carts = memory.NewCartRepository()
		deps.catalog = catalog
		deps.discounts = catalog
		logger.Info("using in-memory cart storage")
		return nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return errors.New("postgres dsn is required for postgres storage driver")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		deps.closers = append(deps.closers, store.Close)

		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}

		catalog := postgres.NewCatalogRepository(store)
		deps.carts = postgres.NewCartRepository(store)
		deps.catalog = catalog
		deps.discounts = catalog
		deps.storageChecker = healthcheck.NewPingChecker("storage", dependencyCheckTimeout, store.Ping)
		logger.Info("using postgres cart storage")
		return nil
	default:
		return fmt.Errorf("unsupported storage driver: %q", cfg.StorageDriver)
	}
}

func initCache(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	switch cfg.CacheDriver {
	case CacheDriverMemory:
		deps.cache = cachememory.NewCartCache()
		logger.Info("using in-memory cart cache")
		return nil
	case CacheDriverRedis:
		client, err := redis.NewClient(ctx, cfg.RedisAddr,
			redis.WithPassword(cfg.RedisPassword),
			redis.WithDB(cfg.RedisDB),
			redis.WithPoolSize(cfg.RedisPoolSize),
		)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		deps.closers = append(deps.closers, client.Close)

		cache := redis.NewCartCache(client, cfg.RedisKeyPrefix, logger.WithField("layer", "redis"))
		deps.cache = cache
		deps.cacheChecker = healthcheck.NewPingChecker("cache", dependencyCheckTimeout, cache.Ping)
		logger.WithField("redis_addr", cfg.RedisAddr).Info("using redis cart cache")
		return nil
	default:
		return fmt.Errorf("unsupported cache driver: %q", cfg.CacheDriver)
	}
}
