// Package redis реализует кэш корзин поверх Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultPingTimeout = 2 * time.Second

// Option настраивает redis.Options клиента.
type Option func(*goredis.Options)

// WithPassword задаёт пароль AUTH.
func WithPassword(password string) Option {
	return func(o *goredis.Options) {
		o.Password = password
	}
}

// WithDB выбирает номер логической базы.
func WithDB(db int) Option {
	return func(o *goredis.Options) {
		o.DB = db
	}
}

// WithPoolSize ограничивает пул соединений.
func WithPoolSize(poolSize int) Option {
	return func(o *goredis.Options) {
		if poolSize > 0 {
			o.PoolSize = poolSize
		}
	}
}

// NewClient создаёт клиента и проверяет соединение PING-ом.
func NewClient(ctx context.Context, addr string, opts ...Option) (*goredis.Client, error) {
	options := &goredis.Options{Addr: addr}
	for _, opt := range opts {
		opt(options)
	}

	client := goredis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}
