package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vladislavdragonenkov/shopcart/internal/cache/redis"
	"github.com/vladislavdragonenkov/shopcart/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopcart/internal/service/cart"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

const (
	envPrefix     = "SHOPCART"
	envConfigFile = "SHOPCART_CONFIG_FILE"
)

const (
	keyGRPCAddr            = "grpc_addr"
	keyMetricsAddr         = "metrics_addr"
	keyLogLevel            = "log_level"
	keyStorageDriver       = "storage_driver"
	keyPostgresDSN         = "postgres_dsn"
	keyPostgresAutoMigrate = "postgres_auto_migrate"
	keyCacheDriver         = "cache_driver"
	keyRedisAddr           = "redis_addr"
	keyRedisPassword       = "redis_password"
	keyRedisDB             = "redis_db"
	keyRedisPoolSize       = "redis_pool_size"
	keyRedisKeyPrefix      = "redis_key_prefix"
	keyCartCacheTTL        = "cart_cache_ttl"
	keyKafkaBrokers        = "kafka_brokers"
	keyKafkaTopic          = "kafka_topic"
	keyHealthPollInterval  = "health_poll_interval"
)

// Config описывает настройки запуска сервиса корзин.
type Config struct {
	GRPCAddr    string
	MetricsAddr string
	LogLevel    string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	CacheDriver    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPoolSize  int
	RedisKeyPrefix string
	CartCacheTTL   time.Duration

	// KafkaBrokers: список через запятую, пустая строка отключает события.
	KafkaBrokers string
	KafkaTopic   string

	HealthPollInterval time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		LogLevel:            "info",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		CacheDriver:         CacheDriverMemory,
		RedisAddr:           "localhost:6379",
		RedisPoolSize:       10,
		RedisKeyPrefix:      redis.DefaultKeyPrefix,
		CartCacheTTL:        cart.DefaultCacheTTL,
		KafkaTopic:          kafka.DefaultTopicCartEvents,
		HealthPollInterval:  10 * time.Second,
	}
}

// LoadConfig читает конфигурацию из переменных окружения SHOPCART_* и,
// если задан SHOPCART_CONFIG_FILE, из файла. Окружение приоритетнее файла.
func LoadConfig() (Config, error) {
	v := newViper()
	if path := strings.TrimSpace(os.Getenv(envConfigFile)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return configFromViper(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault(keyGRPCAddr, def.GRPCAddr)
	v.SetDefault(keyMetricsAddr, def.MetricsAddr)
	v.SetDefault(keyLogLevel, def.LogLevel)
	v.SetDefault(keyStorageDriver, def.StorageDriver)
	v.SetDefault(keyPostgresDSN, def.PostgresDSN)
	v.SetDefault(keyPostgresAutoMigrate, def.PostgresAutoMigrate)
	v.SetDefault(keyCacheDriver, def.CacheDriver)
	v.SetDefault(keyRedisAddr, def.RedisAddr)
	v.SetDefault(keyRedisPassword, def.RedisPassword)
	v.SetDefault(keyRedisDB, def.RedisDB)
	v.SetDefault(keyRedisPoolSize, def.RedisPoolSize)
	v.SetDefault(keyRedisKeyPrefix, def.RedisKeyPrefix)
	v.SetDefault(keyCartCacheTTL, def.CartCacheTTL)
	v.SetDefault(keyKafkaBrokers, def.KafkaBrokers)
	v.SetDefault(keyKafkaTopic, def.KafkaTopic)
	v.SetDefault(keyHealthPollInterval, def.HealthPollInterval)
	return v
}

func configFromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		GRPCAddr:            strings.TrimSpace(v.GetString(keyGRPCAddr)),
		MetricsAddr:         strings.TrimSpace(v.GetString(keyMetricsAddr)),
		LogLevel:            strings.ToLower(strings.TrimSpace(v.GetString(keyLogLevel))),
		StorageDriver:       strings.ToLower(strings.TrimSpace(v.GetString(keyStorageDriver))),
		PostgresDSN:         strings.TrimSpace(v.GetString(keyPostgresDSN)),
		PostgresAutoMigrate: v.GetBool(keyPostgresAutoMigrate),
		CacheDriver:         strings.ToLower(strings.TrimSpace(v.GetString(keyCacheDriver))),
		RedisAddr:           strings.TrimSpace(v.GetString(keyRedisAddr)),
		RedisPassword:       v.GetString(keyRedisPassword),
		RedisDB:             v.GetInt(keyRedisDB),
		RedisPoolSize:       v.GetInt(keyRedisPoolSize),
		RedisKeyPrefix:      strings.TrimSpace(v.GetString(keyRedisKeyPrefix)),
		CartCacheTTL:        v.GetDuration(keyCartCacheTTL),
		KafkaBrokers:        strings.TrimSpace(v.GetString(keyKafkaBrokers)),
		KafkaTopic:          strings.TrimSpace(v.GetString(keyKafkaTopic)),
		HealthPollInterval:  v.GetDuration(keyHealthPollInterval),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver: %q", c.StorageDriver))
	}

	switch c.CacheDriver {
	case CacheDriverMemory:
	case CacheDriverRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis addr is required for redis cache driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported cache driver: %q", c.CacheDriver))
	}

	if c.CartCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("cart cache ttl must be positive, got %s", c.CartCacheTTL))
	}
	if c.HealthPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("health poll interval must be positive, got %s", c.HealthPollInterval))
	}
	if c.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("redis db must be >= 0, got %d", c.RedisDB))
	}
	return errors.Join(errs...)
}

// KafkaBrokerList разбирает KafkaBrokers, отбрасывая пустые элементы.
func (c Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
