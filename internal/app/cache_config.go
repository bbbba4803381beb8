package app

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/linkcard/internal/cache"
)

// Cache backends.
const (
	CacheBackendDatabase = "database"
	CacheBackendMemory   = "memory"
	CacheBackendRedis    = "redis"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// OpenStore builds the configured cache backend. An unreachable redis falls
// back to the database store; the returned backend names the store in use.
func (c CacheConfig) OpenStore(db *gorm.DB, log *zap.Logger) (cache.Store, string, error) {
	backend := strings.ToLower(strings.TrimSpace(c.Backend))
	switch backend {
	case "", CacheBackendDatabase:
		if db == nil {
			return nil, "", fmt.Errorf("cache: database backend requires a database handle")
		}
		return cache.NewDatabaseStore(db), CacheBackendDatabase, nil
	case CacheBackendMemory:
		return cache.NewMemoryStore(c.MemoryCleanup), CacheBackendMemory, nil
	case CacheBackendRedis:
		client, err := cache.NewRedisClient(c.RedisClientConfig())
		if err == nil {
			if log != nil {
				log.Info("redis connected", zap.String("addr", c.Redis.Address))
			}
			return client, CacheBackendRedis, nil
		}
		if db == nil {
			return nil, "", fmt.Errorf("cache: connect redis: %w", err)
		}
		if log != nil {
			log.Warn("redis unavailable; falling back to database cache", zap.Error(err))
		}
		return cache.NewDatabaseStore(db), CacheBackendDatabase, nil
	default:
		return nil, "", fmt.Errorf("cache: unsupported backend %q", c.Backend)
	}
}
