// FilePath: server/weatherhub/internal/cache/cache.go
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/config"
	"github.com/redis/go-redis/v9"
	nuts "github.com/vaudience/go-nuts"
)

const keyPrefix = "weatherhub:"

// Cache stores opaque response bodies by key.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// New returns a Redis-backed cache when a host is configured and a
// no-op cache otherwise.
func New(ctx context.Context, cfg config.RedisConfig) (Cache, error) {
	if !cfg.Enabled() {
		nuts.L.Infof("[Cache] Redis not configured, trend caching disabled")
		return Nop{}, nil
	}
	return NewRedis(ctx, cfg)
}

// RedisCache is a Cache on a single Redis instance.
type RedisCache struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	nuts.L.Infof("[Cache] Connected to Redis at %s", cfg.Addr())
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, keyPrefix+key, value, ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Nop never holds anything.
type Nop struct{}

func (Nop) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }

func (Nop) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error { return nil }

func (Nop) Close() error { return nil }
