package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache is the production Cache backend, selected by
// CACHE_BACKEND=redis. It is a thin wrapper: TTL and glob semantics map
// directly onto Redis's own SET EX and SCAN MATCH.
type RedisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// RedisConfig configures the underlying go-redis client.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	DefaultTTL time.Duration
}

// NewRedisCache dials addr and returns a RedisCache. It does not ping the
// server; the first Get/Set call surfaces connectivity errors.
func NewRedisCache(cfg RedisConfig) *RedisCache {
	defaultTTL := cfg.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		defaultTTL: defaultTTL,
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Keys scans for keys matching pattern using Redis SCAN/MATCH. pattern is
// passed straight through: Redis glob syntax (*, ?, [abc]) is the same
// prefix:*:suffix style the spec describes.
func (c *RedisCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor  uint64
		matches []string
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		matches = append(matches, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return matches, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
