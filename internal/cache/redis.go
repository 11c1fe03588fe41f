package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisTimeout = 5 * time.Second
	redisKeyPrefix      = "vecino:"
)

// RedisConfig captures the connection parameters for the Redis-backed store.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	Timeout  time.Duration
}

// RedisClient implements Store on top of go-redis.
type RedisClient struct {
	rdb     *redis.Client
	timeout time.Duration
}

// NewRedisClient creates a Redis-backed store. The connection is verified
// eagerly so misconfiguration surfaces during application startup.
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return &RedisClient{rdb: rdb, timeout: cfg.Timeout}, nil
}

// Close closes the underlying connection pool.
func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

// IncrementWithTTL atomically increments the counter for key, attaching the
// window TTL when the counter is created.
func (c *RedisClient) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if window <= 0 {
		window = time.Minute
	}
	key = redisKeyPrefix + key

	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}

	ttl, err := c.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return count, 0, err
	}
	if ttl < 0 {
		if err := c.rdb.PExpire(ctx, key, window).Err(); err != nil {
			return count, 0, err
		}
		ttl = window
	}

	return count, ttl, nil
}

// Set stores a value with the provided TTL.
func (c *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.rdb.Set(ctx, redisKeyPrefix+key, value, ttl).Err()
}

// Get fetches a value, reporting whether the key existed.
func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := c.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Delete removes the supplied keys.
func (c *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = redisKeyPrefix + key
	}
	return c.rdb.Del(ctx, prefixed...).Err()
}
