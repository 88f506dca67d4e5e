package hostfunc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache stores entries in Redis so several hosts can share one
// cache. Keys are "<prefix><namespace>:<hex key>".
type RedisCache struct {
	client *redis.Client
	prefix string
	limits cacheLimits
}

// NewRedisCache wraps an existing client. prefix defaults to "hostbridge:".
func NewRedisCache(client *redis.Client, prefix string, opts ...CacheOption) *RedisCache {
	if prefix == "" {
		prefix = "hostbridge:"
	}
	limits := defaultCacheLimits()
	for _, opt := range opts {
		opt(&limits)
	}
	return &RedisCache{client: client, prefix: prefix, limits: limits}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (c *RedisCache) key(namespace string, key []byte) string {
	return c.prefix + namespace + ":" + hex.EncodeToString(key)
}

func (c *RedisCache) Get(ctx context.Context, namespace string, key []byte) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key(namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, namespace string, key, value []byte, ttl time.Duration) error {
	if err := c.limits.check(key, value); err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.key(namespace, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Expire(ctx context.Context, namespace string, key []byte, ttl time.Duration) error {
	k := c.key(namespace, key)
	var err error
	if ttl > 0 {
		err = c.client.Expire(ctx, k, ttl).Err()
	} else {
		err = c.client.Persist(ctx, k).Err()
	}
	if err != nil {
		return fmt.Errorf("redis expire: %w", err)
	}
	return nil
}

func (c *RedisCache) Remove(ctx context.Context, namespace string, key []byte) ([]byte, bool, error) {
	k := c.key(namespace, key)

	var get *redis.StringCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, k)
		pipe.Del(ctx, k)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, fmt.Errorf("redis remove: %w", err)
	}

	val, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis remove: %w", err)
	}
	return val, true, nil
}
