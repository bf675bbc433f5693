// Package redis implements the best-effort JSON cache in front of boards,
// leaderboards and achievement lists.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lukudiplomi/reading-board/internal/config"
	"github.com/redis/go-redis/v9"
)

// scanBatch is how many keys are fetched and deleted per round trip
const scanBatch = 100

// Cache stores JSON values under a key prefix
type Cache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewCache connects to Redis and returns a cache
func NewCache(cfg *config.RedisConfig, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewCacheFromClient(client, cfg.KeyPrefix, logger), nil
}

// NewCacheFromClient wraps an existing client
func NewCacheFromClient(client *redis.Client, prefix string, logger *slog.Logger) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) key(key string) string {
	return c.prefix + key
}

// Get decodes the value stored under key into dest.
// It reports false without an error when the key is absent.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("getting %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// Set stores value as JSON with the given TTL
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// Delete removes the given keys
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.key(k)
	}
	if err := c.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("deleting keys: %w", err)
	}
	return nil
}

// InvalidatePattern deletes every key matching a glob pattern, walking the
// keyspace with SCAN instead of KEYS.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, c.key(pattern), scanBatch).Iterator()
	keys := make([]string, 0, scanBatch)
	deleted := 0

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= scanBatch {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("deleting keys: %w", err)
			}
			deleted += len(keys)
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning %s: %w", pattern, err)
	}

	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("deleting keys: %w", err)
		}
		deleted += len(keys)
	}

	c.logger.Debug("cache invalidated", "pattern", pattern, "keys", deleted)
	return nil
}
