// Package cache provides Redis-backed caching for the page search service
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/developer-mesh/pagesearch/internal/observability"
)

var (
	// ErrCacheMiss is returned when a cache key is not found
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheInvalid is returned when cached data is invalid
	ErrCacheInvalid = errors.New("invalid cached data")
)

// CacheConfig configures the cache behavior
type CacheConfig struct {
	// Enabled determines if caching is enabled
	Enabled bool

	// DefaultTTL is the default time-to-live for cache entries
	DefaultTTL time.Duration

	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// DefaultCacheConfig returns sensible defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:    true,
		DefaultTTL: 24 * time.Hour,
		KeyPrefix:  "pagesearch:",
	}
}

// RedisCache implements caching using Redis
type RedisCache struct {
	client *redis.Client
	config CacheConfig
	logger observability.Logger

	hits   int64
	misses int64
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(client *redis.Client, config CacheConfig, logger observability.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		config: config,
		logger: logger.WithPrefix("redis-cache"),
	}
}

// Get retrieves a value from the cache
func (rc *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if !rc.config.Enabled {
		return nil, ErrCacheMiss
	}

	fullKey := rc.makeKey(key)

	val, err := rc.client.Get(ctx, fullKey).Bytes()
	if err == redis.Nil {
		atomic.AddInt64(&rc.misses, 1)
		return nil, ErrCacheMiss
	}
	if err != nil {
		rc.logger.Error("Cache get error", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, fmt.Errorf("cache get error: %w", err)
	}

	atomic.AddInt64(&rc.hits, 1)
	return val, nil
}

// Set stores a value in the cache
func (rc *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !rc.config.Enabled {
		return nil
	}

	fullKey := rc.makeKey(key)

	if ttl == 0 {
		ttl = rc.config.DefaultTTL
	}

	err := rc.client.Set(ctx, fullKey, value, ttl).Err()
	if err != nil {
		rc.logger.Error("Cache set error", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return fmt.Errorf("cache set error: %w", err)
	}

	return nil
}

// Delete removes a value from the cache
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	if !rc.config.Enabled {
		return nil
	}

	fullKey := rc.makeKey(key)

	err := rc.client.Del(ctx, fullKey).Err()
	if err != nil {
		rc.logger.Error("Cache delete error", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return fmt.Errorf("cache delete error: %w", err)
	}

	return nil
}

// GetJSON retrieves and unmarshals a JSON value from the cache
func (rc *RedisCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := rc.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		rc.logger.Error("Cache unmarshal error", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrCacheInvalid, err)
	}

	return nil
}

// SetJSON marshals and stores a JSON value in the cache
func (rc *RedisCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	return rc.Set(ctx, key, data, ttl)
}

// Clear removes all cache entries with the configured prefix
func (rc *RedisCache) Clear(ctx context.Context) error {
	if !rc.config.Enabled {
		return nil
	}

	pattern := rc.config.KeyPrefix + "*"

	iter := rc.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := rc.client.Del(ctx, iter.Val()).Err(); err != nil {
			rc.logger.Error("Cache clear error", map[string]interface{}{
				"key":   iter.Val(),
				"error": err.Error(),
			})
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache clear error: %w", err)
	}

	rc.logger.Info("Cache cleared", nil)
	return nil
}

// Stats returns cache hit and miss counters
func (rc *RedisCache) Stats() map[string]interface{} {
	hits := atomic.LoadInt64(&rc.hits)
	misses := atomic.LoadInt64(&rc.misses)
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return map[string]interface{}{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": hitRate,
	}
}

// makeKey creates a full cache key with prefix
func (rc *RedisCache) makeKey(key string) string {
	return rc.config.KeyPrefix + key
}
