// Package llm provides HTTP adapters for the external text-classification
// and text-generation collaborators, with rate limiting, circuit breaking
// and response caching.
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/prior-auth-engine/internal/domain"
)

// ClassificationCache caches classifier responses keyed by input. Clinical
// notes are immutable per evaluation, so a repeated (notes, labels) pair
// always yields the same classification.
type ClassificationCache interface {
	Get(ctx context.Context, key string) (*domain.ClassificationResult, bool, error)
	Set(ctx context.Context, key string, result *domain.ClassificationResult) error
}

// CacheKey derives a stable key from the classification inputs.
func CacheKey(text string, labels []string, hypothesisTemplate string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(labels, "\x00")))
	h.Write([]byte{0})
	h.Write([]byte(hypothesisTemplate))
	return "classify:" + hex.EncodeToString(h.Sum(nil))
}

// MemoryCache is an in-process LRU cache with per-entry TTL.
type MemoryCache struct {
	cache *lru.LRU[string, *domain.ClassificationResult]
}

// NewMemoryCache creates an in-memory classification cache.
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		cache: lru.NewLRU[string, *domain.ClassificationResult](maxEntries, nil, ttl),
	}
}

// Get retrieves a cached classification result.
func (c *MemoryCache) Get(_ context.Context, key string) (*domain.ClassificationResult, bool, error) {
	result, ok := c.cache.Get(key)
	return result, ok, nil
}

// Set caches a classification result.
func (c *MemoryCache) Set(_ context.Context, key string, result *domain.ClassificationResult) error {
	c.cache.Add(key, result)
	return nil
}

// RedisCache is a Redis-backed classification cache shared across instances.
type RedisCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewRedisCache creates a Redis classification cache from cache config.
func NewRedisCache(config domain.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		redis:      client,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// Get retrieves a cached classification result.
func (c *RedisCache) Get(ctx context.Context, key string) (*domain.ClassificationResult, bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil // Cache miss
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get classification cache: %w", err)
	}

	var result domain.ClassificationResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return &result, true, nil
}

// Set caches a classification result.
func (c *RedisCache) Set(ctx context.Context, key string, result *domain.ClassificationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal classification result: %w", err)
	}
	return c.redis.Set(ctx, key, data, c.defaultTTL).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.redis.Close()
}
