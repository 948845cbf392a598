package tokenizer

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ricesearch/rice-chunk/internal/pkg/errors"
	"github.com/ricesearch/rice-chunk/internal/pkg/hash"
)

// CountCache stores token counts keyed by a content hash.
type CountCache interface {
	Get(key string) (int, bool)
	Set(key string, count int)
}

// Cached memoizes Count of the wrapped tokenizer. Encode and Decode pass
// through untouched.
type Cached struct {
	Tokenizer
	cache     CountCache
	namespace string
	hits      atomic.Int64
	misses    atomic.Int64
}

// NewCached wraps tok. namespace separates counts from different
// vocabularies sharing one cache backend.
func NewCached(tok Tokenizer, cache CountCache, namespace string) *Cached {
	return &Cached{Tokenizer: tok, cache: cache, namespace: "tok:" + namespace}
}

// Count returns the cached count for text, computing it on a miss.
func (c *Cached) Count(text string) (int, error) {
	key := hash.ContentKey(c.namespace, text)
	if n, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return n, nil
	}
	c.misses.Add(1)

	n, err := c.Tokenizer.Count(text)
	if err != nil {
		return 0, err
	}
	c.cache.Set(key, n)
	return n, nil
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Stats returns hit and miss counts since creation.
func (c *Cached) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// MemoryCache is an in-process LRU count cache.
type MemoryCache struct {
	lru *lru.Cache[string, int]
}

// NewMemoryCache creates an LRU cache holding up to size counts.
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = 10000
	}
	c, err := lru.New[string, int](size)
	if err != nil {
		return nil, errors.InternalError("create lru cache", err)
	}
	return &MemoryCache{lru: c}, nil
}

func (m *MemoryCache) Get(key string) (int, bool) {
	return m.lru.Get(key)
}

func (m *MemoryCache) Set(key string, count int) {
	m.lru.Add(key, count)
}

// Len returns the number of cached counts.
func (m *MemoryCache) Len() int {
	return m.lru.Len()
}

// RedisCache shares token counts between processes. Redis failures
// degrade to cache misses; they never fail a count.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisCache connects to Redis at url. ttl of zero keeps counts forever.
func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "parsing redis URL", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "connecting to redis", err)
	}

	return &RedisCache{
		client:  client,
		ttl:     ttl,
		timeout: time.Second,
	}, nil
}

func (r *RedisCache) Get(key string) (int, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	n, err := r.client.Get(ctx, key).Int()
	if err != nil {
		return 0, false
	}
	return n, true
}

func (r *RedisCache) Set(key string, count int) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	_ = r.client.Set(ctx, key, count, r.ttl).Err()
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// CacheConfig selects a count cache backend.
type CacheConfig struct {
	Type     string // none, memory, redis
	Size     int
	TTL      time.Duration
	RedisURL string
}

// NewCache creates a count cache from configuration. It returns nil for
// type "none".
func NewCache(cfg CacheConfig) (CountCache, error) {
	switch strings.ToLower(cfg.Type) {
	case "none":
		return nil, nil
	case "memory", "":
		c, err := NewMemoryCache(cfg.Size)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "redis":
		c, err := NewRedisCache(cfg.RedisURL, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unknown cache type: %s", cfg.Type))
	}
}
