// Package cache stores short-lived serialized read models such as the leaderboard.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrMiss reports that a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// New returns a Redis cache for a non-empty URL, otherwise an in-memory one.
func New(redisURL string, now func() time.Time) (Cache, error) {
	if strings.TrimSpace(redisURL) == "" {
		return NewMemory(now), nil
	}
	return NewRedis(redisURL)
}

// Memory is a process-local Cache.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory builds an in-memory cache. now defaults to time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now, entries: make(map[string]memoryEntry)}
}

func (cache *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	entry, ok := cache.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	if !entry.expiresAt.IsZero() && !cache.now().Before(entry.expiresAt) {
		delete(cache.entries, key)
		return nil, ErrMiss
	}
	return append([]byte(nil), entry.value...), nil
}

func (cache *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = cache.now().Add(ttl)
	}
	cache.entries[key] = entry
	return nil
}

func (cache *Memory) Delete(ctx context.Context, key string) error {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	delete(cache.entries, key)
	return nil
}

// Redis is a Cache backed by a Redis server.
type Redis struct {
	client *redis.Client
}

// NewRedis connects lazily to the server named by a redis:// URL.
func NewRedis(redisURL string) (*Redis, error) {
	options, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Redis{client: redis.NewClient(options)}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (cache *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := cache.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (cache *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (cache *Redis) Delete(ctx context.Context, key string) error {
	if err := cache.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity.
func (cache *Redis) Ping(ctx context.Context) error {
	return cache.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (cache *Redis) Close() error {
	return cache.client.Close()
}
