// Package cache provides the bounded TTL cache injected into components that
// need at-most-once-in-flight semantics or short-lived shared state.
package cache

import (
	"context"
	"fmt"
	"time"

	"custody-wallet-go/internal/models"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Cache stores string values with a per-entry TTL. A zero TTL means the
// backend's default.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg models.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemory(cfg.Size, cfg.DefaultTtl), nil
	case BackendRedis:
		return DialRedis(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}

// CoverTtls raises the memory backend's default TTL to the longest of ttls,
// since the memory LRU cannot hold an entry longer than its default.
func CoverTtls(cfg models.CacheConfig, ttls ...time.Duration) models.CacheConfig {
	if cfg.Backend != "" && cfg.Backend != BackendMemory {
		return cfg
	}
	for _, ttl := range ttls {
		if ttl > cfg.DefaultTtl {
			cfg.DefaultTtl = ttl
		}
	}
	return cfg
}
