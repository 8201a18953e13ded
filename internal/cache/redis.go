package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"custody-wallet-go/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis shares cache state across processes. Keys are prefixed with a namespace.
type Redis struct {
	client     redis.UniversalClient
	namespace  string
	defaultTtl time.Duration
}

var _ Cache = (*Redis)(nil)

func NewRedis(client redis.UniversalClient, namespace string, defaultTtl time.Duration) *Redis {
	return &Redis{client: client, namespace: namespace, defaultTtl: defaultTtl}
}

// DialRedis connects to cfg.RedisAddr and verifies the connection.
func DialRedis(ctx context.Context, cfg models.CacheConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.RedisAddr,
		Password:        cfg.RedisPassword,
		DB:              cfg.RedisDb,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	zap.L().Info("Redis cache connected", zap.String("addr", cfg.RedisAddr))

	return NewRedis(client, cfg.Namespace, cfg.DefaultTtl), nil
}

func (r *Redis) key(key string) string {
	if r.namespace == "" {
		return key
	}
	return r.namespace + ":" + key
}

func (r *Redis) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return r.defaultTtl
	}
	return ttl
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), value, r.ttl(ttl)).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(key), value, r.ttl(ttl)).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
