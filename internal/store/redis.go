package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/RoleBridge/internal/session"
	"github.com/redis/go-redis/v9"
)

// Compile-time check that RedisKV implements session.KV.
var _ session.KV = (*RedisKV)(nil)

// RedisKV serves session records from Redis. Expiry is native: records
// vanish when their TTL elapses, so no sweep is needed.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV connects to the Redis URL given by WithRedisURL.
func NewRedisKV(ctx context.Context, opts ...Option) (*RedisKV, error) {
	cfg := applyOpts(opts)
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis URL not set")
	}
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		slog.Error("RedisKV ping failed", "error", err, "addr", redisOpts.Addr)
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	slog.Debug("RedisKV connected", "addr", redisOpts.Addr, "db", redisOpts.DB)
	return &RedisKV{client: client}, nil
}

// NewRedisKVFromClient wraps an existing client.
func NewRedisKVFromClient(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s failed: %w", key, err)
	}
	return value, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s failed: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s failed: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection pool.
func (r *RedisKV) Close() error {
	return r.client.Close()
}
