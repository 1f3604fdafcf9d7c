package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"uplevel-orchestrator/internal/domain"
)

// RedisKV backs the document store with a Redis instance.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV connects to the Redis instance described by rawURL
// (redis://host:port/db). The connection is not verified here; callers use
// Ping to check reachability so a down Redis at startup still allows the
// failover store to come up on the memory side.
func NewRedisKV(rawURL string) (*RedisKV, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisKV{client: redis.NewClient(opts)}, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.NewDomainError("redis.Get", domain.ErrNotFound, key)
		}
		return nil, fmt.Errorf("redis.Get %s: %w", key, err)
	}
	return data, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis.Set %s: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis.Ping: %w", err)
	}
	return nil
}

func (r *RedisKV) Name() string { return "redis" }
func (r *RedisKV) Close() error { return r.client.Close() }
