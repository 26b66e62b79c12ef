package store

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/dmaes/prometheus-shelly-exporter/internal/errors"
)

// RedisBackend persists the document as a single value at a Redis key.
// GET/SET of the whole blob gives the same whole-document atomicity as the
// other backends.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend creates a backend storing the document under key on the
// Redis instance at redisURL (redis://[user:pass@]host:port/db).
func NewRedisBackend(redisURL, key string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing Redis URL: %w", err)
	}
	return &RedisBackend{client: redis.NewClient(opts), key: key}, nil
}

func (r *RedisBackend) Name() string {
	return "redis"
}

func (r *RedisBackend) ReadBytes(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err == redis.Nil {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading key %s: %w", r.key, err)
	}
	return data, nil
}

func (r *RedisBackend) WriteBytes(ctx context.Context, data []byte) error {
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("writing key %s: %w", r.key, err)
	}
	return nil
}

// Ping verifies connectivity to the Redis instance.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
