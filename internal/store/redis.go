package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time interface check
var _ KV = (*RedisKV)(nil)

const defaultRedisPrefix = "opsdash:"

// RedisKV is a Redis-backed key-value substrate. All keys are namespaced
// under prefix so one Redis instance can serve several users.
type RedisKV struct {
	client *redis.Client
	prefix string
	quota  int64
}

// NewRedisKV connects to redisURL and verifies the connection.
func NewRedisKV(redisURL, prefix string, quota int64) (*RedisKV, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisKVWithClient(client, prefix, quota), nil
}

// NewRedisKVWithClient wraps an existing client.
func NewRedisKVWithClient(client *redis.Client, prefix string, quota int64) *RedisKV {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisKV{client: client, prefix: prefix, quota: quota}
}

func (s *RedisKV) key(k string) string {
	return s.prefix + k
}

// Get returns the value stored under key.
func (s *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

// Set writes value under key, enforcing the quota.
func (s *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if s.quota > 0 {
		used, err := s.usage(ctx, s.key(key))
		if err != nil {
			return err
		}
		if used+int64(len(key)+len(value)) > s.quota {
			return fmt.Errorf("set %q (%d bytes, %d used of %d): %w",
				key, len(value), used, s.quota, ErrQuotaExceeded)
		}
	}

	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *RedisKV) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Size returns the bytes of keys plus values under the prefix.
func (s *RedisKV) Size(ctx context.Context) (int64, error) {
	return s.usage(ctx, "")
}

// usage sums key and value lengths under the prefix, skipping exclude.
func (s *RedisKV) usage(ctx context.Context, exclude string) (int64, error) {
	var total int64
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if k == exclude {
			continue
		}
		n, err := s.client.StrLen(ctx, k).Result()
		if err != nil {
			return 0, fmt.Errorf("measure %q: %w", k, err)
		}
		total += int64(len(k)-len(s.prefix)) + n
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan keys: %w", err)
	}
	return total, nil
}

// Close closes the Redis connection
func (s *RedisKV) Close() error {
	return s.client.Close()
}
