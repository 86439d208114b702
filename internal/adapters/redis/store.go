package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/prxgr4mmer/spread-tracker/internal/domain"
	"github.com/prxgr4mmer/spread-tracker/internal/ports"
	"github.com/prxgr4mmer/spread-tracker/pkg/retry"
)

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1]
var compareAndDelete = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store implements the KeyValueStore interface on Redis
type Store struct {
	client *goredis.Client
	logger *slog.Logger
}

// Connect parses a redis:// URL and verifies the connection. The initial
// ping is retried with retryConf so the service can start before Redis.
func Connect(ctx context.Context, url string, retryConf retry.Config, logger *slog.Logger) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	store := NewStore(goredis.NewClient(opts), logger)
	attempt := 0
	err = retry.Do(ctx, retryConf, func(ctx context.Context) error {
		attempt++
		if err := store.Ping(ctx); err != nil {
			store.logger.Warn("redis not reachable", "addr", opts.Addr, "attempt", attempt, "error", err)
			return retry.NewRetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	store.logger.Info("redis connection established", "addr", opts.Addr, "db", opts.DB)
	return store, nil
}

// NewStore wraps an existing client
func NewStore(client *goredis.Client, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		logger: logger.With("component", "redis_store"),
	}
}

// SetNX sets key to value with a TTL only if key is absent
func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, storeError("setnx", key, err)
	}
	return ok, nil
}

// CompareAndDelete deletes key only if it currently holds value
func (s *Store) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, s.client, []string{key}, value).Int64()
	if err != nil {
		return false, storeError("compare-and-delete", key, err)
	}
	return n == 1, nil
}

// Get returns the value of key
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeError("get", key, err)
	}
	return value, true, nil
}

// TTL returns the remaining time to live of key.
// Missing keys and keys without expiry report a negative duration.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, storeError("ttl", key, err)
	}
	return ttl, nil
}

// HIncrBy atomically increments a hash field
func (s *Store) HIncrBy(ctx context.Context, key, field string, incr int64) error {
	if err := s.client.HIncrBy(ctx, key, field, incr).Err(); err != nil {
		return storeError("hincrby", key, err)
	}
	return nil
}

// HSet overwrites the given hash fields
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	values := make([]any, 0, len(fields)*2)
	for field, value := range fields {
		values = append(values, field, value)
	}

	if err := s.client.HSet(ctx, key, values...).Err(); err != nil {
		return storeError("hset", key, err)
	}
	return nil
}

// HGetAll returns every field of a hash
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, storeError("hgetall", key, err)
	}
	return fields, nil
}

// Expire sets a TTL on key
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return storeError("expire", key, err)
	}
	return nil
}

// Ping checks if Redis is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the underlying client
func (s *Store) Close() error {
	return s.client.Close()
}

func storeError(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", domain.ErrStoreUnavailable, op, key, err)
}

// Ensure Store implements KeyValueStore
var _ ports.KeyValueStore = (*Store)(nil)
