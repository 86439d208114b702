package ports

import (
	"context"
	"time"
)

// KeyValueStore is the shared store used for run locking and run metrics.
// Every operation is atomic on the store side.
type KeyValueStore interface {
	// SetNX sets key to value with a TTL only if key is absent
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete deletes key only if it currently holds value
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	// Get returns the value of key, or "" with found=false when absent
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// TTL returns the remaining time to live of key
	TTL(ctx context.Context, key string) (time.Duration, error)

	// HIncrBy atomically increments a hash field
	HIncrBy(ctx context.Context, key, field string, incr int64) error

	// HSet overwrites the given hash fields
	HSet(ctx context.Context, key string, fields map[string]string) error

	// HGetAll returns every field of a hash
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Expire sets a TTL on key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error
}
