package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/prxgr4mmer/spread-tracker/internal/ports"
)

const releaseTimeout = 5 * time.Second

// Lock is a mutual-exclusion lock held in the shared store.
// At most one unexpired holder exists per key.
type Lock struct {
	store  ports.KeyValueStore
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// Lease is a held lock. Only the holder that set the record can release it.
type Lease struct {
	lock   *Lock
	holder string
}

// NewLock creates a lock on key that expires after ttl
func NewLock(store ports.KeyValueStore, key string, ttl time.Duration, logger *slog.Logger) *Lock {
	return &Lock{
		store:  store,
		key:    key,
		ttl:    ttl,
		logger: logger.With("component", "lock", "lock_key", key),
	}
}

// Acquire tries to take the lock once. It returns a nil Lease when another
// holder owns an unexpired record.
func (l *Lock) Acquire(ctx context.Context) (*Lease, error) {
	holder := uuid.NewString()

	ok, err := l.store.SetNX(ctx, l.key, holder, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !ok {
		l.logContention(ctx)
		return nil, nil
	}

	l.logger.Debug("lock acquired", "lock_holder", holder, "ttl", l.ttl.String())
	return &Lease{lock: l, holder: holder}, nil
}

func (l *Lock) logContention(ctx context.Context) {
	current, found, err := l.store.Get(ctx, l.key)
	if err != nil {
		l.logger.Warn("lock held by another run", "inspect_error", err)
		return
	}
	if !found {
		// expired between SETNX and GET
		l.logger.Info("lock held by another run, record already gone")
		return
	}

	ttl, err := l.store.TTL(ctx, l.key)
	if err != nil {
		l.logger.Info("lock held by another run", "current_holder", current)
		return
	}

	l.logger.Info("lock held by another run",
		"current_holder", current,
		"ttl_remaining", ttl.String(),
	)
}

// Holder returns the identifier this lease set on the record
func (le *Lease) Holder() string {
	return le.holder
}

// Release deletes the lock record if it still carries this holder.
// It is best-effort and survives cancellation of ctx.
func (le *Lease) Release(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	logger := le.lock.logger.With("lock_holder", le.holder)

	deleted, err := le.lock.store.CompareAndDelete(ctx, le.lock.key, le.holder)
	if err != nil {
		logger.Error("failed to release lock", "error", err)
		return
	}

	if !deleted {
		logger.Warn("lock expired or taken over before release")
		return
	}

	logger.Debug("lock released")
}

// WithLock runs fn while holding the lock. acquired is false when the lock
// was contended, in which case fn is not called. The lock is released on
// every return path of fn, panics included.
func (l *Lock) WithLock(ctx context.Context, fn func(ctx context.Context, holder string) error) (acquired bool, err error) {
	lease, err := l.Acquire(ctx)
	if err != nil {
		return false, err
	}
	if lease == nil {
		return false, nil
	}
	defer lease.Release(ctx)

	return true, fn(ctx, lease.holder)
}
