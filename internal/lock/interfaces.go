// Package lock provides distributed and local locking abstractions.
// For single-node deployments, memory-based locks are used.
// For distributed deployments, Redis-based locks can be used.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotAcquired is returned by WithLock when the lock stays busy.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker defines the interface for distributed/local locking.
// This abstraction allows switching between in-memory locks (single-node)
// and Redis-based locks (distributed) without changing business logic.
type Locker interface {
	// Acquire attempts to acquire a lock.
	// On success it returns the token identifying this acquisition;
	// acquired is false if the lock is held by another owner.
	// The lock will automatically expire after the specified TTL.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)

	// AcquireWithRetry attempts to acquire a lock with retries.
	// Will retry up to maxRetries times with retryDelay between attempts.
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (token string, acquired bool, err error)

	// Release releases a lock if it still carries token.
	// Returns false if the lock is not held or is held under another token.
	Release(ctx context.Context, key, token string) (bool, error)

	// Extend extends the TTL of a lock held under token.
	// Returns false if the lock is not held or is held under another token.
	Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// IsHeld checks if the lock is currently held by anyone.
	IsHeld(ctx context.Context, key string) (bool, error)
}

// Retry policy for WithLock.
const (
	withLockRetries    = 50
	withLockRetryDelay = 100 * time.Millisecond
)

// WithLock runs fn while holding key. It waits for a busy lock using
// AcquireWithRetry and returns ErrNotAcquired if the lock never frees up.
// The lock is released with a fresh context so cancellation of ctx
// cannot leave it held until the TTL runs out.
func WithLock(ctx context.Context, locker Locker, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	token, acquired, err := locker.AcquireWithRetry(ctx, key, ttl, withLockRetries, withLockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !acquired {
		return fmt.Errorf("%w: %s", ErrNotAcquired, key)
	}

	defer func() {
		_, _ = locker.Release(context.WithoutCancel(ctx), key, token)
	}()

	return fn(ctx)
}

// =============================================================================
// Common Lock Keys
// =============================================================================

// Keys provides lock key generation for common scenarios.
var Keys = lockKeys{}

type lockKeys struct{}

// KeyGeneration returns the lock key serialising key generation batches.
// Holding it keeps the uniqueness check and the insert of each batch
// from interleaving with another batch.
func (lockKeys) KeyGeneration() string {
	return "lock:keys:generate"
}

