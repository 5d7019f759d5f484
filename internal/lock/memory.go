package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryCleanupInterval is how often expired entries are swept.
const memoryCleanupInterval = 30 * time.Second

// MemoryLocker implements Locker using in-memory locks.
// Locks are only visible inside this process; run a single server
// instance or enable Redis when scaling out.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry

	stop     chan struct{}
	stopOnce sync.Once
}

// lockEntry represents a single lock.
type lockEntry struct {
	expiresAt time.Time
	token     string
}

func (e *lockEntry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// NewMemoryLocker creates a new in-memory locker and starts its sweeper.
// Call Close to stop the sweeper.
func NewMemoryLocker() *MemoryLocker {
	ml := &MemoryLocker{
		locks: make(map[string]*lockEntry),
		stop:  make(chan struct{}),
	}

	go ml.cleanupLoop()

	return ml
}

// Close stops the background sweeper. Held locks stay valid until they expire.
func (m *MemoryLocker) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *MemoryLocker) cleanupLoop() {
	ticker := time.NewTicker(memoryCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *MemoryLocker) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, entry := range m.locks {
		if entry.expired(now) {
			delete(m.locks, key)
		}
	}
}

// Acquire attempts to acquire a lock.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if entry, exists := m.locks[key]; exists && !entry.expired(now) {
		return "", false, nil
	}

	token := uuid.NewString()
	m.locks[key] = &lockEntry{
		expiresAt: now.Add(ttl),
		token:     token,
	}

	return token, true, nil
}

// AcquireWithRetry attempts to acquire a lock with retries.
func (m *MemoryLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (string, bool, error) {
	for i := 0; i <= maxRetries; i++ {
		token, acquired, err := m.Acquire(ctx, key, ttl)
		if err != nil {
			return "", false, err
		}
		if acquired {
			return token, true, nil
		}

		if i < maxRetries {
			select {
			case <-ctx.Done():
				return "", false, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return "", false, nil
}

// held returns the live entry for key if it carries token.
// Expired entries are dropped. Callers must hold m.mu.
func (m *MemoryLocker) held(key, token string, now time.Time) (*lockEntry, bool) {
	entry, exists := m.locks[key]
	if !exists {
		return nil, false
	}
	if entry.expired(now) {
		delete(m.locks, key)
		return nil, false
	}
	if entry.token != token {
		return nil, false
	}
	return entry, true
}

// Release releases a lock. An expired lock counts as not held.
func (m *MemoryLocker) Release(ctx context.Context, key, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held(key, token, time.Now()); !ok {
		return false, nil
	}
	delete(m.locks, key)

	return true, nil
}

// Extend extends the TTL of a held lock.
func (m *MemoryLocker) Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	entry, ok := m.held(key, token, now)
	if !ok {
		return false, nil
	}

	entry.expiresAt = now.Add(ttl)
	return true, nil
}

// IsHeld checks if a lock is currently held.
func (m *MemoryLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return false, nil
	}

	if entry.expired(time.Now()) {
		delete(m.locks, key)
		return false, nil
	}

	return true, nil
}

// Ensure MemoryLocker implements Locker.
var _ Locker = (*MemoryLocker)(nil)
