package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/keygate/internal/config"
)

func TestMemoryLocker_AcquireRelease(t *testing.T) {
	ml := NewMemoryLocker()
	defer ml.Close()
	ctx := context.Background()

	token, ok, err := ml.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = ml.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	held, err := ml.IsHeld(ctx, "k")
	require.NoError(t, err)
	assert.True(t, held)

	released, err := ml.Release(ctx, "k", token)
	require.NoError(t, err)
	assert.True(t, released)

	released, err = ml.Release(ctx, "k", token)
	require.NoError(t, err)
	assert.False(t, released)
}

func TestMemoryLocker_Expiry(t *testing.T) {
	ml := NewMemoryLocker()
	defer ml.Close()
	ctx := context.Background()

	token, ok, err := ml.Acquire(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	held, err := ml.IsHeld(ctx, "k")
	require.NoError(t, err)
	assert.False(t, held)

	extended, err := ml.Extend(ctx, "k", token, time.Minute)
	require.NoError(t, err)
	assert.False(t, extended)

	_, ok, err = ml.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock can be re-acquired")
}

func TestMemoryLocker_StaleTokenAfterExpiry(t *testing.T) {
	ml := NewMemoryLocker()
	defer ml.Close()
	ctx := context.Background()

	stale, ok, err := ml.Acquire(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	current, ok, err := ml.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, stale, current)

	released, err := ml.Release(ctx, "k", stale)
	require.NoError(t, err)
	assert.False(t, released, "old owner must not release the new owner's lock")

	extended, err := ml.Extend(ctx, "k", stale, time.Hour)
	require.NoError(t, err)
	assert.False(t, extended)

	held, err := ml.IsHeld(ctx, "k")
	require.NoError(t, err)
	assert.True(t, held)

	extended, err = ml.Extend(ctx, "k", current, time.Hour)
	require.NoError(t, err)
	assert.True(t, extended)

	released, err = ml.Release(ctx, "k", current)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestMemoryLocker_CancelledContext(t *testing.T) {
	ml := NewMemoryLocker()
	defer ml.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := ml.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithLock_Serialises(t *testing.T) {
	ml := NewMemoryLocker()
	defer ml.Close()
	ctx := context.Background()

	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(ctx, ml, Keys.KeyGeneration(), time.Minute, func(context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)

	held, err := ml.IsHeld(ctx, Keys.KeyGeneration())
	require.NoError(t, err)
	assert.False(t, held, "lock is released after the last holder")
}

func TestWithLock_PropagatesError(t *testing.T) {
	ml := NewMemoryLocker()
	defer ml.Close()

	boom := errors.New("boom")
	err := WithLock(context.Background(), ml, "k", time.Minute, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	held, err := ml.IsHeld(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestNew_MemoryCloserStopsSweeper(t *testing.T) {
	locker, closeLocker, err := New(context.Background(), config.RedisConfig{Enabled: false}, zerolog.Nop())
	require.NoError(t, err)

	ml, ok := locker.(*MemoryLocker)
	require.True(t, ok)

	require.NoError(t, closeLocker())

	select {
	case <-ml.stop:
	default:
		t.Fatal("sweeper still running after close")
	}

	// Closing twice is harmless.
	assert.NoError(t, closeLocker())
}
