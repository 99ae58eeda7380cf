package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_TryAcquire(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	release, err := l.TryAcquire(ctx, "r1", time.Minute)
	require.NoError(t, err)

	_, err = l.TryAcquire(ctx, "r1", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	_, err = l.TryAcquire(ctx, "r2", time.Minute)
	assert.NoError(t, err, "keys are independent")

	release()
	release() // idempotent

	_, err = l.TryAcquire(ctx, "r1", time.Minute)
	assert.NoError(t, err)
}

func TestMemoryLocker_Expiry(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	staleRelease, err := l.TryAcquire(ctx, "r1", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = l.TryAcquire(ctx, "r1", time.Minute)
	require.NoError(t, err, "expired lock can be retaken")

	// The stale holder must not free the new holder's lock.
	staleRelease()
	_, err = l.TryAcquire(ctx, "r1", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)
}

func TestMemoryLocker_AcquireWaits(t *testing.T) {
	l := NewMemoryLocker()
	l.poll = time.Millisecond
	ctx := context.Background()

	release, err := l.Acquire(ctx, "r1", time.Minute)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r, err := l.Acquire(ctx, "r1", time.Minute)
		if err == nil {
			r()
		}
	}()

	time.Sleep(10 * time.Millisecond)
	release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}

func TestMemoryLocker_AcquireContextDone(t *testing.T) {
	l := NewMemoryLocker()
	l.poll = time.Millisecond

	_, err := l.TryAcquire(context.Background(), "r1", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "r1", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	l := NewMemoryLocker()
	l.poll = time.Millisecond
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "shared", time.Minute)
			if err != nil {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}
