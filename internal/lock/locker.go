package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotAcquired is returned when a lock could not be taken before the context
// ended or, for TryAcquire, immediately.
var ErrNotAcquired = errors.New("lock not acquired")

// DefaultPollInterval is how often Acquire retries a held lock.
const DefaultPollInterval = 25 * time.Millisecond

// Locker hands out keyed locks that expire after ttl if never released.
type Locker interface {
	// Acquire blocks until the lock is held or ctx is done.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)

	// TryAcquire takes the lock only if it is free right now.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

type memoryEntry struct {
	token   string
	expires time.Time
}

// MemoryLocker is an in-process Locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]memoryEntry
	now  func() time.Time
	poll time.Duration
}

// NewMemoryLocker returns an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held: make(map[string]memoryEntry),
		now:  time.Now,
		poll: DefaultPollInterval,
	}
}

func (l *MemoryLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, ErrNotAcquired
	}
	token := uuid.NewString()
	l.held[key] = memoryEntry{token: token, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if e, ok := l.held[key]; ok && e.token == token {
				delete(l.held, key)
			}
		})
	}, nil
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return acquireLoop(ctx, l.poll, func() (func(), error) {
		return l.TryAcquire(ctx, key, ttl)
	})
}

// acquireLoop retries try until it succeeds, fails with something other than
// ErrNotAcquired, or ctx ends.
func acquireLoop(ctx context.Context, poll time.Duration, try func() (func(), error)) (func(), error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		release, err := try()
		if err == nil {
			return release, nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}
}
