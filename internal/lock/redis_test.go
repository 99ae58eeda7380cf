package lock

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Redis tests are opt-in and require MILESTONESYNC_REDIS_ADDR.

func TestRedisLocker(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("MILESTONESYNC_REDIS_ADDR"))
	if addr == "" {
		t.Skip("integration test skipped: MILESTONESYNC_REDIS_ADDR is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := NewRedisClient(ctx, RedisOptions{Addr: addr})
	if err != nil {
		t.Skipf("integration test skipped: %v", err)
	}
	defer client.Close()

	l := NewRedisLocker(client, "milestonesync:test:"+ulid.Make().String()+":")

	release, err := l.TryAcquire(ctx, "r1", time.Minute)
	require.NoError(t, err)

	_, err = l.TryAcquire(ctx, "r1", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	release()
	release2, err := l.TryAcquire(ctx, "r1", time.Minute)
	require.NoError(t, err)
	release2()
}

func TestNewRedisLocker_DefaultPrefix(t *testing.T) {
	l := NewRedisLocker(nil, "")
	assert.Equal(t, "milestonesync:lock:", l.prefix)
}
