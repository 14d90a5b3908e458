package locker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	lease, err := l.Acquire(ctx, "order:1", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "order:1", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	other, err := l.Acquire(ctx, "order:2", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	again, err := l.Acquire(ctx, "order:1", time.Minute)
	require.NoError(t, err)

	// An expired lease can be taken over, and the stale holder's release is a no-op.
	now = now.Add(2 * time.Minute)
	takeover, err := l.Acquire(ctx, "order:1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
	_, err = l.Acquire(ctx, "order:1", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)
	require.NoError(t, takeover.Release(ctx))
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })

	key := "test:" + t.Name()
	client.Del(context.Background(), keyPrefix+key)

	l := NewRedisLocker(client)
	lease, err := l.Acquire(context.Background(), key, 5*time.Second)
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), key, 5*time.Second)
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, lease.Release(context.Background()))
	lease, err = l.Acquire(context.Background(), key, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, lease.Release(context.Background()))
}
