package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, s
}

func TestRedisLock(t *testing.T) {
	client, mr := setupRedis(t)
	ctx := context.Background()

	t.Run("AcquireRelease", func(t *testing.T) {
		l := NewRedisLock(client, "retention", time.Minute)

		ok, err := l.TryAcquire(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, mr.Exists(KeyPrefix+"retention"))

		held, err := l.IsHeld(ctx)
		require.NoError(t, err)
		assert.True(t, held)

		require.NoError(t, l.Release(ctx))
		held, err = l.IsHeld(ctx)
		require.NoError(t, err)
		assert.False(t, held)
		assert.ErrorIs(t, l.Release(ctx), ErrLockNotHeld)
	})

	t.Run("ReplicasExcludeEachOther", func(t *testing.T) {
		a := NewRedisLock(client, "purge", time.Minute)
		b := NewRedisLock(client, "purge", time.Minute)

		ok, err := a.TryAcquire(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = b.TryAcquire(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		// b cannot release or extend what a owns
		assert.ErrorIs(t, b.Release(ctx), ErrLockNotHeld)
		assert.ErrorIs(t, b.Extend(ctx, time.Hour), ErrLockNotHeld)

		require.NoError(t, a.Release(ctx))
		ok, err = b.TryAcquire(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, b.Release(ctx))
	})

	t.Run("ExpiryAndExtend", func(t *testing.T) {
		l := NewRedisLock(client, "ttl", time.Second)
		ok, err := l.TryAcquire(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, l.Extend(ctx, 10*time.Second))
		mr.FastForward(5 * time.Second)
		held, err := l.IsHeld(ctx)
		require.NoError(t, err)
		assert.True(t, held)

		mr.FastForward(6 * time.Second)
		held, err = l.IsHeld(ctx)
		require.NoError(t, err)
		assert.False(t, held)
		assert.ErrorIs(t, l.Extend(ctx, time.Second), ErrLockNotHeld)
	})
}
