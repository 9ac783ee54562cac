package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sahilchouksey/learnhub-api/utils/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalOrderLocker(t *testing.T) {
	locker := NewLocalOrderLocker()
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, 1, 2)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, ok, "same user and course is exclusive")

	other, ok, err := locker.TryLock(ctx, 1, 3)
	require.NoError(t, err)
	assert.True(t, ok, "different course is independent")
	other()

	release()
	release() // idempotent

	again, ok, err := locker.TryLock(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	again()
}

func TestRedisOrderLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisOrderLocker(cache.NewRedisCacheFromClient(client), 5*time.Second)
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, 7, 9)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("lock:order:7:9"))

	_, ok, err = locker.TryLock(ctx, 7, 9)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists("lock:order:7:9"))

	// An expired lock can be taken again
	_, ok, err = locker.TryLock(ctx, 7, 9)
	require.NoError(t, err)
	require.True(t, ok)
	mr.FastForward(6 * time.Second)

	_, ok, err = locker.TryLock(ctx, 7, 9)
	require.NoError(t, err)
	assert.True(t, ok)
}
