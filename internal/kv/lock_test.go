package kv

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisLockManager_AcquireExcludesSecondHolder(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	mgr := NewRedisLockManager(client)
	ctx := context.Background()

	lockA := mgr.AlertLock("fp1")
	ok, err := lockA.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	lockB := mgr.AlertLock("fp1")
	ok, err = lockB.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok, "a second holder must not win the same fingerprint lock")

	require.NoError(t, lockA.Release(ctx))

	ok, err = lockB.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok, "after release, a new holder can acquire")
}

func TestRedisLockManager_ReleaseOnlyDeletesOwnValue(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	mgr := NewRedisLockManager(client)
	ctx := context.Background()

	lockA := mgr.AlertLock("fp1")
	ok, err := lockA.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.SetTTL("lock:alert:fp1", 0)
	mr.Del("lock:alert:fp1")

	lockB := mgr.AlertLock("fp1")
	ok, err = lockB.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lockA.Release(ctx))

	exists := mr.Exists("lock:alert:fp1")
	require.True(t, exists, "stale holder's release must not delete a newer holder's lock")
}

func TestMemoryLockManager_ExcludesSecondHolder(t *testing.T) {
	mgr := NewMemoryLockManager()
	ctx := context.Background()

	lockA := mgr.GroupLock("g1")
	ok, err := lockA.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	lockB := mgr.GroupLock("g1")
	ok, err = lockB.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, lockA.Release(ctx))

	ok, err = lockB.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}
