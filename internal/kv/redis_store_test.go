package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_AddAlertAndReady(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddAlert(ctx, "rule:svc-down", map[string]string{"alertname": "svc-down"}, "r1", "svc-down", AlertSnapshot{Fingerprint: "fp1"}))

	ready, err := store.ReadyGroups(ctx, time.Hour, time.Hour)
	require.NoError(t, err)
	require.Empty(t, ready)

	mr.FastForward(0)
	ready, err = store.ReadyGroups(ctx, 0, time.Hour)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	require.Equal(t, "rule:svc-down", ready[0].GroupKey)
}

func TestRedisStore_MarkSentAndClear(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddAlert(ctx, "g1", nil, "r1", "r1", AlertSnapshot{Fingerprint: "fp1"}))
	require.NoError(t, store.MarkSent(ctx, "g1", false))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.SentGroups)

	require.NoError(t, store.Clear(ctx, "g1", false))
	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.TotalGroups)
}

func TestRedisStore_RemoveAlertFromGroups(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddAlert(ctx, "g1", nil, "r1", "r1", AlertSnapshot{Fingerprint: "fp1"}))
	require.NoError(t, store.RemoveAlert(ctx, "fp1"))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.TotalGroups)
}
