package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AddAlertIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	alert := AlertSnapshot{Fingerprint: "fp1", RuleName: "high-cpu"}

	require.NoError(t, s.AddAlert(ctx, "rule:high-cpu", map[string]string{"alertname": "high-cpu"}, "rule-1", "high-cpu", alert))
	require.NoError(t, s.AddAlert(ctx, "rule:high-cpu", map[string]string{"alertname": "high-cpu"}, "rule-1", "high-cpu", alert))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalGroups)
	assert.Equal(t, 1, stats.TotalAlerts)
}

func TestMemoryStore_ReadyGroupsRespectsGroupWait(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.AddAlert(ctx, "g1", nil, "r1", "r1", AlertSnapshot{Fingerprint: "fp1"}))

	ready, err := s.ReadyGroups(ctx, time.Hour, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, ready, "group created just now should not be ready with a long group_wait")

	ready, err = s.ReadyGroups(ctx, 0, time.Hour)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "g1", ready[0].GroupKey)
}

func TestMemoryStore_ReadyGroupsRepeatInterval(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.AddAlert(ctx, "g1", nil, "r1", "r1", AlertSnapshot{Fingerprint: "fp1"}))
	require.NoError(t, s.MarkSent(ctx, "g1", false))

	ready, err := s.ReadyGroups(ctx, 0, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, ready, "a sent group is not ready again until repeat_interval elapses")

	ready, err = s.ReadyGroups(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, ready, 1)
}

func TestMemoryStore_RemoveAlertDeletesEmptyGroup(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.AddAlert(ctx, "g1", nil, "r1", "r1", AlertSnapshot{Fingerprint: "fp1"}))
	require.NoError(t, s.AddAlert(ctx, "g1", nil, "r1", "r1", AlertSnapshot{Fingerprint: "fp2"}))

	require.NoError(t, s.RemoveAlert(ctx, "fp1"))
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalAlerts)

	require.NoError(t, s.RemoveAlert(ctx, "fp2"))
	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalGroups)
}

func TestMemoryStore_RecoveryGroupsDoNotAffectFiringRemoval(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.AddRecoveryAlert(ctx, "recovery:g1", nil, "r1", "r1", AlertSnapshot{Fingerprint: "fp1"}))
	require.NoError(t, s.RemoveAlert(ctx, "fp1"))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RecoveryGroups, "RemoveAlert only targets firing groups")
}
