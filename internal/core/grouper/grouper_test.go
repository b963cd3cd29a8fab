package grouper

import (
	"context"
	"testing"
	"time"

	"alert-core/internal/kv"
	"alert-core/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupKey_IncludesOnlyConfiguredLabelsInOrder(t *testing.T) {
	rule := models.Rule{Name: "high-cpu", Route: models.RouteConfig{GroupBy: []string{"cluster", "region"}}}
	labels := map[string]string{"region": "us-east", "cluster": "prod-1", "instance": "a"}

	key, groupLabels := GroupKey(rule, labels)
	assert.Equal(t, "rule:high-cpu|cluster:prod-1|region:us-east", key)
	assert.Equal(t, "high-cpu", groupLabels["alertname"])
	assert.Equal(t, "prod-1", groupLabels["cluster"])
	_, hasInstance := groupLabels["instance"]
	assert.False(t, hasInstance, "labels outside group_by are not added to group_labels")
}

func TestGroupKey_SkipsMissingGroupByLabel(t *testing.T) {
	rule := models.Rule{Name: "r1", Route: models.RouteConfig{GroupBy: []string{"missing"}}}
	key, _ := GroupKey(rule, map[string]string{})
	assert.Equal(t, "rule:r1", key)
}

func TestGrouper_AddFiringThenReady(t *testing.T) {
	store := kv.NewMemoryStore()
	g := New(store)
	rule := models.Rule{ID: uuid.New(), Name: "r1"}
	ev := models.AlertEvent{Fingerprint: "fp1", RuleName: "r1", Labels: map[string]string{}, StartedAt: time.Now()}

	key, err := g.AddFiring(context.Background(), rule, ev)
	require.NoError(t, err)

	ready, err := g.Ready(context.Background(), Config{GroupWait: 0, RepeatInterval: time.Hour})
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, key, ready[0].GroupKey)
}

func TestGrouper_MarkSentClearsRecoveryGroupButKeepsFiring(t *testing.T) {
	store := kv.NewMemoryStore()
	g := New(store)
	rule := models.Rule{ID: uuid.New(), Name: "r1"}
	ev := models.AlertEvent{Fingerprint: "fp1", Labels: map[string]string{}}

	firingKey, err := g.AddFiring(context.Background(), rule, ev)
	require.NoError(t, err)
	recoveryKey, err := g.AddRecovery(context.Background(), rule, ev)
	require.NoError(t, err)

	require.NoError(t, g.MarkSent(context.Background(), kv.Group{GroupKey: firingKey, IsRecovery: false}))
	require.NoError(t, g.MarkSent(context.Background(), kv.Group{GroupKey: recoveryKey, IsRecovery: true}))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalGroups, "recovery group cleared, firing group retained and marked sent")
	assert.Equal(t, 1, stats.SentGroups)
}

func TestCommonLabels_Intersection(t *testing.T) {
	alerts := []kv.AlertSnapshot{
		{Labels: map[string]string{"cluster": "a", "severity": "critical"}},
		{Labels: map[string]string{"cluster": "a", "severity": "warning"}},
	}
	common := CommonLabels(alerts)
	assert.Equal(t, map[string]string{"cluster": "a"}, common)
}

func TestGrouper_RemoveFiringDeletesFromGroup(t *testing.T) {
	store := kv.NewMemoryStore()
	g := New(store)
	rule := models.Rule{ID: uuid.New(), Name: "r1"}
	ev := models.AlertEvent{Fingerprint: "fp1", Labels: map[string]string{}}

	_, err := g.AddFiring(context.Background(), rule, ev)
	require.NoError(t, err)
	require.NoError(t, g.RemoveFiring(context.Background(), "fp1"))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalGroups)
}
