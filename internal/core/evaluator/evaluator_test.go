package evaluator

import (
	"context"
	"testing"
	"time"

	"alert-core/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_DeterministicRegardlessOfOrder(t *testing.T) {
	a := Fingerprint("rule-1", map[string]string{"b": "2", "a": "1"})
	b := Fingerprint("rule-1", map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, a, b)

	c := Fingerprint("rule-1", map[string]string{"a": "1", "b": "3"})
	assert.NotEqual(t, a, c)
}

type memEventStore struct {
	byRule map[string][]models.AlertEvent
	archived []models.AlertEvent
}

func newMemEventStore() *memEventStore {
	return &memEventStore{byRule: make(map[string][]models.AlertEvent)}
}

func (s *memEventStore) ListByRule(ctx context.Context, ruleID string) ([]models.AlertEvent, error) {
	return append([]models.AlertEvent(nil), s.byRule[ruleID]...), nil
}

func (s *memEventStore) Upsert(ctx context.Context, event models.AlertEvent) error {
	events := s.byRule[event.RuleID.String()]
	for i, e := range events {
		if e.Fingerprint == event.Fingerprint {
			events[i] = event
			s.byRule[event.RuleID.String()] = events
			return nil
		}
	}
	s.byRule[event.RuleID.String()] = append(events, event)
	return nil
}

func (s *memEventStore) Archive(ctx context.Context, event models.AlertEvent, resolvedAt time.Time) error {
	events := s.byRule[event.RuleID.String()]
	kept := events[:0]
	for _, e := range events {
		if e.Fingerprint != event.Fingerprint {
			kept = append(kept, e)
		}
	}
	s.byRule[event.RuleID.String()] = kept
	s.archived = append(s.archived, event)
	return nil
}

func TestEvaluator_Process_CreatesPendingThenFires(t *testing.T) {
	store := newMemEventStore()
	ev := New(store)
	ruleID := uuid.New()
	rule := models.Rule{ID: ruleID, ForDurationSecs: 60}

	t0 := time.Now()
	candidate := models.AlertEvent{Fingerprint: "fp1", RuleID: ruleID, StartedAt: t0, Value: 1}

	lifecycles, err := ev.Process(context.Background(), rule, []models.AlertEvent{candidate}, t0)
	require.NoError(t, err)
	require.Len(t, lifecycles, 1)
	assert.Equal(t, TransitionCreated, lifecycles[0].Transition)
	assert.Equal(t, models.StatusPending, lifecycles[0].Event.Status)

	t1 := t0.Add(30 * time.Second)
	lifecycles, err = ev.Process(context.Background(), rule, []models.AlertEvent{candidate}, t1)
	require.NoError(t, err)
	require.Len(t, lifecycles, 1)
	assert.Equal(t, TransitionStillPending, lifecycles[0].Transition)

	t2 := t0.Add(90 * time.Second)
	lifecycles, err = ev.Process(context.Background(), rule, []models.AlertEvent{candidate}, t2)
	require.NoError(t, err)
	require.Len(t, lifecycles, 1)
	assert.Equal(t, TransitionFired, lifecycles[0].Transition)
	assert.Equal(t, models.StatusFiring, lifecycles[0].Event.Status)
}

func TestEvaluator_Process_ResolvesWhenNoLongerCandidate(t *testing.T) {
	store := newMemEventStore()
	ev := New(store)
	ruleID := uuid.New()
	rule := models.Rule{ID: ruleID, ForDurationSecs: 0}

	t0 := time.Now()
	candidate := models.AlertEvent{Fingerprint: "fp1", RuleID: ruleID, StartedAt: t0}
	_, err := ev.Process(context.Background(), rule, []models.AlertEvent{candidate}, t0)
	require.NoError(t, err)

	lifecycles, err := ev.Process(context.Background(), rule, nil, t0.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, lifecycles, 1)
	assert.Equal(t, TransitionResolved, lifecycles[0].Transition)

	remaining, err := store.ListByRule(context.Background(), ruleID.String())
	require.NoError(t, err)
	assert.Empty(t, remaining, "resolved alert is archived, not left active")
}

func TestEvaluator_Process_ReactivatesResolvedAlert(t *testing.T) {
	store := newMemEventStore()
	ev := New(store)
	ruleID := uuid.New()
	rule := models.Rule{ID: ruleID, ForDurationSecs: 0}

	t0 := time.Now()
	candidate := models.AlertEvent{Fingerprint: "fp1", RuleID: ruleID, StartedAt: t0}
	_, err := ev.Process(context.Background(), rule, []models.AlertEvent{candidate}, t0)
	require.NoError(t, err)
	_, err = ev.Process(context.Background(), rule, nil, t0.Add(time.Second))
	require.NoError(t, err)

	store.byRule[ruleID.String()] = append(store.byRule[ruleID.String()], models.AlertEvent{
		Fingerprint: "fp1", RuleID: ruleID, Status: models.StatusResolved, StartedAt: t0,
	})

	lifecycles, err := ev.Process(context.Background(), rule, []models.AlertEvent{candidate}, t0.Add(2*time.Second))
	require.NoError(t, err)
	require.Len(t, lifecycles, 1)
	assert.Equal(t, TransitionFired, lifecycles[0].Transition, "for_duration=0 fires immediately on reactivation")
}
