// Package grouper batches firing and recovery alerts into notification
// groups using alertmanager-style group_wait/group_interval/repeat_interval
// timers, backed by a shared kv.GroupStore.
package grouper

import (
	"context"
	"strings"
	"time"

	"alert-core/internal/kv"
	"alert-core/internal/models"
)

// Config holds the three-timer discipline for one rule's grouping.
type Config struct {
	GroupWait      time.Duration
	GroupInterval  time.Duration
	RepeatInterval time.Duration
}

// DefaultConfig mirrors the reference implementation's defaults.
var DefaultConfig = Config{
	GroupWait:      10 * time.Second,
	GroupInterval:  30 * time.Second,
	RepeatInterval: time.Hour,
}

// Grouper appends alerts to groups in a kv.GroupStore and releases groups
// whose readiness predicate has been satisfied.
type Grouper struct {
	store kv.GroupStore
}

// New builds a Grouper over the given store.
func New(store kv.GroupStore) *Grouper {
	return &Grouper{store: store}
}

// GroupKey derives the group identity for an alert under a rule:
// "rule:<name>" followed by "|<label>:<value>" for each configured
// group_by label present on the alert, in the order given. group_labels
// always seeds "alertname" to the rule name.
func GroupKey(rule models.Rule, labels map[string]string) (key string, groupLabels map[string]string) {
	parts := []string{"rule:" + rule.Name}
	groupLabels = map[string]string{"alertname": rule.Name}

	for _, labelKey := range rule.Route.GroupBy {
		if v, ok := labels[labelKey]; ok && v != "" {
			parts = append(parts, labelKey+":"+v)
			groupLabels[labelKey] = v
		}
	}
	return strings.Join(parts, "|"), groupLabels
}

func snapshot(ev models.AlertEvent) kv.AlertSnapshot {
	return kv.AlertSnapshot{
		Fingerprint: ev.Fingerprint,
		RuleName:    ev.RuleName,
		Severity:    ev.Severity,
		Value:       ev.Value,
		Labels:      ev.Labels,
		Annotations: ev.Annotations,
		StartedAt:   ev.StartedAt,
		Expr:        ev.Expr,
		TenantID:    ev.TenantID.String(),
	}
}

// AddFiring appends a firing alert to its group, creating the group if
// this is the first alert to land in it this cycle.
func (g *Grouper) AddFiring(ctx context.Context, rule models.Rule, ev models.AlertEvent) (groupKey string, err error) {
	key, labels := GroupKey(rule, ev.Labels)
	err = g.store.AddAlert(ctx, key, labels, rule.ID.String(), rule.Name, snapshot(ev))
	return key, err
}

// AddRecovery appends a resolved alert to its recovery group. The stored
// key is prefixed "recovery:" per the reference implementation so it
// never collides with the firing-group key for the same label set.
func (g *Grouper) AddRecovery(ctx context.Context, rule models.Rule, ev models.AlertEvent) (groupKey string, err error) {
	key, labels := GroupKey(rule, ev.Labels)
	recoveryKey := "recovery:" + key
	err = g.store.AddRecoveryAlert(ctx, recoveryKey, labels, rule.ID.String(), rule.Name, snapshot(ev))
	return recoveryKey, err
}

// RemoveFiring detaches a resolved alert's fingerprint from every firing
// group it is a member of (called once the evaluator transitions an
// alert to resolved, independent of recovery-group bookkeeping).
func (g *Grouper) RemoveFiring(ctx context.Context, fingerprint string) error {
	return g.store.RemoveAlert(ctx, fingerprint)
}

// Ready returns every group (firing or recovery) whose readiness
// predicate holds under cfg.
func (g *Grouper) Ready(ctx context.Context, cfg Config) ([]kv.Group, error) {
	return g.store.ReadyGroups(ctx, cfg.GroupWait, cfg.RepeatInterval)
}

// MarkSent flags a group as dispatched. A firing group stays around for
// possible repeat sends; a recovery group is cleared outright since a
// resolved alert never needs re-notifying once its recovery is sent.
func (g *Grouper) MarkSent(ctx context.Context, gr kv.Group) error {
	if gr.IsRecovery {
		return g.store.Clear(ctx, gr.GroupKey, true)
	}
	return g.store.MarkSent(ctx, gr.GroupKey, false)
}

// Stats reports the live GroupStats for the /stats collaborator endpoint.
func (g *Grouper) Stats(ctx context.Context) (models.GroupStats, error) {
	s, err := g.store.Stats(ctx)
	if err != nil {
		return models.GroupStats{}, err
	}
	return models.GroupStats{
		TotalGroups:    s.TotalGroups,
		FiringGroups:   s.FiringGroups,
		RecoveryGroups: s.RecoveryGroups,
		TotalAlerts:    s.TotalAlerts,
		SentGroups:     s.SentGroups,
		PendingGroups:  s.PendingGroups,
	}, nil
}

// CommonLabels returns the intersection of label sets across every alert
// in a group: a key survives only if every alert carries it with the
// same value. Used in the default webhook payload's commonLabels field.
func CommonLabels(alerts []kv.AlertSnapshot) map[string]string {
	if len(alerts) == 0 {
		return map[string]string{}
	}
	common := make(map[string]string, len(alerts[0].Labels))
	for k, v := range alerts[0].Labels {
		common[k] = v
	}
	for _, a := range alerts[1:] {
		for k, v := range common {
			if a.Labels[k] != v {
				delete(common, k)
			}
		}
	}
	return common
}
