// Package kv provides the shared group store and distributed lock used by
// the alert grouper and the per-alert/per-group send discipline. Redis is
// the reference backend; an in-memory implementation is a documented
// fallback for single-node operation.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a group key has no stored record.
var ErrNotFound = errors.New("kv: group not found")

// AlertSnapshot is the frozen per-alert payload stored inside a Group.
type AlertSnapshot struct {
	Fingerprint string            `json:"fingerprint"`
	RuleName    string            `json:"rule_name"`
	Severity    string            `json:"severity"`
	Value       float64           `json:"value"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartedAt   time.Time         `json:"started_at"`
	Expr        string            `json:"expr"`
	TenantID    string            `json:"tenant_id"`
}

// Group is the persisted shape of a firing or recovery alert group.
type Group struct {
	GroupKey      string            `json:"group_key"`
	GroupLabels   map[string]string `json:"group_labels"`
	RuleID        string            `json:"rule_id"`
	RuleName      string            `json:"rule_name"`
	Alerts        []AlertSnapshot   `json:"alerts"`
	CreatedAt     time.Time         `json:"created_at"`
	LastUpdatedAt time.Time         `json:"last_updated_at"`
	Sent          bool              `json:"sent"`
	IsRecovery    bool              `json:"is_recovery"`
}

// GroupStats summarizes the live state of the store.
type GroupStats struct {
	TotalGroups    int
	FiringGroups   int
	RecoveryGroups int
	TotalAlerts    int
	SentGroups     int
	PendingGroups  int
}

// GroupStore is the persistence contract the grouper depends on. It is
// satisfied by a Redis-backed implementation and an in-memory fallback.
type GroupStore interface {
	// AddAlert idempotently appends alert to the firing group identified
	// by groupKey, creating the group record if absent.
	AddAlert(ctx context.Context, groupKey string, groupLabels map[string]string, ruleID, ruleName string, alert AlertSnapshot) error

	// AddRecoveryAlert is the recovery-group equivalent of AddAlert. The
	// caller is responsible for prefixing groupKey with "recovery:".
	AddRecoveryAlert(ctx context.Context, groupKey string, groupLabels map[string]string, ruleID, ruleName string, alert AlertSnapshot) error

	// ReadyGroups returns every firing/recovery group whose readiness
	// predicate currently holds.
	ReadyGroups(ctx context.Context, groupWait, repeatInterval time.Duration) ([]Group, error)

	// MarkSent flags a group as having been dispatched at least once.
	MarkSent(ctx context.Context, groupKey string, isRecovery bool) error

	// Clear deletes a group record outright (used after a recovery group
	// is dispatched; a firing group that empties out is deleted by
	// RemoveAlert itself).
	Clear(ctx context.Context, groupKey string, isRecovery bool) error

	// RemoveAlert removes fingerprint from every firing group it appears
	// in, deleting any group left with zero alerts.
	RemoveAlert(ctx context.Context, fingerprint string) error

	// Stats reports aggregate counters across all stored groups.
	Stats(ctx context.Context) (GroupStats, error)
}
