// Package evaluator implements rule evaluation: querying a data source,
// fingerprinting the resulting series, and driving each alert instance
// through the pending -> firing -> resolved lifecycle.
package evaluator

import (
	"context"
	"log"
	"time"

	"alert-core/internal/models"
)

// DataSourceClient is the subset of datasource.Client the evaluator needs.
type DataSourceClient interface {
	Query(ctx context.Context, expr string, at string) ([]models.QueryResult, error)
}

// EventStore is the persistence contract for active AlertEvents: the
// evaluator reads and mutates the single active row for each fingerprint
// under a rule and archives it on resolution.
type EventStore interface {
	ListByRule(ctx context.Context, ruleID string) ([]models.AlertEvent, error)
	Upsert(ctx context.Context, event models.AlertEvent) error
	Archive(ctx context.Context, event models.AlertEvent, resolvedAt time.Time) error
}

// Lifecycle describes a single transition the evaluator drove an alert
// through during one tick, for the caller to act on (grouping, dispatch).
type Lifecycle struct {
	Event      models.AlertEvent
	Transition Transition
}

// Transition enumerates the state changes process can report.
type Transition string

const (
	TransitionCreated       Transition = "created"
	TransitionStillPending  Transition = "still_pending"
	TransitionFired         Transition = "fired"
	TransitionReactivated   Transition = "reactivated"
	TransitionStillFiring   Transition = "still_firing"
	TransitionResolved      Transition = "resolved"
)

// Evaluator ties a DataSourceClient to an EventStore to run one rule's
// query -> fingerprint -> lifecycle pipeline per tick.
type Evaluator struct {
	store EventStore
}

// New builds an Evaluator over the given EventStore.
func New(store EventStore) *Evaluator {
	return &Evaluator{store: store}
}

// Evaluate queries ds for rule.Expression, builds one candidate AlertEvent
// per returned series (merging ds.ExtraLabels, series labels, then
// rule.Labels, in that precedence), and returns them unattached to any
// stored state — the caller passes the result to Process.
func Evaluate(ctx context.Context, client DataSourceClient, rule models.Rule, ds models.DataSource, now time.Time) ([]models.AlertEvent, error) {
	results, err := client.Query(ctx, rule.Expression, "")
	if err != nil {
		return nil, err
	}

	candidates := make([]models.AlertEvent, 0, len(results))
	for _, r := range results {
		labels := mergeLabels(ds.ExtraLabels, r.Metric, rule.Labels)
		fp := Fingerprint(rule.ID.String(), labels)
		value := r.Value.Value

		candidates = append(candidates, models.AlertEvent{
			Fingerprint: fp,
			TenantID:    rule.TenantID,
			ProjectID:   rule.ProjectID,
			RuleID:      rule.ID,
			RuleName:    rule.Name,
			Status:      models.StatusPending,
			Severity:    rule.Severity,
			Expr:        rule.Expression,
			Value:       value,
			Labels:      labels,
			Annotations: RenderAnnotations(rule.Annotations, labels, value),
			StartedAt:   now,
			LastEvalAt:  now,
		})
	}
	return candidates, nil
}

func mergeLabels(extra, metric, ruleLabels map[string]string) map[string]string {
	merged := make(map[string]string, len(extra)+len(metric)+len(ruleLabels))
	for k, v := range extra {
		merged[k] = v
	}
	for k, v := range metric {
		merged[k] = v
	}
	for k, v := range ruleLabels {
		merged[k] = v
	}
	return merged
}

// Process reconciles a rule's current candidates against the stored
// AlertEvents for that rule: it creates new rows, advances pending rows
// to firing once for_duration elapses, reactivates previously-resolved
// alerts that fired again, and resolves any stored row no longer present
// in the candidate set. It returns one Lifecycle entry per stored row
// touched this tick.
func (e *Evaluator) Process(ctx context.Context, rule models.Rule, candidates []models.AlertEvent, now time.Time) ([]Lifecycle, error) {
	existing, err := e.store.ListByRule(ctx, rule.ID.String())
	if err != nil {
		return nil, err
	}
	byFingerprint := make(map[string]models.AlertEvent, len(existing))
	for _, ev := range existing {
		byFingerprint[ev.Fingerprint] = ev
	}

	seen := make(map[string]bool, len(candidates))
	var lifecycles []Lifecycle
	forDuration := time.Duration(rule.ForDurationSecs) * time.Second

	for _, cand := range candidates {
		seen[cand.Fingerprint] = true

		stored, ok := byFingerprint[cand.Fingerprint]
		if !ok {
			cand.Status = models.StatusPending
			if err := e.store.Upsert(ctx, cand); err != nil {
				return nil, err
			}
			lifecycles = append(lifecycles, Lifecycle{Event: cand, Transition: TransitionCreated})
			continue
		}

		stored.LastEvalAt = now
		stored.Value = cand.Value
		stored.Labels = cand.Labels
		stored.Annotations = cand.Annotations

		transition := TransitionStillPending
		if stored.Status == models.StatusResolved {
			stored.Status = models.StatusPending
			stored.StartedAt = now
			transition = TransitionReactivated
		}

		switch stored.Status {
		case models.StatusPending:
			if now.Sub(stored.StartedAt) >= forDuration {
				stored.Status = models.StatusFiring
				transition = TransitionFired
			}
		case models.StatusFiring:
			transition = TransitionStillFiring
		}

		if err := e.store.Upsert(ctx, stored); err != nil {
			return nil, err
		}
		lifecycles = append(lifecycles, Lifecycle{Event: stored, Transition: transition})
	}

	for fp, stored := range byFingerprint {
		if seen[fp] {
			continue
		}
		if stored.Status != models.StatusPending && stored.Status != models.StatusFiring {
			continue
		}
		stored.Status = models.StatusResolved
		stored.LastEvalAt = now
		if err := e.store.Archive(ctx, stored, now); err != nil {
			log.Printf("evaluator: archive resolved alert %s: %v", stored.Fingerprint, err)
			continue
		}
		lifecycles = append(lifecycles, Lifecycle{Event: stored, Transition: TransitionResolved})
	}

	return lifecycles, nil
}
