// Package scheduler ties the rule evaluator's per-tick fan-out, the
// grouping worker's release loop, and the notifier dispatcher together
// into the two long-running tasks described in spec.md §5: a periodic
// scheduler tick and a grouping worker tick.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"alert-core/internal/core/datasource"
	"alert-core/internal/core/evaluator"
	"alert-core/internal/core/grouper"
	"alert-core/internal/core/notify"
	"alert-core/internal/core/silence"
	"alert-core/internal/kv"
	"alert-core/internal/models"

	"github.com/google/uuid"
)

// RuleSource lists the enabled rules to fan a tick out over.
type RuleSource interface {
	ListEnabled(ctx context.Context) ([]models.Rule, error)
}

// DataSourceSource resolves the data source a rule queries.
type DataSourceSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (models.DataSource, error)
}

// SilenceSource lists the silences currently active for a tenant.
type SilenceSource interface {
	ListActive(ctx context.Context, tenantID uuid.UUID, now time.Time) ([]models.SilenceRule, error)
}

// Config holds the scheduler's polling intervals and the grouper's
// three-timer discipline (spec.md §4.4.6, §5).
type Config struct {
	TickInterval   time.Duration
	GrouperTick    time.Duration
	GroupConfig    grouper.Config
}

// DefaultConfig mirrors the reference implementation's defaults.
var DefaultConfig = Config{
	TickInterval: 15 * time.Second,
	GrouperTick:  5 * time.Second,
	GroupConfig:  grouper.DefaultConfig,
}

// Scheduler is the process-level control loop: one task fans out per-rule
// evaluation every TickInterval, a second task releases ready groups every
// GrouperTick. Both run until ctx is cancelled.
type Scheduler struct {
	rules       RuleSource
	dataSources DataSourceSource
	silences    SilenceSource
	eval        *evaluator.Evaluator
	group       *grouper.Grouper
	dispatch    *notify.Dispatcher
	locks       kv.LockManager
	cfg         Config
}

// New builds a Scheduler from its wired collaborators.
func New(rules RuleSource, dataSources DataSourceSource, silences SilenceSource,
	eval *evaluator.Evaluator, group *grouper.Grouper, dispatch *notify.Dispatcher,
	locks kv.LockManager, cfg Config) *Scheduler {
	return &Scheduler{
		rules: rules, dataSources: dataSources, silences: silences,
		eval: eval, group: group, dispatch: dispatch, locks: locks, cfg: cfg,
	}
}

// Run starts both long-running tasks and blocks until ctx is cancelled,
// at which point it waits for the active tick and grouping iteration to
// finish before returning (await-before-exit, not restart, per spec.md §5).
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		s.tickLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.groupWorkerLoop(ctx)
	}()

	wg.Wait()
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fans out one independent goroutine per enabled rule, per spec.md
// §5's "parallel-task concurrent" scheduling model. A single rule's
// failure never blocks another rule's tick.
func (s *Scheduler) tick(ctx context.Context) {
	rules, err := s.rules.ListEnabled(ctx)
	if err != nil {
		log.Printf("scheduler: list enabled rules: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, rule := range rules {
		rule := rule
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.evaluateRule(ctx, rule); err != nil {
				log.Printf("scheduler: evaluate rule %s (%s): %v", rule.Name, rule.ID, err)
			}
		}()
	}
	wg.Wait()
}

func (s *Scheduler) evaluateRule(ctx context.Context, rule models.Rule) error {
	ds, err := s.dataSources.GetByID(ctx, rule.DataSourceID)
	if err != nil {
		return err
	}
	client := datasource.New(ds)
	now := time.Now()

	candidates, err := evaluator.Evaluate(ctx, client, rule, ds, now)
	if err != nil {
		// Transient data-source error: this tick is a no-op for the rule,
		// per spec.md §4.3.4. Next tick retries naturally.
		log.Printf("scheduler: query rule %s: %v", rule.Name, err)
		return nil
	}

	lifecycles, err := s.eval.Process(ctx, rule, candidates, now)
	if err != nil {
		return err
	}

	silences, err := s.silences.ListActive(ctx, rule.TenantID, now)
	if err != nil {
		log.Printf("scheduler: list silences for tenant %s: %v", rule.TenantID, err)
		silences = nil
	}

	for _, lc := range lifecycles {
		s.handleLifecycle(ctx, rule, lc, silences)
	}
	return nil
}

func (s *Scheduler) handleLifecycle(ctx context.Context, rule models.Rule, lc evaluator.Lifecycle, silences []models.SilenceRule) {
	switch lc.Transition {
	case evaluator.TransitionFired:
		if silenced(lc.Event.Labels, silences) {
			return
		}
		s.routeFiring(ctx, rule, lc.Event)
	case evaluator.TransitionResolved:
		// Always detach from any firing group, regardless of silence
		// state or grouping config, so a recovered alert never lingers
		// in a repeat send (spec.md §4.4.5).
		if err := s.group.RemoveFiring(ctx, lc.Event.Fingerprint); err != nil {
			log.Printf("scheduler: remove resolved alert %s from groups: %v", lc.Event.Fingerprint, err)
		}
		if silenced(lc.Event.Labels, silences) {
			return
		}
		s.routeRecovery(ctx, rule, lc.Event)
	}
}

func silenced(labels map[string]string, silences []models.SilenceRule) bool {
	for _, sr := range silences {
		if silence.Matches(labels, sr.Matchers) {
			return true
		}
	}
	return false
}

func (s *Scheduler) routeFiring(ctx context.Context, rule models.Rule, ev models.AlertEvent) {
	if rule.Route.EnableGrouping {
		if _, err := s.group.AddFiring(ctx, rule, ev); err != nil {
			log.Printf("scheduler: add firing alert %s to group: %v", ev.Fingerprint, err)
		}
		return
	}
	s.directSend(ctx, rule, ev, false)
}

func (s *Scheduler) routeRecovery(ctx context.Context, rule models.Rule, ev models.AlertEvent) {
	if rule.Route.EnableRecoveryGrouping {
		if _, err := s.group.AddRecovery(ctx, rule, ev); err != nil {
			log.Printf("scheduler: add recovery alert %s to group: %v", ev.Fingerprint, err)
		}
		return
	}
	s.directSend(ctx, rule, ev, true)
}

// directSend bypasses grouping entirely for rules with grouping disabled,
// guarded by the per-fingerprint send lock from spec.md §4.5.3 instead of
// the group-level send-lock.
func (s *Scheduler) directSend(ctx context.Context, rule models.Rule, ev models.AlertEvent, isRecovery bool) {
	lock := s.locks.AlertLock(ev.Fingerprint)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("scheduler: acquire alert lock %s: %v", ev.Fingerprint, err)
		return
	}
	if !ok {
		return
	}
	defer lock.Release(ctx)

	single := kv.Group{
		GroupKey:      "alert:" + ev.Fingerprint,
		RuleID:        rule.ID.String(),
		RuleName:      rule.Name,
		Alerts:        []kv.AlertSnapshot{snapshotOf(ev)},
		CreatedAt:     time.Now(),
		LastUpdatedAt: time.Now(),
		IsRecovery:    isRecovery,
	}
	if err := s.dispatch.Dispatch(ctx, rule, single); err != nil {
		log.Printf("scheduler: direct-send alert %s: %v", ev.Fingerprint, err)
	}
}

func snapshotOf(ev models.AlertEvent) kv.AlertSnapshot {
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

func (s *Scheduler) groupWorkerLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.GrouperTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.releaseReadyGroups(ctx)
		}
	}
}

// releaseReadyGroups is the single background task per replica from
// spec.md §4.4.4: for every ready group, acquire its send-lock, dispatch,
// mark sent (or delete a recovery group outright), and release.
func (s *Scheduler) releaseReadyGroups(ctx context.Context) {
	ready, err := s.group.Ready(ctx, s.cfg.GroupConfig)
	if err != nil {
		log.Printf("scheduler: list ready groups: %v", err)
		return
	}

	for _, g := range ready {
		g := g
		lock := s.locks.GroupLock(g.GroupKey)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			log.Printf("scheduler: acquire group lock %s: %v", g.GroupKey, err)
			continue
		}
		if !ok {
			continue
		}

		s.dispatchGroup(ctx, g)
		lock.Release(ctx)
	}
}

func (s *Scheduler) dispatchGroup(ctx context.Context, g kv.Group) {
	ruleID, err := uuid.Parse(g.RuleID)
	if err != nil {
		log.Printf("scheduler: group %s has invalid rule id %q: %v", g.GroupKey, g.RuleID, err)
		return
	}
	rule, err := s.ruleByID(ctx, ruleID)
	if err != nil {
		log.Printf("scheduler: resolve rule %s for group %s: %v", g.RuleID, g.GroupKey, err)
		return
	}

	if err := s.dispatch.Dispatch(ctx, rule, g); err != nil {
		log.Printf("scheduler: dispatch group %s: %v", g.GroupKey, err)
		return
	}
	if err := s.group.MarkSent(ctx, g); err != nil {
		log.Printf("scheduler: mark group %s sent: %v", g.GroupKey, err)
	}
}

// ruleByIDSource narrows RuleSource to single-rule lookups when the
// scheduler needs to resolve a group back to its rule; RuleSource only
// lists, so the scheduler asks through an optional narrower interface.
type ruleByIDSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (models.Rule, error)
}

func (s *Scheduler) ruleByID(ctx context.Context, id uuid.UUID) (models.Rule, error) {
	if byID, ok := s.rules.(ruleByIDSource); ok {
		return byID.GetByID(ctx, id)
	}
	rules, err := s.rules.ListEnabled(ctx)
	if err != nil {
		return models.Rule{}, err
	}
	for _, r := range rules {
		if r.ID == id {
			return r, nil
		}
	}
	return models.Rule{}, fmt.Errorf("rule %s not found", id)
}
