package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"alert-core/internal/models"

	"github.com/google/uuid"
)

// RuleRepository reads the alert rules the scheduler fans out over. It is
// intentionally read-mostly: rule CRUD lives behind the thin collaborator
// handlers, the core only ever lists enabled rules and resolves one by id.
type RuleRepository struct {
	db *Database
}

// NewRuleRepository builds a RuleRepository over the shared pool.
func NewRuleRepository(db *Database) *RuleRepository {
	return &RuleRepository{db: db}
}

func scanRule(row interface {
	Scan(dest ...interface{}) error
}) (models.Rule, error) {
	var rule models.Rule
	var labels, annotations, route []byte
	var projectID *uuid.UUID

	err := row.Scan(
		&rule.ID, &rule.TenantID, &projectID, &rule.Name, &rule.Expression,
		&rule.EvalIntervalSecs, &rule.ForDurationSecs, &rule.RepeatIntervalSecs,
		&rule.Severity, &labels, &annotations, &route, &rule.DataSourceID,
		&rule.Enabled, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return models.Rule{}, err
	}
	rule.ProjectID = projectID
	if len(labels) > 0 {
		json.Unmarshal(labels, &rule.Labels)
	}
	if len(annotations) > 0 {
		json.Unmarshal(annotations, &rule.Annotations)
	}
	if len(route) > 0 {
		json.Unmarshal(route, &rule.Route)
	}
	return rule, nil
}

const ruleColumns = `id, tenant_id, project_id, name, expression, eval_interval_seconds,
	for_duration_seconds, repeat_interval_seconds, severity, labels, annotations,
	route_config, data_source_id, enabled, created_at, updated_at`

// ListEnabled returns every enabled rule across all tenants, the set the
// scheduler fans a tick out over.
func (r *RuleRepository) ListEnabled(ctx context.Context) ([]models.Rule, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+ruleColumns+` FROM core_rules WHERE enabled = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// GetByID fetches a single rule, used by the rule GetByID/Update
// handlers and by the scheduler to resolve a ready group back to its rule.
func (r *RuleRepository) GetByID(ctx context.Context, id uuid.UUID) (models.Rule, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM core_rules WHERE id = $1`, id)
	return scanRule(row)
}

// List returns every rule for a tenant, most recently created first, for
// the collaborator's rule management page.
func (r *RuleRepository) List(ctx context.Context, tenantID uuid.UUID) ([]models.Rule, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+ruleColumns+` FROM core_rules
		WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Create inserts a new rule. Callers are expected to have already set
// rule.ID, rule.CreatedAt and rule.UpdatedAt.
func (r *RuleRepository) Create(ctx context.Context, rule models.Rule) error {
	labels, _ := json.Marshal(rule.Labels)
	annotations, _ := json.Marshal(rule.Annotations)
	route, _ := json.Marshal(rule.Route)

	_, err := r.db.Pool.Exec(ctx, `INSERT INTO core_rules
		(id, tenant_id, project_id, name, expression, eval_interval_seconds,
		 for_duration_seconds, repeat_interval_seconds, severity, labels, annotations,
		 route_config, data_source_id, enabled, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		rule.ID, rule.TenantID, rule.ProjectID, rule.Name, rule.Expression,
		rule.EvalIntervalSecs, rule.ForDurationSecs, rule.RepeatIntervalSecs,
		rule.Severity, labels, annotations, route, rule.DataSourceID,
		rule.Enabled, rule.CreatedAt, rule.UpdatedAt)
	return err
}

// Update overwrites a rule in place by id.
func (r *RuleRepository) Update(ctx context.Context, rule models.Rule) error {
	labels, _ := json.Marshal(rule.Labels)
	annotations, _ := json.Marshal(rule.Annotations)
	route, _ := json.Marshal(rule.Route)

	_, err := r.db.Pool.Exec(ctx, `UPDATE core_rules SET
		name = $2, expression = $3, eval_interval_seconds = $4, for_duration_seconds = $5,
		repeat_interval_seconds = $6, severity = $7, labels = $8, annotations = $9,
		route_config = $10, data_source_id = $11, enabled = $12, updated_at = $13
		WHERE id = $1`,
		rule.ID, rule.Name, rule.Expression, rule.EvalIntervalSecs, rule.ForDurationSecs,
		rule.RepeatIntervalSecs, rule.Severity, labels, annotations, route,
		rule.DataSourceID, rule.Enabled, rule.UpdatedAt)
	return err
}

// Delete removes a rule by id. The scheduler only ever sees rules through
// ListEnabled, so a deleted rule simply stops being evaluated on its next
// tick; any in-flight AlertEvent for it is left for an operator to clear.
func (r *RuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM core_rules WHERE id = $1`, id)
	return err
}

// DataSourceRepository resolves the data source a rule queries against.
type DataSourceRepository struct {
	db *Database
}

// NewDataSourceRepository builds a DataSourceRepository over the shared pool.
func NewDataSourceRepository(db *Database) *DataSourceRepository {
	return &DataSourceRepository{db: db}
}

// GetByID fetches a single data source by id.
func (r *DataSourceRepository) GetByID(ctx context.Context, id uuid.UUID) (models.DataSource, error) {
	var ds models.DataSource
	var auth, http, extra []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT id, tenant_id, name, kind, base_url, auth_config,
		http_config, extra_labels, enabled, created_at, updated_at
		FROM core_data_sources WHERE id = $1`, id).Scan(
		&ds.ID, &ds.TenantID, &ds.Name, &ds.Kind, &ds.BaseURL, &auth, &http, &extra,
		&ds.Enabled, &ds.CreatedAt, &ds.UpdatedAt,
	)
	if err != nil {
		return models.DataSource{}, err
	}
	if len(auth) > 0 {
		json.Unmarshal(auth, &ds.Auth)
	}
	if len(http) > 0 {
		json.Unmarshal(http, &ds.HTTP)
	}
	if len(extra) > 0 {
		json.Unmarshal(extra, &ds.ExtraLabels)
	}
	return ds, nil
}

// List returns every data source registered for a tenant.
func (r *DataSourceRepository) List(ctx context.Context, tenantID uuid.UUID) ([]models.DataSource, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, tenant_id, name, kind, base_url, auth_config,
		http_config, extra_labels, enabled, created_at, updated_at
		FROM core_data_sources WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []models.DataSource
	for rows.Next() {
		var ds models.DataSource
		var auth, http, extra []byte
		if err := rows.Scan(&ds.ID, &ds.TenantID, &ds.Name, &ds.Kind, &ds.BaseURL, &auth,
			&http, &extra, &ds.Enabled, &ds.CreatedAt, &ds.UpdatedAt); err != nil {
			return nil, err
		}
		if len(auth) > 0 {
			json.Unmarshal(auth, &ds.Auth)
		}
		if len(http) > 0 {
			json.Unmarshal(http, &ds.HTTP)
		}
		if len(extra) > 0 {
			json.Unmarshal(extra, &ds.ExtraLabels)
		}
		sources = append(sources, ds)
	}
	return sources, rows.Err()
}

// Create inserts a new data source.
func (r *DataSourceRepository) Create(ctx context.Context, ds models.DataSource) error {
	auth, _ := json.Marshal(ds.Auth)
	http, _ := json.Marshal(ds.HTTP)
	extra, _ := json.Marshal(ds.ExtraLabels)

	_, err := r.db.Pool.Exec(ctx, `INSERT INTO core_data_sources
		(id, tenant_id, name, kind, base_url, auth_config, http_config, extra_labels,
		 enabled, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		ds.ID, ds.TenantID, ds.Name, ds.Kind, ds.BaseURL, auth, http, extra,
		ds.Enabled, ds.CreatedAt, ds.UpdatedAt)
	return err
}

// Update overwrites a data source in place by id.
func (r *DataSourceRepository) Update(ctx context.Context, ds models.DataSource) error {
	auth, _ := json.Marshal(ds.Auth)
	http, _ := json.Marshal(ds.HTTP)
	extra, _ := json.Marshal(ds.ExtraLabels)

	_, err := r.db.Pool.Exec(ctx, `UPDATE core_data_sources SET
		name = $2, kind = $3, base_url = $4, auth_config = $5, http_config = $6,
		extra_labels = $7, enabled = $8, updated_at = $9
		WHERE id = $1`,
		ds.ID, ds.Name, ds.Kind, ds.BaseURL, auth, http, extra, ds.Enabled, ds.UpdatedAt)
	return err
}

// Delete removes a data source by id.
func (r *DataSourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM core_data_sources WHERE id = $1`, id)
	return err
}

// EventRepository persists the single active AlertEvent row per
// fingerprint and archives resolved rows to history. It implements
// evaluator.EventStore.
type EventRepository struct {
	db *Database
}

// NewEventRepository builds an EventRepository over the shared pool.
func NewEventRepository(db *Database) *EventRepository {
	return &EventRepository{db: db}
}

// ListByRule returns every active (non-archived) AlertEvent for a rule,
// read directly from the shared pool. Reads, upserts and archives of one
// rule-tick do not share a transaction; each statement commits on its own.
func (r *EventRepository) ListByRule(ctx context.Context, ruleID string) ([]models.AlertEvent, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT fingerprint, tenant_id, project_id, rule_id, rule_name,
		status, severity, expr, value, labels, annotations, started_at, last_eval_at, last_sent_at
		FROM core_alert_events WHERE rule_id = $1`, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.AlertEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanEvent(row interface{ Scan(dest ...interface{}) error }) (models.AlertEvent, error) {
	var ev models.AlertEvent
	var labels, annotations []byte
	var projectID *uuid.UUID

	err := row.Scan(&ev.Fingerprint, &ev.TenantID, &projectID, &ev.RuleID, &ev.RuleName,
		&ev.Status, &ev.Severity, &ev.Expr, &ev.Value, &labels, &annotations,
		&ev.StartedAt, &ev.LastEvalAt, &ev.LastSentAt)
	if err != nil {
		return models.AlertEvent{}, err
	}
	ev.ProjectID = projectID
	if len(labels) > 0 {
		json.Unmarshal(labels, &ev.Labels)
	}
	if len(annotations) > 0 {
		json.Unmarshal(annotations, &ev.Annotations)
	}
	return ev, nil
}

// Upsert writes the single active row for event.Fingerprint, creating it
// on first sight and overwriting it in place on every subsequent tick
// (fingerprint is the primary key, so there is at most one writer per
// fingerprint at any instant per spec.md's §5 resource policy).
func (r *EventRepository) Upsert(ctx context.Context, event models.AlertEvent) error {
	labels, _ := json.Marshal(event.Labels)
	annotations, _ := json.Marshal(event.Annotations)

	_, err := r.db.Pool.Exec(ctx, `INSERT INTO core_alert_events
		(fingerprint, tenant_id, project_id, rule_id, rule_name, status, severity, expr,
		 value, labels, annotations, started_at, last_eval_at, last_sent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (fingerprint) DO UPDATE SET
			status = EXCLUDED.status, severity = EXCLUDED.severity, value = EXCLUDED.value,
			labels = EXCLUDED.labels, annotations = EXCLUDED.annotations,
			started_at = EXCLUDED.started_at, last_eval_at = EXCLUDED.last_eval_at,
			last_sent_at = EXCLUDED.last_sent_at`,
		event.Fingerprint, event.TenantID, event.ProjectID, event.RuleID, event.RuleName,
		event.Status, event.Severity, event.Expr, event.Value, labels, annotations,
		event.StartedAt, event.LastEvalAt, event.LastSentAt)
	return err
}

// Archive moves a resolved event to AlertEventHistory and deletes the
// active row in one transaction of its own. That transaction covers this
// one event only, not the rest of the caller's rule-tick.
func (r *EventRepository) Archive(ctx context.Context, event models.AlertEvent, resolvedAt time.Time) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	labels, _ := json.Marshal(event.Labels)
	annotations, _ := json.Marshal(event.Annotations)

	_, err = tx.Exec(ctx, `INSERT INTO core_alert_event_history
		(id, fingerprint, tenant_id, rule_id, rule_name, severity, expr, value,
		 labels, annotations, started_at, resolved_at, duration_seconds)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		uuid.New(), event.Fingerprint, event.TenantID, event.RuleID, event.RuleName,
		event.Severity, event.Expr, event.Value, labels, annotations,
		event.StartedAt, resolvedAt, resolvedAt.Sub(event.StartedAt).Seconds())
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM core_alert_events WHERE fingerprint = $1`, event.Fingerprint); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SilenceRepository lists the active silence rules for a tenant, queried
// once per rule-tick so the scheduler can short-circuit direct sends.
type SilenceRepository struct {
	db *Database
}

// NewSilenceRepository builds a SilenceRepository over the shared pool.
func NewSilenceRepository(db *Database) *SilenceRepository {
	return &SilenceRepository{db: db}
}

// ListActive returns every silence rule for tenantID whose window
// currently covers now; it is the caller's job to compile and evaluate
// matchers (see internal/core/silence).
func (r *SilenceRepository) ListActive(ctx context.Context, tenantID uuid.UUID, now time.Time) ([]models.SilenceRule, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, tenant_id, project_id, name, matchers,
		starts_at, ends_at, is_enabled, created_at, updated_at
		FROM core_silence_rules
		WHERE tenant_id = $1 AND is_enabled = true AND starts_at <= $2 AND ends_at >= $2`,
		tenantID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var silences []models.SilenceRule
	for rows.Next() {
		var s models.SilenceRule
		var matchers []byte
		var projectID *uuid.UUID
		if err := rows.Scan(&s.ID, &s.TenantID, &projectID, &s.Name, &matchers,
			&s.StartsAt, &s.EndsAt, &s.IsEnabled, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.ProjectID = projectID
		if len(matchers) > 0 {
			json.Unmarshal(matchers, &s.Matchers)
		}
		silences = append(silences, s)
	}
	return silences, rows.Err()
}

// List returns every silence rule for a tenant regardless of window,
// for the collaborator's silence management page.
func (r *SilenceRepository) List(ctx context.Context, tenantID uuid.UUID) ([]models.SilenceRule, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, tenant_id, project_id, name, matchers,
		starts_at, ends_at, is_enabled, created_at, updated_at
		FROM core_silence_rules WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var silences []models.SilenceRule
	for rows.Next() {
		var s models.SilenceRule
		var matchers []byte
		var projectID *uuid.UUID
		if err := rows.Scan(&s.ID, &s.TenantID, &projectID, &s.Name, &matchers,
			&s.StartsAt, &s.EndsAt, &s.IsEnabled, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.ProjectID = projectID
		if len(matchers) > 0 {
			json.Unmarshal(matchers, &s.Matchers)
		}
		silences = append(silences, s)
	}
	return silences, rows.Err()
}

// Create inserts a new silence rule.
func (r *SilenceRepository) Create(ctx context.Context, s models.SilenceRule) error {
	matchers, _ := json.Marshal(s.Matchers)
	_, err := r.db.Pool.Exec(ctx, `INSERT INTO core_silence_rules
		(id, tenant_id, project_id, name, matchers, starts_at, ends_at, is_enabled,
		 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		s.ID, s.TenantID, s.ProjectID, s.Name, matchers, s.StartsAt, s.EndsAt,
		s.IsEnabled, s.CreatedAt, s.UpdatedAt)
	return err
}

// Update overwrites a silence rule in place by id.
func (r *SilenceRepository) Update(ctx context.Context, s models.SilenceRule) error {
	matchers, _ := json.Marshal(s.Matchers)
	_, err := r.db.Pool.Exec(ctx, `UPDATE core_silence_rules SET
		name = $2, matchers = $3, starts_at = $4, ends_at = $5, is_enabled = $6,
		updated_at = $7
		WHERE id = $1`,
		s.ID, s.Name, matchers, s.StartsAt, s.EndsAt, s.IsEnabled, s.UpdatedAt)
	return err
}

// Delete removes a silence rule by id.
func (r *SilenceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM core_silence_rules WHERE id = $1`, id)
	return err
}

// ChannelRepository lists notification channels and implements
// notify.ChannelStore.
type ChannelRepository struct {
	db *Database
}

// NewChannelRepository builds a ChannelRepository over the shared pool.
func NewChannelRepository(db *Database) *ChannelRepository {
	return &ChannelRepository{db: db}
}

func scanChannel(row interface{ Scan(dest ...interface{}) error }) (models.NotificationChannel, error) {
	var ch models.NotificationChannel
	var config, filter []byte
	var projectID *uuid.UUID

	err := row.Scan(&ch.ID, &ch.TenantID, &projectID, &ch.Name, &ch.Kind, &config, &filter,
		&ch.Enabled, &ch.IsDefault, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return models.NotificationChannel{}, err
	}
	ch.ProjectID = projectID
	if len(config) > 0 {
		json.Unmarshal(config, &ch.Config)
	}
	if len(filter) > 0 {
		json.Unmarshal(filter, &ch.Filter)
	}
	return ch, nil
}

const channelColumns = `id, tenant_id, project_id, name, kind, config, filter_config,
	enabled, is_default, created_at, updated_at`

// ListEnabled returns every enabled, default channel for a tenant; used
// when a rule leaves route_config.notification_channels empty.
func (r *ChannelRepository) ListEnabled(ctx context.Context, tenantID uuid.UUID) ([]models.NotificationChannel, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+channelColumns+` FROM core_notification_channels
		WHERE tenant_id = $1 AND enabled = true AND is_default = true`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []models.NotificationChannel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// ListByIDs returns the enabled channels among ids, restricted by tenant
// implicitly through the ids a rule is allowed to reference.
func (r *ChannelRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.NotificationChannel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Pool.Query(ctx, `SELECT `+channelColumns+` FROM core_notification_channels
		WHERE id = ANY($1) AND enabled = true`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []models.NotificationChannel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// List returns every channel configured for a tenant, for the
// collaborator's channel management page.
func (r *ChannelRepository) List(ctx context.Context, tenantID uuid.UUID) ([]models.NotificationChannel, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+channelColumns+` FROM core_notification_channels
		WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []models.NotificationChannel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// GetByID fetches a single channel, used by the collaborator's channel
// GetByID/Update handlers.
func (r *ChannelRepository) GetByID(ctx context.Context, id uuid.UUID) (models.NotificationChannel, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM core_notification_channels WHERE id = $1`, id)
	return scanChannel(row)
}

// Create inserts a new notification channel.
func (r *ChannelRepository) Create(ctx context.Context, ch models.NotificationChannel) error {
	config, _ := json.Marshal(ch.Config)
	filter, _ := json.Marshal(ch.Filter)
	_, err := r.db.Pool.Exec(ctx, `INSERT INTO core_notification_channels
		(id, tenant_id, project_id, name, kind, config, filter_config, enabled,
		 is_default, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		ch.ID, ch.TenantID, ch.ProjectID, ch.Name, ch.Kind, config, filter,
		ch.Enabled, ch.IsDefault, ch.CreatedAt, ch.UpdatedAt)
	return err
}

// Update overwrites a notification channel in place by id.
func (r *ChannelRepository) Update(ctx context.Context, ch models.NotificationChannel) error {
	config, _ := json.Marshal(ch.Config)
	filter, _ := json.Marshal(ch.Filter)
	_, err := r.db.Pool.Exec(ctx, `UPDATE core_notification_channels SET
		name = $2, kind = $3, config = $4, filter_config = $5, enabled = $6,
		is_default = $7, updated_at = $8
		WHERE id = $1`,
		ch.ID, ch.Name, ch.Kind, config, filter, ch.Enabled, ch.IsDefault, ch.UpdatedAt)
	return err
}

// Delete removes a notification channel by id.
func (r *ChannelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM core_notification_channels WHERE id = $1`, id)
	return err
}

// NotificationRecordRepository appends delivery outcomes; implements
// notify.RecordStore.
type NotificationRecordRepository struct {
	db *Database
}

// NewNotificationRecordRepository builds a NotificationRecordRepository.
func NewNotificationRecordRepository(db *Database) *NotificationRecordRepository {
	return &NotificationRecordRepository{db: db}
}

// Create appends one NotificationRecord row. The log is append-only:
// callers never update or delete a record once written.
func (r *NotificationRecordRepository) Create(ctx context.Context, rec models.NotificationRecord) error {
	_, err := r.db.Pool.Exec(ctx, `INSERT INTO core_notification_records
		(id, tenant_id, channel_id, channel_name, channel_kind, alert_fingerprint,
		 rule_name, severity, status, error_message, content, sent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		rec.ID, rec.TenantID, rec.ChannelID, rec.ChannelName, rec.ChannelKind,
		rec.AlertFingerprint, rec.RuleName, rec.Severity, rec.Status, rec.ErrorMessage,
		rec.Content, rec.SentAt)
	return err
}

// SettingsRepository reads process-wide system settings, notably the
// single SMTP configuration used by the email channel sender.
type SettingsRepository struct {
	db *Database
}

// NewSettingsRepository builds a SettingsRepository over the shared pool.
func NewSettingsRepository(db *Database) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// SMTPConfig reads the "smtp_config" system-settings row. Implements
// notify.SMTPConfigProvider.
func (r *SettingsRepository) SMTPConfig(ctx context.Context) (models.SMTPConfig, error) {
	var raw []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT value FROM core_system_settings WHERE key = 'smtp_config'`).Scan(&raw)
	if err != nil {
		return models.SMTPConfig{}, fmt.Errorf("smtp_config not configured: %w", err)
	}
	var cfg models.SMTPConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return models.SMTPConfig{}, fmt.Errorf("smtp_config malformed: %w", err)
	}
	return cfg, nil
}
