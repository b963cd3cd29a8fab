// Package models holds the entity types shared between the core alert
// engine and its storage/collaborator layers.
package models

import (
	"time"

	"github.com/google/uuid"
)

// AuthKind enumerates the supported data-source authentication schemes.
type AuthKind string

const (
	AuthNone   AuthKind = "none"
	AuthBearer AuthKind = "bearer"
	AuthBasic  AuthKind = "basic"
)

// AuthConfig describes how the data-source client authenticates upstream.
type AuthConfig struct {
	Kind     AuthKind `json:"kind"`
	Token    string   `json:"token,omitempty"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
}

// HTTPConfig carries per-data-source HTTP client tuning.
type HTTPConfig struct {
	TimeoutSeconds int  `json:"timeout_seconds"`
	VerifySSL      bool `json:"verify_ssl"`
}

// DataSource is a queryable time-series endpoint (Prometheus-compatible).
type DataSource struct {
	ID          uuid.UUID         `json:"id" gorm:"type:uuid;primary_key"`
	TenantID    uuid.UUID         `json:"tenant_id" gorm:"type:uuid;not null"`
	Name        string            `json:"name" gorm:"size:128;not null"`
	Kind        string            `json:"kind" gorm:"size:32;not null"` // prometheus-compatible
	BaseURL     string            `json:"base_url" gorm:"size:512;not null"`
	Auth        AuthConfig        `json:"auth_config" gorm:"-"`
	HTTP        HTTPConfig        `json:"http_config" gorm:"-"`
	ExtraLabels map[string]string `json:"extra_labels" gorm:"-"`
	Enabled     bool              `json:"enabled" gorm:"default:true"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// RouteConfig is a rule's notification routing configuration.
// EnableGrouping and EnableRecoveryGrouping default to true: a rule
// created without an explicit route_config still gets grouped, coalesced
// delivery rather than silently falling back to one notification per
// alert. Callers that bind this straight from request JSON must apply
// that default themselves (see internal/handlers.ruleRequest) since the
// Go zero value for bool is false.
type RouteConfig struct {
	GroupBy                []string    `json:"group_by"`
	NotificationChannels   []uuid.UUID `json:"notification_channels"`
	EnableGrouping         bool        `json:"enable_grouping"`
	EnableRecoveryGrouping bool        `json:"enable_recovery_grouping"`
}

// Rule is an alert rule: an opaque expression evaluated on an interval.
type Rule struct {
	ID                 uuid.UUID         `json:"id" gorm:"type:uuid;primary_key"`
	TenantID           uuid.UUID         `json:"tenant_id" gorm:"type:uuid;not null"`
	ProjectID          *uuid.UUID        `json:"project_id" gorm:"type:uuid"`
	Name               string            `json:"name" gorm:"size:128;not null"`
	Expression         string            `json:"expression" gorm:"type:text;not null"`
	EvalIntervalSecs   int               `json:"eval_interval_seconds" gorm:"default:15"`
	ForDurationSecs    int               `json:"for_duration_seconds" gorm:"default:60"`
	RepeatIntervalSecs int               `json:"repeat_interval_seconds" gorm:"default:3600"`
	Severity           string            `json:"severity" gorm:"size:32;not null"`
	Labels             map[string]string `json:"labels" gorm:"-"`
	Annotations        map[string]string `json:"annotations" gorm:"-"`
	Route              RouteConfig       `json:"route_config" gorm:"-"`
	DataSourceID       uuid.UUID         `json:"data_source_id" gorm:"type:uuid;not null"`
	Enabled            bool              `json:"enabled" gorm:"default:true"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// AlertStatus is the lifecycle state of an AlertEvent.
type AlertStatus string

const (
	StatusPending  AlertStatus = "pending"
	StatusFiring   AlertStatus = "firing"
	StatusResolved AlertStatus = "resolved"
)

// AlertEvent is the single active record for a given fingerprint.
type AlertEvent struct {
	Fingerprint string            `json:"fingerprint" gorm:"primary_key;size:32"`
	TenantID    uuid.UUID         `json:"tenant_id" gorm:"type:uuid;not null"`
	ProjectID   *uuid.UUID        `json:"project_id" gorm:"type:uuid"`
	RuleID      uuid.UUID         `json:"rule_id" gorm:"type:uuid;not null"`
	RuleName    string            `json:"rule_name" gorm:"size:128"`
	Status      AlertStatus       `json:"status" gorm:"size:16;not null"`
	Severity    string            `json:"severity" gorm:"size:32"`
	Expr        string            `json:"expr" gorm:"type:text"`
	Value       float64           `json:"value"`
	Labels      map[string]string `json:"labels" gorm:"-"`
	Annotations map[string]string `json:"annotations" gorm:"-"`
	StartedAt   time.Time         `json:"started_at"`
	LastEvalAt  time.Time         `json:"last_eval_at"`
	LastSentAt  *time.Time        `json:"last_sent_at"`
}

// AlertEventHistory is an immutable archive row for a resolved AlertEvent.
type AlertEventHistory struct {
	ID          uuid.UUID         `json:"id" gorm:"type:uuid;primary_key"`
	Fingerprint string            `json:"fingerprint" gorm:"size:32;index"`
	TenantID    uuid.UUID         `json:"tenant_id" gorm:"type:uuid;not null"`
	RuleID      uuid.UUID         `json:"rule_id" gorm:"type:uuid;not null"`
	RuleName    string            `json:"rule_name" gorm:"size:128"`
	Severity    string            `json:"severity" gorm:"size:32"`
	Expr        string            `json:"expr" gorm:"type:text"`
	Value       float64           `json:"value"`
	Labels      map[string]string `json:"labels" gorm:"-"`
	Annotations map[string]string `json:"annotations" gorm:"-"`
	StartedAt   time.Time         `json:"started_at"`
	ResolvedAt  time.Time         `json:"resolved_at"`
	Duration    time.Duration     `json:"duration"`
}

// MatchOperator enumerates the silence matcher operators.
type MatchOperator string

const (
	OpEqual     MatchOperator = "="
	OpNotEqual  MatchOperator = "!="
	OpRegex     MatchOperator = "=~"
	OpNotRegex  MatchOperator = "!~"
)

// Matcher is a single label matcher used by silence rules.
type Matcher struct {
	Label    string        `json:"label"`
	Operator MatchOperator `json:"operator"`
	Value    string        `json:"value"`
}

// SilenceRule suppresses matching alerts for a time window.
type SilenceRule struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	TenantID  uuid.UUID  `json:"tenant_id" gorm:"type:uuid;not null"`
	ProjectID *uuid.UUID `json:"project_id" gorm:"type:uuid"`
	Name      string     `json:"name" gorm:"size:128"`
	Matchers  []Matcher  `json:"matchers" gorm:"-"`
	StartsAt  time.Time  `json:"starts_at"`
	EndsAt    time.Time  `json:"ends_at"`
	IsEnabled bool       `json:"is_enabled" gorm:"default:true"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Active reports whether the silence currently suppresses alerts.
func (s SilenceRule) Active(now time.Time) bool {
	return s.IsEnabled && !now.Before(s.StartsAt) && !now.After(s.EndsAt)
}

// ChannelKind enumerates the supported notification channel kinds.
type ChannelKind string

const (
	ChannelFeishu   ChannelKind = "feishu"
	ChannelDingtalk ChannelKind = "dingtalk"
	ChannelWechat   ChannelKind = "wechat"
	ChannelEmail    ChannelKind = "email"
	ChannelWebhook  ChannelKind = "webhook"
)

// FilterConfig restricts which alerts a channel receives by label.
type FilterConfig struct {
	IncludeLabels map[string][]string `json:"include_labels"`
	ExcludeLabels map[string][]string `json:"exclude_labels"`
}

// NotificationChannel is a configured delivery target.
type NotificationChannel struct {
	ID        uuid.UUID              `json:"id" gorm:"type:uuid;primary_key"`
	TenantID  uuid.UUID              `json:"tenant_id" gorm:"type:uuid;not null"`
	ProjectID *uuid.UUID             `json:"project_id" gorm:"type:uuid"`
	Name      string                 `json:"name" gorm:"size:128;not null"`
	Kind      ChannelKind            `json:"kind" gorm:"size:32;not null"`
	Config    map[string]interface{} `json:"config" gorm:"-"`
	Filter    FilterConfig           `json:"filter_config" gorm:"-"`
	Enabled   bool                   `json:"enabled" gorm:"default:true"`
	IsDefault bool                   `json:"is_default" gorm:"default:false"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// NotificationRecord is an append-only log of a single channel/alert send.
type NotificationRecord struct {
	ID               uuid.UUID   `json:"id" gorm:"type:uuid;primary_key"`
	TenantID         uuid.UUID   `json:"tenant_id" gorm:"type:uuid;not null"`
	ChannelID        uuid.UUID   `json:"channel_id" gorm:"type:uuid;not null"`
	ChannelName      string      `json:"channel_name" gorm:"size:128"`
	ChannelKind      ChannelKind `json:"channel_kind" gorm:"size:32"`
	AlertFingerprint string      `json:"alert_fingerprint" gorm:"size:32"`
	RuleName         string      `json:"rule_name" gorm:"size:128"`
	Severity         string      `json:"severity" gorm:"size:32"`
	Status           string      `json:"status" gorm:"size:16"` // success, failed
	ErrorMessage     string      `json:"error_message,omitempty" gorm:"type:text"`
	Content          string      `json:"content" gorm:"type:text"`
	SentAt           time.Time   `json:"sent_at"`
}

// SMTPConfig is the process-wide email channel configuration, read from
// the system-settings collaborator under key "smtp_config".
type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	UseTLS   bool   `json:"use_tls"`
	FromAddr string `json:"from_addr"`
}

// GroupStats summarizes the live grouper state for the "stats" collaborator endpoint.
type GroupStats struct {
	TotalGroups    int `json:"total_groups"`
	FiringGroups   int `json:"firing_groups"`
	RecoveryGroups int `json:"recovery_groups"`
	TotalAlerts    int `json:"total_alerts"`
	SentGroups     int `json:"sent_groups"`
	PendingGroups  int `json:"pending_groups"`
}
