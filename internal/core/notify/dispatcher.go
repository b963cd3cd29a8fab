// Package notify resolves which channels an alert group should be sent
// to and dispatches the group through each channel's wire format.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"alert-core/internal/core/evaluator"
	"alert-core/internal/core/grouper"
	"alert-core/internal/kv"
	"alert-core/internal/models"

	"github.com/google/uuid"
)

// ChannelStore resolves the configured notification channels for a rule.
type ChannelStore interface {
	ListEnabled(ctx context.Context, tenantID uuid.UUID) ([]models.NotificationChannel, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.NotificationChannel, error)
}

// RecordStore persists the outcome of every channel send.
type RecordStore interface {
	Create(ctx context.Context, record models.NotificationRecord) error
}

// SMTPConfigProvider supplies the process-wide SMTP settings, stored
// under the "smtp_config" system-settings key in the teacher's schema.
type SMTPConfigProvider interface {
	SMTPConfig(ctx context.Context) (models.SMTPConfig, error)
}

// Dispatcher resolves channels, applies label filters, and sends a
// group's alerts through each matching channel's sender.
type Dispatcher struct {
	channels ChannelStore
	records  RecordStore
	smtp     SMTPConfigProvider
	http     *http.Client
}

// New builds a Dispatcher.
func New(channels ChannelStore, records RecordStore, smtp SMTPConfigProvider) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		records:  records,
		smtp:     smtp,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// ResolveChannels returns the channels a rule should notify: the rule's
// explicitly configured channel IDs, or every default channel for the
// tenant when none are configured, filtered by each channel's label
// include/exclude rules against the group's common labels.
func (d *Dispatcher) ResolveChannels(ctx context.Context, rule models.Rule, commonLabels map[string]string) ([]models.NotificationChannel, error) {
	var candidates []models.NotificationChannel
	var err error

	if len(rule.Route.NotificationChannels) > 0 {
		candidates, err = d.channels.ListByIDs(ctx, rule.Route.NotificationChannels)
	} else {
		candidates, err = d.channels.ListEnabled(ctx, rule.TenantID)
	}
	if err != nil {
		return nil, err
	}

	filtered := make([]models.NotificationChannel, 0, len(candidates))
	for _, ch := range candidates {
		if shouldSendToChannel(commonLabels, ch.Filter) {
			filtered = append(filtered, ch)
		}
	}
	return filtered, nil
}

func shouldSendToChannel(labels map[string]string, filter models.FilterConfig) bool {
	for key, allowed := range filter.IncludeLabels {
		if !contains(allowed, labels[key]) {
			return false
		}
	}
	for key, excluded := range filter.ExcludeLabels {
		if contains(excluded, labels[key]) {
			return false
		}
	}
	return true
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// Dispatch sends a ready group to every channel it resolves to, then
// records a NotificationRecord per (channel, alert) pair. Failures on one
// channel do not block the others.
func (d *Dispatcher) Dispatch(ctx context.Context, rule models.Rule, group kv.Group) error {
	if len(group.Alerts) == 0 {
		return nil
	}
	commonLabels := grouper.CommonLabels(group.Alerts)

	channels, err := d.ResolveChannels(ctx, rule, commonLabels)
	if err != nil {
		return fmt.Errorf("resolve channels: %w", err)
	}

	alerts := renderedAlerts(group.Alerts)

	for _, ch := range channels {
		sendErr := d.sendToChannel(ctx, ch, alerts, group.IsRecovery)
		status, errMsg := "success", ""
		if sendErr != nil {
			status, errMsg = "failed", sendErr.Error()
			log.Printf("notify: send to channel %s (%s) failed: %v", ch.Name, ch.Kind, sendErr)
		}
		for _, a := range alerts {
			rec := models.NotificationRecord{
				ID:               uuid.New(),
				TenantID:         ch.TenantID,
				ChannelID:        ch.ID,
				ChannelName:      ch.Name,
				ChannelKind:      ch.Kind,
				AlertFingerprint: a.Fingerprint,
				RuleName:         a.RuleName,
				Severity:         a.Severity,
				Status:           status,
				ErrorMessage:     errMsg,
				Content:          notificationContentSnapshot(rule, a, group.IsRecovery),
				SentAt:           time.Now(),
			}
			if err := d.records.Create(ctx, rec); err != nil {
				log.Printf("notify: record notification: %v", err)
			}
		}
	}
	return nil
}

// renderedAlert is a kv.AlertSnapshot with annotations re-rendered at
// send time against its current value, per SPEC_FULL's supplemented
// render-time re-rendering behavior.
type renderedAlert struct {
	kv.AlertSnapshot
	RenderedAnnotations map[string]string
}

func renderedAlerts(snapshots []kv.AlertSnapshot) []renderedAlert {
	out := make([]renderedAlert, 0, len(snapshots))
	for _, a := range snapshots {
		out = append(out, renderedAlert{
			AlertSnapshot:       a,
			RenderedAnnotations: evaluator.RenderAnnotationsAtSendTime(a.Annotations, a.Value, a.Labels),
		})
	}
	return out
}

func (d *Dispatcher) sendToChannel(ctx context.Context, ch models.NotificationChannel, alerts []renderedAlert, isRecovery bool) error {
	switch ch.Kind {
	case models.ChannelFeishu:
		return d.sendFeishu(ctx, ch, alerts, isRecovery)
	case models.ChannelDingtalk:
		return d.sendDingtalk(ctx, ch, alerts, isRecovery)
	case models.ChannelWechat:
		return d.sendWechat(ctx, ch, alerts, isRecovery)
	case models.ChannelEmail:
		return d.sendEmail(ctx, ch, alerts, isRecovery)
	case models.ChannelWebhook:
		return d.sendWebhook(ctx, ch, alerts, isRecovery)
	default:
		return fmt.Errorf("unsupported channel kind: %s", ch.Kind)
	}
}

// notificationContentJSON is the serializable snapshot of an alert at the
// moment it was sent, stored alongside the per-channel send outcome so a
// notification record can be inspected after the live AlertEvent has
// moved on or been purged.
type notificationContentJSON struct {
	Fingerprint string            `json:"fingerprint"`
	RuleID      uuid.UUID         `json:"rule_id"`
	RuleName    string            `json:"rule_name"`
	Status      string            `json:"status"`
	Severity    string            `json:"severity"`
	Value       float64           `json:"value"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	Expr        string            `json:"expr"`
	StartedAt   time.Time         `json:"started_at"`
	SentAt      time.Time         `json:"sent_at"`
}

// notificationContentSnapshot marshals the alert's state into the
// content column at send time, mirroring the original notifier's
// record_notification content dict.
func notificationContentSnapshot(rule models.Rule, a renderedAlert, isRecovery bool) string {
	content := notificationContentJSON{
		Fingerprint: a.Fingerprint,
		RuleID:      rule.ID,
		RuleName:    a.RuleName,
		Status:      statusWord(isRecovery),
		Severity:    a.Severity,
		Value:       a.Value,
		Labels:      a.Labels,
		Annotations: a.RenderedAnnotations,
		Expr:        a.Expr,
		StartedAt:   a.StartedAt,
		SentAt:      time.Now(),
	}
	body, err := json.Marshal(content)
	if err != nil {
		log.Printf("notify: marshal notification content: %v", err)
		return ""
	}
	return string(body)
}

func configString(cfg map[string]interface{}, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}
