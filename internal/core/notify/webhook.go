package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"text/template"

	"alert-core/internal/core/grouper"
	"alert-core/internal/kv"
	"alert-core/internal/models"
)

type webhookAlert struct {
	Fingerprint string            `json:"fingerprint"`
	RuleName    string            `json:"rule_name"`
	RuleID      string            `json:"rule_id,omitempty"`
	Severity    string            `json:"severity"`
	Status      string            `json:"status"`
	Value       float64           `json:"value"`
	StartedAt   interface{}       `json:"started_at,omitempty"`
	StartsAt    interface{}       `json:"startsAt,omitempty"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Expr        string            `json:"expr,omitempty"`
}

func statusWord(isRecovery bool) string {
	if isRecovery {
		return "resolved"
	}
	return "firing"
}

// toWebhookAlert converts a renderedAlert into the wire shape shared by
// the default single/batch payloads and the data handed to a custom
// body_template.
func toWebhookAlert(a renderedAlert, isRecovery bool) webhookAlert {
	return webhookAlert{
		Fingerprint: a.Fingerprint,
		RuleName:    a.RuleName,
		Severity:    a.Severity,
		Status:      statusWord(isRecovery),
		Value:       a.Value,
		StartedAt:   a.StartedAt,
		StartsAt:    a.StartedAt,
		Labels:      a.Labels,
		Annotations: a.RenderedAnnotations,
		Expr:        a.Expr,
	}
}

// singleWebhookPayload matches the per-alert webhook contract: a single
// "alert" object plus an is_recovery flag.
func singleWebhookPayload(a renderedAlert, isRecovery bool) map[string]interface{} {
	return map[string]interface{}{
		"status":      statusWord(isRecovery),
		"alert":       toWebhookAlert(a, isRecovery),
		"is_recovery": isRecovery,
	}
}

// batchWebhookPayload matches the group webhook contract: groupLabels
// (the first alert's labels), commonLabels (intersection across the
// group), and the literal per-alert array with no truncation.
func batchWebhookPayload(alerts []renderedAlert, isRecovery bool) map[string]interface{} {
	snapshots := make([]kv.AlertSnapshot, len(alerts))
	items := make([]webhookAlert, len(alerts))
	for i, a := range alerts {
		snapshots[i] = a.AlertSnapshot
		items[i] = webhookAlert{
			Fingerprint: a.Fingerprint,
			Status:      statusWord(isRecovery),
			Labels:      a.Labels,
			Annotations: a.RenderedAnnotations,
			StartsAt:    a.StartedAt,
			Value:       a.Value,
		}
	}

	return map[string]interface{}{
		"status":       statusWord(isRecovery),
		"groupLabels":  alerts[0].Labels,
		"commonLabels": grouper.CommonLabels(snapshots),
		"alerts":       items,
	}
}

// webhookTemplateData is the set of fields a custom body_template can
// reference, standing in for the keyword arguments the original passes
// to its Jinja2 template.render(...) call.
type webhookTemplateData struct {
	Alert      *webhookAlert
	Alerts     []webhookAlert
	IsRecovery bool
	Status     string
	AlertCount int
}

// renderWebhookBody executes a custom body_template against data and
// parses the result as JSON. The template must produce a valid JSON
// document; the caller falls back to the default payload shape on any
// error, matching the original's "自定义模板解析失败，使用默认格式" behavior.
func renderWebhookBody(bodyTemplate string, data webhookTemplateData) (interface{}, error) {
	tmpl, err := template.New("webhook_body").Parse(bodyTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse body_template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render body_template: %w", err)
	}
	var payload interface{}
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		return nil, fmt.Errorf("body_template did not render valid JSON: %w", err)
	}
	return payload, nil
}

func (d *Dispatcher) sendWebhook(ctx context.Context, ch models.NotificationChannel, alerts []renderedAlert, isRecovery bool) error {
	webhookURL := configString(ch.Config, "url")
	if webhookURL == "" {
		return fmt.Errorf("webhook channel %s: url not configured", ch.Name)
	}

	method := strings.ToUpper(configString(ch.Config, "method"))
	if method == "" {
		method = http.MethodPost
	}
	if method != http.MethodPost && method != http.MethodPut {
		return fmt.Errorf("webhook channel %s: unsupported http method %q", ch.Name, method)
	}

	headers := map[string]string{}
	if hv, ok := ch.Config["headers"].(map[string]interface{}); ok {
		for k, v := range hv {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	}

	bodyTemplate := configString(ch.Config, "body_template")

	var payload interface{}
	if bodyTemplate != "" && bodyTemplate != "default" {
		items := make([]webhookAlert, len(alerts))
		for i, a := range alerts {
			items[i] = toWebhookAlert(a, isRecovery)
		}
		data := webhookTemplateData{
			Alerts:     items,
			IsRecovery: isRecovery,
			Status:     statusWord(isRecovery),
			AlertCount: len(alerts),
		}
		if len(alerts) == 1 {
			data.Alert = &items[0]
		}
		rendered, err := renderWebhookBody(bodyTemplate, data)
		if err != nil {
			log.Printf("notify: webhook channel %s: %v, falling back to default payload", ch.Name, err)
			payload = nil
		} else {
			payload = rendered
		}
	}

	if payload == nil {
		if len(alerts) == 1 {
			payload = singleWebhookPayload(alerts[0], isRecovery)
		} else {
			payload = batchWebhookPayload(alerts, isRecovery)
		}
	}

	return d.sendJSON(ctx, method, webhookURL, payload, headers)
}
