package notify

import (
	"context"
	"fmt"

	"alert-core/internal/models"
)

func (d *Dispatcher) sendWechat(ctx context.Context, ch models.NotificationChannel, alerts []renderedAlert, isRecovery bool) error {
	webhookURL := configString(ch.Config, "webhook_url")
	if webhookURL == "" {
		return fmt.Errorf("wechat channel %s: webhook_url not configured", ch.Name)
	}

	content := buildAlertText(alerts[0], isRecovery)
	if len(alerts) > 1 {
		content = buildBatchAlertText(alerts, isRecovery)
	}

	payload := map[string]interface{}{
		"msgtype": "text",
		"text":    map[string]string{"content": content},
	}
	return d.postJSON(ctx, webhookURL, payload, nil)
}
