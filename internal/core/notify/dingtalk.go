package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"alert-core/internal/models"
)

// signDingtalk computes the HMAC-SHA256 signature dingtalk's custom
// webhook security option requires: base64(hmac_sha256(secret,
// "<ms-timestamp>\n<secret>")), url-encoded.
func signDingtalk(secret string, at time.Time) (timestamp, sign string) {
	ts := at.UnixMilli()
	toSign := fmt.Sprintf("%d\n%s", ts, secret)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(toSign))
	sum := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("%d", ts), url.QueryEscape(sum)
}

func (d *Dispatcher) sendDingtalk(ctx context.Context, ch models.NotificationChannel, alerts []renderedAlert, isRecovery bool) error {
	if len(alerts) == 1 {
		return d.sendDingtalkText(ctx, ch, buildAlertText(alerts[0], isRecovery))
	}
	return d.sendDingtalkText(ctx, ch, buildBatchAlertText(alerts, isRecovery))
}

func (d *Dispatcher) sendDingtalkText(ctx context.Context, ch models.NotificationChannel, content string) error {
	webhookURL := configString(ch.Config, "webhook_url")
	if webhookURL == "" {
		return fmt.Errorf("dingtalk channel %s: webhook_url not configured", ch.Name)
	}

	if secret := configString(ch.Config, "secret"); secret != "" {
		timestamp, sign := signDingtalk(secret, time.Now())
		webhookURL = fmt.Sprintf("%s&timestamp=%s&sign=%s", webhookURL, timestamp, sign)
	}

	payload := map[string]interface{}{
		"msgtype": "text",
		"text":    map[string]string{"content": content},
	}
	return d.postJSON(ctx, webhookURL, payload, nil)
}
