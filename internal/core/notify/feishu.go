package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"alert-core/internal/models"
)

type larkText struct {
	Tag  string `json:"tag"`
	Text string `json:"text,omitempty"`
}

type larkElement struct {
	Tag  string `json:"tag"`
	Text *struct {
		Content string `json:"content"`
		Tag     string `json:"tag"`
	} `json:"text,omitempty"`
}

func larkDiv(content string) larkElement {
	return larkElement{Tag: "div", Text: &struct {
		Content string `json:"content"`
		Tag     string `json:"tag"`
	}{Content: content, Tag: "lark_md"}}
}

func larkHR() larkElement { return larkElement{Tag: "hr"} }

func cardHeaderColor(isRecovery bool) string {
	if isRecovery {
		return "green"
	}
	return "red"
}

func cardHeaderTitle(isRecovery bool) string {
	if isRecovery {
		return "🔔 Alert Resolved"
	}
	return "🔔 Alert Firing"
}

// buildFeishuAdvancedCard renders the single-alert interactive card.
func buildFeishuAdvancedCard(a renderedAlert, isRecovery bool) map[string]interface{} {
	basicInfo := fmt.Sprintf("**rule**: %s\n**severity**: %s\n**value**: %v", a.RuleName, a.Severity, a.Value)
	if summary := a.RenderedAnnotations["summary"]; summary != "" {
		basicInfo += "\n\n**summary**: " + summary
	}
	if desc := a.RenderedAnnotations["description"]; desc != "" {
		basicInfo += "\n**description**: " + desc
	}

	labelsText := ""
	for i, part := range sortedLabels(a.Labels) {
		if i > 0 {
			labelsText += "\n"
		}
		labelsText += "**" + part + "**"
	}

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"config": map[string]interface{}{"wide_screen_mode": true},
			"header": map[string]interface{}{
				"title":    map[string]interface{}{"content": cardHeaderTitle(isRecovery), "tag": "plain_text"},
				"template": cardHeaderColor(isRecovery),
			},
			"elements": []larkElement{
				larkDiv(basicInfo),
				larkHR(),
				larkDiv("**labels**:\n" + labelsText),
			},
		},
	}
}

// buildFeishuBatchCard renders the multi-alert interactive card, capped
// at feishuCardCap entries with a "N more" trailer.
func buildFeishuBatchCard(alerts []renderedAlert, isRecovery bool) map[string]interface{} {
	elements := []larkElement{
		larkDiv(fmt.Sprintf("**rule**: %s", alerts[0].RuleName)),
		larkHR(),
	}

	limit := len(alerts)
	if limit > feishuCardCap {
		limit = feishuCardCap
	}
	for i, a := range alerts[:limit] {
		elements = append(elements, larkDiv(fmt.Sprintf("**alert %d** [%s]\nvalue: %v\nlabels: %s",
			i+1, a.Severity, a.Value, joinSorted(a.Labels))))
		if i < limit-1 {
			elements = append(elements, larkHR())
		}
	}
	if len(alerts) > feishuCardCap {
		elements = append(elements, larkDiv(fmt.Sprintf("**%d more alerts not shown...**", len(alerts)-feishuCardCap)))
	}

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"config": map[string]interface{}{"wide_screen_mode": true},
			"header": map[string]interface{}{
				"title":    map[string]interface{}{"content": fmt.Sprintf("%s (%d total)", cardHeaderTitle(isRecovery), len(alerts)), "tag": "plain_text"},
				"template": cardHeaderColor(isRecovery),
			},
			"elements": elements,
		},
	}
}

func joinSorted(labels map[string]string) string {
	parts := sortedLabels(labels)
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func (d *Dispatcher) sendFeishu(ctx context.Context, ch models.NotificationChannel, alerts []renderedAlert, isRecovery bool) error {
	webhookURL := configString(ch.Config, "webhook_url")
	if webhookURL == "" {
		return fmt.Errorf("feishu channel %s: webhook_url not configured", ch.Name)
	}
	cardType := configString(ch.Config, "card_type")
	if cardType == "" {
		cardType = "advanced"
	}

	var payload interface{}
	switch {
	case len(alerts) == 1:
		if cardType == "advanced" {
			payload = buildFeishuAdvancedCard(alerts[0], isRecovery)
		} else {
			payload = map[string]interface{}{"msg_type": "text", "content": map[string]string{"text": buildAlertText(alerts[0], isRecovery)}}
		}
	case cardType == "advanced":
		payload = buildFeishuBatchCard(alerts, isRecovery)
	default:
		payload = map[string]interface{}{"msg_type": "text", "content": map[string]string{"text": buildBatchAlertText(alerts, isRecovery)}}
	}

	return d.postJSON(ctx, webhookURL, payload, nil)
}

func (d *Dispatcher) postJSON(ctx context.Context, url string, payload interface{}, headers map[string]string) error {
	return d.sendJSON(ctx, http.MethodPost, url, payload, headers)
}

// sendJSON marshals payload and sends it with the given HTTP method. The
// webhook channel is the only sender that lets an operator choose PUT
// over POST; every other channel kind always calls postJSON.
func (d *Dispatcher) sendJSON(ctx context.Context, method, url string, payload interface{}, headers map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("channel endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
