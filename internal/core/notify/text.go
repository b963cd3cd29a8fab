package notify

import (
	"fmt"
	"sort"
	"strings"
)

const (
	feishuCardCap = 10
	textCap       = 20
	emailCap      = 50
)

func statusText(isRecovery bool) string {
	if isRecovery {
		return "RESOLVED"
	}
	return "FIRING"
}

func sortedLabels(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, labels[k]))
	}
	return parts
}

// buildAlertText renders the single-alert plain-text body shared by
// dingtalk/wechat/feishu-simple.
func buildAlertText(a renderedAlert, isRecovery bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", statusText(isRecovery), a.RuleName)
	fmt.Fprintf(&b, "severity: %s\n", a.Severity)
	fmt.Fprintf(&b, "value: %v\n", a.Value)
	fmt.Fprintf(&b, "labels: %s\n", strings.Join(sortedLabels(a.Labels), ", "))
	if summary, ok := a.RenderedAnnotations["summary"]; ok && summary != "" {
		fmt.Fprintf(&b, "summary: %s\n", summary)
	}
	if desc, ok := a.RenderedAnnotations["description"]; ok && desc != "" {
		fmt.Fprintf(&b, "description: %s\n", desc)
	}
	return b.String()
}

// buildBatchAlertText renders the multi-alert plain-text body, capped at
// textCap entries with a "N more" trailer.
func buildBatchAlertText(alerts []renderedAlert, isRecovery bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n%d alerts\n\n", statusText(isRecovery), alerts[0].RuleName, len(alerts))

	limit := len(alerts)
	if limit > textCap {
		limit = textCap
	}
	for i, a := range alerts[:limit] {
		fmt.Fprintf(&b, "alert %d:\n  severity: %s\n  value: %v\n  labels: %s\n",
			i+1, a.Severity, a.Value, strings.Join(sortedLabels(a.Labels), ", "))
	}
	if len(alerts) > textCap {
		fmt.Fprintf(&b, "\n...and %d more not shown\n", len(alerts)-textCap)
	}
	return b.String()
}
