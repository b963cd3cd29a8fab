package evaluator

import (
	"fmt"
	"regexp"
	"strconv"
)

// RenderAnnotations does the creation/update-time substitution over the
// same four patterns RenderTemplate recognizes ("{{ $value }}",
// "{{ .value }}", "{{ $labels.X }}", "{{ .labels.X }}"), run once when
// the AlertEvent is created or its value changes. It is what gets stored
// on the AlertEvent; RenderTemplate is re-run against the live value at
// send time so the final payload never goes stale (SPEC_FULL §5).
func RenderAnnotations(annotations map[string]string, labels map[string]string, value float64) map[string]string {
	return RenderAnnotationsAtSendTime(annotations, value, labels)
}

var (
	valuePattern = regexp.MustCompile(`\{\{\s*[$.]value\s*\}\}`)
	labelPattern = regexp.MustCompile(`\{\{\s*[$.]labels\.(\w+)\s*\}\}`)
)

// RenderTemplate is the send-time, whitespace-tolerant renderer used by
// the notification dispatcher: it re-renders against the alert's current
// value and labels every time a notification is built, supporting
// "{{ $value }}", "{{ .value }}", "{{ $labels.x }}" and "{{ .labels.x }}".
// A label referenced but absent renders as "<未定义:name>".
func RenderTemplate(tmpl string, value float64, labels map[string]string) string {
	if tmpl == "" {
		return tmpl
	}

	result := valuePattern.ReplaceAllString(tmpl, strconv.FormatFloat(value, 'f', -1, 64))
	result = labelPattern.ReplaceAllStringFunc(result, func(match string) string {
		sub := labelPattern.FindStringSubmatch(match)
		name := sub[1]
		if v, ok := labels[name]; ok {
			return v
		}
		return fmt.Sprintf("<未定义:%s>", name)
	})
	return result
}

// RenderAnnotationsAtSendTime re-renders a full annotation set with
// RenderTemplate, used right before a notification payload is built so
// the rendered text reflects the alert's current value.
func RenderAnnotationsAtSendTime(annotations map[string]string, value float64, labels map[string]string) map[string]string {
	rendered := make(map[string]string, len(annotations))
	for key, tmpl := range annotations {
		rendered[key] = RenderTemplate(tmpl, value, labels)
	}
	return rendered
}
