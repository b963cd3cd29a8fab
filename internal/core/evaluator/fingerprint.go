package evaluator

import (
	"crypto/md5" //nolint:gosec // fingerprint, not a security boundary
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint derives the stable identity of an alert instance from its
// rule and its merged label set: md5(ruleID + ":" + sorted "k=v" pairs).
// Label order never affects the result.
func Fingerprint(ruleID string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, labels[k]))
	}

	raw := ruleID + ":" + strings.Join(parts, ",")
	sum := md5.Sum([]byte(raw)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
