// Package silence implements alert-label matchers used to suppress
// notifications for a configured time window.
package silence

import (
	"fmt"
	"regexp"
	"strings"

	"alert-core/internal/models"
)

// regexCache memoizes compiled patterns so repeated evaluation of the same
// silence rule across ticks doesn't recompile its regex matchers.
type regexCache struct {
	compiled map[string]*regexp.Regexp
}

func newRegexCache() *regexCache {
	return &regexCache{compiled: make(map[string]*regexp.Regexp)}
}

func (c *regexCache) get(pattern string) (*regexp.Regexp, error) {
	if re, ok := c.compiled[pattern]; ok {
		return re, nil
	}
	// anchor at the start to mirror Python's re.match, which only
	// requires the pattern to match a prefix of the string.
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return nil, err
	}
	c.compiled[pattern] = re
	return re, nil
}

var defaultCache = newRegexCache()

// Matches reports whether labels satisfy every matcher (AND semantics). An
// empty matcher list never matches, mirroring check_silence_match's
// explicit "matchers required" contract.
func Matches(labels map[string]string, matchers []models.Matcher) bool {
	if len(matchers) == 0 {
		return false
	}

	for _, m := range matchers {
		actual := labels[m.Label]
		switch m.Operator {
		case models.OpEqual:
			if actual != m.Value {
				return false
			}
		case models.OpNotEqual:
			if actual == m.Value {
				return false
			}
		case models.OpRegex:
			re, err := defaultCache.get(m.Value)
			if err != nil || !re.MatchString(actual) {
				return false
			}
		case models.OpNotRegex:
			re, err := defaultCache.get(m.Value)
			if err != nil || re.MatchString(actual) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

var allowedOperators = []models.MatchOperator{
	models.OpEqual, models.OpNotEqual, models.OpRegex, models.OpNotRegex,
}

func isAllowedOperator(op models.MatchOperator) bool {
	for _, allowed := range allowedOperators {
		if op == allowed {
			return true
		}
	}
	return false
}

// ValidateMatchers rejects an empty list, missing fields, unknown
// operators, and uncompilable regex patterns before a silence is stored.
func ValidateMatchers(matchers []models.Matcher) error {
	if len(matchers) == 0 {
		return fmt.Errorf("matchers must not be empty")
	}

	for i, m := range matchers {
		if m.Label == "" {
			return fmt.Errorf("matcher[%d]: missing label", i)
		}
		if !isAllowedOperator(m.Operator) {
			return fmt.Errorf("matcher[%d]: invalid operator %q, allowed: =, !=, =~, !~", i, m.Operator)
		}
		if m.Operator == models.OpRegex || m.Operator == models.OpNotRegex {
			if _, err := regexp.Compile(m.Value); err != nil {
				return fmt.Errorf("matcher[%d]: invalid regex %q: %w", i, m.Value, err)
			}
		}
	}
	return nil
}

var operatorDescriptions = map[models.MatchOperator]string{
	models.OpEqual:    "equals",
	models.OpNotEqual: "not equals",
	models.OpRegex:    "matches regex",
	models.OpNotRegex: "does not match regex",
}

// FormatMatcherDescription renders a single matcher as a human-readable
// clause, e.g. `alertname equals 'HighCPU'`.
func FormatMatcherDescription(m models.Matcher) string {
	desc, ok := operatorDescriptions[m.Operator]
	if !ok {
		desc = string(m.Operator)
	}
	return fmt.Sprintf("%s %s '%s'", m.Label, desc, m.Value)
}

// FormatMatchersDescription joins every matcher's description with AND.
// No code path in this module calls it; a silence that fails validation
// is reported through the error ValidateMatchers returns.
func FormatMatchersDescription(matchers []models.Matcher) string {
	if len(matchers) == 0 {
		return "no match conditions"
	}
	parts := make([]string, len(matchers))
	for i, m := range matchers {
		parts[i] = FormatMatcherDescription(m)
	}
	return strings.Join(parts, " AND ")
}
