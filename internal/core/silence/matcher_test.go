package silence

import (
	"testing"

	"alert-core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatches_EmptyMatchersNeverMatch(t *testing.T) {
	assert.False(t, Matches(map[string]string{"alertname": "HighCPU"}, nil))
}

func TestMatches_EqualAndAndSemantics(t *testing.T) {
	labels := map[string]string{"alertname": "HighCPU", "severity": "critical"}
	matchers := []models.Matcher{
		{Label: "alertname", Operator: models.OpEqual, Value: "HighCPU"},
		{Label: "severity", Operator: models.OpEqual, Value: "critical"},
	}
	assert.True(t, Matches(labels, matchers))

	matchers[1].Value = "warning"
	assert.False(t, Matches(labels, matchers), "all matchers must hold (AND)")
}

func TestMatches_NotEqual(t *testing.T) {
	labels := map[string]string{"env": "staging"}
	assert.True(t, Matches(labels, []models.Matcher{{Label: "env", Operator: models.OpNotEqual, Value: "prod"}}))
	assert.False(t, Matches(labels, []models.Matcher{{Label: "env", Operator: models.OpNotEqual, Value: "staging"}}))
}

func TestMatches_RegexOperators(t *testing.T) {
	labels := map[string]string{"severity": "critical"}
	assert.True(t, Matches(labels, []models.Matcher{{Label: "severity", Operator: models.OpRegex, Value: "warning|critical"}}))
	assert.False(t, Matches(labels, []models.Matcher{{Label: "severity", Operator: models.OpNotRegex, Value: "warning|critical"}}))
}

func TestMatches_MissingLabelTreatedAsEmptyString(t *testing.T) {
	labels := map[string]string{}
	assert.True(t, Matches(labels, []models.Matcher{{Label: "missing", Operator: models.OpEqual, Value: ""}}))
}

func TestMatches_UnknownOperatorNeverMatches(t *testing.T) {
	labels := map[string]string{"a": "b"}
	assert.False(t, Matches(labels, []models.Matcher{{Label: "a", Operator: "??", Value: "b"}}))
}

func TestValidateMatchers(t *testing.T) {
	require.Error(t, ValidateMatchers(nil))
	require.Error(t, ValidateMatchers([]models.Matcher{{Operator: models.OpEqual, Value: "x"}}))
	require.Error(t, ValidateMatchers([]models.Matcher{{Label: "a", Operator: "bogus", Value: "x"}}))
	require.Error(t, ValidateMatchers([]models.Matcher{{Label: "a", Operator: models.OpRegex, Value: "("}}))
	require.NoError(t, ValidateMatchers([]models.Matcher{{Label: "a", Operator: models.OpEqual, Value: "x"}}))
}

func TestFormatMatchersDescription(t *testing.T) {
	assert.Equal(t, "no match conditions", FormatMatchersDescription(nil))
	desc := FormatMatchersDescription([]models.Matcher{
		{Label: "alertname", Operator: models.OpEqual, Value: "HighCPU"},
		{Label: "severity", Operator: models.OpRegex, Value: "critical"},
	})
	assert.Equal(t, "alertname equals 'HighCPU' AND severity matches regex 'critical'", desc)
}
