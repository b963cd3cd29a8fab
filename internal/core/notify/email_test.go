package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailSubject_SingleAlert(t *testing.T) {
	a := renderedAlert{AlertSnapshot: testAlert("fp1", "prod")}

	firing := emailSubject("[Alert]", a, false, 1)
	assert.Equal(t, "[Alert] CRITICAL - high-cpu (触发)", firing)

	resolved := emailSubject("[Alert]", a, true, 1)
	assert.Equal(t, "[Alert] CRITICAL - high-cpu (恢复)", resolved)
}

func TestEmailSubject_Batch(t *testing.T) {
	a := renderedAlert{AlertSnapshot: testAlert("fp1", "prod")}

	subject := emailSubject("[Alert]", a, false, 3)
	assert.Equal(t, "[Alert] high-cpu - 3 条告警 (触发)", subject)
}

func TestBuildMIMEMessage_IsMultipartAlternative(t *testing.T) {
	msg, err := buildMIMEMessage("alert@example.com", []string{"oncall@example.com"}, nil,
		"subject", "plain body", "<b>html body</b>")
	require.NoError(t, err)

	raw := string(msg)
	assert.Contains(t, raw, "Content-Type: multipart/alternative; boundary=")
	assert.Contains(t, raw, "Content-Type: text/plain; charset=UTF-8")
	assert.Contains(t, raw, "Content-Type: text/html; charset=UTF-8")
	assert.Contains(t, raw, "plain body")
	assert.Contains(t, raw, "<b>html body</b>")

	// the HTML alternative must come after the plain-text one (RFC 2046 §5.1.4).
	assert.Less(t, strings.Index(raw, "plain body"), strings.Index(raw, "<b>html body</b>"))
}
