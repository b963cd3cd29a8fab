package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"alert-core/internal/kv"
	"alert-core/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChannelStore struct {
	channels []models.NotificationChannel
}

func (s *stubChannelStore) ListEnabled(ctx context.Context, tenantID uuid.UUID) ([]models.NotificationChannel, error) {
	return s.channels, nil
}

func (s *stubChannelStore) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.NotificationChannel, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []models.NotificationChannel
	for _, ch := range s.channels {
		if want[ch.ID] {
			out = append(out, ch)
		}
	}
	return out, nil
}

type stubRecordStore struct {
	records []models.NotificationRecord
}

func (s *stubRecordStore) Create(ctx context.Context, rec models.NotificationRecord) error {
	s.records = append(s.records, rec)
	return nil
}

type stubSMTPConfig struct{ cfg models.SMTPConfig }

func (s stubSMTPConfig) SMTPConfig(ctx context.Context) (models.SMTPConfig, error) {
	return s.cfg, nil
}

func testGroup(alerts ...kv.AlertSnapshot) kv.Group {
	return kv.Group{
		GroupKey: "rule:high-cpu",
		Alerts:   alerts,
	}
}

func testAlert(fp, env string) kv.AlertSnapshot {
	return kv.AlertSnapshot{
		Fingerprint: fp,
		RuleName:    "high-cpu",
		Severity:    "critical",
		Value:       95.5,
		Labels:      map[string]string{"env": env, "instance": fp},
		Annotations: map[string]string{"summary": "cpu high on {{ .labels.instance }}"},
		StartedAt:   time.Unix(1700000000, 0).UTC(),
		Expr:        "cpu > 90",
	}
}

// TestDispatcher_WebhookDefaultPayload covers the testable webhook
// scenario: a two-alert group sent to a default-shaped webhook channel
// must produce valid JSON with status "firing", the intersected
// commonLabels, and one entry per alert carrying fingerprint, status,
// labels, annotations, startsAt and value.
func TestDispatcher_WebhookDefaultPayload(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := models.NotificationChannel{
		ID:   uuid.New(),
		Kind: models.ChannelWebhook,
		Config: map[string]interface{}{
			"url": srv.URL,
		},
	}
	channels := &stubChannelStore{channels: []models.NotificationChannel{ch}}
	records := &stubRecordStore{}
	d := New(channels, records, stubSMTPConfig{})

	group := testGroup(testAlert("fp1", "prod"), testAlert("fp2", "prod"))
	rule := models.Rule{ID: uuid.New(), Name: "high-cpu"}

	require.NoError(t, d.Dispatch(context.Background(), rule, group))
	require.NotNil(t, captured)

	assert.Equal(t, "firing", captured["status"])
	commonLabels, ok := captured["commonLabels"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "prod", commonLabels["env"])

	alerts, ok := captured["alerts"].([]interface{})
	require.True(t, ok)
	require.Len(t, alerts, 2)
	for _, raw := range alerts {
		a, ok := raw.(map[string]interface{})
		require.True(t, ok)
		assert.NotEmpty(t, a["fingerprint"])
		assert.Equal(t, "firing", a["status"])
		assert.NotEmpty(t, a["labels"])
		assert.NotEmpty(t, a["annotations"])
		assert.NotEmpty(t, a["startsAt"])
		assert.NotZero(t, a["value"])
	}

	require.Len(t, records.records, 2)
}

func TestDispatcher_WebhookMethodFromConfig(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := models.NotificationChannel{
		ID:   uuid.New(),
		Kind: models.ChannelWebhook,
		Config: map[string]interface{}{
			"url":    srv.URL,
			"method": "put",
		},
	}
	channels := &stubChannelStore{channels: []models.NotificationChannel{ch}}
	records := &stubRecordStore{}
	d := New(channels, records, stubSMTPConfig{})

	group := testGroup(testAlert("fp1", "prod"))
	rule := models.Rule{ID: uuid.New(), Name: "high-cpu"}

	require.NoError(t, d.Dispatch(context.Background(), rule, group))
	assert.Equal(t, http.MethodPut, gotMethod)
}

func TestDispatcher_WebhookCustomBodyTemplate(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := models.NotificationChannel{
		ID:   uuid.New(),
		Kind: models.ChannelWebhook,
		Config: map[string]interface{}{
			"url":           srv.URL,
			"body_template": `{"custom_status": "{{ .Status }}", "count": {{ .AlertCount }}}`,
		},
	}
	channels := &stubChannelStore{channels: []models.NotificationChannel{ch}}
	records := &stubRecordStore{}
	d := New(channels, records, stubSMTPConfig{})

	group := testGroup(testAlert("fp1", "prod"))
	rule := models.Rule{ID: uuid.New(), Name: "high-cpu"}

	require.NoError(t, d.Dispatch(context.Background(), rule, group))
	require.NotNil(t, captured)
	assert.Equal(t, "firing", captured["custom_status"])
	assert.EqualValues(t, 1, captured["count"])
}

func TestDispatcher_WebhookInvalidBodyTemplateFallsBackToDefault(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := models.NotificationChannel{
		ID:   uuid.New(),
		Kind: models.ChannelWebhook,
		Config: map[string]interface{}{
			"url":           srv.URL,
			"body_template": `{not valid json`,
		},
	}
	channels := &stubChannelStore{channels: []models.NotificationChannel{ch}}
	records := &stubRecordStore{}
	d := New(channels, records, stubSMTPConfig{})

	group := testGroup(testAlert("fp1", "prod"))
	rule := models.Rule{ID: uuid.New(), Name: "high-cpu"}

	require.NoError(t, d.Dispatch(context.Background(), rule, group))
	require.NotNil(t, captured)
	assert.Equal(t, "firing", captured["status"])
	assert.Contains(t, captured, "alert")
}

// TestDispatcher_RecordsContentSnapshot covers the content-snapshot
// requirement: every NotificationRecord carries a JSON snapshot of the
// alert as it was at send time, not an empty content column.
func TestDispatcher_RecordsContentSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := models.NotificationChannel{
		ID:   uuid.New(),
		Kind: models.ChannelWebhook,
		Config: map[string]interface{}{
			"url": srv.URL,
		},
	}
	channels := &stubChannelStore{channels: []models.NotificationChannel{ch}}
	records := &stubRecordStore{}
	d := New(channels, records, stubSMTPConfig{})

	ruleID := uuid.New()
	group := testGroup(testAlert("fp1", "prod"))
	rule := models.Rule{ID: ruleID, Name: "high-cpu"}

	require.NoError(t, d.Dispatch(context.Background(), rule, group))
	require.Len(t, records.records, 1)

	var content notificationContentJSON
	require.NoError(t, json.Unmarshal([]byte(records.records[0].Content), &content))
	assert.Equal(t, "fp1", content.Fingerprint)
	assert.Equal(t, ruleID, content.RuleID)
	assert.Equal(t, "firing", content.Status)
	assert.Equal(t, "critical", content.Severity)
	assert.Equal(t, 95.5, content.Value)
	assert.Equal(t, "cpu > 90", content.Expr)
	assert.NotZero(t, content.SentAt)
}

func TestDispatcher_RecordsContentSnapshot_Recovery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := models.NotificationChannel{
		ID:   uuid.New(),
		Kind: models.ChannelWebhook,
		Config: map[string]interface{}{
			"url": srv.URL,
		},
	}
	channels := &stubChannelStore{channels: []models.NotificationChannel{ch}}
	records := &stubRecordStore{}
	d := New(channels, records, stubSMTPConfig{})

	group := testGroup(testAlert("fp1", "prod"))
	group.IsRecovery = true
	rule := models.Rule{ID: uuid.New(), Name: "high-cpu"}

	require.NoError(t, d.Dispatch(context.Background(), rule, group))
	require.Len(t, records.records, 1)

	var content notificationContentJSON
	require.NoError(t, json.Unmarshal([]byte(records.records[0].Content), &content))
	assert.Equal(t, "resolved", content.Status)
}

func TestResolveChannels_FiltersByIncludeLabels(t *testing.T) {
	match := models.NotificationChannel{
		ID:     uuid.New(),
		Kind:   models.ChannelWebhook,
		Filter: models.FilterConfig{IncludeLabels: map[string][]string{"env": {"prod"}}},
	}
	excluded := models.NotificationChannel{
		ID:     uuid.New(),
		Kind:   models.ChannelWebhook,
		Filter: models.FilterConfig{IncludeLabels: map[string][]string{"env": {"staging"}}},
	}
	channels := &stubChannelStore{channels: []models.NotificationChannel{match, excluded}}
	d := New(channels, &stubRecordStore{}, stubSMTPConfig{})

	rule := models.Rule{Name: "high-cpu"}
	resolved, err := d.ResolveChannels(context.Background(), rule, map[string]string{"env": "prod"})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, match.ID, resolved[0].ID)
}
