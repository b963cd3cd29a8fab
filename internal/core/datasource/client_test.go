package datasource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"alert-core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_QueryInstantVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/query", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[
			{"metric":{"instance":"a"},"value":[1700000000,"3.5"]}
		]}}`))
	}))
	defer srv.Close()

	c := New(models.DataSource{BaseURL: srv.URL})
	results, err := c.Query(context.Background(), "up", "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Metric["instance"])
	assert.Equal(t, 3.5, results[0].Value.Value)
}

func TestClient_QueryFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","errorType":"bad_data","error":"parse error"}`))
	}))
	defer srv.Close()

	c := New(models.DataSource{BaseURL: srv.URL})
	_, err := c.Query(context.Background(), "up{", "")
	require.Error(t, err)
}

func TestClient_BearerAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[]}}`))
	}))
	defer srv.Close()

	c := New(models.DataSource{
		BaseURL: srv.URL,
		Auth:    models.AuthConfig{Kind: models.AuthBearer, Token: "secret-token"},
	})
	_, err := c.Query(context.Background(), "up", "")
	require.NoError(t, err)
}

func TestClient_PrependsSchemeWhenMissing(t *testing.T) {
	c := New(models.DataSource{BaseURL: "prom.internal:9090"})
	assert.Equal(t, "http://prom.internal:9090", c.baseURL)
}

func TestClient_QueryNonNumericValueIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[
			{"metric":{"instance":"a"},"value":[1700000000,"unavailable"]}
		]}}`))
	}))
	defer srv.Close()

	c := New(models.DataSource{BaseURL: srv.URL})
	_, err := c.Query(context.Background(), "up", "")
	require.Error(t, err)
}
