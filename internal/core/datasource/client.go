// Package datasource implements the query client used to evaluate rule
// expressions against a Prometheus-compatible HTTP API.
package datasource

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"alert-core/internal/models"
)

const defaultTimeout = 30 * time.Second

type queryResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Value  []interface{}     `json:"value,omitempty"`
			Values [][]interface{}   `json:"values,omitempty"`
		} `json:"result"`
	} `json:"data"`
	ErrorType string `json:"errorType,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Client queries a Prometheus-compatible data source over its HTTP API.
type Client struct {
	http    *http.Client
	baseURL string
	auth    models.AuthConfig
}

// New builds a Client from a DataSource definition, applying the
// auth_config and http_config the operator configured for it.
func New(ds models.DataSource) *Client {
	endpoint := ds.BaseURL
	if !strings.HasPrefix(endpoint, "http") {
		endpoint = "http://" + endpoint
	}

	timeout := defaultTimeout
	if ds.HTTP.TimeoutSeconds > 0 {
		timeout = time.Duration(ds.HTTP.TimeoutSeconds) * time.Second
	}

	transport := &http.Transport{}
	if !ds.HTTP.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &Client{
		http:    &http.Client{Timeout: timeout, Transport: transport},
		baseURL: strings.TrimSuffix(endpoint, "/"),
		auth:    ds.Auth,
	}
}

// Query runs an instant query, optionally at a specific RFC3339 time.
func (c *Client) Query(ctx context.Context, expr string, at string) ([]models.QueryResult, error) {
	params := url.Values{}
	params.Set("query", expr)
	if at != "" {
		params.Set("time", at)
	}

	body, err := c.doRequest(ctx, "/api/v1/query", params)
	if err != nil {
		return nil, err
	}
	return parseResults(body)
}

// QueryRange runs a range query between start and end at the given step.
func (c *Client) QueryRange(ctx context.Context, expr string, start, end time.Time, step string) ([]models.QueryResult, error) {
	params := url.Values{}
	params.Set("query", expr)
	params.Set("start", start.Format(time.RFC3339Nano))
	params.Set("end", end.Format(time.RFC3339Nano))
	params.Set("step", step)

	body, err := c.doRequest(ctx, "/api/v1/query_range", params)
	if err != nil {
		return nil, err
	}
	return parseResults(body)
}

// HealthCheck issues a trivial query to confirm the endpoint is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	params := url.Values{}
	params.Set("query", "up")
	_, err := c.doRequest(ctx, "/api/v1/query", params)
	return err
}

func (c *Client) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	c.applyAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query data source: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read data source response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("data source returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *Client) applyAuth(req *http.Request) {
	switch c.auth.Kind {
	case models.AuthBearer:
		if c.auth.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.auth.Token)
		}
	case models.AuthBasic:
		if c.auth.Username != "" {
			req.SetBasicAuth(c.auth.Username, c.auth.Password)
		}
	}
}

func parseResults(data []byte) ([]models.QueryResult, error) {
	var resp queryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal data source response: %w", err)
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("query failed: %s - %s", resp.ErrorType, resp.Error)
	}

	results := make([]models.QueryResult, 0, len(resp.Data.Result))
	for _, r := range resp.Data.Result {
		qr := models.QueryResult{Metric: r.Metric}

		if len(r.Value) >= 2 {
			sample, err := parseSample(r.Value)
			if err != nil {
				return nil, fmt.Errorf("parse sample for %v: %w", r.Metric, err)
			}
			qr.Value = sample
			results = append(results, qr)
			continue
		}
		for _, v := range r.Values {
			if len(v) < 2 {
				continue
			}
			sample, err := parseSample(v)
			if err != nil {
				return nil, fmt.Errorf("parse sample for %v: %w", r.Metric, err)
			}
			qr.Values = append(qr.Values, sample)
		}
		if len(qr.Values) > 0 {
			results = append(results, qr)
		}
	}
	return results, nil
}

func parseSample(v []interface{}) (models.Sample, error) {
	if len(v) < 2 {
		return models.Sample{}, nil
	}
	ts, _ := v[0].(float64)
	value, err := parseFloat64(v[1])
	if err != nil {
		return models.Sample{}, err
	}
	return models.Sample{
		Timestamp: time.Unix(int64(ts), 0),
		Value:     value,
	}, nil
}

// parseFloat64 mirrors the original evaluator's unguarded float(...)
// conversion of a query result's value: a non-numeric value is a hard
// query error, not a silent zero.
func parseFloat64(v interface{}) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case json.Number:
		return val.Float64()
	case string:
		return strconv.ParseFloat(val, 64)
	}
	return 0, fmt.Errorf("non-numeric sample value: %v", v)
}
