// Package registry provides the twin registry client used to resolve
// external and trend identifiers to canonical twins.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Twin is one registry lookup result: canonical twin ID plus the flat
// property bag the join fields live in.
type Twin struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Property returns the named property rendered as a string, or "" when
// absent. Join fields are matched and carried over through this accessor.
func (t *Twin) Property(name string) string {
	v, ok := t.Properties[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Client is an HTTP client for the twin registry query API.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a registry client for the given endpoint.
func New(endpoint string) *Client {
	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// queryRequest is the payload for twin queries.
type queryRequest struct {
	Filter            string `json:"filter"`
	ContinuationToken string `json:"continuation_token,omitempty"`
}

// queryResponse is the paged result of a twin query.
type queryResponse struct {
	Twins             []Twin `json:"twins"`
	ContinuationToken string `json:"continuation_token,omitempty"`
}

// Query runs one page of a filtered twin lookup. An empty returned token
// signals the final page.
func (c *Client) Query(ctx context.Context, filter, continuationToken string) ([]Twin, string, error) {
	reqBody, err := json.Marshal(queryRequest{
		Filter:            filter,
		ContinuationToken: continuationToken,
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/twins/query", bytes.NewReader(reqBody))
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("query twins: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("registry error: %s - %s", resp.Status, string(body))
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, "", fmt.Errorf("unmarshal response: %w", err)
	}
	return qr.Twins, qr.ContinuationToken, nil
}

// FieldIn builds a `field IN ('a','b')` filter over the given values.
// Values are single-quoted with embedded quotes doubled.
func FieldIn(field string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(quoted, ","))
}
