// Package client provides a REST client for the timeport server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/timeport-io/timeport/internal/models"
)

// Client talks to the timeport server's import API.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

// New creates a new API client.
// If baseURL is empty, uses TIMEPORT_SERVER_URL env var or defaults to localhost:8585.
// Timeout can be configured via TIMEPORT_CLIENT_TIMEOUT env var (default 10m for large uploads).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("TIMEPORT_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8585"
	}

	timeout := 10 * time.Minute
	if t := os.Getenv("TIMEPORT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		userID:  os.Getenv("TIMEPORT_USER"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// apiError is the server's error envelope.
type apiError struct {
	Error string `json:"error"`
}

// do executes one API request and decodes the JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set("X-User-Id", c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error: %s - %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(data))
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// QueueImport queues an import of files already uploaded to the async
// container.
func (c *Client) QueueImport(ctx context.Context, fileNames []string) (*models.ImportJob, error) {
	var job models.ImportJob
	req := models.ImportRequest{FileNames: fileNames}
	if err := c.do(ctx, http.MethodPost, "/api/import", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// QueueBlobImport queues an import of a file reachable through a signed URL.
func (c *Client) QueueBlobImport(ctx context.Context, sasURI string) (*models.ImportJob, error) {
	var job models.ImportJob
	req := models.BlobImportRequest{SasURI: sasURI}
	if err := c.do(ctx, http.MethodPost, "/api/import/blob", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// UploadInfo fetches presigned upload URLs for the given file names.
func (c *Client) UploadInfo(ctx context.Context, fileNames []string) (*models.BlobUploadInfo, error) {
	q := url.Values{}
	for _, name := range fileNames {
		q.Add("fileName", name)
	}
	var info models.BlobUploadInfo
	if err := c.do(ctx, http.MethodGet, "/api/import/upload-info?"+q.Encode(), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// UploadFile streams a file body to a presigned upload URL.
func (c *Client) UploadFile(ctx context.Context, uploadURL string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("upload failed: %s", resp.Status)
	}
	return nil
}

// GetJob retrieves a job by ID. Returns nil if not found.
func (c *Client) GetJob(ctx context.Context, id string) (*models.ImportJob, error) {
	var job models.ImportJob
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &job)
	if err != nil {
		if strings.Contains(err.Error(), "404") {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// ListJobsOptions configures job listing.
type ListJobsOptions struct {
	Status models.JobStatus
	UserID string
	From   *time.Time
	To     *time.Time
}

// ListJobs returns jobs matching the options, most recent first.
func (c *Client) ListJobs(ctx context.Context, opts ListJobsOptions) ([]models.ImportJob, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.UserID != "" {
		q.Set("userId", opts.UserID)
	}
	if opts.From != nil {
		q.Set("from", opts.From.Format(time.RFC3339))
	}
	if opts.To != nil {
		q.Set("to", opts.To.Format(time.RFC3339))
	}

	path := "/api/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var jobs []models.ImportJob
	if err := c.do(ctx, http.MethodGet, path, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// CancelJob requests cancellation of a job and returns its current state.
func (c *Client) CancelJob(ctx context.Context, id string) (*models.ImportJob, error) {
	var job models.ImportJob
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Stats fetches the server's runtime metrics snapshot.
func (c *Client) Stats(ctx context.Context, result any) error {
	return c.do(ctx, http.MethodGet, "/api/stats", nil, result)
}

// WatchJob subscribes to job snapshots over a websocket. Snapshots arrive on
// the returned channel until the job reaches a terminal state or the context
// is canceled; the channel is closed afterwards.
func (c *Client) WatchJob(ctx context.Context, id string) (<-chan models.ImportJob, error) {
	wsURL, err := c.watchURL(id)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("dial watch socket: %w", err)
	}

	ch := make(chan models.ImportJob)
	go func() {
		defer close(ch)
		defer conn.Close()
		for {
			var job models.ImportJob
			if err := conn.ReadJSON(&job); err != nil {
				return
			}
			select {
			case ch <- job:
			case <-ctx.Done():
				return
			}
			if job.Status.Terminal() {
				return
			}
		}
	}()

	// Unblock the reader when the caller gives up.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	return ch, nil
}

func (c *Client) watchURL(id string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/jobs/" + url.PathEscape(id) + "/watch"
	return u.String(), nil
}
