// Package sink provides the telemetry store client the import pipeline
// flushes resolved batches into.
package sink

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/timeport-io/timeport/internal/models"
)

// TelemetryTable is the destination table for historical imports.
const TelemetryTable = "Telemetry"

// TelemetryColumns is the fixed destination column set. It must stay in
// sync with models.TimeSeriesRecord; drift is a deployment-time concern.
var TelemetryColumns = []string{
	"ConnectorId",
	"DtId",
	"ExternalId",
	"TrendId",
	"SourceTimestamp",
	"EnqueuedTimestamp",
	"ScalarValue",
	"Latitude",
	"Longitude",
	"Altitude",
	"Properties",
}

// Writer is the sink boundary the batch composer flushes through.
type Writer interface {
	// EnsureTable verifies the destination table exists, creating it
	// with the default column set if missing. Called once per process
	// before the first import.
	EnsureTable(ctx context.Context) error

	// BulkWrite ingests one batch of records. Partial failure is not
	// retried here; the error is fatal for the calling job.
	BulkWrite(ctx context.Context, table string, columns []string, records []models.TimeSeriesRecord) error
}

// Client is an HTTP client for the telemetry store's management and bulk
// ingest endpoints.
type Client struct {
	endpoint   string
	database   string
	httpClient *http.Client
}

// New creates a sink client for the given endpoint and database.
func New(endpoint, database string) *Client {
	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		database:   database,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) tableURL(table string) string {
	return fmt.Sprintf("%s/v1/databases/%s/tables/%s", c.endpoint, c.database, table)
}

// EnsureTable checks for the Telemetry table and creates it when absent.
func (c *Client) EnsureTable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tableURL(TelemetryTable), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("check table: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return c.createTable(ctx)
	default:
		return fmt.Errorf("check table: unexpected status %s", resp.Status)
	}
}

func (c *Client) createTable(ctx context.Context) error {
	body, err := json.Marshal(map[string]any{"columns": TelemetryColumns})
	if err != nil {
		return fmt.Errorf("marshal create table: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.tableURL(TelemetryTable), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("create table: unexpected status %s", resp.Status)
	}
	return nil
}

// BulkWrite ingests records as a gzip-compressed CSV payload in column
// order.
func (c *Client) BulkWrite(ctx context.Context, table string, columns []string, records []models.TimeSeriesRecord) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	w := csv.NewWriter(gz)
	for _, rec := range records {
		row, err := recordRow(rec)
		if err != nil {
			return err
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("compress records: %w", err)
	}

	url := fmt.Sprintf("%s/ingest?columns=%s", c.tableURL(table), strings.Join(columns, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Content-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bulk write: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("bulk write: %s - %s", resp.Status, string(body))
	}
	return nil
}

// recordRow renders one record in TelemetryColumns order.
func recordRow(rec models.TimeSeriesRecord) ([]string, error) {
	props := ""
	if len(rec.Properties) > 0 {
		data, err := json.Marshal(rec.Properties)
		if err != nil {
			return nil, fmt.Errorf("marshal properties: %w", err)
		}
		props = string(data)
	}
	return []string{
		rec.ConnectorID,
		rec.TwinID,
		rec.ExternalID,
		rec.TrendID,
		formatTime(rec.SourceTimestamp),
		formatTime(rec.EnqueuedTimestamp),
		rec.ScalarValue,
		formatFloat(rec.Latitude),
		formatFloat(rec.Longitude),
		formatFloat(rec.Altitude),
		props,
	}, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'g', -1, 64)
}
