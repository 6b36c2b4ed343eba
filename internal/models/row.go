package models

import "time"

// TimeSeriesRow is one decoded line of an import file, prior to twin
// resolution. EnqueuedTimestamp is always derived, never read from input.
type TimeSeriesRow struct {
	ExternalID        string
	TrendID           string
	SourceTimestamp   *time.Time
	EnqueuedTimestamp *time.Time
	// ScalarValue is the raw cell text; numeric, boolean and string
	// payloads all pass through unmodified.
	ScalarValue string
}

// TimeSeriesRecord is a validated row joined with its resolved twin,
// shaped for the telemetry sink's fixed column set.
type TimeSeriesRecord struct {
	ConnectorID       string         `json:"connector_id,omitempty"`
	TwinID            string         `json:"twin_id"`
	ExternalID        string         `json:"external_id,omitempty"`
	TrendID           string         `json:"trend_id,omitempty"`
	SourceTimestamp   *time.Time     `json:"source_timestamp"`
	EnqueuedTimestamp *time.Time     `json:"enqueued_timestamp"`
	ScalarValue       string         `json:"scalar_value"`
	Latitude          *float64       `json:"latitude,omitempty"`
	Longitude         *float64       `json:"longitude,omitempty"`
	Altitude          *float64       `json:"altitude,omitempty"`
	Properties        map[string]any `json:"properties,omitempty"`
}

