package importer

import (
	"testing"
	"time"

	"github.com/timeport-io/timeport/internal/models"
)

func ts(t time.Time) *time.Time { return &t }

func TestStampEnqueued(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		source *time.Time
		want   time.Time
	}{
		{"past source uses now", ts(now.Add(-time.Hour)), now},
		{"future source gets fixed offset", ts(now.Add(time.Hour)), now.Add(time.Hour + 10*time.Second)},
		{"missing source uses now", nil, now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := models.TimeSeriesRow{SourceTimestamp: tt.source}
			stampEnqueued(&row, now)
			if row.EnqueuedTimestamp == nil {
				t.Fatal("EnqueuedTimestamp not set")
			}
			if !row.EnqueuedTimestamp.Equal(tt.want) {
				t.Errorf("EnqueuedTimestamp = %v, want %v", row.EnqueuedTimestamp, tt.want)
			}
		})
	}
}

func TestValidateRow(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := ts(now.Add(-time.Hour))

	tests := []struct {
		name   string
		row    models.TimeSeriesRow
		valid  bool
		reason string
	}{
		{
			name:  "valid with external id",
			row:   models.TimeSeriesRow{ExternalID: "ext1", SourceTimestamp: src, EnqueuedTimestamp: ts(now), ScalarValue: "1"},
			valid: true,
		},
		{
			name:  "valid with trend id",
			row:   models.TimeSeriesRow{TrendID: "tr1", SourceTimestamp: src, EnqueuedTimestamp: ts(now), ScalarValue: "on"},
			valid: true,
		},
		{
			name:   "no identifier",
			row:    models.TimeSeriesRow{SourceTimestamp: src, EnqueuedTimestamp: ts(now), ScalarValue: "1"},
			reason: "ExternalId or TrendId required",
		},
		{
			name:   "whitespace identifier",
			row:    models.TimeSeriesRow{ExternalID: "  ", SourceTimestamp: src, EnqueuedTimestamp: ts(now), ScalarValue: "1"},
			reason: "ExternalId or TrendId required",
		},
		{
			name:   "missing source timestamp",
			row:    models.TimeSeriesRow{ExternalID: "ext1", EnqueuedTimestamp: ts(now), ScalarValue: "1"},
			reason: "SourceTimestamp required",
		},
		{
			name:   "missing enqueued timestamp",
			row:    models.TimeSeriesRow{ExternalID: "ext1", SourceTimestamp: src, ScalarValue: "1"},
			reason: "EnqueuedTimestamp required",
		},
		{
			name:   "enqueued equals source",
			row:    models.TimeSeriesRow{ExternalID: "ext1", SourceTimestamp: src, EnqueuedTimestamp: src, ScalarValue: "1"},
			reason: "EnqueuedTimestamp must be greater than SourceTimestamp",
		},
		{
			name:   "missing scalar value",
			row:    models.TimeSeriesRow{ExternalID: "ext1", SourceTimestamp: src, EnqueuedTimestamp: ts(now)},
			reason: "ScalarValue required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, reason := validateRow(tt.row)
			if valid != tt.valid {
				t.Errorf("valid = %v, want %v", valid, tt.valid)
			}
			if reason != tt.reason {
				t.Errorf("reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}
