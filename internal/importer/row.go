// Package importer implements the bulk historical time-series import
// pipeline: stream decoding, row validation, batched twin resolution and
// sink flushing, driven per job by the orchestrator in importer.go.
package importer

import (
	"strings"
	"time"

	"github.com/timeport-io/timeport/internal/models"
)

// maxEntitiesPerRequest is both the flush batch size and the distinct
// error-key threshold that aborts a job.
const maxEntitiesPerRequest = 1000

// futureSourceOffset is added to future-dated source timestamps when
// deriving the enqueued timestamp.
const futureSourceOffset = 10 * time.Second

// stampEnqueued derives the enqueued timestamp for a decoded row.
// A source timestamp in the future gets source+10s so the ordering
// invariant holds for well-formed future-dated rows; historical rows are
// stamped with the ingestion time.
func stampEnqueued(row *models.TimeSeriesRow, now time.Time) {
	if row.SourceTimestamp != nil && row.SourceTimestamp.After(now) {
		enq := row.SourceTimestamp.Add(futureSourceOffset)
		row.EnqueuedTimestamp = &enq
		return
	}
	row.EnqueuedTimestamp = &now
}

// validateRow checks the admission rules in order; the first failure wins.
// Returns ok and, on failure, the reason recorded against the row's error
// key.
func validateRow(row models.TimeSeriesRow) (bool, string) {
	if strings.TrimSpace(row.ExternalID) == "" && strings.TrimSpace(row.TrendID) == "" {
		return false, "ExternalId or TrendId required"
	}
	if row.SourceTimestamp == nil {
		return false, "SourceTimestamp required"
	}
	// EnqueuedTimestamp is always derived before validation, so these two
	// checks only fire if a caller skipped stamping.
	if row.EnqueuedTimestamp == nil {
		return false, "EnqueuedTimestamp required"
	}
	if !row.EnqueuedTimestamp.After(*row.SourceTimestamp) {
		return false, "EnqueuedTimestamp must be greater than SourceTimestamp"
	}
	if row.ScalarValue == "" {
		return false, "ScalarValue required"
	}
	return true, ""
}
