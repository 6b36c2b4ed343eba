package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timeport-io/timeport/internal/metrics"
	"github.com/timeport-io/timeport/internal/models"
	"github.com/timeport-io/timeport/internal/registry"
)

// KeyKind selects which identifier a resolution pass joins on. The value
// is the registry property name the key lives under.
type KeyKind string

const (
	KeyExternalID KeyKind = "externalID"
	KeyTrendID    KeyKind = "trendID"
)

// key returns the row's identifier value for this kind.
func (k KeyKind) key(row models.TimeSeriesRow) string {
	if k == KeyTrendID {
		return row.TrendID
	}
	return row.ExternalID
}

// resolveRows joins one batch of rows against the twin registry by the
// given identifier kind. Rows without that identifier are skipped here; the
// caller runs a second pass under the other kind, so a row carrying both
// identifiers resolves (and ingests) once per pass. Unmatched rows become
// error entries keyed by the identifier value.
func (imp *Importer) resolveRows(ctx context.Context, job *models.ImportJob, rows []models.TimeSeriesRow, kind KeyKind) ([]models.TimeSeriesRecord, error) {
	var input []models.TimeSeriesRow
	for _, row := range rows {
		if strings.TrimSpace(kind.key(row)) != "" {
			input = append(input, row)
		}
	}
	if len(input) == 0 {
		return nil, nil
	}

	// Distinct key values, first occurrence wins: the same twin key may
	// appear many times across a large file.
	seen := make(map[string]struct{}, len(input))
	var keys []string
	for _, row := range input {
		k := kind.key(row)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	twins, err := imp.lookupTwins(ctx, registry.FieldIn(string(kind), keys))
	if err != nil {
		return nil, err
	}
	imp.logger.Info("twin lookup complete",
		"job_id", job.JobID(), "kind", string(kind), "keys", len(keys), "twins", len(twins))

	// Index by join property; first match wins.
	byKey := make(map[string]*registry.Twin, len(twins))
	for i := range twins {
		k := twins[i].Property(string(kind))
		if k == "" {
			continue
		}
		if _, dup := byKey[k]; !dup {
			byKey[k] = &twins[i]
		}
	}

	var records []models.TimeSeriesRecord
	for _, row := range input {
		k := kind.key(row)
		twin, ok := byKey[k]
		if !ok {
			if err := imp.failIfTooManyErrors(ctx, job); err != nil {
				return nil, err
			}
			job.RecordError(k, fmt.Sprintf("%s not found.", string(kind)))
			continue
		}

		records = append(records, models.TimeSeriesRecord{
			ConnectorID:       twin.Property("connectorID"),
			TwinID:            twin.ID,
			ExternalID:        twin.Property("externalID"),
			TrendID:           twin.Property("trendID"),
			SourceTimestamp:   row.SourceTimestamp,
			EnqueuedTimestamp: row.EnqueuedTimestamp,
			ScalarValue:       row.ScalarValue,
		})
	}
	return records, nil
}

// lookupTwins pages through the registry until the continuation token is
// empty. The loop is bounded by the token; cancellation is checked before
// every page fetch.
func (imp *Importer) lookupTwins(ctx context.Context, filter string) ([]registry.Twin, error) {
	start := time.Now()
	var twins []registry.Twin
	token := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, next, err := imp.twins.Query(ctx, filter, token)
		if err != nil {
			return nil, fmt.Errorf("query twins: %w", err)
		}
		twins = append(twins, page...)
		if next == "" {
			break
		}
		token = next
	}
	imp.metrics.RecordRows(metrics.OpTwinLookup, time.Since(start), int64(len(twins)))
	return twins, nil
}
