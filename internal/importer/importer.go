package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/timeport-io/timeport/internal/blob"
	"github.com/timeport-io/timeport/internal/metrics"
	"github.com/timeport-io/timeport/internal/models"
	"github.com/timeport-io/timeport/internal/registry"
	"github.com/timeport-io/timeport/internal/sink"
)

// ErrTooManyErrors signals that a job crossed the per-request error
// threshold. The job is already persisted in error state when this is
// returned.
var ErrTooManyErrors = errors.New("too many invalid time series rows")

// JobStore persists import job state transitions.
type JobStore interface {
	UpdateJob(ctx context.Context, job *models.ImportJob) error
}

// TwinFinder resolves digital twins from the registry, one page at a time.
type TwinFinder interface {
	Query(ctx context.Context, filter, continuationToken string) ([]registry.Twin, string, error)
}

// Importer runs queued import jobs end to end: download, decode, validate,
// resolve and flush to the telemetry sink, persisting progress as it goes.
type Importer struct {
	jobs      JobStore
	blobs     blob.Store
	twins     TwinFinder
	sink      sink.Writer
	metrics   *metrics.Collector
	logger    *slog.Logger
	container string
	batchSize int
	now       func() time.Time
}

func New(jobs JobStore, blobs blob.Store, twins TwinFinder, writer sink.Writer, container string, collector *metrics.Collector, logger *slog.Logger) *Importer {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		jobs:      jobs,
		blobs:     blobs,
		twins:     twins,
		sink:      writer,
		metrics:   collector,
		logger:    logger,
		container: container,
		batchSize: maxEntitiesPerRequest,
		now:       time.Now,
	}
}

// ProcessImport executes one claimed job. On success the job is persisted as
// done with an import summary. Threshold trips persist the error state and
// return ErrTooManyErrors; all other failures (including cancellation) are
// returned to the caller, which owns the terminal-state write.
func (imp *Importer) ProcessImport(ctx context.Context, job *models.ImportJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job.Status = models.JobRunning
	if job.StartTime.IsZero() {
		job.StartTime = imp.now()
	}
	if err := imp.updateJob(ctx, job); err != nil {
		return err
	}

	start := time.Now()
	var err error
	if job.IsBlobSource {
		err = imp.processSignedURL(ctx, job)
	} else {
		err = imp.processNamedFiles(ctx, job)
	}
	imp.metrics.RecordTiming(metrics.OpJobRun, time.Since(start))
	if err != nil {
		return err
	}

	job.Status = models.JobDone
	job.StatusMessage += fmt.Sprintf("Imported %d timeseries rows", job.ProcessedEntities)
	end := imp.now()
	job.EndTime = &end
	if err := imp.updateJob(ctx, job); err != nil {
		return err
	}
	imp.logger.Info("import job done",
		"job_id", job.JobID(),
		"total", job.TotalEntities,
		"processed", job.ProcessedEntities,
		"errors", len(job.EntitiesError))
	return nil
}

func (imp *Importer) processSignedURL(ctx context.Context, job *models.ImportJob) error {
	var req models.BlobImportRequest
	if err := json.Unmarshal([]byte(job.RequestPayload), &req); err != nil {
		return fmt.Errorf("decode blob import request: %w", err)
	}

	u, err := url.Parse(req.SasURI)
	if err != nil {
		return fmt.Errorf("parse signed url: %w", err)
	}

	start := time.Now()
	stream, err := imp.blobs.DownloadBySignedURL(ctx, req.SasURI)
	imp.metrics.RecordTiming(metrics.OpBlobDownload, time.Since(start))
	if err != nil {
		return fmt.Errorf("download %s: %w", u.Path, err)
	}
	return imp.processStream(ctx, job, u.Path, stream)
}

func (imp *Importer) processNamedFiles(ctx context.Context, job *models.ImportJob) error {
	var req models.ImportRequest
	if err := json.Unmarshal([]byte(job.RequestPayload), &req); err != nil {
		return fmt.Errorf("decode import request: %w", err)
	}

	for _, fileName := range req.FileNames {
		imp.logger.Info("processing file", "job_id", job.JobID(), "file", fileName)

		start := time.Now()
		stream, err := imp.blobs.DownloadByName(ctx, imp.container, fileName)
		imp.metrics.RecordTiming(metrics.OpBlobDownload, time.Since(start))
		if err != nil {
			return fmt.Errorf("download %s: %w", fileName, err)
		}
		if err := imp.processStream(ctx, job, fileName, stream); err != nil {
			return err
		}
	}
	return nil
}

// processStream decodes one file and feeds its rows through validation and
// batched resolution. TotalEntities counts rows that passed validation.
func (imp *Importer) processStream(ctx context.Context, job *models.ImportJob, fileName string, raw io.ReadCloser) error {
	stream, err := openTypedStream(raw, fileName)
	if err != nil {
		if raw != nil {
			raw.Close()
		}
		return err
	}
	defer stream.Close()

	rr, err := newRowReader(stream)
	if err != nil {
		return fmt.Errorf("decode %s: %w", fileName, err)
	}

	total := 0
	batch := make([]models.TimeSeriesRow, 0, imp.batchSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, line, err := rr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("decode %s: %w", fileName, err)
		}

		stampEnqueued(&row, imp.now().UTC())
		if ok, reason := validateRow(row); !ok {
			job.RecordError(fmt.Sprintf("%s_Row_%d", fileName, line), reason)
			if err := imp.failIfTooManyErrors(ctx, job); err != nil {
				return err
			}
			continue
		}

		batch = append(batch, row)
		total++
		if len(batch) == imp.batchSize {
			if err := imp.processBatch(ctx, job, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := imp.processBatch(ctx, job, batch); err != nil {
			return err
		}
	}

	job.TotalEntities += total
	imp.metrics.TrackRowsRequested(int64(total))
	imp.logger.Info("file processed", "job_id", job.JobID(), "file", fileName, "rows", total)
	return nil
}

// processBatch resolves one batch of valid rows against the registry and
// flushes the resulting records. The batch runs twice, once per identifier
// kind; rows carrying both identifiers produce a record in each pass.
func (imp *Importer) processBatch(ctx context.Context, job *models.ImportJob, rows []models.TimeSeriesRow) error {
	for _, kind := range []KeyKind{KeyExternalID, KeyTrendID} {
		records, err := imp.resolveRows(ctx, job, rows, kind)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			continue
		}
		if err := imp.flush(ctx, job, records); err != nil {
			return err
		}
	}
	// Persist per batch so watchers see progress while the job runs.
	return imp.updateJob(ctx, job)
}

// flush writes resolved records to the telemetry sink. ProcessedEntities
// advances only after the sink accepted the batch.
func (imp *Importer) flush(ctx context.Context, job *models.ImportJob, records []models.TimeSeriesRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	if err := imp.sink.BulkWrite(ctx, sink.TelemetryTable, sink.TelemetryColumns, records); err != nil {
		return fmt.Errorf("bulk write: %w", err)
	}
	imp.metrics.RecordRows(metrics.OpSinkFlush, time.Since(start), int64(len(records)))
	imp.metrics.TrackRowsIngested(int64(len(records)))
	job.ProcessedEntities += len(records)
	return nil
}

// tooManyErrors reports whether the distinct error count crossed the
// threshold, marking the job failed when it did. Persisting is left to
// the caller.
func (imp *Importer) tooManyErrors(job *models.ImportJob) bool {
	if len(job.EntitiesError) <= maxEntitiesPerRequest {
		return false
	}
	imp.logger.Warn("too many invalid time series rows",
		"job_id", job.JobID(), "errors", len(job.EntitiesError))
	job.Status = models.JobError
	job.StatusMessage = "Too many invalid time series rows."
	return true
}

func (imp *Importer) failIfTooManyErrors(ctx context.Context, job *models.ImportJob) error {
	if !imp.tooManyErrors(job) {
		return nil
	}
	end := imp.now()
	job.EndTime = &end
	if err := imp.updateJob(ctx, job); err != nil {
		return err
	}
	return ErrTooManyErrors
}

func (imp *Importer) updateJob(ctx context.Context, job *models.ImportJob) error {
	start := time.Now()
	err := imp.jobs.UpdateJob(ctx, job)
	imp.metrics.RecordTiming(metrics.OpJobStoreUpdate, time.Since(start))
	if err != nil {
		imp.logger.Error("failed to update import job", "job_id", job.JobID(), "error", err)
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}
