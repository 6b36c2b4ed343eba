// Package worker polls the job store for queued imports and runs them
// through the import pipeline, writing terminal states back.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/timeport-io/timeport/internal/importer"
	"github.com/timeport-io/timeport/internal/models"
)

const terminalWriteTimeout = 10 * time.Second

// JobStore claims and persists jobs. The claim is atomic so concurrent
// pollers never pick up the same job.
type JobStore interface {
	ClaimQueued(ctx context.Context) (*models.ImportJob, error)
	UpdateJob(ctx context.Context, job *models.ImportJob) error
}

// JobRunner executes one claimed job to completion.
type JobRunner interface {
	ProcessImport(ctx context.Context, job *models.ImportJob) error
}

// Pool runs a fixed number of pollers against the job store.
type Pool struct {
	jobs     JobStore
	runner   JobRunner
	cancels  *importer.CancelRegistry
	logger   *slog.Logger
	interval time.Duration
	workers  int
	now      func() time.Time
}

func New(jobs JobStore, runner JobRunner, cancels *importer.CancelRegistry, interval time.Duration, workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		jobs:     jobs,
		runner:   runner,
		cancels:  cancels,
		logger:   logger,
		interval: interval,
		workers:  workers,
		now:      time.Now,
	}
}

// Run blocks until the context is canceled, then waits for in-flight jobs
// to wind down.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool starting", "workers", p.workers, "poll_interval", p.interval)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.poll(ctx, id)
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}

// poll drains all queued jobs, then sleeps one tick. Claim errors back off
// to the next tick rather than spinning.
func (p *Pool) poll(ctx context.Context, id int) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		for ctx.Err() == nil {
			job, err := p.jobs.ClaimQueued(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Error("failed to claim queued job", "worker", id, "error", err)
				}
				break
			}
			if job == nil {
				break
			}
			p.runJob(ctx, job)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Pool) runJob(ctx context.Context, job *models.ImportJob) {
	jobID := job.JobID()

	// A cancel that arrived while the job sat in the queue wins without
	// starting the pipeline.
	if p.cancels.CanceledBeforeStart(jobID) {
		p.logger.Info("job canceled before start", "job_id", jobID)
		p.finish(ctx, job, models.JobCanceled, "Operation has been cancelled")
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.cancels.Register(jobID, cancel)
	defer p.cancels.Unregister(jobID)

	p.logger.Info("job claimed", "job_id", jobID, "blob_source", job.IsBlobSource)

	err := p.runner.ProcessImport(jobCtx, job)
	switch {
	case err == nil:
	case errors.Is(err, importer.ErrTooManyErrors):
		// Already persisted in error state by the pipeline.
		p.logger.Warn("job aborted at error threshold", "job_id", jobID)
	case errors.Is(err, context.Canceled):
		p.logger.Info("job canceled", "job_id", jobID)
		p.finish(ctx, job, models.JobCanceled, "Operation has been cancelled")
	default:
		p.logger.Error("import job failed", "job_id", jobID, "error", err)
		p.finish(ctx, job, models.JobError, err.Error())
	}
}

// finish persists a terminal state exactly once. The write uses a detached
// context so shutdown cancellation does not lose the final transition.
func (p *Pool) finish(ctx context.Context, job *models.ImportJob, status models.JobStatus, message string) {
	if job.Status.Terminal() {
		return
	}
	job.Status = status
	job.StatusMessage = message
	end := p.now()
	job.EndTime = &end

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()
	if err := p.jobs.UpdateJob(wctx, job); err != nil {
		p.logger.Error("failed to persist terminal job state",
			"job_id", job.JobID(), "status", string(status), "error", err)
		return
	}
	p.logger.Info("job finished", "job_id", job.JobID(), "status", string(status))
}
