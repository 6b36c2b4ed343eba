package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/timeport-io/timeport/internal/models"
)

// jobContent builds the CONTENT map for create/update round-trips.
// Field names must stay in sync with SchemaSQL.
func jobContent(job *models.ImportJob) map[string]any {
	content := map[string]any{
		"status":             string(job.Status),
		"is_blob_source":     job.IsBlobSource,
		"request_payload":    job.RequestPayload,
		"total_entities":     job.TotalEntities,
		"processed_entities": job.ProcessedEntities,
		"status_message":     job.StatusMessage,
		"start_time":         job.StartTime,
		"last_update_time":   job.LastUpdateTime,
	}
	if job.UserID != "" {
		content["user_id"] = job.UserID
	}
	if len(job.EntitiesError) > 0 {
		content["entities_error"] = job.EntitiesError
	}
	if job.EndTime != nil {
		content["end_time"] = *job.EndTime
	}
	return content
}

// CreateJob persists a new job under the given ID.
func (c *Client) CreateJob(ctx context.Context, job *models.ImportJob) error {
	_, err := surrealdb.Query[[]models.ImportJob](ctx, c.db, `
		CREATE type::record("import_job", $id) CONTENT $content
	`, map[string]any{
		"id":      job.JobID(),
		"content": jobContent(job),
	})
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID. Returns nil if not found.
func (c *Client) GetJob(ctx context.Context, id string) (*models.ImportJob, error) {
	results, err := surrealdb.Query[[]models.ImportJob](ctx, c.db, `
		SELECT * FROM type::record("import_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// UpdateJob round-trips the full job state back to the store.
func (c *Client) UpdateJob(ctx context.Context, job *models.ImportJob) error {
	job.LastUpdateTime = time.Now().UTC()
	_, err := surrealdb.Query[[]models.ImportJob](ctx, c.db, `
		UPDATE type::record("import_job", $id) CONTENT $content
	`, map[string]any{
		"id":      job.JobID(),
		"content": jobContent(job),
	})
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// FindJobs lists jobs matching the filter, most recent first.
func (c *Client) FindJobs(ctx context.Context, filter models.JobFilter) ([]models.ImportJob, error) {
	where := ""
	vars := map[string]any{}
	clause := func(cond string) {
		if where == "" {
			where = "WHERE " + cond
		} else {
			where += " AND " + cond
		}
	}
	if filter.Status != "" {
		clause("status = $status")
		vars["status"] = string(filter.Status)
	}
	if filter.UserID != "" {
		clause("user_id = $user")
		vars["user"] = filter.UserID
	}
	if filter.From != nil {
		clause("start_time >= $from")
		vars["from"] = *filter.From
	}
	if filter.To != nil {
		clause("start_time <= $to")
		vars["to"] = *filter.To
	}

	sql := fmt.Sprintf(`SELECT * FROM import_job %s ORDER BY start_time DESC`, where)
	results, err := surrealdb.Query[[]models.ImportJob](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("find jobs: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.ImportJob{}, nil
	}
	return (*results)[0].Result, nil
}

// ClaimQueued atomically transitions the oldest queued job to running and
// returns it. Returns nil when no queued job exists. The WHERE guard makes
// concurrent pollers claim distinct jobs.
func (c *Client) ClaimQueued(ctx context.Context) (*models.ImportJob, error) {
	results, err := surrealdb.Query[[]models.ImportJob](ctx, c.db, `
		UPDATE (
			SELECT VALUE id FROM import_job WHERE status = $queued ORDER BY start_time ASC LIMIT 1
		) SET status = $running, last_update_time = time::now()
		WHERE status = $queued
		RETURN AFTER
	`, map[string]any{
		"queued":  string(models.JobQueued),
		"running": string(models.JobRunning),
	})
	if err != nil {
		return nil, fmt.Errorf("claim queued job: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}
