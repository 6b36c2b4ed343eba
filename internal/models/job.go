// Package models defines data structures for the timeport import service.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// JobStatus represents the state of an import job.
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobError    JobStatus = "error"
	JobCanceled JobStatus = "canceled"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobError || s == JobCanceled
}

// ImportJob represents a persisted bulk historical import job.
type ImportJob struct {
	ID     surrealmodels.RecordID `json:"id"`
	Status JobStatus              `json:"status"`

	// IsBlobSource selects the input path: a single signed blob URL
	// vs. a list of pre-uploaded file names.
	IsBlobSource bool `json:"is_blob_source"`

	// RequestPayload holds the serialized ImportRequest or
	// BlobImportRequest as received.
	RequestPayload string `json:"request_payload"`

	UserID string `json:"user_id,omitempty"`

	TotalEntities     int `json:"total_entities"`
	ProcessedEntities int `json:"processed_entities"`

	// EntitiesError maps an error key (file+row or identifier value) to
	// the first error recorded for it.
	EntitiesError map[string]string `json:"entities_error,omitempty"`

	StatusMessage  string     `json:"status_message,omitempty"`
	StartTime      time.Time  `json:"start_time"`
	LastUpdateTime time.Time  `json:"last_update_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
}

// JobID returns the string form of the job's record ID.
func (j *ImportJob) JobID() string {
	return MustRecordIDString(j.ID)
}

// RecordError adds an error entry unless one already exists for the key.
// Returns true if the entry was added. First error wins.
func (j *ImportJob) RecordError(key, message string) bool {
	if j.EntitiesError == nil {
		j.EntitiesError = make(map[string]string)
	}
	if _, exists := j.EntitiesError[key]; exists {
		return false
	}
	j.EntitiesError[key] = message
	return true
}

// ImportRequest queues an import of files already uploaded to the async
// container.
type ImportRequest struct {
	FileNames []string `json:"file_names"`
}

// BlobImportRequest queues an import of a single externally hosted file
// reachable through a signed URL.
type BlobImportRequest struct {
	SasURI string `json:"sas_uri"`
}

// BlobUploadInfo carries presigned upload destinations for client-side
// uploads prior to queueing an import.
type BlobUploadInfo struct {
	ContainerURL string `json:"container_url"`
	Container    string `json:"container"`
	// Files maps each requested file name to its presigned upload URL.
	Files map[string]string `json:"files"`
}

// JobFilter narrows FindJobs results. Zero values match everything.
type JobFilter struct {
	Status JobStatus
	UserID string
	From   *time.Time
	To     *time.Time
}
