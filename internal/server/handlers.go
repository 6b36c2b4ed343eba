package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/timeport-io/timeport/internal/models"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// handleImport queues an import of files already uploaded to the async
// container.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req models.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.FileNames) == 0 {
		s.respondError(w, http.StatusBadRequest, "file_names required")
		return
	}
	for _, name := range req.FileNames {
		if strings.TrimSpace(name) == "" {
			s.respondError(w, http.StatusBadRequest, "file_names must not contain empty names")
			return
		}
	}
	s.queueJob(w, r, req, false)
}

// handleImportBlob queues an import of a single file reachable through a
// signed URL.
func (s *Server) handleImportBlob(w http.ResponseWriter, r *http.Request) {
	var req models.BlobImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := url.Parse(req.SasURI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		s.respondError(w, http.StatusBadRequest, "sas_uri must be an absolute URL")
		return
	}
	s.queueJob(w, r, req, true)
}

func (s *Server) queueJob(w http.ResponseWriter, r *http.Request, payload any, isBlob bool) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to encode request payload")
		return
	}

	now := s.now()
	job := &models.ImportJob{
		ID:             surrealmodels.RecordID{Table: "import_job", ID: s.newID()},
		Status:         models.JobQueued,
		IsBlobSource:   isBlob,
		RequestPayload: string(body),
		UserID:         r.Header.Get("X-User-Id"),
		StartTime:      now,
		LastUpdateTime: now,
	}
	if err := s.jobs.CreateJob(r.Context(), job); err != nil {
		s.logger.Error("failed to create import job", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to queue import job")
		return
	}

	s.logger.Info("import job queued", "job_id", job.JobID(), "blob_source", isBlob)
	s.respondJSON(w, http.StatusAccepted, job)
}

// handleUploadInfo returns presigned upload URLs for the requested file
// names, so clients can push files into the async container directly.
func (s *Server) handleUploadInfo(w http.ResponseWriter, r *http.Request) {
	names := r.URL.Query()["fileName"]
	if len(names) == 0 {
		s.respondError(w, http.StatusBadRequest, "at least one fileName query parameter required")
		return
	}

	info, err := s.blobs.UploadInfo(r.Context(), names)
	if err != nil {
		s.logger.Error("failed to presign uploads", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to presign uploads")
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var filter models.JobFilter
	q := r.URL.Query()
	filter.Status = models.JobStatus(q.Get("status"))
	filter.UserID = q.Get("userId")
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "from must be RFC3339")
			return
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "to must be RFC3339")
			return
		}
		filter.To = &t
	}

	jobs, err := s.jobs.FindJobs(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []models.ImportJob{}
	}
	s.respondJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get job", "job_id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	if job == nil {
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

// handleCancelJob requests cancellation. A running job is signalled through
// its cancel handle and the worker persists the terminal state; a queued
// job is marked canceled here. Terminal jobs are returned unchanged.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get job", "job_id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	if job == nil {
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status.Terminal() {
		s.respondJSON(w, http.StatusOK, job)
		return
	}

	if running := s.cancels.Cancel(id); running {
		s.logger.Info("cancel signalled", "job_id", id)
		s.respondJSON(w, http.StatusAccepted, job)
		return
	}

	// Not yet picked up by a worker: persist the terminal state now. The
	// registry entry covers the race where a worker claimed it meanwhile.
	job.Status = models.JobCanceled
	job.StatusMessage = "Operation has been cancelled"
	end := s.now()
	job.EndTime = &end
	if err := s.jobs.UpdateJob(r.Context(), job); err != nil {
		s.logger.Error("failed to persist canceled job", "job_id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}
	s.logger.Info("queued job canceled", "job_id", id)
	s.respondJSON(w, http.StatusOK, job)
}
