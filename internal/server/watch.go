package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const watchWriteTimeout = 5 * time.Second

// handleWatchJob streams job snapshots over a websocket until the job
// reaches a terminal state or the client goes away. The first snapshot is
// sent immediately, then one per poll interval when the job changed.
func (s *Server) handleWatchJob(w http.ResponseWriter, r *http.Request) {
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

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Debug("websocket upgrade failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	send := func(j any) error {
		conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
		return conn.WriteJSON(j)
	}
	if err := send(job); err != nil {
		return
	}
	if job.Status.Terminal() {
		return
	}

	lastUpdate := job.LastUpdateTime
	ticker := time.NewTicker(s.watchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		job, err := s.jobs.GetJob(r.Context(), id)
		if err != nil {
			s.logger.Error("watch poll failed", "job_id", id, "error", err)
			return
		}
		if job == nil {
			return
		}
		if job.LastUpdateTime.Equal(lastUpdate) && !job.Status.Terminal() {
			continue
		}
		lastUpdate = job.LastUpdateTime

		if err := send(job); err != nil {
			return
		}
		if job.Status.Terminal() {
			return
		}
	}
}
