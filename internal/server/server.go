// Package server exposes the import REST API: queueing jobs, presigned
// upload info, job listing, cancellation and a websocket watch endpoint.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/timeport-io/timeport/internal/blob"
	"github.com/timeport-io/timeport/internal/importer"
	"github.com/timeport-io/timeport/internal/metrics"
	"github.com/timeport-io/timeport/internal/models"
)

// JobStore is the persistence surface the API needs.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.ImportJob) error
	GetJob(ctx context.Context, id string) (*models.ImportJob, error)
	UpdateJob(ctx context.Context, job *models.ImportJob) error
	FindJobs(ctx context.Context, filter models.JobFilter) ([]models.ImportJob, error)
}

// Server serves the REST API over a chi router.
type Server struct {
	jobs    JobStore
	blobs   blob.Store
	cancels *importer.CancelRegistry
	metrics *metrics.Collector
	logger  *slog.Logger
	addr    string

	now           func() time.Time
	newID         func() string
	watchInterval time.Duration
	upgrader      websocket.Upgrader
}

func New(addr string, jobs JobStore, blobs blob.Store, cancels *importer.CancelRegistry, collector *metrics.Collector, logger *slog.Logger) *Server {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		jobs:          jobs,
		blobs:         blobs,
		cancels:       cancels,
		metrics:       collector,
		logger:        logger,
		addr:          addr,
		now:           time.Now,
		newID:         func() string { return uuid.NewString()[:8] },
		watchInterval: time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Router builds the route table. Exposed separately so tests can drive the
// handlers through httptest without binding a port.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/import", s.handleImport)
		r.Post("/import/blob", s.handleImportBlob)
		r.Get("/import/upload-info", s.handleUploadInfo)

		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Post("/jobs/{id}/cancel", s.handleCancelJob)
		r.Get("/jobs/{id}/watch", s.handleWatchJob)

		r.Get("/stats", s.handleStats)
	})
	return r
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
