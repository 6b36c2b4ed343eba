package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/timeport-io/timeport/internal/importer"
	"github.com/timeport-io/timeport/internal/metrics"
	"github.com/timeport-io/timeport/internal/models"
)

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.ImportJob
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]*models.ImportJob)}
}

func (s *memJobStore) CreateJob(ctx context.Context, job *models.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.JobID()] = &cp
	return nil
}

func (s *memJobStore) GetJob(ctx context.Context, id string) (*models.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

func (s *memJobStore) UpdateJob(ctx context.Context, job *models.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.LastUpdateTime = time.Now()
	cp := *job
	s.jobs[job.JobID()] = &cp
	return nil
}

func (s *memJobStore) FindJobs(ctx context.Context, filter models.JobFilter) ([]models.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ImportJob
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && job.UserID != filter.UserID {
			continue
		}
		out = append(out, *job)
	}
	return out, nil
}

type stubBlobStore struct {
	info *models.BlobUploadInfo
}

func (s *stubBlobStore) DownloadByName(ctx context.Context, container, fileName string) (io.ReadCloser, error) {
	return nil, nil
}

func (s *stubBlobStore) DownloadBySignedURL(ctx context.Context, signedURL string) (io.ReadCloser, error) {
	return nil, nil
}

func (s *stubBlobStore) UploadInfo(ctx context.Context, fileNames []string) (*models.BlobUploadInfo, error) {
	return s.info, nil
}

func newTestServer(store *memJobStore) (*Server, *importer.CancelRegistry) {
	cancels := importer.NewCancelRegistry()
	srv := New(":0", store, &stubBlobStore{}, cancels,
		metrics.NewCollector(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv.watchInterval = 10 * time.Millisecond
	return srv, cancels
}

func decodeJob(t *testing.T, body io.Reader) models.ImportJob {
	t.Helper()
	var job models.ImportJob
	if err := json.NewDecoder(body).Decode(&job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	return job
}

func TestHandleImport(t *testing.T) {
	store := newMemJobStore()
	srv, _ := newTestServer(store)
	router := srv.Router()

	t.Run("queues job", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/import",
			strings.NewReader(`{"file_names":["history.csv"]}`))
		req.Header.Set("X-User-Id", "user-7")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body)
		}
		job := decodeJob(t, rec.Body)
		if job.Status != models.JobQueued {
			t.Errorf("job status = %q, want %q", job.Status, models.JobQueued)
		}
		if job.IsBlobSource {
			t.Error("IsBlobSource = true, want false")
		}
		if job.UserID != "user-7" {
			t.Errorf("UserID = %q, want user-7", job.UserID)
		}
		if !strings.Contains(job.RequestPayload, "history.csv") {
			t.Errorf("RequestPayload = %q", job.RequestPayload)
		}

		stored, _ := store.GetJob(context.Background(), job.JobID())
		if stored == nil {
			t.Fatal("job not persisted")
		}
	})

	t.Run("rejects empty file list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/import",
			strings.NewReader(`{"file_names":[]}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("rejects bad body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestHandleImportBlob(t *testing.T) {
	store := newMemJobStore()
	srv, _ := newTestServer(store)
	router := srv.Router()

	t.Run("queues blob job", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/import/blob",
			strings.NewReader(`{"sas_uri":"https://store.example.com/c/history.csv.gz?sig=x"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body)
		}
		job := decodeJob(t, rec.Body)
		if !job.IsBlobSource {
			t.Error("IsBlobSource = false, want true")
		}
	})

	t.Run("rejects relative url", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/import/blob",
			strings.NewReader(`{"sas_uri":"not-a-url"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestHandleUploadInfo(t *testing.T) {
	store := newMemJobStore()
	srv, _ := newTestServer(store)
	srv.blobs = &stubBlobStore{info: &models.BlobUploadInfo{
		Container: "imports",
		Files:     map[string]string{"a.csv": "https://bucket/a.csv?sig"},
	}}
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/import/upload-info?fileName=a.csv", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var info models.BlobUploadInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Files["a.csv"] == "" {
		t.Error("missing presigned URL for a.csv")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/import/upload-info", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status without fileName = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleGetJob(t *testing.T) {
	store := newMemJobStore()
	store.CreateJob(context.Background(), &models.ImportJob{
		ID:     surrealmodels.RecordID{Table: "import_job", ID: "abc"},
		Status: models.JobRunning,
	})
	srv, _ := newTestServer(store)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	job := decodeJob(t, rec.Body)
	if job.Status != models.JobRunning {
		t.Errorf("status = %q, want %q", job.Status, models.JobRunning)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleCancelJob(t *testing.T) {
	t.Run("queued job canceled directly", func(t *testing.T) {
		store := newMemJobStore()
		store.CreateJob(context.Background(), &models.ImportJob{
			ID:     surrealmodels.RecordID{Table: "import_job", ID: "q1"},
			Status: models.JobQueued,
		})
		srv, cancels := newTestServer(store)
		router := srv.Router()

		req := httptest.NewRequest(http.MethodPost, "/api/jobs/q1/cancel", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		job := decodeJob(t, rec.Body)
		if job.Status != models.JobCanceled {
			t.Errorf("status = %q, want %q", job.Status, models.JobCanceled)
		}
		if !cancels.CanceledBeforeStart("q1") {
			t.Error("cancel not recorded in the before-start set")
		}
	})

	t.Run("running job signalled", func(t *testing.T) {
		store := newMemJobStore()
		store.CreateJob(context.Background(), &models.ImportJob{
			ID:     surrealmodels.RecordID{Table: "import_job", ID: "r1"},
			Status: models.JobRunning,
		})
		srv, cancels := newTestServer(store)
		ctx, cancel := context.WithCancel(context.Background())
		cancels.Register("r1", cancel)
		defer cancels.Unregister("r1")
		router := srv.Router()

		req := httptest.NewRequest(http.MethodPost, "/api/jobs/r1/cancel", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
		}
		if ctx.Err() != context.Canceled {
			t.Error("cancel handle not signalled")
		}
		// The worker owns the terminal write for running jobs.
		stored, _ := store.GetJob(context.Background(), "r1")
		if stored.Status != models.JobRunning {
			t.Errorf("stored status = %q, want %q", stored.Status, models.JobRunning)
		}
	})

	t.Run("terminal job unchanged", func(t *testing.T) {
		store := newMemJobStore()
		store.CreateJob(context.Background(), &models.ImportJob{
			ID:     surrealmodels.RecordID{Table: "import_job", ID: "d1"},
			Status: models.JobDone,
		})
		srv, _ := newTestServer(store)
		router := srv.Router()

		req := httptest.NewRequest(http.MethodPost, "/api/jobs/d1/cancel", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		job := decodeJob(t, rec.Body)
		if job.Status != models.JobDone {
			t.Errorf("status = %q, want %q", job.Status, models.JobDone)
		}
	})
}

func TestHandleListJobs(t *testing.T) {
	store := newMemJobStore()
	store.CreateJob(context.Background(), &models.ImportJob{
		ID:     surrealmodels.RecordID{Table: "import_job", ID: "a"},
		Status: models.JobDone,
	})
	store.CreateJob(context.Background(), &models.ImportJob{
		ID:     surrealmodels.RecordID{Table: "import_job", ID: "b"},
		Status: models.JobQueued,
	})
	srv, _ := newTestServer(store)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?status=done", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var jobs []models.ImportJob
	if err := json.NewDecoder(rec.Body).Decode(&jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != models.JobDone {
		t.Errorf("unexpected jobs: %+v", jobs)
	}
}

func TestHandleWatchJob(t *testing.T) {
	store := newMemJobStore()
	store.CreateJob(context.Background(), &models.ImportJob{
		ID:             surrealmodels.RecordID{Table: "import_job", ID: "w1"},
		Status:         models.JobRunning,
		LastUpdateTime: time.Now(),
	})
	srv, _ := newTestServer(store)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/jobs/w1/watch"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var first models.ImportJob
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first snapshot: %v", err)
	}
	if first.Status != models.JobRunning {
		t.Errorf("first status = %q, want %q", first.Status, models.JobRunning)
	}

	// Drive the job to done; the watcher should observe it and stop.
	jobCopy, _ := store.GetJob(context.Background(), "w1")
	jobCopy.Status = models.JobDone
	store.UpdateJob(context.Background(), jobCopy)

	var last models.ImportJob
	for {
		var snap models.ImportJob
		if err := conn.ReadJSON(&snap); err != nil {
			break
		}
		last = snap
	}
	if last.Status != models.JobDone {
		t.Errorf("last status = %q, want %q", last.Status, models.JobDone)
	}
}
