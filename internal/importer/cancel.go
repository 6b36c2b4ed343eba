package importer

import (
	"context"
	"sync"
)

// CancelRegistry maps in-flight job IDs to their cancellation handles.
// Jobs canceled before any worker picked them up are remembered in a
// separate set so the pickup path can skip them. Constructed once at
// service start and shared by reference between the worker and the cancel
// handler; there is no package-level state.
type CancelRegistry struct {
	mu       sync.Mutex
	active   map[string]context.CancelFunc
	canceled map[string]struct{}
}

// NewCancelRegistry creates an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{
		active:   make(map[string]context.CancelFunc),
		canceled: make(map[string]struct{}),
	}
}

// Register associates a running job with its cancel handle.
func (r *CancelRegistry) Register(jobID string, cancel context.CancelFunc) {
	r.mu.Lock()
	r.active[jobID] = cancel
	r.mu.Unlock()
}

// Unregister removes a job's handle once it reaches a terminal state.
func (r *CancelRegistry) Unregister(jobID string) {
	r.mu.Lock()
	delete(r.active, jobID)
	r.mu.Unlock()
}

// Cancel requests cancellation of a job. If the job is currently
// executing its handle is signalled and Cancel reports true; otherwise the
// job ID is recorded as canceled-before-start and Cancel reports false,
// leaving the caller to persist the terminal state. Both paths are
// idempotent.
func (r *CancelRegistry) Cancel(jobID string) (running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cancel, ok := r.active[jobID]; ok {
		cancel()
		return true
	}
	r.canceled[jobID] = struct{}{}
	return false
}

// CanceledBeforeStart reports whether the job was canceled before any
// worker registered a handle for it.
func (r *CancelRegistry) CanceledBeforeStart(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.canceled[jobID]
	return ok
}
