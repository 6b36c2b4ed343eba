// Package metrics provides in-memory import statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Rows moved by the operation (lookups, flushes).
	TotalRows int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
	TotalRows   int64   `json:"total_rows,omitempty"`
}

// Snapshot represents the full service statistics at a point in time.
type Snapshot struct {
	UptimeSeconds  float64            `json:"uptime_seconds"`
	RowsRequested  int64              `json:"rows_requested"`
	RowsIngested   int64              `json:"rows_ingested"`
	TwinLookup     *OperationSnapshot `json:"twin_lookup,omitempty"`
	SinkFlush      *OperationSnapshot `json:"sink_flush,omitempty"`
	BlobDownload   *OperationSnapshot `json:"blob_download,omitempty"`
	JobRun         *OperationSnapshot `json:"job_run,omitempty"`
	JobStoreUpdate *OperationSnapshot `json:"job_store_update,omitempty"`
}

// Operation names for the collector.
const (
	OpTwinLookup     = "twin_lookup"
	OpSinkFlush      = "sink_flush"
	OpBlobDownload   = "blob_download"
	OpJobRun         = "job_run"
	OpJobStoreUpdate = "job_store_update"
)

// Collector aggregates in-memory import statistics.
// All methods are thread-safe.
type Collector struct {
	mu            sync.RWMutex
	startTime     time.Time
	rowsRequested int64
	rowsIngested  int64
	ops           map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.RecordRows(op, duration, 0)
}

// RecordRows records timing and row throughput for an operation.
func (c *Collector) RecordRows(op string, duration time.Duration, rows int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration
	m.TotalRows += rows

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// TrackRowsRequested counts rows read from import files.
func (c *Collector) TrackRowsRequested(n int64) {
	c.mu.Lock()
	c.rowsRequested += n
	c.mu.Unlock()
}

// TrackRowsIngested counts rows successfully flushed to the sink.
func (c *Collector) TrackRowsIngested(n int64) {
	c.mu.Lock()
	c.rowsIngested += n
	c.mu.Unlock()
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}
	return &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
		TotalRows:   m.TotalRows,
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds:  time.Since(c.startTime).Seconds(),
		RowsRequested:  c.rowsRequested,
		RowsIngested:   c.rowsIngested,
		TwinLookup:     snapshotOp(c.ops[OpTwinLookup]),
		SinkFlush:      snapshotOp(c.ops[OpSinkFlush]),
		BlobDownload:   snapshotOp(c.ops[OpBlobDownload]),
		JobRun:         snapshotOp(c.ops[OpJobRun]),
		JobStoreUpdate: snapshotOp(c.ops[OpJobStoreUpdate]),
	}
}
