package metrics

import (
	"testing"
	"time"
)

func TestCollectorTimings(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpJobRun, 10*time.Millisecond)
	c.RecordTiming(OpJobRun, 30*time.Millisecond)
	c.RecordRows(OpSinkFlush, 5*time.Millisecond, 1000)

	snap := c.Snapshot()
	if snap.JobRun == nil {
		t.Fatal("JobRun snapshot missing")
	}
	if snap.JobRun.Count != 2 {
		t.Errorf("JobRun.Count = %d, want 2", snap.JobRun.Count)
	}
	if snap.JobRun.MinTimeMs != 10 || snap.JobRun.MaxTimeMs != 30 {
		t.Errorf("JobRun min/max = %d/%d, want 10/30", snap.JobRun.MinTimeMs, snap.JobRun.MaxTimeMs)
	}
	if snap.SinkFlush == nil || snap.SinkFlush.TotalRows != 1000 {
		t.Errorf("SinkFlush = %+v", snap.SinkFlush)
	}
	if snap.TwinLookup != nil {
		t.Error("TwinLookup should be nil when never recorded")
	}
}

func TestCollectorRowCounters(t *testing.T) {
	c := NewCollector()

	c.TrackRowsRequested(100)
	c.TrackRowsRequested(50)
	c.TrackRowsIngested(120)

	snap := c.Snapshot()
	if snap.RowsRequested != 150 {
		t.Errorf("RowsRequested = %d, want 150", snap.RowsRequested)
	}
	if snap.RowsIngested != 120 {
		t.Errorf("RowsIngested = %d, want 120", snap.RowsIngested)
	}
}
