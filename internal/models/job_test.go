package models

import (
	"testing"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestJobStatusTerminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobQueued, false},
		{JobRunning, false},
		{JobDone, true},
		{JobError, true},
		{JobCanceled, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestRecordErrorFirstWins(t *testing.T) {
	job := &ImportJob{}

	if !job.RecordError("data.csv_Row_2", "ScalarValue required") {
		t.Error("first RecordError = false, want true")
	}
	if job.RecordError("data.csv_Row_2", "SourceTimestamp required") {
		t.Error("duplicate RecordError = true, want false")
	}
	if got := job.EntitiesError["data.csv_Row_2"]; got != "ScalarValue required" {
		t.Errorf("first message lost, got %q", got)
	}
	if len(job.EntitiesError) != 1 {
		t.Errorf("len = %d, want 1", len(job.EntitiesError))
	}
}

func TestJobID(t *testing.T) {
	job := &ImportJob{ID: surrealmodels.RecordID{Table: "import_job", ID: "abc123"}}
	if got := job.JobID(); got != "abc123" {
		t.Errorf("JobID() = %q, want abc123", got)
	}
}
