package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SurrealDBURL != "ws://localhost:8000/rpc" {
		t.Errorf("SurrealDBURL = %q", cfg.SurrealDBURL)
	}
	if cfg.BlobContainer != "timeport-async" {
		t.Errorf("BlobContainer = %q", cfg.BlobContainer)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Workers)
	}
	if cfg.UploadSASTTL != time.Hour {
		t.Errorf("UploadSASTTL = %s, want 1h", cfg.UploadSASTTL)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
surrealdb_url: ws://db.internal:8000/rpc
blob_container: custom-container
poll_interval: 30s
workers: 8
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TIMEPORT_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SurrealDBURL != "ws://db.internal:8000/rpc" {
		t.Errorf("SurrealDBURL = %q", cfg.SurrealDBURL)
	}
	if cfg.BlobContainer != "custom-container" {
		t.Errorf("BlobContainer = %q", cfg.BlobContainer)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %s, want 30s", cfg.PollInterval)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	// Untouched values keep their defaults.
	if cfg.SinkDatabase != "telemetry" {
		t.Errorf("SinkDatabase = %q", cfg.SinkDatabase)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("blob_container: from-file\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TIMEPORT_CONFIG", path)
	t.Setenv("TIMEPORT_BLOB_CONTAINER", "from-env")
	t.Setenv("TIMEPORT_WORKERS", "4")
	t.Setenv("TIMEPORT_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BlobContainer != "from-env" {
		t.Errorf("BlobContainer = %q, want from-env", cfg.BlobContainer)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
