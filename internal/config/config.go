// Package config loads timeport configuration from an optional YAML file
// overlaid with environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB job store
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Blob storage (S3-compatible)
	BlobRegion    string        `yaml:"blob_region"`
	BlobEndpoint  string        `yaml:"blob_endpoint"` // optional, for S3-compatible stores
	BlobContainer string        `yaml:"blob_container"`
	UploadSASTTL  time.Duration `yaml:"upload_sas_ttl"`

	// Twin registry
	RegistryURL string `yaml:"registry_url"`

	// Telemetry sink
	SinkURL      string `yaml:"sink_url"`
	SinkDatabase string `yaml:"sink_database"`

	// Worker
	PollInterval time.Duration `yaml:"poll_interval"`
	Workers      int           `yaml:"workers"`

	// Server
	ServerAddr string `yaml:"server_addr"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from TIMEPORT_CONFIG (if set) and environment
// variables. Environment always wins over file values.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("TIMEPORT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func defaults() Config {
	return Config{
		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "timeport",
		SurrealDBDatabase:  "jobs",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		BlobRegion:    "us-east-1",
		BlobContainer: "timeport-async",
		UploadSASTTL:  time.Hour,

		RegistryURL: "http://localhost:8600",

		SinkURL:      "http://localhost:8700",
		SinkDatabase: "telemetry",

		PollInterval: 10 * time.Second,
		Workers:      2,

		ServerAddr: ":8585",

		LogFile:  "/tmp/timeport.log",
		LogLevel: slog.LevelInfo,
	}
}

func applyEnv(cfg *Config) {
	setEnv(&cfg.SurrealDBURL, "SURREALDB_URL")
	setEnv(&cfg.SurrealDBNamespace, "SURREALDB_NAMESPACE")
	setEnv(&cfg.SurrealDBDatabase, "SURREALDB_DATABASE")
	setEnv(&cfg.SurrealDBUser, "SURREALDB_USER")
	setEnv(&cfg.SurrealDBPass, "SURREALDB_PASS")
	setEnv(&cfg.SurrealDBAuthLevel, "SURREALDB_AUTH_LEVEL")

	setEnv(&cfg.BlobRegion, "TIMEPORT_BLOB_REGION")
	setEnv(&cfg.BlobEndpoint, "TIMEPORT_BLOB_ENDPOINT")
	setEnv(&cfg.BlobContainer, "TIMEPORT_BLOB_CONTAINER")
	setEnvDuration(&cfg.UploadSASTTL, "TIMEPORT_UPLOAD_SAS_TTL")

	setEnv(&cfg.RegistryURL, "TIMEPORT_REGISTRY_URL")
	setEnv(&cfg.SinkURL, "TIMEPORT_SINK_URL")
	setEnv(&cfg.SinkDatabase, "TIMEPORT_SINK_DATABASE")

	setEnvDuration(&cfg.PollInterval, "TIMEPORT_POLL_INTERVAL")
	setEnvInt(&cfg.Workers, "TIMEPORT_WORKERS")
	setEnv(&cfg.ServerAddr, "TIMEPORT_SERVER_ADDR")
	setEnv(&cfg.LogFile, "TIMEPORT_LOG_FILE")

	if v := os.Getenv("TIMEPORT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
}

func setEnv(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func setEnvInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
