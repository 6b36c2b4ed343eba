// Package main provides the timeport server: the import REST API plus the
// background worker pool that executes queued jobs.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/timeport-io/timeport/internal/blob"
	"github.com/timeport-io/timeport/internal/config"
	"github.com/timeport-io/timeport/internal/db"
	"github.com/timeport-io/timeport/internal/importer"
	"github.com/timeport-io/timeport/internal/metrics"
	"github.com/timeport-io/timeport/internal/registry"
	"github.com/timeport-io/timeport/internal/server"
	"github.com/timeport-io/timeport/internal/sink"
	"github.com/timeport-io/timeport/internal/worker"
)

const version = "0.1.0"

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all job data from the store on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("timeport starting",
		"version", version,
		"surrealdb_url", cfg.SurrealDBURL,
		"registry_url", cfg.RegistryURL,
		"sink_url", cfg.SinkURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to the job store
	dbCfg := db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}

	dbClient, err := db.NewClient(ctx, dbCfg, logger)
	if err != nil {
		logger.Error("failed to connect to job store", "error", err)
		os.Exit(1)
	}
	defer func() {
		logger.Info("closing job store connection")
		_ = dbClient.Close(ctx)
	}()

	if err := dbClient.InitSchema(ctx); err != nil {
		logger.Error("failed to initialize job store schema", "error", err)
		os.Exit(1)
	}
	if *wipeDB || os.Getenv("TIMEPORT_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			logger.Error("failed to wipe job store", "error", err)
			os.Exit(1)
		}
		logger.Warn("job store wiped")
	}

	// Blob container for uploaded import files
	blobStore, err := blob.NewS3Store(ctx, blob.S3Config{
		Region:    cfg.BlobRegion,
		Endpoint:  cfg.BlobEndpoint,
		Container: cfg.BlobContainer,
		UploadTTL: cfg.UploadSASTTL,
	})
	if err != nil {
		logger.Error("failed to initialize blob store", "error", err)
		os.Exit(1)
	}

	// Twin registry and telemetry sink
	registryClient := registry.New(cfg.RegistryURL)
	sinkClient := sink.New(cfg.SinkURL, cfg.SinkDatabase)

	ensureCtx, ensureCancel := context.WithTimeout(ctx, 30*time.Second)
	err = sinkClient.EnsureTable(ensureCtx)
	ensureCancel()
	if err != nil {
		logger.Error("failed to ensure telemetry table", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()
	cancels := importer.NewCancelRegistry()

	imp := importer.New(dbClient, blobStore, registryClient, sinkClient,
		cfg.BlobContainer, collector, logger)
	pool := worker.New(dbClient, imp, cancels, cfg.PollInterval, cfg.Workers, logger)
	srv := server.New(cfg.ServerAddr, dbClient, blobStore, cancels, collector, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := pool.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("worker pool error", "error", err)
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	logger.Info("server ready", "addr", cfg.ServerAddr, "workers", cfg.Workers)
	wg.Wait()
	logger.Info("shutdown complete")
}
