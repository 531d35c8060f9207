package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ferry/internal/server/api"
	"ferry/internal/server/config"
	"ferry/internal/server/database"
	"ferry/internal/server/service"
	"ferry/internal/server/storage"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"staging_root", cfg.StagingRoot,
		"artifact_bucket", cfg.ArtifactBucket,
		"max_artifact_size", cfg.MaxArtifactSize,
		"max_chunk_count", cfg.MaxChunkCount,
	)

	// Connect to database
	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Initialize chunk staging and the artifact bucket
	staging := storage.NewStagingStore(cfg.StagingRoot)
	if err := staging.EnsureDir(); err != nil {
		slog.Error("failed to initialize staging storage", "error", err)
		os.Exit(1)
	}

	bucket, err := storage.OpenBucket(ctx, cfg.ArtifactBucket)
	if err != nil {
		slog.Error("failed to open artifact bucket", "error", err)
		os.Exit(1)
	}
	defer bucket.Close()
	objects := storage.NewObjectStore(bucket)
	slog.Info("storage initialized", "staging_root", cfg.StagingRoot, "bucket", cfg.ArtifactBucket)

	// Initialize repository and services
	repo := database.NewRepository(db)
	limits := service.Limits{
		MaxArtifactSize: cfg.MaxArtifactSize,
		MaxChunkCount:   cfg.MaxChunkCount,
		MaxChunkBytes:   cfg.MaxChunkBytes,
	}
	transfer := service.NewTransferService(repo, repo, staging, objects, limits)
	streams := service.NewStreamService(repo, objects)

	// Start retention sweeps
	retentionCtx, retentionCancel := context.WithCancel(context.Background())
	retention := storage.NewRetentionService(repo, staging,
		cfg.AbandonTimeout, cfg.AbandonSweepInterval,
		cfg.CompletedRetention, cfg.RetentionSweepInterval)
	retention.Start(retentionCtx)

	// Setup HTTP router
	handler := api.NewHandler(transfer, streams, repo, db, cfg.BaseURL, cfg.MaxChunkBytes)
	e := api.SetupRouter(handler, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop retention sweeps
	retentionCancel()
	retention.Wait()

	slog.Info("server exited cleanly")
}
