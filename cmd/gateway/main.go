// Interactions gateway server. Provides the ingestion HTTP API, manages
// upload-job workers, and fans processed interactions out to downstream
// consumers.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/eq-labs/interactions-gateway/pkg/api"
	"github.com/eq-labs/interactions-gateway/pkg/auth"
	"github.com/eq-labs/interactions-gateway/pkg/cleaner"
	"github.com/eq-labs/interactions-gateway/pkg/config"
	"github.com/eq-labs/interactions-gateway/pkg/database"
	"github.com/eq-labs/interactions-gateway/pkg/events"
	"github.com/eq-labs/interactions-gateway/pkg/intelligence"
	"github.com/eq-labs/interactions-gateway/pkg/jobs"
	"github.com/eq-labs/interactions-gateway/pkg/pipeline"
	"github.com/eq-labs/interactions-gateway/pkg/sessionbuf"
	"github.com/eq-labs/interactions-gateway/pkg/storage"
	"github.com/eq-labs/interactions-gateway/pkg/transcribe"
)

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	podID := resolvePodID()
	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting gateway", "http_port", cfg.HTTPPort, "pod_id", podID)

	// 2. Database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	// 3. Object storage and downstream publisher
	objects, err := storage.New(ctx, cfg.Upload)
	if err != nil {
		slog.Error("Failed to initialize object storage", "error", err)
		os.Exit(1)
	}
	publisher, err := events.New(ctx, cfg.Events)
	if err != nil {
		slog.Error("Failed to initialize event publisher", "error", err)
		os.Exit(1)
	}

	// 4. Speech and language services
	transcriber, err := transcribe.New(cfg.Speech.DeepgramAPIKey)
	if err != nil {
		slog.Error("Failed to initialize transcription client", "error", err)
		os.Exit(1)
	}
	textCleaner, err := cleaner.New(cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize transcript cleaner", "error", err)
		os.Exit(1)
	}

	// 5. Intelligence extraction and the post-processing fork
	extractor, err := intelligence.NewExtractor(cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize insight extractor", "error", err)
		os.Exit(1)
	}
	persister := intelligence.NewPersister(dbClient.Pool())
	fork := pipeline.NewFork(publisher, intelligence.NewService(extractor, persister))

	// 6. Session buffer for live listening. A missing Redis is non-fatal; the
	// WebSocket endpoint reports unavailable until it comes back.
	sessions, err := sessionbuf.New(cfg.Redis)
	if err != nil {
		slog.Warn("Session buffer unavailable, live listening disabled", "error", err)
		sessions = nil
	}

	// 7. Identity middleware
	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		slog.Error("Failed to initialize token verifier", "error", err)
		os.Exit(1)
	}
	authmw := auth.NewMiddleware(verifier, cfg.Auth)

	// 8. Upload-job worker pool
	jobStore := jobs.NewStore(dbClient.Pool())
	processor := jobs.NewProcessor(objects, transcriber, textCleaner, fork)

	// One-time recovery of jobs stranded in processing by a previous crash.
	if recovered, err := jobStore.RecoverStuck(ctx, cfg.Workers.StuckJobThreshold); err != nil {
		slog.Error("Failed to recover stuck jobs at startup", "error", err)
		// Non-fatal; the reaper retries on its interval
	} else if recovered > 0 {
		slog.Info("Recovered stuck jobs at startup", "count", recovered)
	}

	workerPool := jobs.NewPool(podID, jobStore, processor, cfg.Workers)
	workerPool.Start(ctx)

	// 9. HTTP server. Untyped nils here so the server's interface nil checks
	// behave when live listening is disabled.
	var httpServer *api.Server
	if sessions != nil {
		httpServer = api.NewServer(cfg, dbClient, authmw, objects, jobStore,
			transcriber, transcriber, textCleaner, sessions, publisher, fork)
	} else {
		httpServer = api.NewServer(cfg, dbClient, authmw, objects, jobStore,
			transcriber, nil, textCleaner, nil, publisher, fork)
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Gateway started successfully",
		"pod_id", podID,
		"workers", cfg.Workers.WorkerCount)

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown: drain workers first so in-flight jobs finish,
	// then stop accepting HTTP traffic.
	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, cfg.Workers.GracefulShutdownTimeout)
	defer workerCancel()

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-workerShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, incomplete jobs will be reaper-recovered")
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if sessions != nil {
		if err := sessions.Close(); err != nil {
			slog.Error("Error closing session buffer", "error", err)
		}
	}

	slog.Info("Shutdown complete")
}
