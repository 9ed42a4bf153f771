// main package for the vibe-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/vibe-creator/internal/app"
	"github.com/book-expert/vibe-creator/internal/config"
	"github.com/book-expert/vibe-creator/internal/objectstore"
	"github.com/book-expert/vibe-creator/internal/worker"
)

const (
	inputDirName       = "inputs"
	healthCheckTimeout = 10 * time.Second
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Bootstrap logger until the configured log directory is known.
	bootstrapLog, err := setupLogger(os.TempDir(), "vibe-service-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Configuration from the central configurator.
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 3. Final logger.
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "vibe-service.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	// 4. Engines and orchestrator.
	built, err := app.Build(cfg, finalLog)
	if err != nil {
		finalLog.Error("Failed to build orchestrator: %v", err)

		return err
	}

	// Engines may come up after the service; an unhealthy engine is only reported.
	healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthCheckTimeout)
	healthErr := built.CheckHealth(healthCtx)

	cancelHealth()

	if healthErr != nil {
		finalLog.Warn("Starting with unhealthy engines: %v", healthErr)
	}

	// 5. NATS, JetStream and the track bucket.
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.TrackBucket)
	if err != nil {
		return fmt.Errorf("failed to open track bucket: %w", err)
	}

	natsWorker, err := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS,
		filepath.Join(cfg.Paths.OutputDir, inputDirName),
		store,
		built.Orchestrator,
		finalLog,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	finalLog.System("Vibe-Service initialized. Listening for jobs on subject: %s", cfg.NATS.RequestSubject)

	runErr := natsWorker.Run(ctx)
	if runErr != nil {
		finalLog.Error("Worker stopped with error: %v", runErr)

		return runErr
	}

	finalLog.System("Vibe-Service stopped.")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
