package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fieldsense/audioingest/common/bootstrap"
	"github.com/fieldsense/audioingest/common/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bootstrap service components; the dashboard cache is not needed here
	components, err := bootstrap.Setup(ctx, "ingest-worker", bootstrap.WithoutCache())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup service: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	cfg := components.Config
	if cfg.Queue.Type != "redis" {
		// memory and inline queues live inside ingestd; nothing to consume here
		components.Logger.Error("ingest-worker requires QUEUE_TYPE=redis", "queue", cfg.Queue.Type)
		os.Exit(1)
	}

	ingestionWorker := worker.NewIngestionWorker(components.Blobs, components.Records, components.Logger)

	components.Logger.Info("ingest-worker starting",
		"stream", cfg.Queue.Stream,
		"group", cfg.Queue.Group,
		"concurrency", cfg.Queue.Concurrency,
	)

	// Start worker in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- ingestionWorker.Run(ctx, components.Queue, cfg.Queue.Concurrency)
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			components.Logger.Error("worker failed", "error", err)
			components.Shutdown(context.Background())
			os.Exit(1)
		}
	case sig := <-sigChan:
		components.Logger.Info("received shutdown signal", "signal", sig)
		cancel()
		// Let in-flight jobs finish before the stores close
		<-errChan
	}

	components.Logger.Info("ingest-worker shutting down gracefully")
}
