package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fieldsense/audioingest/cmd/ingestd/container"
	"github.com/fieldsense/audioingest/cmd/ingestd/routes"
	"github.com/fieldsense/audioingest/common/bootstrap"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/fieldsense/audioingest/common/server"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Bootstrap common components (record store, blobs, queue, cache, telemetry)
	components, err := bootstrap.Setup(ctx, "ingestd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap ingestd: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	// Initialize service container (all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		components.Logger.Error("failed to initialize service container", "error", err)
		os.Exit(1)
	}

	e := NewEcho(serviceContainer)

	// memory/inline queues are consumed here; redis is left to ingest-worker
	var wg sync.WaitGroup
	if serviceContainer.RunsWorker() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serviceContainer.Worker.Run(ctx, components.Queue, components.Config.Queue.Concurrency); err != nil {
				components.Logger.Error("in-process worker stopped", "error", err)
			}
		}()
	}

	srv := server.New("ingestd", components.Config.Service.Port, e, components.Logger)
	if err := srv.Run(ctx); err != nil {
		components.Logger.Error("server error", "error", err)
	}

	stop()
	wg.Wait()
}

// NewEcho builds the HTTP surface of the service
func NewEcho(c *container.Container) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, c)
	registerRoutes(e, c)
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, c *container.Container) {
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: func(ec echo.Context, rid string) {
			req := ec.Request()
			ec.SetRequest(req.WithContext(logger.ContextWithRequestID(req.Context(), rid)))
		},
	}))
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	if limit := c.Components.Config.Service.MaxUploadBytes; limit > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", limit)))
	}
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, c *container.Container) {
	routes.RegisterHealthRoutes(e, c)
	routes.RegisterUploadRoutes(e, c)
	routes.RegisterDashboardRoutes(e, c)
	routes.RegisterLegacyRoutes(e, c)
}
