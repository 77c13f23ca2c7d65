package routes

import (
	"github.com/fieldsense/audioingest/cmd/ingestd/container"
	"github.com/fieldsense/audioingest/cmd/ingestd/handlers"
	"github.com/fieldsense/audioingest/cmd/ingestd/middleware"
	"github.com/labstack/echo/v4"
)

// RegisterDashboardRoutes registers the aggregated view and blob downloads
func RegisterDashboardRoutes(e *echo.Echo, c *container.Container) {
	cfg := c.Components.Config
	h := handlers.NewDashboardHandler(c.DashboardService, c.Components.Logger)
	files := handlers.NewFileHandler(c.Components.Blobs, c.Components.Logger)

	api := e.Group("/api")
	{
		api.GET("/dashboard-data", h.GetDashboard, middleware.DashboardAuth(cfg.Dashboard.AuthUser, cfg.Dashboard.AuthPassword))
		api.GET("/audio/:device_id/latest", h.GetLatestAudio) // GET /api/audio/dev1/latest
		api.GET("/uploads/:filename", files.Download)         // GET /api/uploads/dev1_20240101_120000_a.wav
	}
}

// RegisterHealthRoutes registers the health endpoint
func RegisterHealthRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewHealthHandler(c.Components, c.Components.Config.Service.Name)
	e.GET("/health", h.Health)
}
