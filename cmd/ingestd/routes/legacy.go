package routes

import (
	"github.com/fieldsense/audioingest/cmd/ingestd/container"
	"github.com/fieldsense/audioingest/cmd/ingestd/handlers"
	"github.com/fieldsense/audioingest/cmd/ingestd/middleware"
	commonmw "github.com/fieldsense/audioingest/common/middleware"
	"github.com/labstack/echo/v4"
)

// RegisterLegacyRoutes keeps the unprefixed paths older device firmware and
// dashboards still call
func RegisterLegacyRoutes(e *echo.Echo, c *container.Container) {
	cfg := c.Components.Config
	upload := handlers.NewUploadHandler(c.IngressService, c.Components.Logger)
	dashboard := handlers.NewDashboardHandler(c.DashboardService, c.Components.Logger)
	files := handlers.NewFileHandler(c.Components.Blobs, c.Components.Logger)

	legacy := e.Group("/upload")
	if c.RateLimiter != nil {
		legacy.Use(commonmw.DeviceRateLimitMiddleware(c.RateLimiter, cfg.RateLimit.UploadsPerMin, cfg.RateLimit.WindowSeconds))
	}
	{
		legacy.POST("/audio/:device_id", upload.UploadAudio)
		legacy.POST("/metadata/:device_id", upload.UploadMetadata)
	}

	e.GET("/dashboard/data", dashboard.GetFlatList, middleware.DashboardAuth(cfg.Dashboard.AuthUser, cfg.Dashboard.AuthPassword))
	e.GET("/uploads/:filename", files.Download)
}
