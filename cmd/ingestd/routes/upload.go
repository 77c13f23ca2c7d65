package routes

import (
	"github.com/fieldsense/audioingest/cmd/ingestd/container"
	"github.com/fieldsense/audioingest/cmd/ingestd/handlers"
	"github.com/fieldsense/audioingest/common/middleware"
	"github.com/labstack/echo/v4"
)

// RegisterUploadRoutes registers device upload routes
func RegisterUploadRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewUploadHandler(c.IngressService, c.Components.Logger)

	upload := e.Group("/api/upload")
	if c.RateLimiter != nil {
		rl := c.Components.Config.RateLimit
		upload.Use(middleware.DeviceRateLimitMiddleware(c.RateLimiter, rl.UploadsPerMin, rl.WindowSeconds))
	}
	{
		upload.POST("/audio/:device_id", h.UploadAudio)       // POST /api/upload/audio/dev1
		upload.POST("/metadata/:device_id", h.UploadMetadata) // POST /api/upload/metadata/dev1
	}
}
