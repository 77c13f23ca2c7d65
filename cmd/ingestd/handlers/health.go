package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/fieldsense/audioingest/common/metrics"
	"github.com/labstack/echo/v4"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// HealthChecker reports per-component health
type HealthChecker interface {
	Health(ctx context.Context) (map[string]string, error)
}

// HealthHandler serves liveness and component health
type HealthHandler struct {
	checker HealthChecker
	service string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checker HealthChecker, service string) *HealthHandler {
	return &HealthHandler{
		checker: checker,
		service: service,
	}
}

// Health reports 200 when every component is healthy and 503 otherwise
// GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	components, err := h.checker.Health(c.Request().Context())

	status, code := "healthy", http.StatusOK
	if err != nil {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	return c.JSON(code, map[string]interface{}{
		"status":     status,
		"service":    h.service,
		"version":    Version,
		"timestamp":  time.Now().UTC(),
		"components": components,
		"runtime":    metrics.Snapshot(),
	})
}
