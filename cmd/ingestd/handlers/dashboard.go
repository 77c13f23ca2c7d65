package handlers

import (
	"net/http"

	"github.com/fieldsense/audioingest/cmd/ingestd/service"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/labstack/echo/v4"
)

// DashboardHandler serves the aggregated device view
type DashboardHandler struct {
	dashboard *service.DashboardService
	log       *logger.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboard *service.DashboardService, log *logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboard: dashboard,
		log:       log,
	}
}

// GetDashboard returns the per-device view
// GET /api/dashboard-data
func (h *DashboardHandler) GetDashboard(c echo.Context) error {
	view, err := h.dashboard.View(c.Request().Context())
	if err != nil {
		return errorJSON(c, h.log, err)
	}
	return c.JSON(http.StatusOK, view)
}

// GetLatestAudio returns the newest recording of a device
// GET /api/audio/:device_id/latest
func (h *DashboardHandler) GetLatestAudio(c echo.Context) error {
	latest, err := h.dashboard.Latest(c.Request().Context(), c.Param("device_id"))
	if err != nil {
		return errorJSON(c, h.log, err)
	}
	return c.JSON(http.StatusOK, latest)
}

// GetFlatList returns every record in the legacy list shape
// GET /dashboard/data
func (h *DashboardHandler) GetFlatList(c echo.Context) error {
	entries, err := h.dashboard.FlatList(c.Request().Context())
	if err != nil {
		return errorJSON(c, h.log, err)
	}
	return c.JSON(http.StatusOK, entries)
}
