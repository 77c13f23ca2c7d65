package handlers

import (
	"io"
	"net/http"

	"github.com/fieldsense/audioingest/cmd/ingestd/service"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/labstack/echo/v4"
)

// UploadHandler accepts recordings and metadata from devices
type UploadHandler struct {
	ingress *service.IngressService
	log     *logger.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(ingress *service.IngressService, log *logger.Logger) *UploadHandler {
	return &UploadHandler{
		ingress: ingress,
		log:     log,
	}
}

// UploadAudio stores a recording sent as multipart field "file"
// POST /api/upload/audio/:device_id
func (h *UploadHandler) UploadAudio(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "No file provided",
		})
	}
	if fileHeader.Filename == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "No selected file",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "unreadable file part",
		})
	}
	defer src.Close()

	filename, err := h.ingress.SubmitBinary(c.Request().Context(), c.Param("device_id"), fileHeader.Filename, src)
	if err != nil {
		return errorJSON(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"filename": filename,
	})
}

// UploadMetadata queues a metadata document for the recording it names
// POST /api/upload/metadata/:device_id
func (h *UploadHandler) UploadMetadata(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "failed to read request body",
		})
	}

	job, err := h.ingress.SubmitMetadata(c.Request().Context(), c.Param("device_id"), body)
	if err != nil {
		return errorJSON(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":        "queued",
		"message":       "Metadata queued for saving",
		"job_id":        job.ID,
		"metadata_file": job.MetadataFilename,
	})
}
