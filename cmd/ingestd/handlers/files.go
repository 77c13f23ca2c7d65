package handlers

import (
	"mime"
	"net/http"
	"path"

	"github.com/fieldsense/audioingest/common/blobstore"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/fieldsense/audioingest/common/models"
	"github.com/labstack/echo/v4"
)

// FileHandler streams stored blobs back to clients
type FileHandler struct {
	blobs blobstore.Store
	log   *logger.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(blobs blobstore.Store, log *logger.Logger) *FileHandler {
	return &FileHandler{
		blobs: blobs,
		log:   log,
	}
}

// Download streams a recording or metadata document
// GET /api/uploads/:filename
func (h *FileHandler) Download(c echo.Context) error {
	name := c.Param("filename")
	if err := models.ValidateBlobName(name); err != nil {
		return errorJSON(c, h.log, err)
	}

	rc, err := h.blobs.Open(c.Request().Context(), name)
	if err != nil {
		return errorJSON(c, h.log, err)
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, contentDisposition(name))
	return c.Stream(http.StatusOK, contentType, rc)
}

// contentDisposition quotes name, or drops it when it cannot be expressed as
// a header parameter.
func contentDisposition(name string) string {
	if v := mime.FormatMediaType("inline", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "inline"
}
