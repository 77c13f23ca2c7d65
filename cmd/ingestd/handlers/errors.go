package handlers

import (
	"errors"
	"net/http"

	"github.com/fieldsense/audioingest/common/errs"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/labstack/echo/v4"
)

// statusFor maps an error kind to an HTTP status
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorJSON writes err as {"error": ...}. Server-side failures are logged and
// their details withheld from the client.
func errorJSON(c echo.Context, log *logger.Logger, err error) error {
	status := statusFor(err)

	msg := err.Error()
	var e *errs.Error
	if errors.As(err, &e) && e.Msg != "" {
		msg = e.Msg
	}

	if status == http.StatusInternalServerError {
		log.WithContext(c.Request().Context()).Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
		msg = "internal storage error"
	}

	return c.JSON(status, map[string]interface{}{
		"error": msg,
	})
}
