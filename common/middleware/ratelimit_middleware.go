package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/fieldsense/audioingest/common/ratelimit"
	"github.com/labstack/echo/v4"
)

// DeviceLimiter is the check the upload middleware needs
type DeviceLimiter interface {
	CheckDeviceLimit(ctx context.Context, deviceID string, limit int64, windowSec int) (*ratelimit.RateLimitResult, error)
}

// DeviceRateLimitMiddleware limits uploads per device. The device id comes
// from the :device_id path parameter; routes without one pass through.
func DeviceRateLimitMiddleware(limiter DeviceLimiter, limit int64, windowSec int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			deviceID := c.Param("device_id")
			if deviceID == "" {
				return next(c)
			}

			result, err := limiter.CheckDeviceLimit(c.Request().Context(), deviceID, limit, windowSec)
			if err != nil {
				// On error, allow request (fail open for availability)
				return next(c)
			}

			if !result.Allowed {
				c.Response().Header().Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "device_rate_limit_exceeded",
					"message": "Device has exceeded its upload quota. Please wait before trying again.",
					"details": map[string]interface{}{
						"device_id":           deviceID,
						"limit":               result.Limit,
						"window_seconds":      windowSec,
						"current_count":       result.CurrentCount,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
