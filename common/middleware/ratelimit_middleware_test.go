package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fieldsense/audioingest/common/ratelimit"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

type fakeLimiter struct {
	counts map[string]int64
	err    error
}

func (f *fakeLimiter) CheckDeviceLimit(ctx context.Context, deviceID string, limit int64, windowSec int) (*ratelimit.RateLimitResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.counts[deviceID]++
	n := f.counts[deviceID]
	res := &ratelimit.RateLimitResult{Allowed: n <= limit, CurrentCount: n, Limit: limit}
	if !res.Allowed {
		res.RetryAfterSeconds = 42
	}
	return res, nil
}

func newLimitedEcho(l DeviceLimiter) *echo.Echo {
	e := echo.New()
	g := e.Group("/api/upload", DeviceRateLimitMiddleware(l, 2, 60))
	g.POST("/audio/:device_id", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	return e
}

func post(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
	return rec
}

func TestDeviceRateLimit_BlocksAfterLimit(t *testing.T) {
	e := newLimitedEcho(&fakeLimiter{counts: map[string]int64{}})

	assert.Equal(t, http.StatusOK, post(e, "/api/upload/audio/dev1").Code)
	assert.Equal(t, http.StatusOK, post(e, "/api/upload/audio/dev1").Code)

	rec := post(e, "/api/upload/audio/dev1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "device_rate_limit_exceeded")

	// Limits are per device
	assert.Equal(t, http.StatusOK, post(e, "/api/upload/audio/dev2").Code)
}

func TestDeviceRateLimit_FailsOpen(t *testing.T) {
	e := newLimitedEcho(&fakeLimiter{err: errors.New("redis down")})

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, post(e, "/api/upload/audio/dev1").Code)
	}
}
