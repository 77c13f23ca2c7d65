package bootstrap

import (
	"context"
	"fmt"

	"github.com/fieldsense/audioingest/common/blobstore"
	"github.com/fieldsense/audioingest/common/cache"
	"github.com/fieldsense/audioingest/common/config"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/fieldsense/audioingest/common/queue"
	"github.com/fieldsense/audioingest/common/recordstore"
	redisclient "github.com/fieldsense/audioingest/common/redis"
	"github.com/fieldsense/audioingest/common/telemetry"
)

// Components holds all initialized service dependencies
type Components struct {
	Config    *config.Config
	Logger    *logger.Logger
	Records   recordstore.Store
	Blobs     blobstore.Store
	Redis     *redisclient.Client
	Queue     queue.Queue
	Cache     cache.Cache
	Telemetry *telemetry.Telemetry

	// Internal
	cleanupFuncs []func() error
}

// Shutdown performs graceful shutdown of all components
// Should be called with defer after Setup()
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")

	var errors []error

	// Run cleanup functions in reverse order (LIFO)
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errors = append(errors, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}
	c.cleanupFuncs = nil

	if len(errors) > 0 {
		return fmt.Errorf("shutdown errors: %v", errors)
	}

	c.Logger.Info("shutdown complete")
	return nil
}

// Health checks health of all components and returns a status per component
func (c *Components) Health(ctx context.Context) (map[string]string, error) {
	status := make(map[string]string)
	var firstErr error

	check := func(name string, err error) {
		if err != nil {
			status[name] = "unhealthy: " + err.Error()
			if firstErr == nil {
				firstErr = fmt.Errorf("%s unhealthy: %w", name, err)
			}
			return
		}
		status[name] = "ok"
	}

	if c.Records != nil {
		check("record_store", c.Records.Health(ctx))
	}
	if c.Redis != nil {
		check("redis", c.Redis.Ping(ctx))
	}
	if c.Blobs != nil {
		status["blob_store"] = c.Blobs.Backend()
	}
	if c.Queue != nil {
		status["queue"] = c.Config.Queue.Type
	}

	return status, firstErr
}

// addCleanup registers a cleanup function
func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}
