package bootstrap

import (
	"context"
	"fmt"

	"github.com/fieldsense/audioingest/common/blobstore"
	"github.com/fieldsense/audioingest/common/cache"
	"github.com/fieldsense/audioingest/common/config"
	"github.com/fieldsense/audioingest/common/logger"
	"github.com/fieldsense/audioingest/common/metrics"
	"github.com/fieldsense/audioingest/common/queue"
	"github.com/fieldsense/audioingest/common/recordstore"
	redisclient "github.com/fieldsense/audioingest/common/redis"
	"github.com/fieldsense/audioingest/common/telemetry"
	"github.com/redis/go-redis/v9"
)

// Setup initializes all service components
// This is the main entry point for all services
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	// Apply options
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	cfg := components.Config

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", cfg.Service.Environment,
	)
	components.Logger.Info("host", metrics.GetSystemInfo().LogArgs()...)

	// 3. Initialize record store (if not skipped)
	if !options.skipDB {
		components.Logger.Info("opening record store", "driver", cfg.Database.Driver)
		components.Records, err = recordstore.Open(ctx, cfg, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open record store: %w", err)
		}

		// Register cleanup
		components.addCleanup(func() error {
			components.Logger.Info("closing record store")
			return components.Records.Close()
		})
	}

	// 4. Initialize blob store (if not skipped)
	if !options.skipBlobs {
		components.Blobs, err = blobstore.New(ctx, cfg, components.Logger)
		if err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to open blob store: %w", err)
		}
	}

	// 5. Connect to Redis when the queue or the rate limiter needs it
	needsRedis := (!options.skipQueue && cfg.Queue.Type == "redis") || cfg.RateLimit.Enabled
	if needsRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		components.Redis = redisclient.NewClient(rdb, components.Logger)

		components.addCleanup(func() error {
			components.Logger.Info("closing redis connection")
			return rdb.Close()
		})

		if err := components.Redis.Ping(ctx); err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		components.Logger.Info("connected to redis", "addr", cfg.RedisAddr())
	}

	// 6. Initialize queue (if not skipped)
	if !options.skipQueue {
		components.Logger.Info("initializing queue", "type", cfg.Queue.Type)

		components.Queue, err = queue.New(cfg, components.Redis, components.Logger)
		if err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to initialize queue: %w", err)
		}

		// Register cleanup
		components.addCleanup(func() error {
			components.Logger.Info("closing queue")
			return components.Queue.Close()
		})
	}

	// 7. Initialize cache (if not skipped)
	if !options.skipCache && cfg.Cache.Enabled {
		components.Logger.Info("initializing cache", "default_ttl", cfg.Cache.DefaultTTL)

		components.Cache = cache.NewMemoryCache(components.Logger, cfg.Cache.DefaultTTL)

		// Register cleanup
		components.addCleanup(func() error {
			components.Logger.Info("closing cache")
			return components.Cache.Close()
		})
	}

	// 8. Initialize telemetry (if not skipped)
	if !options.skipTelemetry && cfg.Telemetry.EnablePprof {
		components.Logger.Info("initializing telemetry")
		components.Telemetry = telemetry.New(cfg.Telemetry.PprofPort, components.Logger)

		if err := components.Telemetry.Start(ctx); err != nil {
			components.Logger.Warn("failed to start telemetry", "error", err)
			// Don't fail startup if telemetry fails
		} else {
			components.addCleanup(components.Telemetry.Close)
		}
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"records", components.Records != nil,
		"blobs", components.Blobs != nil,
		"redis", components.Redis != nil,
		"queue", components.Queue != nil,
		"cache", components.Cache != nil,
		"telemetry", components.Telemetry != nil,
	)

	return components, nil
}

// MustSetup is like Setup but panics on error
// Useful for services that can't recover from initialization failure
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}
