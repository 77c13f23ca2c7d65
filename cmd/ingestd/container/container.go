package container

import (
	"fmt"

	"github.com/fieldsense/audioingest/cmd/ingestd/service"
	"github.com/fieldsense/audioingest/common/bootstrap"
	"github.com/fieldsense/audioingest/common/queue"
	"github.com/fieldsense/audioingest/common/ratelimit"
	"github.com/fieldsense/audioingest/common/worker"
)

// Container holds all initialized services (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Services
	IngressService   *service.IngressService
	DashboardService *service.DashboardService
	StatusRule       *service.StatusRule

	// Optional, nil when rate limiting is disabled
	RateLimiter *ratelimit.RateLimiter

	// Consumes the queue in-process for the memory and inline strategies
	Worker *worker.IngestionWorker
}

// NewContainer initializes all services once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config

	if components.Records == nil || components.Blobs == nil || components.Queue == nil {
		return nil, fmt.Errorf("ingestd needs a record store, blob store and queue")
	}

	rule, err := service.NewStatusRule(cfg.Dashboard.StatusRule, cfg.Dashboard.ActiveWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to compile dashboard status rule: %w", err)
	}

	ingressService := service.NewIngressService(components.Blobs, components.Queue, components.Logger)
	dashboardService := service.NewDashboardService(
		components.Records,
		components.Cache,
		rule,
		service.Location{Lat: cfg.Dashboard.DefaultLat, Lng: cfg.Dashboard.DefaultLng},
		cfg.Cache.DefaultTTL,
		components.Logger,
	)

	var limiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled && components.Redis != nil {
		limiter = ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), components.Logger)
	}

	c := &Container{
		Components:       components,
		IngressService:   ingressService,
		DashboardService: dashboardService,
		StatusRule:       rule,
		RateLimiter:      limiter,
	}

	if c.RunsWorker() {
		c.Worker = worker.NewIngestionWorker(components.Blobs, components.Records, components.Logger)

		// inline jobs run inside the request, so the handler must be in place
		// before the server accepts its first upload
		if inline, ok := components.Queue.(*queue.InlineQueue); ok {
			inline.Register(c.Worker.Handle)
		}
	}

	return c, nil
}

// RunsWorker reports whether this process must consume its own queue. The
// redis strategy is consumed by the standalone ingest-worker.
func (c *Container) RunsWorker() bool {
	switch c.Components.Config.Queue.Type {
	case "memory", "inline":
		return true
	default:
		return false
	}
}
