package health

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"honeyshield/pkg/logger"
)

// ServiceName is the service reported alongside the overall ("") status.
const ServiceName = "honeyshield.v1.Monitor"

const defaultInterval = 10 * time.Second

// Check is one named dependency probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Checker keeps the gRPC health service in step with its dependency probes.
type Checker struct {
	server   *health.Server
	checks   []Check
	interval time.Duration
	timeout  time.Duration
	logger   *logger.Logger
}

// NewChecker creates a checker probing every interval. Probes that are nil
// are skipped.
func NewChecker(interval time.Duration, log *logger.Logger, checks ...Check) *Checker {
	if interval <= 0 {
		interval = defaultInterval
	}
	active := make([]Check, 0, len(checks))
	for _, c := range checks {
		if c.Fn != nil {
			active = append(active, c)
		}
	}
	return &Checker{
		server:   health.NewServer(),
		checks:   active,
		interval: interval,
		timeout:  interval / 2,
		logger:   log.WithComponent("grpc-health"),
	}
}

// Register registers the health service and marks it serving.
func (c *Checker) Register(grpcServer *grpc.Server) {
	c.set(grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(grpcServer, c.server)
}

// Server returns the underlying health server.
func (c *Checker) Server() *health.Server { return c.server }

// Update runs every probe once and records the outcome. It reports whether
// all probes passed.
func (c *Checker) Update(ctx context.Context) bool {
	healthy := true
	for _, check := range c.checks {
		probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := check.Fn(probeCtx)
		cancel()
		if err != nil {
			healthy = false
			c.logger.Warn().Err(err).Str("check", check.Name).Msg("health check failed")
		}
	}

	if healthy {
		c.set(grpc_health_v1.HealthCheckResponse_SERVING)
	} else {
		c.set(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

// Run probes until ctx is cancelled, then marks the service not serving.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Update(ctx)
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return
		case <-ticker.C:
			c.Update(ctx)
		}
	}
}

func (c *Checker) set(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(ServiceName, status)
}
