package grpchealth

import (
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/poolguard/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/poolguard/internal/pool"
)

// Overall is the service name reporting the combined status of all targets.
const Overall = ""

type targetState struct {
	critical    bool
	breakerOpen bool
}

func (s targetState) serving() healthpb.HealthCheckResponse_ServingStatus {
	if s.critical || s.breakerOpen {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// Checker drives the standard gRPC health service from pool snapshots and
// breaker transitions. Each target is a health service name; a target is
// NOT_SERVING while its pool is critical or its breaker is open.
type Checker struct {
	server *health.Server
	logger *zap.Logger

	mu      sync.Mutex
	targets map[string]targetState
}

// NewChecker creates a checker that reports SERVING for every target in
// targets until told otherwise.
func NewChecker(logger *zap.Logger, targets ...string) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Checker{
		server:  health.NewServer(),
		logger:  logger,
		targets: make(map[string]targetState, len(targets)),
	}
	for _, t := range targets {
		c.targets[t] = targetState{}
		c.server.SetServingStatus(t, healthpb.HealthCheckResponse_SERVING)
	}
	c.server.SetServingStatus(Overall, healthpb.HealthCheckResponse_SERVING)
	return c
}

// Register installs the health service on s.
func (c *Checker) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, c.server)
}

// Server returns the underlying health server.
func (c *Checker) Server() *health.Server {
	return c.server
}

// ObserveSnapshot updates the target's pool status. Use it as a monitor
// sample hook.
func (c *Checker) ObserveSnapshot(snap pool.Snapshot) {
	c.update(snap.Target, func(s *targetState) {
		s.critical = snap.Status == pool.StatusCritical
	})
}

// ObserveStateChange updates the target's breaker status. Its signature
// matches resilience.Settings.OnStateChange.
func (c *Checker) ObserveStateChange(target string, _, to resilience.State) {
	c.update(target, func(s *targetState) {
		s.breakerOpen = to == resilience.StateOpen
	})
}

// Shutdown sets every service to NOT_SERVING and ignores later updates.
func (c *Checker) Shutdown() {
	c.server.Shutdown()
}

func (c *Checker) update(target string, fn func(*targetState)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.targets[target]
	before := state.serving()
	fn(&state)
	c.targets[target] = state

	after := state.serving()
	c.server.SetServingStatus(target, after)
	if after != before {
		c.logger.Info("Health status changed",
			zap.String("target", target),
			zap.Stringer("status", after),
		)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	for _, s := range c.targets {
		if s.serving() != healthpb.HealthCheckResponse_SERVING {
			overall = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}
	c.server.SetServingStatus(Overall, overall)
}
