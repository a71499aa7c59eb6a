package grpchealth

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/GriffinCanCode/poolguard/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/poolguard/internal/pool"
)

func status(t *testing.T, c *Checker, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := c.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestInitialStatus(t *testing.T) {
	c := NewChecker(nil, "postgres", "redis")

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, c, "postgres"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, c, Overall))
}

func TestSnapshotDrivesStatus(t *testing.T) {
	c := NewChecker(nil, "postgres", "redis")

	c.ObserveSnapshot(pool.Snapshot{Target: "postgres", Status: pool.StatusDegraded})
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, c, "postgres"), "degraded still serves")

	c.ObserveSnapshot(pool.Snapshot{Target: "postgres", Status: pool.StatusCritical})
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, c, "postgres"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, c, "redis"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, c, Overall))

	c.ObserveSnapshot(pool.Snapshot{Target: "postgres", Status: pool.StatusHealthy})
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, c, Overall))
}

func TestBreakerDrivesStatus(t *testing.T) {
	c := NewChecker(nil, "postgres")
	settings := resilience.DefaultSettings()
	settings.FailureThreshold = 1
	settings.OnStateChange = c.ObserveStateChange
	breaker := resilience.New("postgres", settings)

	breaker.RecordFailure(assert.AnError)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, c, "postgres"))

	breaker.Reset()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, c, "postgres"))
}

func TestOverGRPC(t *testing.T) {
	c := NewChecker(nil, "postgres")
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	c.Register(server)
	go func() { _ = server.Serve(listener) }()
	defer server.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	c.ObserveSnapshot(pool.Snapshot{Target: "postgres", Status: pool.StatusCritical})

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: "postgres"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestShutdown(t *testing.T) {
	c := NewChecker(nil, "postgres")
	c.Shutdown()
	c.ObserveSnapshot(pool.Snapshot{Target: "postgres", Status: pool.StatusHealthy})

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, c, "postgres"))
}
