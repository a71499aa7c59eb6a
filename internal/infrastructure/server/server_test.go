package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/poolguard/internal/database"
	"github.com/GriffinCanCode/poolguard/internal/infrastructure/config"
	"github.com/GriffinCanCode/poolguard/internal/infrastructure/logging"
	"github.com/GriffinCanCode/poolguard/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/poolguard/internal/pool"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Database.Enabled = false
	cfg.Redis.Enabled = false
	cfg.RateLimit.Enabled = false
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.ShutdownTimeout = time.Second
	cfg.GRPC.Port = "0"
	cfg.Monitor.Interval = 10 * time.Millisecond
	cfg.Retry.MaxAttempts = 1
	return cfg
}

func fixedStats(stats pool.PoolStats) pool.StatsProvider {
	return pool.StatsProviderFunc(func(context.Context) (pool.PoolStats, error) {
		return stats, nil
	})
}

func okPinger() database.Pinger {
	return database.PingerFunc(func(context.Context) error { return nil })
}

func request(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRoutes(t *testing.T) {
	s := New(testConfig(), logging.NewNop())
	s.AddTarget("postgres", fixedStats(pool.PoolStats{PoolSize: 10, CheckedOut: 2, CheckedIn: 8}), okPinger(), nil)

	h := s.Handler()

	w := request(t, h, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	assert.Equal(t, http.StatusOK, request(t, h, "/health/db/ping").Code)
	assert.Equal(t, http.StatusOK, request(t, h, "/health/db/saturation?target=postgres").Code)
	assert.Equal(t, http.StatusNotFound, request(t, h, "/health/db?target=mysql").Code)

	w = request(t, h, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "poolguard_http_requests_total")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestQueryTimingsReachMetricsAndAPI(t *testing.T) {
	cfg := testConfig()
	cfg.Monitor.SlowQueryThreshold = 50 * time.Millisecond
	s := New(cfg, logging.NewNop())
	target := s.AddTarget("postgres", fixedStats(pool.PoolStats{PoolSize: 10}), okPinger(), nil)

	target.Queries.Record("SELECT 1", time.Now(), time.Millisecond, nil)
	target.Queries.Record("SELECT pg_sleep(1)", time.Now(), time.Second, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics().Queries.WithLabelValues("postgres", "slow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics().Queries.WithLabelValues("postgres", "ok")))

	w := request(t, s.Handler(), "/health/db/queries?target=postgres")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"slow_queries":1`)
	assert.Contains(t, w.Body.String(), "pg_sleep")
}

func TestBreakerTransitionsFanOut(t *testing.T) {
	cfg := testConfig()
	cfg.Breaker.FailureThreshold = 1
	s := New(cfg, logging.NewNop())

	down := database.PingerFunc(func(context.Context) error { return errors.New("connection refused") })
	target := s.AddTarget("flaky", fixedStats(pool.PoolStats{PoolSize: 1}), down, nil)

	require.Error(t, target.Ping(context.Background()))
	assert.Equal(t, resilience.StateOpen, target.Controller.Breaker().State())

	assert.Equal(t, float64(resilience.StateOpen), testutil.ToFloat64(s.Metrics().BreakerState.WithLabelValues("flaky")))

	resp, err := s.checker.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: "flaky"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	err = target.Ping(context.Background())
	assert.True(t, resilience.IsCircuitOpen(err))
	assert.Equal(t, http.StatusServiceUnavailable, request(t, s.Handler(), "/health").Code)
}

func TestRunSamplesAndStops(t *testing.T) {
	s := New(testConfig(), logging.NewNop())
	target := s.AddTarget("postgres", fixedStats(pool.PoolStats{PoolSize: 10, CheckedOut: 3, CheckedIn: 7}), okPinger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(s.Metrics().PoolSize.WithLabelValues("postgres")) == 10
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, target.Monitor.Running())

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, target.Monitor.Running())
	assert.NoError(t, s.Close())
}

func TestRunFailsOnBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	_, port, err := net.SplitHostPort(busy.Addr().String())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Server.Port = port
	s := New(cfg, logging.NewNop())
	target := s.AddTarget("postgres", fixedStats(pool.PoolStats{PoolSize: 1}), okPinger(), nil)

	err = s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
	assert.False(t, target.Monitor.Running())
}

func TestUnhealthySnapshotsReachWebhook(t *testing.T) {
	var received atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	cfg := testConfig()
	cfg.GRPC.Enabled = false
	cfg.Alert.WebhookURL = hook.URL
	cfg.Alert.Burst = 1
	s := New(cfg, logging.NewNop())
	s.AddTarget("postgres", fixedStats(pool.PoolStats{PoolSize: 5, CheckedOut: 5}), okPinger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return received.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), received.Load(), "throttle lets one alert through per interval")

	cancel()
	require.NoError(t, <-errCh)
}
