package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/poolguard/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/poolguard/internal/pool"
)

func newTestMetrics() *Metrics {
	return NewMetricsWith(prometheus.NewRegistry())
}

func TestObserveSnapshot(t *testing.T) {
	m := newTestMetrics()
	m.ObserveSnapshot(pool.Snapshot{
		Target:            "pg",
		ActiveConnections: 9,
		IdleConnections:   1,
		PoolSize:          10,
		UtilizationPct:    90,
		IsSaturated:       true,
		Status:            pool.StatusDegraded,
		AvgCheckoutMs:     4,
		P95CheckoutMs:     12,
		TimeoutCount:      2,
	})

	assert.Equal(t, 9.0, testutil.ToFloat64(m.PoolActive.WithLabelValues("pg")))
	assert.Equal(t, 90.0, testutil.ToFloat64(m.PoolUtilization.WithLabelValues("pg")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PoolSaturated.WithLabelValues("pg")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PoolStatus.WithLabelValues("pg")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.PoolCheckout.WithLabelValues("pg", "p95")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PoolFailures.WithLabelValues("pg", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PoolSamples.WithLabelValues("pg", "degraded")))
}

func TestObserveSnapshotKeepsGaugesOnStatsError(t *testing.T) {
	m := newTestMetrics()
	m.ObserveSnapshot(pool.Snapshot{Target: "pg", ActiveConnections: 3, PoolSize: 10, Status: pool.StatusHealthy})
	m.ObserveSnapshot(pool.Snapshot{Target: "pg", Status: pool.StatusDegraded, StatsError: "pool closed"})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.PoolActive.WithLabelValues("pg")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PoolStatus.WithLabelValues("pg")))
}

func TestObserveQuery(t *testing.T) {
	m := newTestMetrics()
	m.ObserveQuery("pg", pool.QueryRecord{DurationMs: 5})
	m.ObserveQuery("pg", pool.QueryRecord{DurationMs: 1500, Slow: true})
	m.ObserveQuery("pg", pool.QueryRecord{DurationMs: 2000, Slow: true, Error: "deadlock detected"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Queries.WithLabelValues("pg", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Queries.WithLabelValues("pg", "slow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Queries.WithLabelValues("pg", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.QueryDuration))
}

func TestObserveStateChange(t *testing.T) {
	m := newTestMetrics()
	m.ObserveStateChange("pg", resilience.StateClosed, resilience.StateOpen)
	m.ObserveStateChange("pg", resilience.StateOpen, resilience.StateHalfOpen)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("pg")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerTransitions.WithLabelValues("pg", "closed", "open")))
}

func TestBreakerCallbackIntegration(t *testing.T) {
	m := newTestMetrics()
	settings := resilience.DefaultSettings()
	settings.FailureThreshold = 1
	settings.OnStateChange = m.ObserveStateChange
	breaker := resilience.New("pg", settings)

	breaker.RecordFailure(errors.New("down"))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("pg")))
}

func TestObserver(t *testing.T) {
	m := newTestMetrics()
	m.ObserveAttempt("pg", 1, resilience.KindConnection, errors.New("refused"))
	m.ObserveAttempt("pg", 2, resilience.KindConnection, errors.New("refused"))
	m.ObserveBackoff("pg", 200*time.Millisecond)
	m.ObserveRejection("pg")
	m.ObserveOutcome("pg", resilience.OutcomeExhausted, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Attempts.WithLabelValues("pg", "connection")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerRejections.WithLabelValues("pg")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("pg", "exhausted")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Backoff))
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		newTestMetrics()
		newTestMetrics()
	})
}

func TestHandler(t *testing.T) {
	m := newTestMetrics()
	m.ObserveRejection("pg")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `poolguard_breaker_rejections_total{target="pg"} 1`)
	assert.Contains(t, body, "poolguard_uptime_seconds")
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/health/:kind", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	for _, path := range []string{"/health/db", "/health/cache", "/nowhere"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/health/:kind", "418")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	problems, err := testutil.GatherAndLint(m.Registry())
	require.NoError(t, err)
	for _, p := range problems {
		assert.False(t, strings.Contains(p.Metric, "poolguard_http"), "lint: %s %s", p.Metric, p.Text)
	}
}
