package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GriffinCanCode/poolguard/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/poolguard/internal/pool"
)

const namespace = "poolguard"

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Pool metrics, set from each sampled snapshot
	PoolActive      *prometheus.GaugeVec
	PoolIdle        *prometheus.GaugeVec
	PoolSize        *prometheus.GaugeVec
	PoolUtilization *prometheus.GaugeVec
	PoolSaturated   *prometheus.GaugeVec
	PoolStatus      *prometheus.GaugeVec
	PoolCheckout    *prometheus.GaugeVec
	PoolFailures    *prometheus.GaugeVec
	PoolSamples     *prometheus.CounterVec

	// Query metrics
	Queries       *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// Breaker metrics
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec
	BreakerRejections  *prometheus.CounterVec

	// Retry metrics
	Attempts         *prometheus.CounterVec
	Backoff          *prometheus.HistogramVec
	Outcomes         *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec

	startTime time.Time
}

// NewMetrics creates a collector backed by its own registry, so several
// instances can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetricsWith(reg)
}

// NewMetricsWith registers all metrics with reg.
func NewMetricsWith(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		// Pool metrics
		PoolActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_active_connections",
				Help:      "Connections checked out of the pool",
			},
			[]string{"target"},
		),
		PoolIdle: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_idle_connections",
				Help:      "Connections idle in the pool",
			},
			[]string{"target"},
		),
		PoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_size",
				Help:      "Configured pool size",
			},
			[]string{"target"},
		),
		PoolUtilization: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_utilization_percent",
				Help:      "Checked out connections as a percentage of capacity",
			},
			[]string{"target"},
		),
		PoolSaturated: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_saturated",
				Help:      "1 when utilization is at or above the saturation threshold",
			},
			[]string{"target"},
		),
		PoolStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_status",
				Help:      "Pool status: 0 healthy, 1 degraded, 2 critical",
			},
			[]string{"target"},
		),
		PoolCheckout: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_checkout_milliseconds",
				Help:      "Checkout latency over the event window",
			},
			[]string{"target", "stat"},
		),
		PoolFailures: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_window_failures",
				Help:      "Errors and timeouts in the event window",
			},
			[]string{"target", "kind"},
		),
		PoolSamples: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pool_samples_total",
				Help:      "Total number of pool samples by status",
			},
			[]string{"target", "status"},
		),

		// Breaker metrics
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_state",
				Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open",
			},
			[]string{"target"},
		),
		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_transitions_total",
				Help:      "Total number of circuit breaker state changes",
			},
			[]string{"target", "from", "to"},
		),
		BreakerRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_rejections_total",
				Help:      "Total number of calls refused by an open circuit",
			},
			[]string{"target"},
		),

		// Query metrics
		Queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of timed queries by outcome",
			},
			[]string{"target", "outcome"},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Query duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"target"},
		),

		// Retry metrics
		Attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_failed_attempts_total",
				Help:      "Total number of failed attempts by error kind",
			},
			[]string{"target", "kind"},
		),
		Backoff: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retry_backoff_seconds",
				Help:      "Backoff delay before a retry",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"target"},
		),
		Outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of guarded operations by outcome",
			},
			[]string{"target", "outcome"},
		),
		OperationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Guarded operation duration including retries",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"target", "outcome"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveSnapshot publishes a pool snapshot. Pool gauges keep their last
// value when the stats provider failed.
func (m *Metrics) ObserveSnapshot(snap pool.Snapshot) {
	t := snap.Target
	m.PoolSamples.WithLabelValues(t, string(snap.Status)).Inc()
	m.PoolStatus.WithLabelValues(t).Set(statusValue(snap.Status))
	m.PoolCheckout.WithLabelValues(t, "avg").Set(snap.AvgCheckoutMs)
	m.PoolCheckout.WithLabelValues(t, "max").Set(snap.MaxCheckoutMs)
	m.PoolCheckout.WithLabelValues(t, "p95").Set(snap.P95CheckoutMs)
	m.PoolFailures.WithLabelValues(t, "error").Set(float64(snap.ErrorCount))
	m.PoolFailures.WithLabelValues(t, "timeout").Set(float64(snap.TimeoutCount))

	if snap.StatsError != "" {
		return
	}
	m.PoolActive.WithLabelValues(t).Set(float64(snap.ActiveConnections))
	m.PoolIdle.WithLabelValues(t).Set(float64(snap.IdleConnections))
	m.PoolSize.WithLabelValues(t).Set(float64(snap.PoolSize))
	m.PoolUtilization.WithLabelValues(t).Set(snap.UtilizationPct)
	m.PoolSaturated.WithLabelValues(t).Set(boolValue(snap.IsSaturated))
}

// ObserveQuery records one timed query. A failed query counts as failed
// even when it was also slow.
func (m *Metrics) ObserveQuery(target string, rec pool.QueryRecord) {
	outcome := "ok"
	switch {
	case rec.Error != "":
		outcome = "failed"
	case rec.Slow:
		outcome = "slow"
	}
	m.Queries.WithLabelValues(target, outcome).Inc()
	m.QueryDuration.WithLabelValues(target).Observe(rec.DurationMs / 1000)
}

// ObserveStateChange records a breaker transition. Its signature matches
// resilience.Settings.OnStateChange.
func (m *Metrics) ObserveStateChange(target string, from, to resilience.State) {
	m.BreakerState.WithLabelValues(target).Set(float64(to))
	m.BreakerTransitions.WithLabelValues(target, from.String(), to.String()).Inc()
}

// ObserveAttempt implements resilience.Observer
func (m *Metrics) ObserveAttempt(target string, _ int, kind resilience.ErrorKind, _ error) {
	m.Attempts.WithLabelValues(target, string(kind)).Inc()
}

// ObserveBackoff implements resilience.Observer
func (m *Metrics) ObserveBackoff(target string, delay time.Duration) {
	m.Backoff.WithLabelValues(target).Observe(delay.Seconds())
}

// ObserveRejection implements resilience.Observer
func (m *Metrics) ObserveRejection(target string) {
	m.BreakerRejections.WithLabelValues(target).Inc()
}

// ObserveOutcome implements resilience.Observer
func (m *Metrics) ObserveOutcome(target, outcome string, elapsed time.Duration) {
	m.Outcomes.WithLabelValues(target, outcome).Inc()
	m.OperationLatency.WithLabelValues(target, outcome).Observe(elapsed.Seconds())
}

var _ resilience.Observer = (*Metrics)(nil)
