package pool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrMonitorRunning  = errors.New("pool monitor already running")
	ErrInvalidInterval = errors.New("sampling interval must be positive")
)

// PoolStats is the raw state reported by a connection pool.
type PoolStats struct {
	PoolSize   int `json:"pool_size"`
	CheckedOut int `json:"checked_out"`
	Overflow   int `json:"overflow"`
	CheckedIn  int `json:"checked_in"`
}

// StatsProvider reads the current state of a connection pool.
type StatsProvider interface {
	PoolStats(ctx context.Context) (PoolStats, error)
}

// StatsProviderFunc adapts a function to StatsProvider.
type StatsProviderFunc func(ctx context.Context) (PoolStats, error)

// PoolStats calls f(ctx).
func (f StatsProviderFunc) PoolStats(ctx context.Context) (PoolStats, error) {
	return f(ctx)
}

// AlertSink receives every sampled snapshot whose status is not healthy.
type AlertSink func(ctx context.Context, snap Snapshot)

// Config configures a Monitor.
type Config struct {
	// Target names the monitored pool in snapshots and logs
	Target string
	// SaturationThreshold is the utilization fraction at or above which the
	// pool counts as saturated
	SaturationThreshold float64
	// WindowSize bounds the number of retained events
	WindowSize int
	// WindowAge bounds the age of retained events
	WindowAge time.Duration
	// HistorySize bounds the number of sampled snapshots kept for sizing
	HistorySize int
	// Now is the clock; defaults to time.Now
	Now func() time.Time
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		Target:              "default",
		SaturationThreshold: 0.8,
		WindowSize:          1000,
		WindowAge:           5 * time.Minute,
		HistorySize:         60,
	}
}

// Monitor observes one connection pool. Recording methods are safe for
// concurrent use and never fail; a monitoring fault is logged, not raised.
type Monitor struct {
	cfg      Config
	provider StatsProvider
	logger   *zap.Logger
	alert    AlertSink
	onSample func(Snapshot)

	mu      sync.Mutex // guards window and history; events are stamped under it to keep order
	window  *Window
	history []Snapshot

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor reading pool state from provider.
// Zero-valued config fields take the defaults from DefaultConfig.
func NewMonitor(provider StatsProvider, cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.Target == "" {
		cfg.Target = def.Target
	}
	if cfg.SaturationThreshold <= 0 {
		cfg.SaturationThreshold = def.SaturationThreshold
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.WindowAge <= 0 {
		cfg.WindowAge = def.WindowAge
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Monitor{
		cfg:      cfg,
		provider: provider,
		logger:   zap.NewNop(),
		window:   NewWindow(cfg.WindowSize, cfg.WindowAge),
	}
}

// WithLogger sets the logger
func (m *Monitor) WithLogger(logger *zap.Logger) *Monitor {
	if logger != nil {
		m.logger = logger.With(zap.String("target", m.cfg.Target))
	}
	return m
}

// WithAlertSink sets the sink for unhealthy snapshots
func (m *Monitor) WithAlertSink(sink AlertSink) *Monitor {
	m.alert = sink
	return m
}

// WithSampleHook sets a function called with every sampled snapshot
func (m *Monitor) WithSampleHook(fn func(Snapshot)) *Monitor {
	m.onSample = fn
	return m
}

// Target returns the monitored pool's name.
func (m *Monitor) Target() string {
	return m.cfg.Target
}

// Config returns the effective configuration.
func (m *Monitor) Config() Config {
	return m.cfg
}

// RecordCheckout records a connection checkout that took d to acquire.
func (m *Monitor) RecordCheckout(d time.Duration) {
	m.record(ConnectionEvent{Kind: EventCheckout, Duration: d, HasDuration: true})
}

// RecordCheckin records a connection returned to the pool.
func (m *Monitor) RecordCheckin() {
	m.record(ConnectionEvent{Kind: EventCheckin})
}

// RecordError records a failed pool interaction.
func (m *Monitor) RecordError(err error) {
	m.record(ConnectionEvent{Kind: EventError, Err: err})
}

// RecordTimeout records a checkout that timed out.
func (m *Monitor) RecordTimeout() {
	m.record(ConnectionEvent{Kind: EventTimeout})
}

func (m *Monitor) record(ev ConnectionEvent) {
	if m == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Failed to record pool event",
				zap.Stringer("kind", ev.Kind),
				zap.Any("panic", r),
			)
		}
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	ev.Timestamp = m.cfg.Now()
	m.window.Record(ev)
}

// Events returns the number of events currently retained.
func (m *Monitor) Events() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window.Len()
}

// Reset drops all retained events and sampled history.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window.Clear()
	m.history = nil
}

// History returns the sampled snapshots, oldest first. Only snapshots
// taken by the sampling loop are kept.
func (m *Monitor) History() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history)
}

// Recommend suggests a pool size from the sampled history, targeting the
// saturation threshold.
func (m *Monitor) Recommend() Recommendation {
	return Recommend(m.History(), m.cfg.SaturationThreshold)
}

func (m *Monitor) remember(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) >= m.cfg.HistorySize {
		m.history = slices.Delete(m.history, 0, len(m.history)-m.cfg.HistorySize+1)
	}
	m.history = append(m.history, snap)
}

// Snapshot reads the pool's current state and combines it with the
// retained events. A failing stats provider yields a degraded snapshot
// with StatsError set rather than an error.
func (m *Monitor) Snapshot(ctx context.Context) Snapshot {
	stats, statsErr := m.readStats(ctx)
	now := m.cfg.Now()

	snap := Snapshot{
		Target:  m.cfg.Target,
		TakenAt: now,
	}

	var checkouts []float64
	m.mu.Lock()
	m.window.Expire(now)
	for ev := range m.window.EventsSince(now.Add(-m.cfg.WindowAge)) {
		switch ev.Kind {
		case EventError:
			snap.ErrorCount++
		case EventTimeout:
			snap.TimeoutCount++
		}
		if ev.HasDuration {
			checkouts = append(checkouts, float64(ev.Duration)/float64(time.Millisecond))
		}
	}
	m.mu.Unlock()

	latency := summarizeCheckouts(checkouts)
	snap.CheckoutCount = latency.count
	snap.AvgCheckoutMs = latency.avg
	snap.MaxCheckoutMs = latency.max
	snap.P95CheckoutMs = latency.p95

	if statsErr != nil {
		snap.StatsError = statsErr.Error()
		snap.Status = StatusDegraded
		return snap
	}

	snap.PoolSize = stats.PoolSize
	snap.Overflow = stats.Overflow
	snap.ActiveConnections = max(stats.CheckedOut, 0)
	snap.IdleConnections = max(stats.CheckedIn, 0)
	snap.UtilizationPct = Utilization(stats.CheckedOut, stats.PoolSize, stats.Overflow)
	snap.IsSaturated = snap.UtilizationPct >= m.cfg.SaturationThreshold*100
	snap.Status = classify(snap.IsSaturated, snap.ErrorCount, snap.TimeoutCount)
	return snap
}

// readStats calls the provider, converting panics into errors.
func (m *Monitor) readStats(ctx context.Context) (stats PoolStats, err error) {
	if m.provider == nil {
		return PoolStats{}, errors.New("no stats provider configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stats provider panicked: %v", r)
		}
		if err != nil {
			m.logger.Error("Failed to read pool stats", zap.Error(err))
		}
	}()
	return m.provider.PoolStats(ctx)
}

// Start begins sampling every interval until ctx is cancelled or Stop is
// called. The first sample is taken immediately.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.done != nil {
		select {
		case <-m.done:
			// Previous loop ended with its parent context.
			m.cancel()
		default:
			return ErrMonitorRunning
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go m.loop(ctx, interval, done)

	m.logger.Info("Pool monitoring started", zap.Duration("interval", interval))
	return nil
}

// Stop cancels the sampling loop and waits for it to exit. A sample in
// progress completes first. Stop is idempotent.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.done == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil

	m.logger.Info("Pool monitoring stopped")
}

// Running reports whether the sampling loop is active.
func (m *Monitor) Running() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.sample(ctx, interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx, interval)
		}
	}
}

// sample takes one snapshot and dispatches it. Cancellation of the loop
// does not interrupt a sample; the provider call is bounded by interval.
func (m *Monitor) sample(ctx context.Context, interval time.Duration) {
	sampleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), interval)
	defer cancel()

	snap := m.Snapshot(sampleCtx)
	m.remember(snap)
	m.dispatch(sampleCtx, snap)
}

func (m *Monitor) dispatch(ctx context.Context, snap Snapshot) {
	if m.onSample != nil {
		m.safely("sample hook", func() { m.onSample(snap) })
	}

	if snap.Healthy() {
		return
	}

	m.logger.Warn("Pool health alert",
		zap.String("status", string(snap.Status)),
		zap.Float64("utilization_pct", snap.UtilizationPct),
		zap.Int("errors", snap.ErrorCount),
		zap.Int("timeouts", snap.TimeoutCount),
		zap.String("stats_error", snap.StatsError),
	)
	if m.alert != nil {
		m.safely("alert sink", func() { m.alert(ctx, snap) })
	}
}

func (m *Monitor) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Monitoring collaborator panicked",
				zap.String("collaborator", what),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}
