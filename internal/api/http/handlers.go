package http

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/poolguard/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/poolguard/internal/pool"
)

// Target is one monitored database: its pool monitor, the breaker
// guarding it and a ping routed through that breaker. Any may be nil.
type Target struct {
	Name    string
	Monitor *pool.Monitor
	Queries *pool.QueryMonitor
	Breaker *resilience.Breaker
	Ping    func(ctx context.Context) error
}

// Handlers serves health views over the registered targets.
type Handlers struct {
	targets []Target
	logger  *zap.Logger
	started time.Time
}

// NewHandlers creates handlers for targets.
func NewHandlers(targets []Target, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		targets: slices.Clone(targets),
		logger:  logger,
		started: time.Now(),
	}
}

// Register mounts the health routes on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	db := r.Group("/health/db")
	db.GET("", h.Database)
	db.GET("/metrics", h.Metrics)
	db.GET("/saturation", h.Saturation)
	db.GET("/queries", h.Queries)
	db.DELETE("/queries", h.ResetQueries)
	db.GET("/breaker", h.Breakers)
	db.GET("/ping", h.Ping)
}

// TargetHealth is the summary of one target.
type TargetHealth struct {
	Status         pool.Status      `json:"status"`
	UtilizationPct float64          `json:"utilization_pct"`
	IsSaturated    bool             `json:"is_saturated"`
	Breaker        resilience.State `json:"breaker"`
	StatsError     string           `json:"stats_error,omitempty"`
}

// Health reports overall service health: the worst status over all
// targets. Any critical target or open breaker yields 503.
func (h *Handlers) Health(c *gin.Context) {
	targets := h.summaries(c.Request.Context(), h.targets)

	overall := pool.StatusHealthy
	for _, t := range targets {
		overall = worst(overall, effectiveStatus(t))
	}

	c.JSON(statusCode(overall), gin.H{
		"status":         overall,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"targets":        targets,
	})
}

// Database reports per-target health. ?target= narrows to one target.
func (h *Handlers) Database(c *gin.Context) {
	targets, ok := h.selected(c)
	if !ok {
		return
	}

	summaries := h.summaries(c.Request.Context(), targets)
	overall := pool.StatusHealthy
	for _, t := range summaries {
		overall = worst(overall, effectiveStatus(t))
	}
	c.JSON(statusCode(overall), summaries)
}

// Metrics returns full snapshots per target.
func (h *Handlers) Metrics(c *gin.Context) {
	targets, ok := h.selected(c)
	if !ok {
		return
	}

	out := make(map[string]pool.Snapshot, len(targets))
	for _, t := range targets {
		if t.Monitor != nil {
			out[t.Name] = t.Monitor.Snapshot(c.Request.Context())
		}
	}
	c.JSON(http.StatusOK, out)
}

// SaturationView is the saturation report for one target.
type SaturationView struct {
	IsSaturated    bool    `json:"is_saturated"`
	UtilizationPct float64 `json:"utilization_pct"`
	ThresholdPct   float64 `json:"threshold_pct"`
	Active         int     `json:"active_connections"`
	Capacity       int     `json:"capacity"`
	// Recommendation sizes the pool from the sampled history
	Recommendation pool.Recommendation `json:"recommendation"`
}

// Saturation reports utilization against the saturation threshold and a
// pool size recommendation.
func (h *Handlers) Saturation(c *gin.Context) {
	targets, ok := h.selected(c)
	if !ok {
		return
	}

	out := make(map[string]SaturationView, len(targets))
	for _, t := range targets {
		if t.Monitor == nil {
			continue
		}
		snap := t.Monitor.Snapshot(c.Request.Context())
		out[t.Name] = SaturationView{
			IsSaturated:    snap.IsSaturated,
			UtilizationPct: snap.UtilizationPct,
			ThresholdPct:   t.Monitor.Config().SaturationThreshold * 100,
			Active:         snap.ActiveConnections,
			Capacity:       snap.PoolSize + snap.Overflow,
			Recommendation: t.Monitor.Recommend(),
		}
	}
	c.JSON(http.StatusOK, out)
}

// QueryView is the query report for one target.
type QueryView struct {
	pool.QueryStats
	Slow []pool.QueryRecord `json:"slow"`
}

// Queries returns query statistics and the retained slow queries per
// target.
func (h *Handlers) Queries(c *gin.Context) {
	targets, ok := h.selected(c)
	if !ok {
		return
	}

	out := make(map[string]QueryView, len(targets))
	for _, t := range targets {
		if t.Queries == nil {
			continue
		}
		slow := t.Queries.SlowQueries()
		if slow == nil {
			slow = []pool.QueryRecord{}
		}
		out[t.Name] = QueryView{QueryStats: t.Queries.Stats(), Slow: slow}
	}
	c.JSON(http.StatusOK, out)
}

// ResetQueries clears query statistics.
func (h *Handlers) ResetQueries(c *gin.Context) {
	targets, ok := h.selected(c)
	if !ok {
		return
	}

	reset := make([]string, 0, len(targets))
	for _, t := range targets {
		if t.Queries == nil {
			continue
		}
		t.Queries.Reset()
		reset = append(reset, t.Name)
	}
	h.logger.Info("Query statistics reset", zap.Strings("targets", reset))
	c.JSON(http.StatusOK, gin.H{"reset": reset})
}

// Breakers returns circuit breaker diagnostics per target.
func (h *Handlers) Breakers(c *gin.Context) {
	targets, ok := h.selected(c)
	if !ok {
		return
	}

	out := make(map[string]resilience.Stats, len(targets))
	for _, t := range targets {
		if t.Breaker != nil {
			out[t.Name] = t.Breaker.Stats()
		}
	}
	c.JSON(http.StatusOK, out)
}

// PingResult is the outcome of one guarded ping.
type PingResult struct {
	OK          bool    `json:"ok"`
	LatencyMs   float64 `json:"latency_ms"`
	CircuitOpen bool    `json:"circuit_open,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// Ping checks each target's database through its controller. A refused
// call reports circuit_open instead of touching the database.
func (h *Handlers) Ping(c *gin.Context) {
	targets, ok := h.selected(c)
	if !ok {
		return
	}

	code := http.StatusOK
	out := make(map[string]PingResult, len(targets))
	for _, t := range targets {
		if t.Ping == nil {
			continue
		}
		start := time.Now()
		err := t.Ping(c.Request.Context())
		res := PingResult{
			OK:        err == nil,
			LatencyMs: float64(time.Since(start)) / float64(time.Millisecond),
		}
		if err != nil {
			res.Error = err.Error()
			res.CircuitOpen = resilience.IsCircuitOpen(err)
			code = http.StatusServiceUnavailable
		}
		out[t.Name] = res
	}
	c.JSON(code, out)
}

func (h *Handlers) selected(c *gin.Context) ([]Target, bool) {
	name := c.Query("target")
	if name == "" {
		return h.targets, true
	}
	for _, t := range h.targets {
		if t.Name == name {
			return []Target{t}, true
		}
	}
	h.logger.Debug("Health request for unknown target", zap.String("target", name))
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown target", "target": name})
	return nil, false
}

func (h *Handlers) summaries(ctx context.Context, targets []Target) map[string]TargetHealth {
	out := make(map[string]TargetHealth, len(targets))
	for _, t := range targets {
		th := TargetHealth{Status: pool.StatusHealthy}
		if t.Monitor != nil {
			snap := t.Monitor.Snapshot(ctx)
			th.Status = snap.Status
			th.UtilizationPct = snap.UtilizationPct
			th.IsSaturated = snap.IsSaturated
			th.StatsError = snap.StatsError
		}
		if t.Breaker != nil {
			th.Breaker = t.Breaker.State()
		}
		out[t.Name] = th
	}
	return out
}

// effectiveStatus folds the breaker into the pool status: an open circuit
// means callers are being refused.
func effectiveStatus(t TargetHealth) pool.Status {
	switch t.Breaker {
	case resilience.StateOpen:
		return pool.StatusCritical
	case resilience.StateHalfOpen:
		return worst(t.Status, pool.StatusDegraded)
	}
	return t.Status
}

func worst(a, b pool.Status) pool.Status {
	rank := func(s pool.Status) int {
		switch s {
		case pool.StatusHealthy:
			return 0
		case pool.StatusDegraded:
			return 1
		}
		return 2
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

func statusCode(s pool.Status) int {
	if s == pool.StatusCritical {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
