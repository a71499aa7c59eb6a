package pool

import (
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Status summarizes pool health.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// Snapshot is a point-in-time view of a pool. Every call to
// Monitor.Snapshot produces a new value; snapshots are never updated.
type Snapshot struct {
	Target            string    `json:"target"`
	TakenAt           time.Time `json:"taken_at"`
	ActiveConnections int       `json:"active_connections"`
	IdleConnections   int       `json:"idle_connections"`
	PoolSize          int       `json:"pool_size"`
	Overflow          int       `json:"overflow"`
	UtilizationPct    float64   `json:"utilization_pct"`
	AvgCheckoutMs     float64   `json:"avg_checkout_ms"`
	MaxCheckoutMs     float64   `json:"max_checkout_ms"`
	P95CheckoutMs     float64   `json:"p95_checkout_ms"`
	CheckoutCount     int       `json:"checkout_count"`
	ErrorCount        int       `json:"error_count"`
	TimeoutCount      int       `json:"timeout_count"`
	IsSaturated       bool      `json:"is_saturated"`
	Status            Status    `json:"status"`
	// StatsError is set when the stats provider failed for this sample
	StatsError string `json:"stats_error,omitempty"`
}

// Healthy reports whether the snapshot's status is healthy.
func (s Snapshot) Healthy() bool {
	return s.Status == StatusHealthy
}

// Utilization returns active / max(1, poolSize+overflow) as a percentage
// clamped to [0, 100].
func Utilization(active, poolSize, overflow int) float64 {
	capacity := poolSize + overflow
	if capacity < 1 {
		capacity = 1
	}
	pct := float64(active) / float64(capacity) * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// classify derives the status from saturation and recent failure counts.
func classify(saturated bool, errCount, timeoutCount int) Status {
	switch {
	case saturated && errCount > 0:
		return StatusCritical
	case saturated || timeoutCount > 0:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// checkoutStats holds latency aggregates in milliseconds.
type checkoutStats struct {
	count int
	avg   float64
	max   float64
	p95   float64
}

func summarizeCheckouts(ms []float64) checkoutStats {
	if len(ms) == 0 {
		return checkoutStats{}
	}
	slices.Sort(ms)
	return checkoutStats{
		count: len(ms),
		avg:   stat.Mean(ms, nil),
		max:   floats.Max(ms),
		p95:   stat.Quantile(0.95, stat.Empirical, ms, nil),
	}
}
