package pool

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// QueryRecord is one completed query.
type QueryRecord struct {
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Slow       bool      `json:"slow"`
	Error      string    `json:"error,omitempty"`
}

// QueryStats aggregates every query recorded since the last reset.
// Durations are zero when nothing has been recorded.
type QueryStats struct {
	TotalQueries    int     `json:"total_queries"`
	SlowQueries     int     `json:"slow_queries"`
	FailedQueries   int     `json:"failed_queries"`
	AvgDurationMs   float64 `json:"avg_duration_ms"`
	MinDurationMs   float64 `json:"min_duration_ms"`
	MaxDurationMs   float64 `json:"max_duration_ms"`
	SlowThresholdMs float64 `json:"slow_threshold_ms"`
}

// QueryConfig configures a QueryMonitor.
type QueryConfig struct {
	// SlowThreshold is the duration at or above which a query is slow
	SlowThreshold time.Duration
	// MaxRecords bounds the retained per-query records; aggregates are
	// unbounded
	MaxRecords int
	// MaxNameLen truncates query names such as SQL text
	MaxNameLen int
}

// DefaultQueryConfig returns the default query monitor configuration.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		SlowThreshold: time.Second,
		MaxRecords:    1000,
		MaxNameLen:    200,
	}
}

// QueryMonitor tracks query durations and failures. It is safe for
// concurrent use; a nil QueryMonitor ignores records.
type QueryMonitor struct {
	cfg     QueryConfig
	logger  *zap.Logger
	onQuery func(QueryRecord)

	mu      sync.Mutex
	records []QueryRecord
	total   int
	slow    int
	failed  int
	sum     time.Duration
	min     time.Duration
	max     time.Duration
}

// NewQueryMonitor creates a query monitor. Zero-valued fields take the
// defaults from DefaultQueryConfig.
func NewQueryMonitor(cfg QueryConfig) *QueryMonitor {
	def := DefaultQueryConfig()
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = def.SlowThreshold
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = def.MaxRecords
	}
	if cfg.MaxNameLen <= 0 {
		cfg.MaxNameLen = def.MaxNameLen
	}
	return &QueryMonitor{cfg: cfg, logger: zap.NewNop()}
}

// WithLogger sets the logger used to report slow queries
func (q *QueryMonitor) WithLogger(logger *zap.Logger) *QueryMonitor {
	if logger != nil {
		q.logger = logger
	}
	return q
}

// WithQueryHook sets a function called with every recorded query
func (q *QueryMonitor) WithQueryHook(fn func(QueryRecord)) *QueryMonitor {
	q.onQuery = fn
	return q
}

// Config returns the effective configuration.
func (q *QueryMonitor) Config() QueryConfig {
	return q.cfg
}

// Record records a query named name that started at start, ran for d and
// ended with err.
func (q *QueryMonitor) Record(name string, start time.Time, d time.Duration, err error) {
	if q == nil {
		return
	}
	if len(name) > q.cfg.MaxNameLen {
		name = name[:q.cfg.MaxNameLen]
	}
	d = max(d, 0)

	rec := QueryRecord{
		Name:       name,
		StartedAt:  start,
		DurationMs: float64(d) / float64(time.Millisecond),
		Slow:       d >= q.cfg.SlowThreshold,
	}
	if err != nil {
		rec.Error = err.Error()
	}

	q.mu.Lock()
	if q.total == 0 || d < q.min {
		q.min = d
	}
	if d > q.max {
		q.max = d
	}
	q.total++
	q.sum += d
	if rec.Slow {
		q.slow++
	}
	if err != nil {
		q.failed++
	}
	if len(q.records) >= q.cfg.MaxRecords {
		copy(q.records, q.records[1:])
		q.records = q.records[:len(q.records)-1]
	}
	q.records = append(q.records, rec)
	q.mu.Unlock()

	if rec.Slow {
		q.logger.Warn("Slow query",
			zap.String("query", name),
			zap.Float64("duration_ms", rec.DurationMs),
			zap.Duration("threshold", q.cfg.SlowThreshold),
		)
	}
	if q.onQuery != nil {
		q.onQuery(rec)
	}
}

// Stats returns the aggregates over every recorded query.
func (q *QueryMonitor) Stats() QueryStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := QueryStats{
		TotalQueries:    q.total,
		SlowQueries:     q.slow,
		FailedQueries:   q.failed,
		SlowThresholdMs: float64(q.cfg.SlowThreshold) / float64(time.Millisecond),
	}
	if q.total > 0 {
		stats.AvgDurationMs = float64(q.sum) / float64(q.total) / float64(time.Millisecond)
		stats.MinDurationMs = float64(q.min) / float64(time.Millisecond)
		stats.MaxDurationMs = float64(q.max) / float64(time.Millisecond)
	}
	return stats
}

// Queries returns the retained records, oldest first.
func (q *QueryMonitor) Queries() []QueryRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueryRecord, len(q.records))
	copy(out, q.records)
	return out
}

// SlowQueries returns the retained records at or above the threshold,
// oldest first.
func (q *QueryMonitor) SlowQueries() []QueryRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []QueryRecord
	for _, rec := range q.records {
		if rec.Slow {
			out = append(out, rec)
		}
	}
	return out
}

// Reset drops all records and aggregates.
func (q *QueryMonitor) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = nil
	q.total, q.slow, q.failed = 0, 0, 0
	q.sum, q.min, q.max = 0, 0, 0
}
