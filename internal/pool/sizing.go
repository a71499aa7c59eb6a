package pool

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MinSizingSamples is the number of readable snapshots Recommend needs
// before it suggests a change.
const MinSizingSamples = 5

// SizingAction is the direction of a pool size recommendation.
type SizingAction string

const (
	SizingKeep         SizingAction = "keep"
	SizingGrow         SizingAction = "grow"
	SizingShrink       SizingAction = "shrink"
	SizingInsufficient SizingAction = "insufficient_data"
)

// Recommendation suggests a pool size from sampled history.
type Recommendation struct {
	Action          SizingAction `json:"action"`
	CurrentSize     int          `json:"current_size"`
	RecommendedSize int          `json:"recommended_size"`
	Samples         int          `json:"samples"`
	PeakActive      int          `json:"peak_active"`
	P95Active       float64      `json:"p95_active"`
	Timeouts        int          `json:"timeouts"`
	Reason          string       `json:"reason"`
}

// Recommend sizes the pool so the 95th percentile of active connections
// sits at targetUtilization. Observed checkout timeouts grow the pool by
// at least a quarter. A pool is only shrunk when even its peak would use
// less than half of it. Snapshots with a StatsError are ignored.
func Recommend(history []Snapshot, targetUtilization float64) Recommendation {
	if targetUtilization <= 0 || targetUtilization > 1 {
		targetUtilization = DefaultConfig().SaturationThreshold
	}

	var (
		active   []float64
		current  int
		timeouts int
	)
	for _, snap := range history {
		if snap.StatsError != "" {
			continue
		}
		active = append(active, float64(snap.ActiveConnections))
		current = snap.PoolSize
		timeouts = max(timeouts, snap.TimeoutCount)
	}

	rec := Recommendation{
		Action:          SizingInsufficient,
		CurrentSize:     current,
		RecommendedSize: current,
		Samples:         len(active),
		Timeouts:        timeouts,
	}
	if len(active) < MinSizingSamples {
		rec.Reason = fmt.Sprintf("%d of %d samples collected", len(active), MinSizingSamples)
		return rec
	}

	slices.Sort(active)
	rec.PeakActive = int(floats.Max(active))
	rec.P95Active = stat.Quantile(0.95, stat.Empirical, active, nil)

	needed := max(int(math.Ceil(rec.P95Active/targetUtilization)), 1)
	peakNeeded := max(int(math.Ceil(float64(rec.PeakActive)/targetUtilization)), 1)

	switch {
	case timeouts > 0:
		rec.Action = SizingGrow
		rec.RecommendedSize = max(needed, int(math.Ceil(float64(current)*1.25)), current+1)
		rec.Reason = fmt.Sprintf("%d checkout timeouts observed", timeouts)
	case needed > current:
		rec.Action = SizingGrow
		rec.RecommendedSize = needed
		rec.Reason = fmt.Sprintf("p95 of %.1f active connections exceeds %.0f%% of %d",
			rec.P95Active, targetUtilization*100, current)
	case peakNeeded*2 < current:
		rec.Action = SizingShrink
		rec.RecommendedSize = peakNeeded
		rec.Reason = fmt.Sprintf("peak of %d active connections uses under half of %d",
			rec.PeakActive, current)
	default:
		rec.Action = SizingKeep
		rec.Reason = "pool size matches observed demand"
	}
	return rec
}
