package monitoring

import "github.com/GriffinCanCode/poolguard/internal/pool"

func statusValue(s pool.Status) float64 {
	switch s {
	case pool.StatusHealthy:
		return 0
	case pool.StatusDegraded:
		return 1
	default:
		return 2
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
