package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GriffinCanCode/poolguard/internal/pool"
)

// poolStat is the subset of *pgxpool.Stat read for snapshots.
type poolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	MaxConns() int32
}

// StatsProvider reports pgxpool state as pool.PoolStats. pgxpool never
// overflows, so Overflow is always zero.
type StatsProvider struct {
	stat func() poolStat
}

// NewStatsProvider reads stats from p.
func NewStatsProvider(p *pgxpool.Pool) *StatsProvider {
	return &StatsProvider{stat: func() poolStat { return p.Stat() }}
}

// PoolStats implements pool.StatsProvider.
func (s *StatsProvider) PoolStats(ctx context.Context) (pool.PoolStats, error) {
	if err := ctx.Err(); err != nil {
		return pool.PoolStats{}, err
	}
	st := s.stat()
	return pool.PoolStats{
		PoolSize:   int(st.MaxConns()),
		CheckedOut: int(st.AcquiredConns()),
		CheckedIn:  int(st.IdleConns()),
	}, nil
}
