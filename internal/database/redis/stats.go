package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/GriffinCanCode/poolguard/internal/pool"
)

type poolStatter interface {
	PoolStats() *goredis.PoolStats
}

// StatsProvider reports go-redis pool state as pool.PoolStats.
type StatsProvider struct {
	client poolStatter
	size   int
}

// NewStatsProvider reads stats from client.
func NewStatsProvider(client *goredis.Client) *StatsProvider {
	return &StatsProvider{client: client, size: client.Options().PoolSize}
}

// PoolStats implements pool.StatsProvider. go-redis reports total and idle
// connections; the difference is in use.
func (s *StatsProvider) PoolStats(ctx context.Context) (pool.PoolStats, error) {
	if err := ctx.Err(); err != nil {
		return pool.PoolStats{}, err
	}
	st := s.client.PoolStats()
	return pool.PoolStats{
		PoolSize:   s.size,
		CheckedOut: max(int(st.TotalConns)-int(st.IdleConns), 0),
		CheckedIn:  int(st.IdleConns),
	}, nil
}
