package redis

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/poolguard/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/poolguard/internal/pool"
)

type replyError string

func (e replyError) Error() string { return string(e) }
func (replyError) RedisError()     {}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want resilience.ErrorKind
	}{
		{"nil", nil, resilience.KindUnknown},
		{"missing key", goredis.Nil, resilience.KindUnknown},
		{"pool timeout", goredis.ErrPoolTimeout, resilience.KindTimeout},
		{"closed client", goredis.ErrClosed, resilience.KindUnavailable},
		{"loading", replyError("LOADING Redis is loading the dataset in memory"), resilience.KindUnavailable},
		{"replica", replyError("READONLY You can't write against a read only replica."), resilience.KindUnavailable},
		{"wrong type", replyError("WRONGTYPE Operation against a key holding the wrong kind of value"), resilience.KindValidation},
		{"unknown command", replyError("ERR unknown command 'FOO'"), resilience.KindValidation},
		{"refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, resilience.KindConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func newMonitor() *pool.Monitor {
	return pool.NewMonitor(pool.StatsProviderFunc(func(context.Context) (pool.PoolStats, error) {
		return pool.PoolStats{PoolSize: 10}, nil
	}), pool.Config{Target: "redis"})
}

func TestHookRecordsCommands(t *testing.T) {
	monitor := newMonitor()
	hook := NewHook(monitor)

	ok := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return nil })
	miss := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.Nil })
	down := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.ErrClosed })
	slow := hook.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error { return goredis.ErrPoolTimeout })
	bad := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return replyError("WRONGTYPE") })

	ctx := context.Background()
	ping := goredis.NewStatusCmd(ctx, "ping")
	require.NoError(t, ok(ctx, ping))
	assert.ErrorIs(t, miss(ctx, goredis.NewStringCmd(ctx, "get", "missing")), goredis.Nil)
	assert.Error(t, down(ctx, ping))
	assert.Error(t, slow(ctx, nil))
	assert.Error(t, bad(ctx, goredis.NewIntCmd(ctx, "incr", "list")))

	snap := monitor.Snapshot(ctx)
	assert.Equal(t, 5, snap.CheckoutCount, "every command holds a connection")
	assert.Equal(t, 1, snap.ErrorCount)
	assert.Equal(t, 1, snap.TimeoutCount)
}

func TestHookTimesReplyErrors(t *testing.T) {
	monitor := newMonitor()
	hook := NewHook(monitor)

	clock := time.Unix(0, 0)
	hook.now = func() time.Time {
		clock = clock.Add(20 * time.Millisecond)
		return clock
	}

	bad := hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		return replyError("WRONGTYPE Operation against a key holding the wrong kind of value")
	})
	require.Error(t, bad(context.Background(), goredis.NewIntCmd(context.Background(), "incr", "list")))

	snap := monitor.Snapshot(context.Background())
	assert.Equal(t, 1, snap.CheckoutCount)
	assert.InDelta(t, 20.0, snap.AvgCheckoutMs, 0.001)
	assert.Zero(t, snap.ErrorCount, "reply errors are not pool failures")
	assert.Zero(t, snap.TimeoutCount)
}

func TestHookTimesCommands(t *testing.T) {
	queries := pool.NewQueryMonitor(pool.QueryConfig{SlowThreshold: 30 * time.Millisecond})
	hook := NewHook(newMonitor()).WithQueries(queries)

	step := 10 * time.Millisecond
	clock := time.Unix(0, 0)
	hook.now = func() time.Time {
		clock = clock.Add(step)
		return clock
	}

	ctx := context.Background()
	get := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.Nil })
	incr := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return replyError("WRONGTYPE") })
	pipe := hook.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error { return nil })

	assert.ErrorIs(t, get(ctx, goredis.NewStringCmd(ctx, "get", "missing")), goredis.Nil)
	assert.Error(t, incr(ctx, goredis.NewIntCmd(ctx, "incr", "list")))
	step = 40 * time.Millisecond
	require.NoError(t, pipe(ctx, nil))

	stats := queries.Stats()
	assert.Equal(t, 3, stats.TotalQueries)
	assert.Equal(t, 1, stats.FailedQueries, "a missing key is not a failure")
	assert.Equal(t, 1, stats.SlowQueries)

	all := queries.Queries()
	require.Len(t, all, 3)
	assert.Equal(t, "get", all[0].Name)
	assert.Equal(t, "incr", all[1].Name)
	assert.Equal(t, "pipeline", all[2].Name)
	assert.True(t, all[2].Slow)
}

func TestHookRecordsDialErrors(t *testing.T) {
	monitor := newMonitor()
	dial := NewHook(monitor).DialHook(func(context.Context, string, string) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	})

	_, err := dial(context.Background(), "tcp", "127.0.0.1:1")
	assert.Error(t, err)
	assert.Equal(t, 1, monitor.Snapshot(context.Background()).ErrorCount)
}

type fakeStatter struct {
	stats goredis.PoolStats
}

func (f *fakeStatter) PoolStats() *goredis.PoolStats { return &f.stats }

func TestStatsProvider(t *testing.T) {
	statter := &fakeStatter{stats: goredis.PoolStats{TotalConns: 9, IdleConns: 1}}
	provider := &StatsProvider{client: statter, size: 10}

	stats, err := provider.PoolStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pool.PoolStats{PoolSize: 10, CheckedOut: 8, CheckedIn: 1}, stats)

	statter.stats = goredis.PoolStats{TotalConns: 1, IdleConns: 3}
	stats, err = provider.PoolStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.CheckedOut)
}

func TestOpen(t *testing.T) {
	client := Open(Options{Addr: "127.0.0.1:6390", PoolSize: 4}, nil)
	defer client.Close()

	assert.Equal(t, 4, NewStatsProvider(client).size)
	assert.Equal(t, "127.0.0.1:6390", client.Options().Addr)
}
