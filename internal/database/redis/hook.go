package redis

import (
	"context"
	"errors"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/GriffinCanCode/poolguard/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/poolguard/internal/pool"
)

// Hook reports go-redis traffic to a pool.Monitor. Every command or
// pipeline holds one pooled connection for its duration, so each is
// recorded as a checkout followed by a checkin. With WithQueries it also
// times each command by name.
type Hook struct {
	monitor *pool.Monitor
	queries *pool.QueryMonitor
	now     func() time.Time
}

// NewHook creates a hook reporting to monitor.
func NewHook(monitor *pool.Monitor) *Hook {
	return &Hook{monitor: monitor, now: time.Now}
}

// WithQueries sets the query monitor fed with command timings
func (h *Hook) WithQueries(queries *pool.QueryMonitor) *Hook {
	h.queries = queries
	return h
}

// DialHook implements goredis.Hook.
func (h *Hook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.fail(err)
		}
		return conn, err
	}
}

// ProcessHook implements goredis.Hook.
func (h *Hook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		return h.observe(cmd.FullName(), func() error { return next(ctx, cmd) })
	}
}

// ProcessPipelineHook implements goredis.Hook.
func (h *Hook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		return h.observe("pipeline", func() error { return next(ctx, cmds) })
	}
}

// observe records every call as a checkout and checkin, whatever its
// outcome, and adds a failure event only for infrastructure errors. A
// missing key is not a failed query.
func (h *Hook) observe(name string, call func() error) error {
	start := h.now()
	err := call()
	d := h.now().Sub(start)
	h.monitor.RecordCheckout(d)
	h.monitor.RecordCheckin()

	failure := err
	if errors.Is(err, goredis.Nil) {
		failure = nil
	}
	if failure != nil {
		h.fail(failure)
	}
	h.queries.Record(name, start, d, failure)
	return err
}

func (h *Hook) fail(err error) {
	switch Classify(err) {
	case resilience.KindTimeout:
		h.monitor.RecordTimeout()
	case resilience.KindConnection, resilience.KindUnavailable:
		h.monitor.RecordError(err)
	}
}

var _ goredis.Hook = (*Hook)(nil)
