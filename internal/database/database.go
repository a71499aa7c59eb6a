// Package database holds readiness helpers shared by the pool adapters.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/poolguard/internal/infrastructure/resilience"
)

// ErrNotReady is returned by WaitForDatabase when the deadline passes
// without a successful ping.
var ErrNotReady = errors.New("database not ready")

// Pinger checks that a database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

// Ping calls f(ctx).
func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// WaitForDatabase pings p every interval until it answers or timeout
// elapses. Each ping is bounded by interval. On timeout the returned error
// wraps ErrNotReady and the last ping error.
func WaitForDatabase(ctx context.Context, p Pinger, timeout, interval time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		pingCtx, pingCancel := context.WithTimeout(ctx, interval)
		err := p.Ping(pingCtx)
		pingCancel()
		if err == nil {
			logger.Info("Database connection established",
				zap.Int("attempts", attempt),
				zap.Duration("elapsed", time.Since(start)),
			)
			return nil
		}

		logger.Debug("Database not ready", zap.Int("attempt", attempt), zap.Error(err))

		if serr := resilience.SleepContext(ctx, interval); serr != nil {
			elapsed := time.Since(start)
			logger.Error("Timed out waiting for database",
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
			return fmt.Errorf("%w after %s: %w", ErrNotReady, elapsed.Round(time.Millisecond), err)
		}
	}
}

// ResilientConnect pings p through c, so the connection check obeys the
// controller's retry policy and circuit breaker.
func ResilientConnect(ctx context.Context, c *resilience.Controller, p Pinger) error {
	if err := c.Do(ctx, p.Ping); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.Breaker().Name(), err)
	}
	return nil
}
