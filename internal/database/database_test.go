package database

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/poolguard/internal/infrastructure/resilience"
)

func failingTimes(n int32, calls *atomic.Int32) PingerFunc {
	return func(ctx context.Context) error {
		if calls.Add(1) <= n {
			return errors.New("connection refused")
		}
		return nil
	}
}

func TestWaitForDatabaseEventuallyReady(t *testing.T) {
	var calls atomic.Int32
	err := WaitForDatabase(context.Background(), failingTimes(2, &calls), time.Second, time.Millisecond, nil)

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitForDatabaseTimeout(t *testing.T) {
	var calls atomic.Int32
	err := WaitForDatabase(context.Background(), failingTimes(1000, &calls), 20*time.Millisecond, 5*time.Millisecond, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Greater(t, calls.Load(), int32(1))
}

func TestWaitForDatabaseParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	err := WaitForDatabase(ctx, failingTimes(1000, &calls), time.Minute, time.Millisecond, nil)
	assert.ErrorIs(t, err, ErrNotReady)
}

func newController(maxAttempts int) *resilience.Controller {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = maxAttempts
	cfg.Jitter = false
	return resilience.NewController(resilience.NewPolicy(cfg), resilience.New("postgres", resilience.DefaultSettings())).
		WithSleeper(func(context.Context, time.Duration) error { return nil })
}

func TestResilientConnect(t *testing.T) {
	var calls atomic.Int32
	err := ResilientConnect(context.Background(), newController(5), failingTimes(3, &calls))

	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestResilientConnectExhausted(t *testing.T) {
	var calls atomic.Int32
	err := ResilientConnect(context.Background(), newController(2), failingTimes(10, &calls))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to postgres")
	assert.Equal(t, int32(2), calls.Load())
}
