package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient  = WithKind(errors.New("connection reset"), KindConnection)
	errConstraint = WithKind(errors.New("duplicate key"), KindConstraint)
)

func TestRetryConfigDefaults(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.ExponentialBase)
	assert.True(t, cfg.Jitter)
	assert.ElementsMatch(t, []ErrorKind{KindConnection, KindTimeout, KindUnavailable, KindSerialization}, cfg.RetryOn)
	assert.NoError(t, cfg.Validate())
}

func TestRetryConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RetryConfig)
	}{
		{"zero attempts", func(c *RetryConfig) { c.MaxAttempts = 0 }},
		{"negative base delay", func(c *RetryConfig) { c.BaseDelay = -time.Second }},
		{"max below base", func(c *RetryConfig) { c.MaxDelay = c.BaseDelay / 2 }},
		{"shrinking base", func(c *RetryConfig) { c.ExponentialBase = 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRetryConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	policy := NewPolicy(RetryConfig{MaxAttempts: 3})

	assert.True(t, policy.ShouldRetry(1, errTransient))
	assert.True(t, policy.ShouldRetry(2, errTransient))
	assert.False(t, policy.ShouldRetry(3, errTransient), "attempt reaching max attempts is final")
	assert.False(t, policy.ShouldRetry(1, errConstraint), "constraint errors are never retried")
	assert.False(t, policy.ShouldRetry(1, nil))
}

func TestShouldRetryCustomKinds(t *testing.T) {
	policy := NewPolicy(RetryConfig{
		MaxAttempts: 5,
		RetryOn:     []ErrorKind{KindSerialization},
	})

	assert.True(t, policy.ShouldRetry(1, WithKind(errors.New("could not serialize"), KindSerialization)))
	assert.False(t, policy.ShouldRetry(1, errTransient))
}

func TestPolicyOwnsRetryOn(t *testing.T) {
	kinds := []ErrorKind{KindTimeout}
	policy := NewPolicy(RetryConfig{RetryOn: kinds})
	kinds[0] = KindConstraint

	assert.Equal(t, []ErrorKind{KindTimeout}, policy.Config().RetryOn)
	assert.False(t, policy.ShouldRetry(1, errConstraint))
}

func TestComputeDelayWithoutJitter(t *testing.T) {
	policy := NewPolicy(RetryConfig{
		MaxAttempts:     10,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        time.Second,
		ExponentialBase: 2,
	})

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, want := range expected {
		assert.Equal(t, want, policy.ComputeDelay(i+1), "attempt %d", i+1)
	}
}

func TestComputeDelayJitterBounds(t *testing.T) {
	tests := []struct {
		name   string
		random float64
		want   time.Duration
	}{
		{"lowest factor halves", 0, 50 * time.Millisecond},
		{"midpoint keeps delay", 0.5, 100 * time.Millisecond},
		{"highest factor", 0.999, 149900 * time.Microsecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := NewPolicy(RetryConfig{
				BaseDelay:       100 * time.Millisecond,
				MaxDelay:        time.Second,
				ExponentialBase: 2,
				Jitter:          true,
			}).WithRandom(func() float64 { return tt.random })

			assert.InDelta(t, float64(tt.want), float64(policy.ComputeDelay(1)), float64(time.Microsecond))
		})
	}
}

func TestComputeDelayJitterClampsToMax(t *testing.T) {
	policy := NewPolicy(RetryConfig{
		BaseDelay:       time.Second,
		MaxDelay:        time.Second,
		ExponentialBase: 2,
		Jitter:          true,
	}).WithRandom(func() float64 { return 0.99 })

	for attempt := 1; attempt <= 5; attempt++ {
		assert.Equal(t, time.Second, policy.ComputeDelay(attempt))
	}
}

func TestComputeDelayBoundsProperty(t *testing.T) {
	for _, base := range []float64{1, 1.5, 2, 3, 10} {
		for _, jitter := range []bool{false, true} {
			t.Run(fmt.Sprintf("base=%g/jitter=%v", base, jitter), func(t *testing.T) {
				cfg := RetryConfig{
					MaxAttempts:     8,
					BaseDelay:       10 * time.Millisecond,
					MaxDelay:        500 * time.Millisecond,
					ExponentialBase: base,
					Jitter:          jitter,
				}
				policy := NewPolicy(cfg)
				// Midpoint jitter equals the expected value of the factor.
				mean := NewPolicy(cfg).WithRandom(func() float64 { return 0.5 })

				var prev time.Duration
				for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
					d := policy.ComputeDelay(attempt)
					assert.GreaterOrEqual(t, d, time.Duration(0))
					assert.LessOrEqual(t, d, cfg.MaxDelay)

					expected := mean.ComputeDelay(attempt)
					assert.GreaterOrEqual(t, expected, prev)
					prev = expected
				}
			})
		}
	}
}

func TestZeroBaseDelayRetriesImmediately(t *testing.T) {
	policy := NewPolicy(RetryConfig{MaxAttempts: 4, MaxDelay: time.Second, ExponentialBase: 2, Jitter: true})

	assert.Equal(t, time.Duration(0), policy.Config().BaseDelay, "explicit zero is kept")
	for _, attempt := range []int{1, 2, 3, 200} {
		assert.Equal(t, time.Duration(0), policy.ComputeDelay(attempt), "attempt %d", attempt)
	}

	assert.Equal(t, 100*time.Millisecond, NewPolicy(RetryConfig{}).Config().BaseDelay, "unset timing takes the defaults")
}

func TestComputeDelayHugeAttempt(t *testing.T) {
	policy := NewPolicy(RetryConfig{BaseDelay: time.Millisecond, MaxDelay: time.Second, ExponentialBase: 10})

	assert.Equal(t, time.Second, policy.ComputeDelay(10_000))
	assert.Equal(t, time.Millisecond, policy.ComputeDelay(0), "attempts below one are treated as the first")
}

func TestRetriableUsesClassifier(t *testing.T) {
	policy := NewPolicy(RetryConfig{
		Classifier: func(err error) ErrorKind {
			if errors.Is(err, context.Canceled) {
				return KindTimeout
			}
			return KindUnknown
		},
	})

	assert.True(t, policy.Retriable(context.Canceled))
	assert.False(t, policy.Retriable(errTransient), "custom classifier replaces the default")
	require.Equal(t, KindTimeout, policy.Kind(context.Canceled))
}
