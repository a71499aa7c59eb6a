package resilience

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retry behavior. It is passed by value and never
// mutated after a Policy is built from it.
type RetryConfig struct {
	// MaxAttempts bounds the total number of attempts, the first included
	MaxAttempts int
	// BaseDelay is the delay after the first failed attempt
	BaseDelay time.Duration
	// MaxDelay caps every computed delay, jitter included
	MaxDelay time.Duration
	// ExponentialBase is the growth factor between consecutive delays
	ExponentialBase float64
	// Jitter multiplies each delay by a uniform factor in [0.5, 1.5)
	Jitter bool
	// RetryOn lists the error kinds eligible for retry. Nil means DefaultRetryOn.
	RetryOn []ErrorKind
	// Classifier maps errors to kinds. Nil means Classify.
	Classifier Classifier
}

// DefaultRetryOn returns the transient error kinds retried by default.
// Deadlocks and serialization failures succeed on a fresh attempt, so they
// are included. Constraint and validation errors are never in this set.
func DefaultRetryOn() []ErrorKind {
	return []ErrorKind{KindConnection, KindTimeout, KindUnavailable, KindSerialization}
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
		RetryOn:         DefaultRetryOn(),
	}
}

// Validate checks the configuration for values no policy can honor.
func (c RetryConfig) Validate() error {
	switch {
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be >= 1, got %d", ErrInvalidConfig, c.MaxAttempts)
	case c.BaseDelay < 0:
		return fmt.Errorf("%w: base delay must not be negative", ErrInvalidConfig)
	case c.MaxDelay < c.BaseDelay:
		return fmt.Errorf("%w: max delay %s is below base delay %s", ErrInvalidConfig, c.MaxDelay, c.BaseDelay)
	case c.ExponentialBase < 1:
		return fmt.Errorf("%w: exponential base must be >= 1, got %g", ErrInvalidConfig, c.ExponentialBase)
	}
	return nil
}

// Policy decides whether and when a failed attempt is retried.
type Policy struct {
	cfg      RetryConfig
	retryOn  map[ErrorKind]struct{}
	classify Classifier
	random   func() float64
}

// NewPolicy builds a policy. Zero-valued numeric fields take the defaults
// from DefaultRetryConfig, except that a zero BaseDelay alongside an
// explicit MaxDelay means retry without waiting.
func NewPolicy(cfg RetryConfig) *Policy {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay == 0 && cfg.MaxDelay == 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.ExponentialBase == 0 {
		cfg.ExponentialBase = def.ExponentialBase
	}
	if cfg.RetryOn == nil {
		cfg.RetryOn = DefaultRetryOn()
	}
	// Own the slice so later edits by the caller cannot leak in.
	cfg.RetryOn = append([]ErrorKind(nil), cfg.RetryOn...)

	retryOn := make(map[ErrorKind]struct{}, len(cfg.RetryOn))
	for _, k := range cfg.RetryOn {
		retryOn[k] = struct{}{}
	}

	classify := cfg.Classifier
	if classify == nil {
		classify = Classify
	}

	return &Policy{
		cfg:      cfg,
		retryOn:  retryOn,
		classify: classify,
		random:   rand.Float64,
	}
}

// WithRandom replaces the jitter source. fn must return values in [0, 1).
func (p *Policy) WithRandom(fn func() float64) *Policy {
	p.random = fn
	return p
}

// Config returns the effective configuration.
func (p *Policy) Config() RetryConfig {
	cfg := p.cfg
	cfg.RetryOn = append([]ErrorKind(nil), p.cfg.RetryOn...)
	return cfg
}

// MaxAttempts returns the attempt bound.
func (p *Policy) MaxAttempts() int {
	return p.cfg.MaxAttempts
}

// Kind classifies err with the policy's classifier.
func (p *Policy) Kind(err error) ErrorKind {
	return p.classify(err)
}

// Retriable reports whether err's kind is in the retry set.
func (p *Policy) Retriable(err error) bool {
	if err == nil {
		return false
	}
	_, ok := p.retryOn[p.classify(err)]
	return ok
}

// ShouldRetry reports whether a failure on the given 1-indexed attempt
// should be followed by another attempt.
func (p *Policy) ShouldRetry(attempt int, err error) bool {
	if attempt >= p.cfg.MaxAttempts {
		return false
	}
	return p.Retriable(err)
}

// ComputeDelay returns the backoff to wait after the given 1-indexed attempt.
// The result is never negative and never exceeds MaxDelay.
func (p *Policy) ComputeDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.cfg.BaseDelay <= 0 {
		return 0
	}

	maxDelay := float64(p.cfg.MaxDelay)
	delay := float64(p.cfg.BaseDelay) * math.Pow(p.cfg.ExponentialBase, float64(attempt-1))
	if math.IsNaN(delay) || delay > maxDelay {
		delay = maxDelay
	}

	if p.cfg.Jitter {
		delay *= 0.5 + p.random()
		if delay > maxDelay {
			delay = maxDelay
		}
	}

	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}
