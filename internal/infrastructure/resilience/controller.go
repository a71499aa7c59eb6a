package resilience

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/GriffinCanCode/poolguard/resilience"

// Attempt tracks a single Run invocation. It is never shared.
type Attempt struct {
	Number  int
	LastErr error
	Elapsed time.Duration
}

// Observer receives resilience events, typically for metrics.
type Observer interface {
	ObserveAttempt(target string, attempt int, kind ErrorKind, err error)
	ObserveBackoff(target string, delay time.Duration)
	ObserveRejection(target string)
	ObserveOutcome(target string, outcome string, elapsed time.Duration)
}

// Outcome labels reported to Observer.ObserveOutcome.
const (
	OutcomeSuccess      = "success"
	OutcomeNonRetriable = "non_retriable"
	OutcomeExhausted    = "exhausted"
	OutcomeRejected     = "rejected"
	OutcomeCanceled     = "canceled"
)

type nopObserver struct{}

func (nopObserver) ObserveAttempt(string, int, ErrorKind, error) {}
func (nopObserver) ObserveBackoff(string, time.Duration)         {}
func (nopObserver) ObserveRejection(string)                      {}
func (nopObserver) ObserveOutcome(string, string, time.Duration) {}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Controller runs database operations under a retry policy and a circuit
// breaker. It holds no per-call state; one controller can serve any number
// of concurrent calls.
type Controller struct {
	policy   *Policy
	breaker  *Breaker
	logger   *zap.Logger
	observer Observer
	tracer   trace.Tracer
	sleep    Sleeper
}

// NewController creates a controller guarding breaker's target.
func NewController(policy *Policy, breaker *Breaker) *Controller {
	return &Controller{
		policy:   policy,
		breaker:  breaker,
		logger:   zap.NewNop(),
		observer: nopObserver{},
		tracer:   otel.Tracer(tracerName),
		sleep:    SleepContext,
	}
}

// WithLogger sets the logger
func (c *Controller) WithLogger(logger *zap.Logger) *Controller {
	if logger != nil {
		c.logger = logger.With(zap.String("target", c.breaker.Name()))
	}
	return c
}

// WithObserver sets the event observer
func (c *Controller) WithObserver(o Observer) *Controller {
	if o != nil {
		c.observer = o
	}
	return c
}

// WithTracer replaces the global otel tracer
func (c *Controller) WithTracer(t trace.Tracer) *Controller {
	if t != nil {
		c.tracer = t
	}
	return c
}

// WithSleeper replaces the backoff sleeper
func (c *Controller) WithSleeper(s Sleeper) *Controller {
	if s != nil {
		c.sleep = s
	}
	return c
}

// Breaker returns the guarded breaker
func (c *Controller) Breaker() *Breaker {
	return c.breaker
}

// Policy returns the retry policy
func (c *Controller) Policy() *Policy {
	return c.policy
}

// Do runs op through the controller.
func (c *Controller) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Run(ctx, c, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Run executes op until it succeeds, fails with a non-retriable error,
// exhausts the policy, or the breaker refuses it.
//
// On exhaustion and on non-retriable failures the error returned is the
// operation's own last error. A refusal yields *CircuitOpenError.
func Run[T any](ctx context.Context, c *Controller, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	target := c.breaker.Name()

	ctx, span := c.tracer.Start(ctx, "resilience.Run",
		trace.WithAttributes(
			attribute.String("db.target", target),
			attribute.Int("retry.max_attempts", c.policy.MaxAttempts()),
		),
	)
	defer span.End()

	start := time.Now()
	at := Attempt{Number: 1}

	for {
		if !c.breaker.AllowRequest() {
			err := &CircuitOpenError{
				Name:    target,
				RetryIn: c.breaker.Stats().RetryIn,
				Cause:   at.LastErr,
			}
			c.observer.ObserveRejection(target)
			c.observer.ObserveOutcome(target, OutcomeRejected, time.Since(start))
			c.logger.Debug("Call rejected by open circuit", zap.Int("attempt", at.Number))
			span.SetStatus(codes.Error, "circuit open")
			span.RecordError(err)
			return zero, err
		}

		result, err := invoke(ctx, c.breaker, op)
		at.Elapsed = time.Since(start)

		if err == nil {
			c.breaker.RecordSuccess()
			c.observer.ObserveAttempt(target, at.Number, "", nil)
			c.observer.ObserveOutcome(target, OutcomeSuccess, at.Elapsed)
			if at.Number > 1 {
				c.logger.Info("Operation succeeded after retry",
					zap.Int("attempt", at.Number),
					zap.Duration("elapsed", at.Elapsed),
				)
			}
			span.SetAttributes(attribute.Int("retry.attempts", at.Number))
			span.SetStatus(codes.Ok, "")
			return result, nil
		}

		at.LastErr = err
		kind := c.policy.Kind(err)
		c.breaker.RecordFailure(err)
		c.observer.ObserveAttempt(target, at.Number, kind, err)
		span.AddEvent("attempt failed", trace.WithAttributes(
			attribute.Int("retry.attempt", at.Number),
			attribute.String("error.kind", string(kind)),
		))

		if !c.policy.ShouldRetry(at.Number, err) {
			outcome := OutcomeNonRetriable
			if c.policy.Retriable(err) {
				outcome = OutcomeExhausted
				c.logger.Error("Operation failed after all attempts",
					zap.Int("attempts", at.Number),
					zap.String("kind", string(kind)),
					zap.Duration("elapsed", at.Elapsed),
					zap.Error(err),
				)
			} else {
				c.logger.Warn("Operation failed with non-retriable error",
					zap.Int("attempt", at.Number),
					zap.String("kind", string(kind)),
					zap.Error(err),
				)
			}
			c.observer.ObserveOutcome(target, outcome, at.Elapsed)
			span.SetAttributes(attribute.Int("retry.attempts", at.Number))
			span.SetStatus(codes.Error, outcome)
			span.RecordError(err)
			return zero, err
		}

		delay := c.policy.ComputeDelay(at.Number)
		c.logger.Warn("Operation failed, retrying",
			zap.Int("attempt", at.Number),
			zap.Int("max_attempts", c.policy.MaxAttempts()),
			zap.String("kind", string(kind)),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		c.observer.ObserveBackoff(target, delay)

		if serr := c.sleep(ctx, delay); serr != nil {
			c.observer.ObserveOutcome(target, OutcomeCanceled, time.Since(start))
			span.SetStatus(codes.Error, OutcomeCanceled)
			span.RecordError(err)
			return zero, fmt.Errorf("%w (retry aborted: %w)", err, serr)
		}
		at.Number++
	}
}

// invoke calls op, reporting a panic to the breaker before re-raising it.
func invoke[T any](ctx context.Context, b *Breaker, op func(ctx context.Context) (T, error)) (T, error) {
	defer func() {
		if e := recover(); e != nil {
			b.RecordFailure(fmt.Errorf("panic: %v", e))
			panic(e)
		}
	}()
	return op(ctx)
}
