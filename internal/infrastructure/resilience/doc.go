/*
Package resilience guards database operations with retries and a circuit breaker.

# Overview

A Controller combines a retry Policy (exponential backoff with jitter,
bounded by attempt count and error kind) with a Breaker (closed, open and
half-open states over a trailing failure window). Callers hand the
controller an operation; the controller decides whether to call it,
whether to call it again, and how long to wait in between.

# Features

- Three-state circuit breaker with a trailing failure window
- Exactly one trial call admitted when an open breaker recovers
- Exponential backoff with optional multiplicative jitter
- Retry eligibility by error kind, never by attempt alone
- Typed circuit-open error distinct from operation errors
- State change callbacks, Observer hooks and otel spans for monitoring

# Usage

	breaker := resilience.New("postgres", resilience.Settings{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		FailureWindow:    time.Minute,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker transition", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	policy := resilience.NewPolicy(resilience.DefaultRetryConfig())
	ctrl := resilience.NewController(policy, breaker).WithLogger(logger)

	user, err := resilience.Run(ctx, ctrl, func(ctx context.Context) (*User, error) {
		return repo.FindUser(ctx, id)
	})
	if resilience.IsCircuitOpen(err) {
		// dependency is down, do not bother retrying
	}

# Pattern

	Closed --[threshold failures in window]-> Open --[recovery timeout]-> Half-Open --[trial ok]-> Closed
	                                                                          |
	                                                                   [trial fails]
	                                                                          |
	                                                                          v
	                                                                        Open
*/
package resilience
