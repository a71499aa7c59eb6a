package resilience

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCircuitOpen   = errors.New("circuit breaker is open")
	ErrInvalidConfig = errors.New("invalid resilience configuration")
)

// CircuitOpenError is returned when the breaker refuses a call.
// No operation was attempted for the refused call.
type CircuitOpenError struct {
	Name    string
	RetryIn time.Duration
	// Cause is the last operation error seen by the same Run, if the
	// breaker tripped between attempts.
	Cause error
}

// Error implements error
func (e *CircuitOpenError) Error() string {
	msg := fmt.Sprintf("circuit breaker %q is open (retry in %s)", e.Name, e.RetryIn.Round(time.Millisecond))
	if e.Cause != nil {
		msg += ": last error: " + e.Cause.Error()
	}
	return msg
}

// Is reports whether target is ErrCircuitOpen.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// Unwrap returns the last operation error, if any.
func (e *CircuitOpenError) Unwrap() error {
	return e.Cause
}

// IsCircuitOpen reports whether err was produced by an open breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
