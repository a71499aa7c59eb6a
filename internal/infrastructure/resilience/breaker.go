package resilience

import (
	"fmt"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// MarshalText lets states render as strings in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the names produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "closed":
		*s = StateClosed
	case "half-open":
		*s = StateHalfOpen
	case "open":
		*s = StateOpen
	default:
		return fmt.Errorf("unknown breaker state %q", text)
	}
	return nil
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// FailureThreshold is the number of failures inside FailureWindow that trips the breaker
	FailureThreshold int
	// RecoveryTimeout is the period of the open state until a trial call is admitted
	RecoveryTimeout time.Duration
	// FailureWindow is the trailing period over which failures are counted
	FailureWindow time.Duration
	// OnStateChange is called whenever the state changes. It runs with the
	// breaker locked and must not call back into the breaker.
	OnStateChange func(name string, from State, to State)
	// Now is the clock; defaults to time.Now
	Now func() time.Time
}

// DefaultSettings returns the default breaker settings.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		FailureWindow:    60 * time.Second,
	}
}

// Stats is a diagnostic view of a breaker.
type Stats struct {
	Name           string        `json:"name"`
	State          State         `json:"state"`
	FailureCount   int           `json:"failure_count"`
	SuccessCount   uint64        `json:"success_count"`
	TotalFailures  uint64        `json:"total_failures"`
	TotalSuccesses uint64        `json:"total_successes"`
	Rejected       uint64        `json:"rejected"`
	TrippedAt      time.Time     `json:"tripped_at,omitzero"`
	RetryIn        time.Duration `json:"retry_in"`
	TrialInFlight  bool          `json:"trial_in_flight"`
	LastError      string        `json:"last_error,omitempty"`
}

// Breaker implements the circuit breaker pattern. It never returns errors;
// callers ask AllowRequest and report outcomes.
type Breaker struct {
	name     string
	settings Settings

	mu             sync.Mutex
	state          State
	failures       []time.Time // trailing failure timestamps, oldest first
	trippedAt      time.Time
	trialAt        time.Time // zero unless a half-open trial is outstanding
	successes      uint64    // consecutive successes since the last failure
	totalFailures  uint64
	totalSuccesses uint64
	rejected       uint64
	lastErr        string
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	def := DefaultSettings()
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = def.FailureThreshold
	}
	if settings.RecoveryTimeout <= 0 {
		settings.RecoveryTimeout = def.RecoveryTimeout
	}
	if settings.FailureWindow <= 0 {
		settings.FailureWindow = def.FailureWindow
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}

	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// Settings returns the effective settings.
func (b *Breaker) Settings() Settings {
	return b.settings
}

// State returns the current state. Unlike AllowRequest it never transitions.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// AllowRequest reports whether a call may proceed.
//
// In the open state the first caller after RecoveryTimeout moves the
// breaker to half-open and is admitted as the single trial call. Every
// other caller is refused until that trial is reported. A trial that is
// never reported is abandoned after another RecoveryTimeout so the breaker
// cannot wedge.
func (b *Breaker) AllowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.settings.Now()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.trippedAt) < b.settings.RecoveryTimeout {
			b.rejected++
			return false
		}
		b.setState(StateHalfOpen, now)
		b.trialAt = now
		return true
	case StateHalfOpen:
		if !b.trialAt.IsZero() && now.Sub(b.trialAt) < b.settings.RecoveryTimeout {
			b.rejected++
			return false
		}
		b.trialAt = now
		return true
	}
	return false
}

// RecordSuccess reports a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.settings.Now()
	b.totalSuccesses++
	b.successes++

	switch b.state {
	case StateHalfOpen:
		b.setState(StateClosed, now)
	case StateClosed:
		b.failures = b.failures[:0]
	}
}

// RecordFailure reports a failed call.
func (b *Breaker) RecordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.settings.Now()
	b.totalFailures++
	b.successes = 0
	if err != nil {
		b.lastErr = err.Error()
	}

	switch b.state {
	case StateHalfOpen:
		b.failures = append(b.failures, now)
		b.setState(StateOpen, now)
	case StateClosed:
		b.pruneFailures(now)
		b.failures = append(b.failures, now)
		if len(b.failures) >= b.settings.FailureThreshold {
			b.setState(StateOpen, now)
		}
	case StateOpen:
		// A call admitted before the trip finished late; the trip time stays.
		b.pruneFailures(now)
		b.failures = append(b.failures, now)
	}
}

// Stats returns a copy of the breaker's diagnostics.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.settings.Now()
	b.pruneFailures(now)

	var retryIn time.Duration
	if b.state == StateOpen {
		retryIn = b.trippedAt.Add(b.settings.RecoveryTimeout).Sub(now)
		if retryIn < 0 {
			retryIn = 0
		}
	}

	return Stats{
		Name:           b.name,
		State:          b.state,
		FailureCount:   len(b.failures),
		SuccessCount:   b.successes,
		TotalFailures:  b.totalFailures,
		TotalSuccesses: b.totalSuccesses,
		Rejected:       b.rejected,
		TrippedAt:      b.trippedAt,
		RetryIn:        retryIn,
		TrialInFlight:  b.state == StateHalfOpen && !b.trialAt.IsZero(),
		LastError:      b.lastErr,
	}
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.setState(StateClosed, b.settings.Now())
	b.failures = nil
	b.trippedAt = time.Time{}
	b.successes = 0
	b.totalFailures = 0
	b.totalSuccesses = 0
	b.rejected = 0
	b.lastErr = ""
}

// pruneFailures drops failures older than the trailing window
func (b *Breaker) pruneFailures(now time.Time) {
	cutoff := now.Add(-b.settings.FailureWindow)
	i := 0
	for i < len(b.failures) && b.failures[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.failures = append(b.failures[:0], b.failures[i:]...)
	}
}

// setState changes the state of the circuit breaker
func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.trialAt = time.Time{}

	switch state {
	case StateClosed:
		b.failures = b.failures[:0]
	case StateOpen:
		b.trippedAt = now
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}
