package pool

import "time"

// EventKind identifies a connection lifecycle event.
type EventKind int

const (
	EventCheckout EventKind = iota
	EventCheckin
	EventError
	EventTimeout
)

// String returns the string representation of the kind
func (k EventKind) String() string {
	switch k {
	case EventCheckout:
		return "checkout"
	case EventCheckin:
		return "checkin"
	case EventError:
		return "error"
	case EventTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ConnectionEvent records one pool interaction. Events are values and are
// never modified after they enter a Window.
type ConnectionEvent struct {
	Kind      EventKind
	Timestamp time.Time
	// Duration is the checkout latency; valid only when HasDuration is set
	Duration    time.Duration
	HasDuration bool
	Err         error
}
