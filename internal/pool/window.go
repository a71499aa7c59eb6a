package pool

import (
	"iter"
	"time"
)

// Window is a bounded FIFO of connection events. It holds at most its
// capacity in events and, when maxAge is positive, nothing older than
// maxAge relative to the newest observation; whichever bound is tighter
// wins.
//
// Events must be recorded in chronological order. Window is not safe for
// concurrent use; Monitor serializes access to it.
type Window struct {
	buf    []ConnectionEvent
	head   int // index of the oldest event
	size   int
	maxAge time.Duration
}

// NewWindow creates a window holding up to capacity events no older than
// maxAge. A non-positive maxAge disables age-based eviction.
func NewWindow(capacity int, maxAge time.Duration) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		buf:    make([]ConnectionEvent, capacity),
		maxAge: maxAge,
	}
}

// Record appends ev, evicting the oldest events once capacity is exceeded
// and any events that fell out of the age bound.
func (w *Window) Record(ev ConnectionEvent) {
	if w.size == len(w.buf) {
		w.buf[w.head] = ConnectionEvent{}
		w.head = (w.head + 1) % len(w.buf)
		w.size--
	}
	w.buf[(w.head+w.size)%len(w.buf)] = ev
	w.size++
	w.Expire(ev.Timestamp)
}

// Expire drops events older than maxAge relative to now.
func (w *Window) Expire(now time.Time) {
	if w.maxAge <= 0 {
		return
	}
	cutoff := now.Add(-w.maxAge)
	for w.size > 0 && w.buf[w.head].Timestamp.Before(cutoff) {
		w.buf[w.head] = ConnectionEvent{}
		w.head = (w.head + 1) % len(w.buf)
		w.size--
	}
}

// EventsSince returns the events at or after t, oldest first. The sequence
// is lazy and may be ranged over any number of times; each pass reflects
// the window's contents at that moment.
func (w *Window) EventsSince(t time.Time) iter.Seq[ConnectionEvent] {
	return func(yield func(ConnectionEvent) bool) {
		for i := 0; i < w.size; i++ {
			ev := w.buf[(w.head+i)%len(w.buf)]
			if ev.Timestamp.Before(t) {
				continue
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// Clear empties the window.
func (w *Window) Clear() {
	clear(w.buf)
	w.head = 0
	w.size = 0
}

// Len returns the number of events held.
func (w *Window) Len() int {
	return w.size
}

// Cap returns the event capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}

// MaxAge returns the age bound.
func (w *Window) MaxAge() time.Duration {
	return w.maxAge
}
