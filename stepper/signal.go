package stepper

import (
	"context"
	"strconv"
	"sync"
)

// Event is the result code a driver raises on a Signal when a move ends
type Event int

const (
	// StepsCompleted means the requested steps were all performed
	StepsCompleted Event = iota

	// SensorlessStallDetected means the driver detected a stall and stopped
	SensorlessStallDetected

	// LeftEndStopDetected means the left (negative) limit switch was hit
	LeftEndStopDetected

	// RightEndStopDetected means the right (positive) limit switch was hit
	RightEndStopDetected
)

// Known returns true if e is one of the terminal events above
func (e Event) Known() bool {
	return e >= StepsCompleted && e <= RightEndStopDetected
}

func (e Event) String() string {
	switch e {
	case StepsCompleted:
		return "steps-completed"
	case SensorlessStallDetected:
		return "stall-detected"
	case LeftEndStopDetected:
		return "left-limit-hit"
	case RightEndStopDetected:
		return "right-limit-hit"
	default:
		return "unknown(" + strconv.Itoa(int(e)) + ")"
	}
}

// Signal is a reusable notification carrying one Event at a time.
// A driver Raises it; a single consumer Waits on it, reads the result and
// Resets it before it can carry the next one.  The zero value is not usable,
// create Signals with NewSignal.
type Signal struct {
	mu       sync.Mutex
	signaled bool
	result   Event
	notify   chan struct{}
}

// NewSignal returns an empty signal
func NewSignal() *Signal {
	return &Signal{notify: make(chan struct{}, 1)}
}

// Raise stores result and wakes the waiter.  If the previous result has not
// been consumed, the new one is refused with ErrBusy.
func (s *Signal) Raise(result Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signaled {
		return ErrBusy
	}
	s.signaled = true
	s.result = result
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Check returns whether the signal carries a result, and the result
func (s *Signal) Check() (bool, Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signaled, s.result
}

// Reset returns the signal to the empty state
func (s *Signal) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signaled = false
	s.result = 0
	select {
	case <-s.notify:
	default:
	}
}

// Wait blocks until the signal carries a result or ctx is done.
// It does not consume the result; call Reset for that.
func (s *Signal) Wait(ctx context.Context) (Event, error) {
	for {
		if ok, ev := s.Check(); ok {
			return ev, nil
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}
