// Package sim provides a simulated stepper motor driver.
//
// The simulated motor steps one micro-step at a time, paced at its maximum
// velocity.  Optional end stops and a stall position make it possible to
// exercise every terminal event without hardware.
package sim

import (
	"context"
	"fmt"
	"math"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/nasa-jpl/stepperctl/stepper"
)

const (
	// DefaultMaxVelocity is the velocity of a new Stepper, in micro-steps per second
	DefaultMaxVelocity = 1000

	// DefaultResolution is the micro-step resolution of a new Stepper
	DefaultResolution = stepper.MicroStep16
)

// Config describes a simulated motor
type Config struct {
	// Name is the device name the shell resolves
	Name string

	// Async makes the motor report terminal events on the signal it is given.
	// A motor which is not async blocks in Move and SetTargetPosition until
	// the motion ends.
	Async bool

	// Enabled is the state of the driver stage at power on
	Enabled bool

	// MaxVelocity is the initial velocity, DefaultMaxVelocity if zero
	MaxVelocity uint32

	// Resolution is the initial resolution, DefaultResolution if zero
	Resolution stepper.MicroStepResolution

	// LeftEndStop and RightEndStop, if not nil, are the lowest and highest
	// positions the motor can reach
	LeftEndStop  *int32
	RightEndStop *int32

	// StallAt, if not nil, is a position the motor stalls before reaching
	StallAt *int32
}

// motion is one run of the motor, from start to its terminal event
type motion struct {
	cancel context.CancelFunc
	done   chan struct{}

	// written by the run before done is closed
	ev    stepper.Event
	ended bool
}

// Stepper is a simulated stepper motor.  It implements every capability in
// package stepper.
type Stepper struct {
	mu       sync.Mutex
	cfg      Config
	enabled  bool
	velocity uint32
	res      stepper.MicroStepResolution
	pos      int32
	current  *motion
}

// New returns a simulated motor at position zero
func New(cfg Config) *Stepper {
	s := &Stepper{cfg: cfg, enabled: cfg.Enabled, velocity: cfg.MaxVelocity, res: cfg.Resolution}
	if s.velocity == 0 {
		s.velocity = DefaultMaxVelocity
	}
	if !s.res.Valid() {
		s.res = DefaultResolution
	}
	return s
}

// Name returns the configured device name
func (s *Stepper) Name() string {
	return s.cfg.Name
}

// ReportsEvents returns true if the motor was configured async
func (s *Stepper) ReportsEvents() bool {
	return s.cfg.Async
}

// Enable powers the driver stage on or off.  Disabling stops any motion
// without raising an event.
func (s *Stepper) Enable(on bool) error {
	if !on {
		s.halt()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = on
	return nil
}

// Move moves by a relative number of micro-steps.  A move whose target
// does not fit in an int32 is refused.
func (s *Stepper) Move(steps int32, sig *stepper.Signal) error {
	s.mu.Lock()
	target := int64(s.pos) + int64(steps)
	s.mu.Unlock()
	if target > math.MaxInt32 || target < math.MinInt32 {
		return fmt.Errorf("move by %d leaves the position range: %w", steps, stepper.ErrInvalid)
	}
	return s.SetTargetPosition(int32(target), sig)
}

// SetTargetPosition moves to an absolute position.  With a signal the call
// returns immediately and the terminal event is raised on sig; without one
// the call returns when the motion ends.
func (s *Stepper) SetTargetPosition(pos int32, sig *stepper.Signal) error {
	s.mu.Lock()
	m, err := s.start(pos, 0, s.velocity)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.finish(m, sig)
}

// EnableConstantVelocityMode runs the motor in direction d at velocity until
// it is stopped, disabled, or reaches an end stop.  A velocity of zero stops
// a constant velocity run.
func (s *Stepper) EnableConstantVelocityMode(d stepper.Direction, velocity uint32) error {
	if velocity == 0 {
		s.halt()
		return nil
	}
	step := int32(1)
	if d == stepper.Negative {
		step = -1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.start(0, step, velocity)
	if err != nil {
		return err
	}
	go func() {
		<-m.done
		if m.ended && m.ev != stepper.StepsCompleted {
			log.WithFields(log.Fields{"device": s.cfg.Name, "event": m.ev.String()}).
				Info("constant velocity run ended")
		}
	}()
	return nil
}

// SetMaxVelocity sets the velocity used by subsequent motions
func (s *Stepper) SetMaxVelocity(velocity uint32) error {
	if velocity == 0 {
		return fmt.Errorf("velocity must be positive: %w", stepper.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.velocity = velocity
	return nil
}

// SetMicroStepRes sets the resolution; it is refused while moving
func (s *Stepper) SetMicroStepRes(res stepper.MicroStepResolution) error {
	if !res.Valid() {
		return fmt.Errorf("micro-step resolution %d: %w", res, stepper.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.movingLocked() {
		return stepper.ErrBusy
	}
	s.res = res
	return nil
}

// GetMicroStepRes returns the resolution
func (s *Stepper) GetMicroStepRes() (stepper.MicroStepResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.res, nil
}

// SetActualPosition redefines the current position; it is refused while moving
func (s *Stepper) SetActualPosition(pos int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.movingLocked() {
		return stepper.ErrBusy
	}
	s.pos = pos
	return nil
}

// GetActualPosition returns the current position
func (s *Stepper) GetActualPosition() (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos, nil
}

// IsMoving returns true while a motion is running
func (s *Stepper) IsMoving() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.movingLocked(), nil
}

func (s *Stepper) movingLocked() bool {
	return s.current != nil
}

// start begins a motion toward target, or forever in the direction of step
// if step is not zero.  s.mu must be held.
func (s *Stepper) start(target, step int32, velocity uint32) (*motion, error) {
	if !s.enabled {
		return nil, fmt.Errorf("motor disabled: %w", stepper.ErrCanceled)
	}
	if s.movingLocked() {
		return nil, stepper.ErrBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &motion{cancel: cancel, done: make(chan struct{})}
	s.current = m
	lim := rate.NewLimiter(rate.Limit(velocity), int(velocity/100)+1)
	go s.run(ctx, m, lim, target, step)
	return m, nil
}

// finish hands the end of m to sig, or waits for it
func (s *Stepper) finish(m *motion, sig *stepper.Signal) error {
	if sig != nil {
		go func() {
			<-m.done
			if !m.ended {
				return
			}
			if err := sig.Raise(m.ev); err != nil {
				log.WithFields(log.Fields{"device": s.cfg.Name, "event": m.ev.String()}).
					Warn("previous event not consumed, dropping")
			}
		}()
		return nil
	}
	<-m.done
	switch {
	case !m.ended:
		return fmt.Errorf("motion stopped: %w", stepper.ErrCanceled)
	case m.ev != stepper.StepsCompleted:
		return fmt.Errorf("motion ended by %s: %w", m.ev, stepper.ErrCanceled)
	}
	return nil
}

func (s *Stepper) run(ctx context.Context, m *motion, lim *rate.Limiter, target, step int32) {
	defer m.cancel()
	defer close(m.done)
	for {
		s.mu.Lock()
		if s.current != m {
			s.mu.Unlock()
			return
		}
		dir := step
		if dir == 0 {
			switch {
			case s.pos < target:
				dir = 1
			case s.pos > target:
				dir = -1
			default:
				s.end(m, stepper.StepsCompleted)
				s.mu.Unlock()
				return
			}
		}
		next := int64(s.pos) + int64(dir)
		if ev, hit := s.obstacle(next); hit {
			s.end(m, ev)
			s.mu.Unlock()
			return
		}
		s.pos = int32(next)
		s.mu.Unlock()
		if err := lim.Wait(ctx); err != nil {
			return
		}
	}
}

// end records the terminal event of m.  s.mu must be held.
func (s *Stepper) end(m *motion, ev stepper.Event) {
	m.ev, m.ended = ev, true
	s.current = nil
}

// obstacle returns the event raised by stepping to next, if any.  The ends
// of the int32 range are end stops.
func (s *Stepper) obstacle(next int64) (stepper.Event, bool) {
	c := s.cfg
	switch {
	case c.StallAt != nil && next == int64(*c.StallAt):
		return stepper.SensorlessStallDetected, true
	case next < math.MinInt32, c.LeftEndStop != nil && next < int64(*c.LeftEndStop):
		return stepper.LeftEndStopDetected, true
	case next > math.MaxInt32, c.RightEndStop != nil && next > int64(*c.RightEndStop):
		return stepper.RightEndStopDetected, true
	}
	return 0, false
}

// halt stops the current motion, if any, and waits for it to exit
func (s *Stepper) halt() {
	s.mu.Lock()
	m := s.current
	s.current = nil
	s.mu.Unlock()
	if m != nil {
		m.cancel()
		<-m.done
	}
}
