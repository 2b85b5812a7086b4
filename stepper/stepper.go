// Package stepper describes the capability contract of a stepper motor
// driver.  A driver implements Device plus any subset of the capability
// interfaces in this package; callers go through the package level helpers,
// which report ErrNotSupported for a capability the driver does not have.
package stepper

import "strconv"

// Direction is the direction of rotation in constant velocity mode
type Direction int

const (
	// Negative rotates towards decreasing position
	Negative Direction = iota

	// Positive rotates towards increasing position
	Positive
)

func (d Direction) String() string {
	switch d {
	case Negative:
		return "negative"
	case Positive:
		return "positive"
	default:
		return "direction(" + strconv.Itoa(int(d)) + ")"
	}
}

// MicroStepResolution is the number of micro-steps per full step.
// The value of each constant is its divisor, so it prints as a number.
type MicroStepResolution int

const (
	FullStep     MicroStepResolution = 1
	MicroStep2   MicroStepResolution = 2
	MicroStep4   MicroStepResolution = 4
	MicroStep8   MicroStepResolution = 8
	MicroStep16  MicroStepResolution = 16
	MicroStep32  MicroStepResolution = 32
	MicroStep64  MicroStepResolution = 64
	MicroStep128 MicroStepResolution = 128
	MicroStep256 MicroStepResolution = 256
)

// Valid returns true if r is a power of two between 1 and 256
func (r MicroStepResolution) Valid() bool {
	return r >= FullStep && r <= MicroStep256 && r&(r-1) == 0
}

// Device is a bound actuator instance.  The name is unique among the bound
// devices and is what an operator types to address it.
type Device interface {
	Name() string
}

// Enabler can energize or de-energize the coils of a motor
type Enabler interface {
	// Enable enables (true) or disables (false) the motor
	Enable(bool) error
}

// Mover can move a motor by a relative number of micro-steps
type Mover interface {
	// Move moves the motor by the given number of micro-steps.
	// If the signal is not nil, the driver raises it once when the move
	// reaches a terminal event.
	Move(int32, *Signal) error
}

// Targeter can move a motor to an absolute position
type Targeter interface {
	// SetTargetPosition moves the motor to the given absolute position in
	// micro-steps, raising the signal (if not nil) on a terminal event
	SetTargetPosition(int32, *Signal) error
}

// Speeder can set the maximum velocity of a motor
type Speeder interface {
	// SetMaxVelocity sets the velocity in micro-steps per second
	SetMaxVelocity(uint32) error
}

// Resolver can set and get the micro-step resolution
type Resolver interface {
	SetMicroStepRes(MicroStepResolution) error
	GetMicroStepRes() (MicroStepResolution, error)
}

// Positioner can set and get the actual position of a motor without moving it
type Positioner interface {
	// SetActualPosition redefines the current position, in micro-steps
	SetActualPosition(int32) error

	// GetActualPosition returns the current position, in micro-steps
	GetActualPosition() (int32, error)
}

// MotionQueryer can report whether a motor is in motion
type MotionQueryer interface {
	IsMoving() (bool, error)
}

// ConstantVelocityMover can run a motor continuously in one direction
type ConstantVelocityMover interface {
	// EnableConstantVelocityMode runs the motor in the given direction at
	// the given velocity in micro-steps per second.  A velocity of zero stops it.
	EnableConstantVelocityMode(Direction, uint32) error
}

// EventReporter is implemented by drivers which can raise a Signal on the
// terminal events of a move.  Drivers which do not implement it, or report
// false, are always driven synchronously.
type EventReporter interface {
	ReportsEvents() bool
}

// Enable enables or disables d
func Enable(d Device, on bool) error {
	e, ok := d.(Enabler)
	if !ok {
		return ErrNotSupported
	}
	return e.Enable(on)
}

// Move moves d by microSteps
func Move(d Device, microSteps int32, sig *Signal) error {
	m, ok := d.(Mover)
	if !ok {
		return ErrNotSupported
	}
	return m.Move(microSteps, sig)
}

// SetTargetPosition moves d to the absolute position pos
func SetTargetPosition(d Device, pos int32, sig *Signal) error {
	t, ok := d.(Targeter)
	if !ok {
		return ErrNotSupported
	}
	return t.SetTargetPosition(pos, sig)
}

// SetMaxVelocity sets the velocity of d
func SetMaxVelocity(d Device, velocity uint32) error {
	s, ok := d.(Speeder)
	if !ok {
		return ErrNotSupported
	}
	return s.SetMaxVelocity(velocity)
}

// SetMicroStepRes sets the micro-step resolution of d
func SetMicroStepRes(d Device, res MicroStepResolution) error {
	r, ok := d.(Resolver)
	if !ok {
		return ErrNotSupported
	}
	return r.SetMicroStepRes(res)
}

// GetMicroStepRes gets the micro-step resolution of d
func GetMicroStepRes(d Device) (MicroStepResolution, error) {
	r, ok := d.(Resolver)
	if !ok {
		return 0, ErrNotSupported
	}
	return r.GetMicroStepRes()
}

// SetActualPosition redefines the position of d
func SetActualPosition(d Device, pos int32) error {
	p, ok := d.(Positioner)
	if !ok {
		return ErrNotSupported
	}
	return p.SetActualPosition(pos)
}

// GetActualPosition gets the position of d
func GetActualPosition(d Device) (int32, error) {
	p, ok := d.(Positioner)
	if !ok {
		return 0, ErrNotSupported
	}
	return p.GetActualPosition()
}

// IsMoving returns true if d is in motion
func IsMoving(d Device) (bool, error) {
	q, ok := d.(MotionQueryer)
	if !ok {
		return false, ErrNotSupported
	}
	return q.IsMoving()
}

// EnableConstantVelocityMode runs d continuously
func EnableConstantVelocityMode(d Device, dir Direction, velocity uint32) error {
	c, ok := d.(ConstantVelocityMover)
	if !ok {
		return ErrNotSupported
	}
	return c.EnableConstantVelocityMode(dir, velocity)
}

// ReportsEvents returns true if d raises signals for terminal events
func ReportsEvents(d Device) bool {
	r, ok := d.(EventReporter)
	return ok && r.ReportsEvents()
}
