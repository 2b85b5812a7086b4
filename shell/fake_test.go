package shell

import (
	"fmt"
	"sync"

	"github.com/nasa-jpl/stepperctl/stepper"
)

// fakeStepper records every capability call made on it
type fakeStepper struct {
	name  string
	async bool

	mu    sync.Mutex
	calls []string
	sig   *stepper.Signal
	res   stepper.MicroStepResolution
	pos   int32

	failWith  error // returned by every mutating call
	posErr    error
	resErr    error
	movingErr error
}

func (f *fakeStepper) Name() string        { return f.name }
func (f *fakeStepper) ReportsEvents() bool { return f.async }

func (f *fakeStepper) record(format string, a ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, a...))
}

func (f *fakeStepper) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeStepper) Enable(on bool) error {
	f.record("enable %v", on)
	return f.failWith
}

func (f *fakeStepper) Move(steps int32, sig *stepper.Signal) error {
	f.record("move %d signal=%v", steps, sig != nil)
	f.sig = sig
	return f.failWith
}

func (f *fakeStepper) SetTargetPosition(pos int32, sig *stepper.Signal) error {
	f.record("set_target_position %d signal=%v", pos, sig != nil)
	f.sig = sig
	return f.failWith
}

func (f *fakeStepper) SetMaxVelocity(v uint32) error {
	f.record("set_max_velocity %d", v)
	return f.failWith
}

func (f *fakeStepper) SetMicroStepRes(r stepper.MicroStepResolution) error {
	f.record("set_micro_step_res %d", r)
	f.res = r
	return f.failWith
}

func (f *fakeStepper) GetMicroStepRes() (stepper.MicroStepResolution, error) {
	f.record("get_micro_step_res")
	return f.res, f.resErr
}

func (f *fakeStepper) SetActualPosition(pos int32) error {
	f.record("set_actual_position %d", pos)
	f.pos = pos
	return f.failWith
}

func (f *fakeStepper) GetActualPosition() (int32, error) {
	f.record("get_actual_position")
	return f.pos, f.posErr
}

func (f *fakeStepper) IsMoving() (bool, error) {
	f.record("is_moving")
	return false, f.movingErr
}

func (f *fakeStepper) EnableConstantVelocityMode(d stepper.Direction, v uint32) error {
	f.record("enable_constant_velocity_mode %s %d", d, v)
	return f.failWith
}

// devs is a Devices over a slice
type devs []stepper.Device

func (d devs) Lookup(idx int) (stepper.Device, bool) {
	if idx < 0 || idx >= len(d) {
		return nil, false
	}
	return d[idx], true
}

// onlyName supports no capability at all
type onlyName string

func (o onlyName) Name() string { return string(o) }
