// Package serialstep drives stepper motor controllers which speak a CRC
// protected ASCII line protocol over RS232 or TCP.
package serialstep

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"

	"github.com/nasa-jpl/stepperctl/comm"
	"github.com/nasa-jpl/stepperctl/stepper"
)

const (
	// DefaultPollInterval is the period of MO? queries while waiting for a motion to end
	DefaultPollInterval = 20 * time.Millisecond

	// maxPollErrors is the number of consecutive link errors tolerated while waiting
	maxPollErrors = 3
)

// makeSerConf makes a new serial.Config with correct parity, baud, etc, set.
func makeSerConf(addr string, baud int) *serial.Config {
	if baud == 0 {
		baud = 115200
	}
	return &serial.Config{
		Name:        addr,
		Baud:        baud,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 3 * time.Second}
}

// Controller is one motor on a line protocol controller
type Controller struct {
	*comm.RemoteDevice

	name  string
	async bool

	// PollInterval is the period of MO? queries while waiting for a motion to end
	PollInterval time.Duration
}

// NewController returns a fully configured new controller.  If isSerial is
// true, addr is a serial port and baud its rate (0 for 115200), else addr is
// a TCP host:port.  An async controller reports terminal events on the
// signal passed with each motion; otherwise motions block until they end.
func NewController(name, addr string, isSerial bool, baud int, async bool) *Controller {
	var conf *serial.Config
	if isSerial {
		conf = makeSerConf(addr, baud)
	}
	return &Controller{
		RemoteDevice: comm.NewRemoteDevice(addr, conf),
		name:         name,
		async:        async,
		PollInterval: DefaultPollInterval,
	}
}

// Name returns the device name
func (c *Controller) Name() string {
	return c.name
}

// ReportsEvents returns true if the controller was created async
func (c *Controller) ReportsEvents() bool {
	return c.async
}

// RawCommand sends the command with the given alias and returns the value of
// the response, "" for OK
func (c *Controller) RawCommand(alias string, args ...string) (string, error) {
	cmd, err := commandFromAlias(alias)
	if err != nil {
		return "", err
	}
	tele, err := makeTelegram(cmd, args...)
	if err != nil {
		return "", err
	}
	resp, err := c.SendRecv([]byte(tele))
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", c.name, err, stepper.ErrIO)
	}
	val, err := parseResponse(string(resp))
	if err != nil {
		log.WithFields(log.Fields{"device": c.name, "telegram": tele, "err": err}).Debug("command refused")
	}
	return val, err
}

func (c *Controller) readInt(alias string) (int64, error) {
	val, err := c.RawCommand(alias)
	if err != nil {
		return 0, err
	}
	i, err := strconv.ParseInt(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s returned %q: %w", alias, val, ErrBadFrame)
	}
	return i, nil
}

func itoa(i int64) string {
	return strconv.FormatInt(i, 10)
}

// Enable powers the driver stage on or off
func (c *Controller) Enable(on bool) error {
	arg := "0"
	if on {
		arg = "1"
	}
	_, err := c.RawCommand("enable", arg)
	return err
}

// Move moves by a relative number of micro-steps
func (c *Controller) Move(steps int32, sig *stepper.Signal) error {
	if _, err := c.RawCommand("move-rel", itoa(int64(steps))); err != nil {
		return err
	}
	return c.follow(sig)
}

// SetTargetPosition moves to an absolute position
func (c *Controller) SetTargetPosition(pos int32, sig *stepper.Signal) error {
	if _, err := c.RawCommand("move-abs", itoa(int64(pos))); err != nil {
		return err
	}
	return c.follow(sig)
}

// SetMaxVelocity sets the velocity in micro-steps per second
func (c *Controller) SetMaxVelocity(velocity uint32) error {
	if velocity == 0 {
		return fmt.Errorf("velocity must be positive: %w", stepper.ErrInvalid)
	}
	_, err := c.RawCommand("set-velocity", itoa(int64(velocity)))
	return err
}

// SetMicroStepRes sets the micro-step resolution
func (c *Controller) SetMicroStepRes(res stepper.MicroStepResolution) error {
	if !res.Valid() {
		return fmt.Errorf("micro-step resolution %d: %w", res, stepper.ErrInvalid)
	}
	_, err := c.RawCommand("set-resolution", itoa(int64(res)))
	return err
}

// GetMicroStepRes returns the micro-step resolution
func (c *Controller) GetMicroStepRes() (stepper.MicroStepResolution, error) {
	i, err := c.readInt("get-resolution")
	if err != nil {
		return 0, err
	}
	res := stepper.MicroStepResolution(i)
	if !res.Valid() {
		return 0, fmt.Errorf("controller reported resolution %d: %w", i, stepper.ErrIO)
	}
	return res, nil
}

// SetActualPosition redefines the actual position
func (c *Controller) SetActualPosition(pos int32) error {
	_, err := c.RawCommand("set-position", itoa(int64(pos)))
	return err
}

// GetActualPosition returns the actual position
func (c *Controller) GetActualPosition() (int32, error) {
	i, err := c.readInt("get-position")
	return int32(i), err
}

// IsMoving returns true while the motor is moving
func (c *Controller) IsMoving() (bool, error) {
	i, err := c.readInt("moving")
	return i != 0, err
}

// EnableConstantVelocityMode runs the motor in direction d.  A velocity of
// zero stops it.
func (c *Controller) EnableConstantVelocityMode(d stepper.Direction, velocity uint32) error {
	if velocity == 0 {
		_, err := c.RawCommand("stop")
		return err
	}
	_, err := c.RawCommand("const-velocity", itoa(int64(d)), itoa(int64(velocity)))
	return err
}

// follow hands the end of the motion just started to sig, or waits for it
func (c *Controller) follow(sig *stepper.Signal) error {
	if sig == nil {
		ev, err := c.waitIdle()
		if err != nil {
			return err
		}
		if ev != stepper.StepsCompleted {
			return fmt.Errorf("motion ended by %s: %w", ev, stepper.ErrCanceled)
		}
		return nil
	}
	go func() {
		ev, err := c.waitIdle()
		if errors.Is(err, comm.ErrClosed) {
			log.WithField("device", c.name).Debug("closed while moving, no longer following")
			return
		}
		if err != nil {
			log.WithFields(log.Fields{"device": c.name, "err": err}).Error("lost track of motion")
			return
		}
		if err := sig.Raise(ev); err != nil {
			log.WithFields(log.Fields{"device": c.name, "event": ev.String()}).
				Warn("previous event not consumed, dropping")
		}
	}()
	return nil
}

// waitIdle polls MO? until the motor stops, then reads the event which
// stopped it with EV?
func (c *Controller) waitIdle() (stepper.Event, error) {
	period := c.PollInterval
	if period <= 0 {
		period = DefaultPollInterval
	}
	tick := time.NewTicker(period)
	defer tick.Stop()
	failures := 0
	for {
		moving, err := c.IsMoving()
		switch {
		case err == nil && !moving:
			ev, err := c.readInt("last-event")
			if err != nil {
				return 0, err
			}
			return stepper.Event(ev), nil
		case err != nil && (isControllerError(err) || errors.Is(err, comm.ErrClosed)):
			return 0, err
		case err != nil:
			failures++
			if failures >= maxPollErrors {
				return 0, err
			}
		default:
			failures = 0
		}
		<-tick.C
	}
}

// Raw sends body as one telegram, adding the CRC, and returns the body of
// the response, e.g. "OK", "=12", or "ERR 2"
func (c *Controller) Raw(body string) (string, error) {
	resp, err := c.SendRecv([]byte(frame(body)))
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", c.name, err, stepper.ErrIO)
	}
	return unframe(string(resp))
}
