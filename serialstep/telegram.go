package serialstep

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/snksoft/crc"

	"github.com/nasa-jpl/stepperctl/stepper"
)

// telegrams are ASCII, CMD[ ARG]...*CRC, where CRC is the CRC-16/XMODEM of
// everything before the '*' as four upper case hex digits.  Responses use the
// same framing with a body of OK, =value, or ERR n.

const crcSep = "*"

var (
	crcTable = crc.NewTable(crc.XMODEM)

	// ErrBadFrame is generated when a response has no CRC or a malformed body
	ErrBadFrame = fmt.Errorf("malformed response: %w", stepper.ErrIO)

	// ErrCRCMismatch is generated when the CRC of a response is wrong
	ErrCRCMismatch = fmt.Errorf("response CRC mismatch: %w", stepper.ErrIO)

	commands = []Command{
		{Cmd: "EN", Alias: "enable", Description: "enable or disable the driver stage", Args: 1},
		{Cmd: "MR", Alias: "move-rel", Description: "move by a number of micro-steps", Args: 1},
		{Cmd: "MA", Alias: "move-abs", Description: "move to an absolute position", Args: 1},
		{Cmd: "VM", Alias: "set-velocity", Description: "set the maximum velocity", Args: 1},
		{Cmd: "MS", Alias: "set-resolution", Description: "set the micro-step resolution", Args: 1},
		{Cmd: "MS", Alias: "get-resolution", Description: "get the micro-step resolution", IsReadOnly: true},
		{Cmd: "PA", Alias: "set-position", Description: "redefine the actual position", Args: 1},
		{Cmd: "PA", Alias: "get-position", Description: "get the actual position", IsReadOnly: true},
		{Cmd: "MO", Alias: "moving", Description: "get 1 while the motor is moving", IsReadOnly: true},
		{Cmd: "CV", Alias: "const-velocity", Description: "run at constant velocity in a direction", Args: 2},
		{Cmd: "EV", Alias: "last-event", Description: "get the event which ended the last motion", IsReadOnly: true},
		{Cmd: "ST", Alias: "stop", Description: "stop motion"},
	}

	// ErrorCodes maps controller error codes to friendly strings
	ErrorCodes = map[int]string{
		1: "PARAMETER OUT OF RANGE",
		2: "COMMAND NOT ALLOWED DURING MOTION",
		3: "MOTOR NOT ENABLED",
		4: "COMMAND DOES NOT EXIST",
		5: "CRC MISMATCH",
	}

	// errorKinds maps controller error codes to the status code reported to the operator
	errorKinds = map[int]error{
		1: stepper.ErrInvalid,
		2: stepper.ErrBusy,
		3: stepper.ErrCanceled,
		4: stepper.ErrNotSupported,
		5: stepper.ErrIO,
	}
)

// Command describes a command
type Command struct {
	Cmd         string `json:"cmd"`
	Alias       string `json:"alias"`
	Description string `json:"description"`
	Args        int    `json:"args"`
	IsReadOnly  bool   `json:"isReadOnly"`
}

// ErrAliasNotFound is generated when an alias is unknown to the serialstep module
type ErrAliasNotFound struct {
	Alias string
}

func (e ErrAliasNotFound) Error() string {
	return fmt.Sprintf("alias %s not found", e.Alias)
}

// Unwrap makes ErrAliasNotFound an ENOSYS
func (e ErrAliasNotFound) Unwrap() error {
	return stepper.ErrNotSupported
}

// ControllerError is an ERR n response
type ControllerError struct {
	Code int
}

func (e ControllerError) Error() string {
	if s, ok := ErrorCodes[e.Code]; ok {
		return fmt.Sprintf("controller error %d: %s", e.Code, s)
	}
	return fmt.Sprintf("controller error %d", e.Code)
}

// Unwrap returns the status code for the controller error
func (e ControllerError) Unwrap() error {
	if err, ok := errorKinds[e.Code]; ok {
		return err
	}
	return stepper.ErrIO
}

// Commands returns the command table
func Commands() []Command {
	return commands
}

func commandFromAlias(alias string) (Command, error) {
	for _, c := range commands {
		if c.Alias == alias {
			return c, nil
		}
	}
	return Command{}, ErrAliasNotFound{alias}
}

// checksum computes the CRC of buf
func checksum(buf []byte) uint16 {
	crcUint := crcTable.InitCrc()
	crcUint = crcTable.UpdateCrc(crcUint, buf)
	return crcTable.CRC16(crcUint)
}

// frame appends the CRC to a telegram or response body
func frame(body string) string {
	return fmt.Sprintf("%s%s%04X", body, crcSep, checksum([]byte(body)))
}

// unframe verifies the CRC of a message and returns its body
func unframe(msg string) (string, error) {
	idx := strings.LastIndex(msg, crcSep)
	if idx == -1 || len(msg)-idx-1 != 4 {
		return "", ErrBadFrame
	}
	body, sum := msg[:idx], msg[idx+1:]
	want, err := strconv.ParseUint(sum, 16, 16)
	if err != nil {
		return "", ErrBadFrame
	}
	if uint16(want) != checksum([]byte(body)) {
		return "", ErrCRCMismatch
	}
	return body, nil
}

// makeTelegram builds the framed telegram for c
func makeTelegram(c Command, args ...string) (string, error) {
	if len(args) != c.Args {
		return "", fmt.Errorf("%s takes %d arguments, got %d: %w", c.Alias, c.Args, len(args), stepper.ErrInvalid)
	}
	body := c.Cmd
	if c.IsReadOnly {
		body += "?"
	}
	if len(args) > 0 {
		body += " " + strings.Join(args, " ")
	}
	return frame(body), nil
}

// parseResponse returns the value of an =value response, "" for OK, or the
// ControllerError of an ERR n response
func parseResponse(msg string) (string, error) {
	body, err := unframe(msg)
	if err != nil {
		return "", err
	}
	switch {
	case body == "OK":
		return "", nil
	case strings.HasPrefix(body, "="):
		return body[1:], nil
	case strings.HasPrefix(body, "ERR "):
		code, err := strconv.Atoi(strings.TrimPrefix(body, "ERR "))
		if err != nil {
			return "", ErrBadFrame
		}
		return "", ControllerError{Code: code}
	}
	return "", ErrBadFrame
}

// isControllerError is true if err came from the controller and not the link
func isControllerError(err error) bool {
	var ce ControllerError
	return errors.As(err, &ce)
}
