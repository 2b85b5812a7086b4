package shell

import (
	"fmt"
	"strconv"

	"github.com/nasa-jpl/stepperctl/stepper"
)

// ArgumentError is generated when a positional argument cannot be parsed
// as its declared type
type ArgumentError struct {
	Value string
	Type  string
	Err   error
}

func (e ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s, expected %s", e.Value, e.Type)
}

// Unwrap makes ArgumentError an EINVAL
func (e ArgumentError) Unwrap() error {
	return stepper.ErrInvalid
}

// parseBool accepts on/off, enable/disable, true/false (lower case only) or
// a base 10 unsigned integer, non-zero meaning true
func parseBool(s string) (bool, error) {
	switch s {
	case "on", "enable", "true":
		return true, nil
	case "off", "disable", "false":
		return false, nil
	}
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return false, ArgumentError{Value: s, Type: "on/off", Err: err}
	}
	return u != 0, nil
}

// parseInt32 parses a base 10 signed 32 bit integer
func parseInt32(s string) (int32, error) {
	i, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, ArgumentError{Value: s, Type: "signed integer", Err: err}
	}
	return int32(i), nil
}

// parseUint32 parses a base 10 unsigned 32 bit integer
func parseUint32(s string) (uint32, error) {
	u, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, ArgumentError{Value: s, Type: "unsigned integer", Err: err}
	}
	return uint32(u), nil
}
