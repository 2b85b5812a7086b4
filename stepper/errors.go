package stepper

import (
	"errors"
	"fmt"
)

// Errno is a status code from the small failure taxonomy drivers report.
// The numbering follows the POSIX errno values; operators see them negated.
type Errno int

const (
	EIO       Errno = 5
	ENOEXEC   Errno = 8
	EBUSY     Errno = 16
	ENODEV    Errno = 19
	EINVAL    Errno = 22
	ENOSYS    Errno = 88
	ENOTSUP   Errno = 134
	ECANCELED Errno = 140
)

var (
	// ErrNoDevice is returned when a name does not match a bound device
	ErrNoDevice error = ENODEV

	// ErrInvalid is returned for a parameter the driver or shell rejects
	ErrInvalid error = EINVAL

	// ErrNotSupported is returned when a driver lacks a capability
	ErrNotSupported error = ENOSYS

	// ErrBusy is returned when the device (or a signal) cannot accept the request now
	ErrBusy error = EBUSY

	// ErrCanceled is returned when a motion request is refused because the motor is disabled
	ErrCanceled error = ECANCELED

	// ErrIO is returned for communication failures with the device
	ErrIO error = EIO

	// errnoText maps codes to friendly strings
	errnoText = map[Errno]string{
		EIO:       "input/output error",
		ENOEXEC:   "exec format error",
		EBUSY:     "device or resource busy",
		ENODEV:    "no such device",
		EINVAL:    "invalid argument",
		ENOSYS:    "function not implemented",
		ENOTSUP:   "not supported",
		ECANCELED: "operation canceled",
	}
)

func (e Errno) Error() string {
	if s, ok := errnoText[e]; ok {
		return s
	}
	return fmt.Sprintf("errno %d", int(e))
}

// Code returns the negative status code for err; 0 if err is nil.
// Errors which do not wrap an Errno are reported as -EIO.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var e Errno
	if errors.As(err, &e) {
		return -int(e)
	}
	return -int(EIO)
}
