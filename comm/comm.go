/*Package comm provides a line oriented connection to remote controllers
reached over RS232 or TCP.

Most usages of this package will boil down to:
	1.  create a RemoteDevice with NewRemoteDevice, passing a serial.Config
		if the controller is on a serial port
	2.  set the Terminators if the controller does not use newlines
	3.  call SendRecv with each telegram; the connection is opened on first
		use and reopened after a transport error

A minimal example is provided below for a controller that responds to "MO?"
with 0 or 1

	type MyController struct {
		*comm.RemoteDevice
	}

	func (c *MyController) Moving() (bool, error) {
		resp, err := c.SendRecv([]byte("MO?"))
		if err != nil {
			return false, err
		}
		return string(resp) == "1", nil
	}
*/
package comm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// DefaultTimeout bounds connecting and each exchange over TCP
const DefaultTimeout = 3 * time.Second

var (
	// ErrNotConnected is generated when Send or Recv is called before Open
	ErrNotConnected = errors.New("not connected to remote")

	// ErrClosed is generated when a RemoteDevice is used after Close
	ErrClosed = errors.New("remote device closed")

	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")
)

// Terminators are the bytes which end each transmitted and received message
type Terminators struct {
	Rx byte
	Tx byte
}

// NewlineTerminators end messages in both directions with '\n'
var NewlineTerminators = Terminators{Rx: '\n', Tx: '\n'}

// RemoteDevice is a connection to one remote controller.
// It is safe for concurrent use; exchanges are serialized.
type RemoteDevice struct {
	Terminators

	// Addr is the TCP host:port, or the serial port name if Serial is set
	Addr string

	// Serial, if not nil, makes the device a serial port
	Serial *serial.Config

	// Timeout bounds connecting and each exchange over TCP
	Timeout time.Duration

	mu     sync.Mutex
	conn   io.ReadWriteCloser
	rd     *bufio.Reader
	closed bool
}

// NewRemoteDevice creates a new RemoteDevice.  serialConf may be nil for a
// TCP device; if not nil its Name is set to addr.
func NewRemoteDevice(addr string, serialConf *serial.Config) *RemoteDevice {
	if serialConf != nil {
		serialConf.Name = addr
	}
	return &RemoteDevice{
		Terminators: NewlineTerminators,
		Addr:        addr,
		Serial:      serialConf,
		Timeout:     DefaultTimeout,
	}
}

// Open the connection if it is not open already
func (rd *RemoteDevice) Open() error {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.openLocked()
}

func (rd *RemoteDevice) openLocked() error {
	if rd.closed {
		return ErrClosed
	}
	if rd.conn != nil {
		return nil
	}
	// controllers do not like being connection thrashed, so back off
	var conn io.ReadWriteCloser
	op := func() error {
		var err error
		if rd.Serial != nil {
			conn, err = serial.OpenPort(rd.Serial)
		} else {
			conn, err = TCPSetup(rd.Addr, rd.timeout())
		}
		return err
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", rd.Addr, err)
	}
	rd.conn = conn
	rd.rd = bufio.NewReader(conn)
	log.WithField("addr", rd.Addr).Debug("connected to remote")
	return nil
}

// Close the connection for good; later exchanges fail with ErrClosed
// instead of reconnecting.  Closing a closed device is not an error.
func (rd *RemoteDevice) Close() error {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.closed = true
	return rd.closeLocked()
}

func (rd *RemoteDevice) closeLocked() error {
	if rd.conn == nil {
		return nil
	}
	err := rd.conn.Close()
	rd.conn, rd.rd = nil, nil
	return err
}

func (rd *RemoteDevice) timeout() time.Duration {
	if rd.Timeout <= 0 {
		return DefaultTimeout
	}
	return rd.Timeout
}

// send writes b and the Tx terminator.  rd.mu must be held.
func (rd *RemoteDevice) send(b []byte) error {
	if rd.conn == nil {
		return ErrNotConnected
	}
	if c, ok := rd.conn.(net.Conn); ok {
		c.SetDeadline(time.Now().Add(rd.timeout()))
	}
	msg := make([]byte, 0, len(b)+1)
	msg = append(append(msg, b...), rd.Tx)
	_, err := rd.conn.Write(msg)
	return err
}

// recv reads one message and strips the Rx terminator.  rd.mu must be held.
func (rd *RemoteDevice) recv() ([]byte, error) {
	if rd.conn == nil {
		return nil, ErrNotConnected
	}
	buf, err := rd.rd.ReadBytes(rd.Rx)
	if err != nil {
		if len(buf) > 0 && err == io.EOF {
			return buf, ErrTerminatorNotFound
		}
		return nil, err
	}
	buf = bytes.TrimSuffix(buf, []byte{rd.Rx})
	// tolerate CRLF from controllers terminating with '\n'
	if rd.Rx == '\n' {
		buf = bytes.TrimSuffix(buf, []byte{'\r'})
	}
	return buf, nil
}

// SendRecv sends a message after appending the Tx terminator, then returns
// the response with the Rx terminator stripped.  The connection is opened if
// needed, and dropped after a transport error so the next call reconnects.
func (rd *RemoteDevice) SendRecv(b []byte) ([]byte, error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if err := rd.openLocked(); err != nil {
		return nil, err
	}
	err := rd.send(b)
	if err == nil {
		var resp []byte
		resp, err = rd.recv()
		if err == nil {
			return resp, nil
		}
	}
	log.WithFields(log.Fields{"addr": rd.Addr, "err": err}).Warn("exchange with remote failed, dropping connection")
	rd.closeLocked()
	return nil, err
}

// TCPSetup opens a new TCP connection with a timeout on connect
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}
