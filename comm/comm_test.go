package comm_test

import (
	"bufio"
	"net"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/stepperctl/comm"
)

// lineServer answers each line with the upper cased line and CRLF.
// "bye" makes it hang up.
func lineServer(t *testing.T) (string, *int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	var accepted int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			atomic.AddInt32(&accepted, 1)
			go func() {
				defer conn.Close()
				sc := bufio.NewScanner(conn)
				for sc.Scan() {
					line := sc.Text()
					if line == "bye" {
						return
					}
					conn.Write([]byte(strings.ToUpper(line) + "\r\n"))
				}
			}()
		}
	}()
	return ln.Addr().String(), &accepted
}

func TestSendRecvOpensOnFirstUse(t *testing.T) {
	addr, accepted := lineServer(t)
	rd := comm.NewRemoteDevice(addr, nil)
	defer rd.Close()

	resp, err := rd.SendRecv([]byte("mo?"))
	require.NoError(t, err)
	assert.Equal(t, "MO?", string(resp))
	resp, err = rd.SendRecv([]byte("ev?"))
	require.NoError(t, err)
	assert.Equal(t, "EV?", string(resp))
	assert.Equal(t, int32(1), atomic.LoadInt32(accepted))
}

func TestSendRecvReconnectsAfterHangup(t *testing.T) {
	addr, accepted := lineServer(t)
	rd := comm.NewRemoteDevice(addr, nil)
	defer rd.Close()

	_, err := rd.SendRecv([]byte("bye"))
	assert.Error(t, err)
	resp, err := rd.SendRecv([]byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, "OK", string(resp))
	assert.Equal(t, int32(2), atomic.LoadInt32(accepted))
}

func TestCloseIsIdempotent(t *testing.T) {
	addr, _ := lineServer(t)
	rd := comm.NewRemoteDevice(addr, nil)
	require.NoError(t, rd.Open())
	require.NoError(t, rd.Close())
	require.NoError(t, rd.Close())
}

func TestClosedDeviceDoesNotReconnect(t *testing.T) {
	addr, accepted := lineServer(t)
	rd := comm.NewRemoteDevice(addr, nil)
	_, err := rd.SendRecv([]byte("ok"))
	require.NoError(t, err)
	require.NoError(t, rd.Close())

	_, err = rd.SendRecv([]byte("ok"))
	assert.ErrorIs(t, err, comm.ErrClosed)
	assert.ErrorIs(t, rd.Open(), comm.ErrClosed)
	assert.Equal(t, int32(1), atomic.LoadInt32(accepted))
}

func TestOpenFailsWithoutListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	rd := comm.NewRemoteDevice(addr, nil)
	_, err = rd.SendRecv([]byte("mo?"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}
