package serialstep

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/stepperctl/comm"
	"github.com/nasa-jpl/stepperctl/stepper"
)

// fakeController implements the controller side of the protocol for one motor
type fakeController struct {
	mu       sync.Mutex
	received []string

	enabled   bool
	pos       int32
	target    int32
	res       int
	pollsLeft int
	lastEvent int

	movePolls int // MO? answers of 1 per motion
	endWith   int // event reported by EV? after a motion
}

func (f *fakeController) handle(msg string) string {
	body, err := unframe(msg)
	if err != nil {
		return "ERR 5"
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, body)
	fields := strings.Fields(body)
	arg := func(i int) int {
		if len(fields) <= i {
			return 0
		}
		v, _ := strconv.Atoi(fields[i])
		return v
	}
	switch fields[0] {
	case "EN":
		f.enabled = arg(1) == 1
	case "MR", "MA":
		if !f.enabled {
			return "ERR 3"
		}
		if f.pollsLeft > 0 {
			return "ERR 2"
		}
		f.target = int32(arg(1))
		if fields[0] == "MR" {
			f.target += f.pos
		}
		f.pollsLeft = f.movePolls
		if f.pollsLeft == 0 {
			f.pos, f.lastEvent = f.target, f.endWith
		}
	case "MO?":
		if f.pollsLeft > 0 {
			f.pollsLeft--
			if f.pollsLeft == 0 {
				f.pos, f.lastEvent = f.target, f.endWith
			}
			return "=1"
		}
		return "=0"
	case "EV?":
		return "=" + strconv.Itoa(f.lastEvent)
	case "VM":
		if arg(1) <= 0 {
			return "ERR 1"
		}
	case "MS":
		if !stepper.MicroStepResolution(arg(1)).Valid() {
			return "ERR 1"
		}
		f.res = arg(1)
	case "MS?":
		return "=" + strconv.Itoa(f.res)
	case "PA":
		f.pos = int32(arg(1))
	case "PA?":
		return "=" + strconv.Itoa(int(f.pos))
	case "CV", "ST":
	default:
		return "ERR 4"
	}
	return "OK"
}

func (f *fakeController) Received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func (f *fakeController) serve(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				sc := bufio.NewScanner(conn)
				for sc.Scan() {
					conn.Write([]byte(frame(f.handle(sc.Text())) + "\n"))
				}
			}()
		}
	}()
	return ln.Addr().String()
}

func newTestController(t *testing.T, f *fakeController, async bool) *Controller {
	t.Helper()
	c := NewController("motor", f.serve(t), false, 0, async)
	c.PollInterval = time.Millisecond
	t.Cleanup(func() { c.Close() })
	return c
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, uint16(0x31C3), checksum([]byte("123456789")))
}

func TestTelegramFraming(t *testing.T) {
	cmd, err := commandFromAlias("move-rel")
	require.NoError(t, err)
	tele, err := makeTelegram(cmd, "400")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tele, "MR 400*"))
	body, err := unframe(tele)
	require.NoError(t, err)
	assert.Equal(t, "MR 400", body)

	cmd, _ = commandFromAlias("get-resolution")
	tele, err = makeTelegram(cmd)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tele, "MS?*"))
	_, err = makeTelegram(cmd, "1")
	assert.ErrorIs(t, err, stepper.ErrInvalid)

	_, err = commandFromAlias("warp")
	assert.ErrorIs(t, err, stepper.ErrNotSupported)
}

func TestParseResponse(t *testing.T) {
	val, err := parseResponse(frame("OK"))
	require.NoError(t, err)
	assert.Equal(t, "", val)

	val, err = parseResponse(frame("=-12"))
	require.NoError(t, err)
	assert.Equal(t, "-12", val)

	_, err = parseResponse(frame("ERR 2"))
	assert.ErrorIs(t, err, stepper.ErrBusy)
	assert.Equal(t, ControllerError{Code: 2}, err)
	assert.True(t, isControllerError(err))
	_, err = parseResponse(frame("ERR 99"))
	assert.ErrorIs(t, err, stepper.ErrIO)

	_, err = parseResponse("OK*0000")
	assert.ErrorIs(t, err, ErrCRCMismatch)
	_, err = parseResponse("OK")
	assert.ErrorIs(t, err, ErrBadFrame)
	_, err = parseResponse(frame("HELLO"))
	assert.ErrorIs(t, err, ErrBadFrame)
	assert.False(t, isControllerError(err))
}

func TestSynchronousMoveWaitsForIdle(t *testing.T) {
	f := &fakeController{enabled: true, movePolls: 3}
	c := newTestController(t, f, false)
	assert.False(t, c.ReportsEvents())
	assert.Equal(t, "motor", c.Name())

	require.NoError(t, c.Move(400, nil))
	pos, err := c.GetActualPosition()
	require.NoError(t, err)
	assert.Equal(t, int32(400), pos)
	assert.Equal(t, []string{"MR 400", "MO?", "MO?", "MO?", "MO?", "EV?", "PA?"}, f.Received())
}

func TestSynchronousMoveEndedByStall(t *testing.T) {
	f := &fakeController{enabled: true, movePolls: 1, endWith: int(stepper.SensorlessStallDetected)}
	c := newTestController(t, f, false)
	err := c.SetTargetPosition(-20, nil)
	assert.ErrorIs(t, err, stepper.ErrCanceled)
}

func TestAsyncMoveRaisesEvent(t *testing.T) {
	for _, ev := range []stepper.Event{stepper.StepsCompleted, stepper.RightEndStopDetected} {
		f := &fakeController{enabled: true, movePolls: 2, endWith: int(ev)}
		c := newTestController(t, f, true)
		assert.True(t, c.ReportsEvents())
		sig := stepper.NewSignal()

		require.NoError(t, c.SetTargetPosition(1000, sig))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		got, err := sig.Wait(ctx)
		cancel()
		require.NoError(t, err)
		assert.Equal(t, ev, got)
		assert.Equal(t, "MA 1000", f.Received()[0])
	}
}

func TestControllerErrorsCarryStatus(t *testing.T) {
	f := &fakeController{movePolls: 5}
	c := newTestController(t, f, true)
	sig := stepper.NewSignal()

	err := c.Move(10, sig)
	assert.ErrorIs(t, err, stepper.ErrCanceled)
	assert.Equal(t, -140, stepper.Code(err))
	ok, _ := sig.Check()
	assert.False(t, ok)

	require.NoError(t, c.Enable(true))
	f.mu.Lock()
	f.pollsLeft = 100
	f.mu.Unlock()
	assert.ErrorIs(t, c.Move(10, sig), stepper.ErrBusy)

	_, err = c.RawCommand("nope")
	assert.ErrorIs(t, err, stepper.ErrNotSupported)
}

func TestParametersAndQueries(t *testing.T) {
	f := &fakeController{enabled: true, res: 16}
	c := newTestController(t, f, false)

	assert.ErrorIs(t, c.SetMaxVelocity(0), stepper.ErrInvalid)
	assert.ErrorIs(t, c.SetMicroStepRes(3), stepper.ErrInvalid)
	assert.Empty(t, f.Received(), "invalid parameters are refused before transmission")

	require.NoError(t, c.SetMaxVelocity(200))
	require.NoError(t, c.SetMicroStepRes(stepper.MicroStep64))
	res, err := c.GetMicroStepRes()
	require.NoError(t, err)
	assert.Equal(t, stepper.MicroStep64, res)

	require.NoError(t, c.SetActualPosition(-5))
	pos, err := c.GetActualPosition()
	require.NoError(t, err)
	assert.Equal(t, int32(-5), pos)

	moving, err := c.IsMoving()
	require.NoError(t, err)
	assert.False(t, moving)

	require.NoError(t, c.EnableConstantVelocityMode(stepper.Positive, 200))
	require.NoError(t, c.EnableConstantVelocityMode(stepper.Negative, 0))
	recv := f.Received()
	assert.Equal(t, []string{"CV 1 200", "ST"}, recv[len(recv)-2:])
}

func TestLinkFailureIsIO(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	c := NewController("gone", addr, false, 0, false)
	_, err = c.GetActualPosition()
	assert.ErrorIs(t, err, stepper.ErrIO)
}

func TestRaw(t *testing.T) {
	f := &fakeController{res: 8}
	c := newTestController(t, f, false)
	resp, err := c.Raw("MS?")
	require.NoError(t, err)
	assert.Equal(t, "=8", resp)
	resp, err = c.Raw("XX")
	require.NoError(t, err)
	assert.Equal(t, "ERR 4", resp)
}

func TestCloseStopsFollowingMotion(t *testing.T) {
	f := &fakeController{enabled: true, movePolls: 1000000}
	c := newTestController(t, f, true)
	sig := stepper.NewSignal()
	require.NoError(t, c.Move(10, sig))
	require.Eventually(t, func() bool { return len(f.Received()) > 2 }, time.Second, time.Millisecond)

	require.NoError(t, c.Close())
	time.Sleep(20 * time.Millisecond)
	n := len(f.Received())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, len(f.Received()), "no polls after close")
	ok, _ := sig.Check()
	assert.False(t, ok)

	_, err := c.GetActualPosition()
	assert.ErrorIs(t, err, comm.ErrClosed)
	assert.ErrorIs(t, err, stepper.ErrIO)
}
