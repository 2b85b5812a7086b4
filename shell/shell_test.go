package shell

import (
	"errors"
	"testing"
	"time"

	"github.com/nasa-jpl/stepperctl/stepper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShell(t *testing.T, async bool, d ...stepper.Device) (*Shell, *Recorder, chan stepper.Event) {
	t.Helper()
	rec := &Recorder{}
	events := make(chan stepper.Event, 8)
	var n *Notifier
	if async {
		n = NewNotifier(rec, nil)
		n.OnEvent = func(ev stepper.Event) { events <- ev }
		t.Cleanup(n.Close)
	}
	return New(devs(d), n, nil), rec, events
}

func waitEvent(t *testing.T, events chan stepper.Event) stepper.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event reported by the notifier")
	}
	return 0
}

func TestMoveWithoutAsyncSupport(t *testing.T) {
	dev := &fakeStepper{name: "dev0"}
	sh, rec, _ := newTestShell(t, true, dev)

	err := sh.ExecLine(rec, "stepper move dev0 400")
	require.NoError(t, err)
	assert.Equal(t, []string{"move 400 signal=false"}, dev.Calls())
	assert.False(t, sh.Notifier().Started(), "no background activity for a synchronous device")
	assert.Empty(t, rec.Texts(Error))
}

func TestMoveWithAsyncSupportPassesSignal(t *testing.T) {
	dev := &fakeStepper{name: "dev0", async: true}
	sh, rec, _ := newTestShell(t, true, dev)

	require.NoError(t, sh.Exec(rec, "move", "dev0", "-12"))
	assert.Equal(t, []string{"move -12 signal=true"}, dev.Calls())
	assert.Same(t, sh.Notifier().Signal(), dev.sig)
	assert.True(t, sh.Notifier().Started())
}

func TestShellWithoutNotifierIsSynchronous(t *testing.T) {
	dev := &fakeStepper{name: "dev0", async: true}
	sh, rec, _ := newTestShell(t, false, dev)
	require.NoError(t, sh.Exec(rec, "set_target_position", "dev0", "5"))
	assert.Equal(t, []string{"set_target_position 5 signal=false"}, dev.Calls())
}

func TestSetMicroStepRes(t *testing.T) {
	dev := &fakeStepper{name: "dev0"}
	sh, rec, _ := newTestShell(t, false, dev)

	require.NoError(t, sh.Exec(rec, "set_micro_step_res", "dev0", "64"))
	assert.Equal(t, stepper.MicroStep64, dev.res)

	err := sh.Exec(rec, "set_micro_step_res", "dev0", "7")
	assert.ErrorIs(t, err, stepper.ErrInvalid)
	assert.Equal(t, []string{"set_micro_step_res 64"}, dev.Calls(), "unmapped token must not reach the device")
	assert.Contains(t, rec.Texts(Error), "invalid microstep value 7")
}

func TestInvalidSymbolNeverInvokesCapability(t *testing.T) {
	dev := &fakeStepper{name: "dev0"}
	sh, rec, _ := newTestShell(t, false, dev)

	for _, line := range []string{
		"stepper enable_constant_velocity_mode dev0 sideways 200",
		"stepper enable_constant_velocity_mode dev0 Positive 200",
		"stepper set_micro_step_res dev0 3",
		"stepper set_micro_step_res dev0 512",
		// the symbol is checked before the device is resolved
		"stepper set_micro_step_res nodev 9",
	} {
		err := sh.ExecLine(rec, line)
		var se SymbolError
		assert.True(t, errors.As(err, &se), line)
		assert.Equal(t, -22, stepper.Code(err), line)
	}
	assert.Empty(t, dev.Calls())
	assert.Contains(t, rec.Texts(Error), "invalid direction sideways")
	for _, l := range rec.Texts(Error) {
		assert.NotContains(t, l, "not found")
	}
}

func TestUnknownDeviceNeverInvokesCapability(t *testing.T) {
	dev := &fakeStepper{name: "dev0", async: true}
	sh, rec, _ := newTestShell(t, true, dev)

	for _, argv := range [][]string{
		{"enable", "dev1", "on"},
		{"move", "dev00", "400"},
		{"set_max_velocity", "DEV0", "10"},
		{"set_micro_step_res", "dev", "2"},
		{"get_micro_step_res", "x"},
		{"set_actual_position", "x", "1"},
		{"get_actual_position", "x"},
		{"set_target_position", "x", "1000"},
		{"enable_constant_velocity_mode", "x", "positive", "200"},
		{"info", "x"},
	} {
		err := sh.Exec(rec, argv...)
		assert.ErrorIs(t, err, stepper.ErrNoDevice, "%v", argv)
		assert.Contains(t, rec.Texts(Error), "Stepper device "+argv[1]+" not found")
	}
	assert.Empty(t, dev.Calls())
	assert.False(t, sh.Notifier().Started(), "an unresolved device must not start the notifier")
}

func TestArgumentParseFailsBeforeResolution(t *testing.T) {
	dev := &fakeStepper{name: "dev0"}
	sh, rec, _ := newTestShell(t, false, dev)

	for _, argv := range [][]string{
		{"enable", "nodev", "maybe"},
		{"move", "nodev", "4x"},
		{"set_max_velocity", "nodev", "-5"},
		{"set_actual_position", "nodev", "1.5"},
		{"set_target_position", "nodev", ""},
		{"enable_constant_velocity_mode", "nodev", "positive", "fast"},
	} {
		err := sh.Exec(rec, argv...)
		var ae ArgumentError
		assert.True(t, errors.As(err, &ae), "%v", argv)
	}
	for _, l := range rec.Texts(Error) {
		assert.NotContains(t, l, "not found")
	}
	assert.Empty(t, dev.Calls())
}

func TestArgCountRejectedBeforeHandler(t *testing.T) {
	dev := &fakeStepper{name: "dev0"}
	sh, rec, _ := newTestShell(t, false, dev)

	for _, argv := range [][]string{
		{"move", "dev0"},
		{"move", "dev0", "1", "2"},
		{"info"},
		{"info", "dev0", "extra"},
		{"enable_constant_velocity_mode", "dev0", "positive"},
	} {
		assert.ErrorIs(t, sh.Exec(rec, argv...), ErrArgCount, "%v", argv)
	}
	assert.Empty(t, dev.Calls())

	assert.ErrorIs(t, sh.Exec(rec, "spin", "dev0"), ErrUnknownCommand)
	assert.Equal(t, -8, stepper.Code(ErrUnknownCommand))
	assert.ErrorIs(t, sh.ExecLine(rec, "motor move dev0 1"), ErrUnknownCommand)
	assert.NoError(t, sh.ExecLine(rec, "   "))
}

func TestDriverFailureIsReportedAndReturned(t *testing.T) {
	dev := &fakeStepper{name: "dev0", failWith: stepper.ErrBusy}
	sh, rec, _ := newTestShell(t, false, dev)

	err := sh.Exec(rec, "enable", "dev0", "off")
	assert.ErrorIs(t, err, stepper.ErrBusy)
	assert.Equal(t, -16, stepper.Code(err))
	assert.Equal(t, []string{"Error: -16"}, rec.Texts(Error))

	// the session is still usable
	dev.failWith = nil
	rec.Reset()
	require.NoError(t, sh.Exec(rec, "set_max_velocity", "dev0", "200"))
	assert.Empty(t, rec.Texts(Error))
	assert.Equal(t, []string{"enable false", "set_max_velocity 200"}, dev.Calls())
}

func TestMissingCapabilityDegrades(t *testing.T) {
	sh, rec, _ := newTestShell(t, true, onlyName("bare"))

	err := sh.Exec(rec, "move", "bare", "10")
	assert.ErrorIs(t, err, stepper.ErrNotSupported)
	assert.Equal(t, []string{"Error: -88"}, rec.Texts(Error))
	assert.False(t, sh.Notifier().Started())

	rec.Reset()
	require.NoError(t, sh.Exec(rec, "info", "bare"))
	assert.Len(t, rec.Texts(Warn), 3)
}

func TestQueryCommands(t *testing.T) {
	dev := &fakeStepper{name: "dev0", res: stepper.MicroStep16, pos: -300}
	sh, rec, _ := newTestShell(t, false, dev)

	require.NoError(t, sh.Exec(rec, "get_actual_position", "dev0"))
	require.NoError(t, sh.Exec(rec, "get_micro_step_res", "dev0"))
	assert.Equal(t, []string{"Actual Position: -300", "Micro-step Resolution: 16"}, rec.Texts(Normal))

	rec.Reset()
	dev.posErr = stepper.ErrIO
	err := sh.Exec(rec, "get_actual_position", "dev0")
	assert.ErrorIs(t, err, stepper.ErrIO)
	assert.Equal(t, []string{"Failed to get actual position: -5"}, rec.Texts(Warn))
	assert.Empty(t, rec.Texts(Error), "query failures are warnings")
}

func TestInfoQueriesIndependently(t *testing.T) {
	dev := &fakeStepper{name: "dev0", res: stepper.MicroStep32, posErr: stepper.ErrIO}
	sh, rec, _ := newTestShell(t, false, dev)

	require.NoError(t, sh.Exec(rec, "info", "dev0"))
	assert.Equal(t, []string{"get_actual_position", "get_micro_step_res", "is_moving"}, dev.Calls())
	assert.Equal(t, []string{"Failed to get actual position: -5"}, rec.Texts(Warn))
	assert.Equal(t, []string{
		"Stepper Info:",
		"Device: dev0",
		"Micro-step Resolution: 32",
		"Is Moving: No",
	}, rec.Texts(Normal))

	rec.Reset()
	dev.posErr = nil
	dev.resErr = stepper.ErrNotSupported
	dev.movingErr = stepper.ErrIO
	require.NoError(t, sh.Exec(rec, "info", "dev0"))
	assert.Equal(t, []string{
		"Failed to get micro-step resolution: -88",
		"Failed to check if the motor is moving: -5",
	}, rec.Texts(Warn))
	assert.Contains(t, rec.Texts(Normal), "Actual Position: 0")
}

func TestRemainingCommandsMapToCapabilities(t *testing.T) {
	dev := &fakeStepper{name: "dev0"}
	sh, rec, _ := newTestShell(t, false, dev)

	for _, line := range []string{
		"stepper enable dev0 on",
		"stepper set_actual_position dev0 -7",
		"stepper enable_constant_velocity_mode dev0 negative 200",
		"stepper enable_constant_velocity_mode dev0 positive 0",
	} {
		require.NoError(t, sh.ExecLine(rec, line), line)
	}
	assert.Equal(t, []string{
		"enable true",
		"set_actual_position -7",
		"enable_constant_velocity_mode negative 200",
		"enable_constant_velocity_mode positive 0",
	}, dev.Calls())
}

func TestAsyncTargetPositionReportsOnce(t *testing.T) {
	dev := &fakeStepper{name: "dev0", async: true}
	sh, rec, events := newTestShell(t, true, dev)

	require.NoError(t, sh.ExecLine(rec, "stepper set_target_position dev0 1000"))
	require.NotNil(t, dev.sig)
	require.NoError(t, dev.sig.Raise(stepper.StepsCompleted))

	assert.Equal(t, stepper.StepsCompleted, waitEvent(t, events))
	assert.Equal(t, []string{"Stepper: All steps completed."}, rec.Texts(Info))
	ok, _ := sh.Notifier().Signal().Check()
	assert.False(t, ok, "the signal is empty after the report")

	select {
	case ev := <-events:
		t.Fatalf("unexpected second report %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifierStartsOnce(t *testing.T) {
	dev := &fakeStepper{name: "dev0", async: true}
	sh, rec, events := newTestShell(t, true, dev)
	n := sh.Notifier()
	assert.False(t, n.Started())

	require.NoError(t, sh.Exec(rec, "move", "dev0", "10"))
	assert.True(t, n.Started())
	require.NoError(t, dev.sig.Raise(stepper.RightEndStopDetected))
	waitEvent(t, events)

	require.NoError(t, sh.Exec(rec, "set_target_position", "dev0", "0"))
	assert.True(t, n.Started())
	require.NoError(t, dev.sig.Raise(stepper.SensorlessStallDetected))
	waitEvent(t, events)

	// a second task would race the first for each event and print it twice
	assert.Equal(t, []string{
		"Stepper: Right limit switch pressed.",
		"Stepper: Sensorless stall detected.",
	}, rec.Texts(Info))
}

func TestNotifierClassifiesAllEvents(t *testing.T) {
	rec := &Recorder{}
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	n := NewNotifier(rec, m)
	events := make(chan stepper.Event, 1)
	n.OnEvent = func(ev stepper.Event) { events <- ev }
	defer n.Close()
	require.NoError(t, n.EnsureStarted())
	require.NoError(t, n.EnsureStarted())

	for _, ev := range []stepper.Event{
		stepper.StepsCompleted,
		stepper.SensorlessStallDetected,
		stepper.Event(42), // unknown, the task must survive it
		stepper.LeftEndStopDetected,
		stepper.RightEndStopDetected,
	} {
		require.NoError(t, n.Signal().Raise(ev))
		assert.Equal(t, ev, waitEvent(t, events))
	}
	assert.Equal(t, []string{
		"Stepper: All steps completed.",
		"Stepper: Sensorless stall detected.",
		"Stepper: Left limit switch pressed.",
		"Stepper: Right limit switch pressed.",
	}, rec.Texts(Info))
	assert.Equal(t, []string{"Stepper: Unknown signal received."}, rec.Texts(Error))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("steps-completed")))
}

func TestClosedNotifierCannotStart(t *testing.T) {
	n := NewNotifier(&Recorder{}, nil)
	n.Close()
	assert.ErrorIs(t, n.EnsureStarted(), stepper.ErrCanceled)
	assert.False(t, n.Started())
}

func TestCommandMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	dev := &fakeStepper{name: "dev0"}
	sh := New(devs{dev}, nil, m)
	rec := &Recorder{}
	sh.Exec(rec, "move", "dev0", "1")
	sh.Exec(rec, "move", "nodev", "1")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("move", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("move", "error")))
}

func TestComplete(t *testing.T) {
	sh, _, _ := newTestShell(t, false, &fakeStepper{name: "dev0"}, &fakeStepper{name: "dev1"}, onlyName("x"))

	assert.Equal(t, []string{"stepper"}, sh.Complete("st"))
	assert.Equal(t, []string{"stepper", "help"}, sh.Complete(""))
	assert.Equal(t, []string{"set_max_velocity", "set_micro_step_res", "set_actual_position", "set_target_position"},
		sh.Complete("stepper set_"))
	assert.Len(t, sh.Complete("stepper "), 10)
	assert.Equal(t, []string{"dev0", "dev1"}, sh.Complete("stepper move de"))
	assert.Equal(t, []string{"dev0", "dev1", "x"}, sh.Complete("stepper info "))
	assert.Equal(t, []string{"16", "128"}, sh.Complete("stepper set_micro_step_res dev0 1")[1:3])
	assert.Equal(t, []string{"positive", "negative"}, sh.Complete("stepper enable_constant_velocity_mode x "))
	assert.Nil(t, sh.Complete("stepper move dev0 "))
	assert.Nil(t, sh.Complete("stepper nosuch "))
	assert.Nil(t, sh.Complete("help me "))
	assert.Equal(t, "set_", CommonPrefix(sh.Complete("stepper set_")))
}
