package shell

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/nasa-jpl/stepperctl/stepper"
)

// reports maps each terminal event to the line printed for it
var reports = map[stepper.Event]string{
	stepper.StepsCompleted:          "Stepper: All steps completed.",
	stepper.SensorlessStallDetected: "Stepper: Sensorless stall detected.",
	stepper.LeftEndStopDetected:     "Stepper: Left limit switch pressed.",
	stepper.RightEndStopDetected:    "Stepper: Right limit switch pressed.",
}

const unknownReport = "Stepper: Unknown signal received."

// Notifier owns the completion signal shared by every asynchronous command
// and the background task which reports the events raised on it.
//
// The task is started at most once, by the first call to EnsureStarted, and
// then runs until Close.  It is the only reader and the only resetter of the
// signal.
type Notifier struct {
	signal  *stepper.Signal
	out     Printer
	metrics *Metrics

	// OnEvent, if not nil, is called from the background task after each
	// event has been reported.  Set it before the first EnsureStarted.
	OnEvent func(stepper.Event)

	started atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewNotifier returns an idle notifier which reports to out
func NewNotifier(out Printer, m *Metrics) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		signal:  stepper.NewSignal(),
		out:     out,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Signal returns the shared completion signal
func (n *Notifier) Signal() *stepper.Signal {
	return n.signal
}

// Started returns true once the background task has been started
func (n *Notifier) Started() bool {
	return n.started.Load()
}

// EnsureStarted starts the background task if it is not running yet.
// Calls after the first are no-ops.
func (n *Notifier) EnsureStarted() error {
	if n.ctx.Err() != nil {
		return fmt.Errorf("notifier closed: %w", stepper.ErrCanceled)
	}
	if !n.started.CompareAndSwap(false, true) {
		return nil
	}
	// the empty state is established before the first asynchronous command
	// can hand the signal to a driver
	n.signal.Reset()
	n.wg.Add(1)
	go n.loop()
	log.Debug("stepper notifier started")
	return nil
}

// Close stops the background task and waits for it to exit.  It is meant for
// process shutdown; a closed notifier cannot be started again.
func (n *Notifier) Close() {
	n.cancel()
	n.wg.Wait()
}

func (n *Notifier) loop() {
	defer n.wg.Done()
	for {
		ev, err := n.signal.Wait(n.ctx)
		if err != nil {
			return
		}
		n.report(ev)
		n.signal.Reset()
		if n.OnEvent != nil {
			n.OnEvent(ev)
		}
	}
}

func (n *Notifier) report(ev stepper.Event) {
	n.metrics.event(ev)
	msg, ok := reports[ev]
	if !ok {
		log.WithField("result", int(ev)).Warn("stepper notifier received an unknown signal")
		n.out.Error(unknownReport)
		return
	}
	log.WithField("event", ev.String()).Debug("stepper terminal event")
	n.out.Info(msg)
}
