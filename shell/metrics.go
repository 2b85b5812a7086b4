package shell

import (
	"github.com/nasa-jpl/stepperctl/stepper"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts dispatched commands and notifier events.
// A nil *Metrics is valid and counts nothing.
type Metrics struct {
	commands *prometheus.CounterVec
	events   *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stepperctl",
			Name:      "commands_total",
			Help:      "Stepper shell commands dispatched, by command and result.",
		}, []string{"command", "result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stepperctl",
			Name:      "events_total",
			Help:      "Terminal motion events reported by the completion notifier.",
		}, []string{"event"}),
	}
	for _, c := range []prometheus.Collector{m.commands, m.events} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) command(name string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(name, result).Inc()
}

func (m *Metrics) event(ev stepper.Event) {
	if m == nil {
		return
	}
	label := ev.String()
	if !ev.Known() {
		label = "unknown"
	}
	m.events.WithLabelValues(label).Inc()
}
