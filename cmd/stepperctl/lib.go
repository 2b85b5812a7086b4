package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nasa-jpl/stepperctl/device"
	"github.com/nasa-jpl/stepperctl/generichttp"
	"github.com/nasa-jpl/stepperctl/generichttp/actuator"
	"github.com/nasa-jpl/stepperctl/generichttp/ascii"
	"github.com/nasa-jpl/stepperctl/generichttp/motion"
	"github.com/nasa-jpl/stepperctl/serialstep"
	"github.com/nasa-jpl/stepperctl/server/middleware/locker"
	"github.com/nasa-jpl/stepperctl/shell"
	"github.com/nasa-jpl/stepperctl/sim"
	"github.com/nasa-jpl/stepperctl/stepper"
)

// DeviceSetup describes one stepper device.  Fields not used by a type need
// not be populated in the config file.
type DeviceSetup struct {
	// Name is what the operator types to address the device
	Name string `koanf:"name" yaml:"name"`

	// Type is "sim" for a simulated motor or "serialstep" for a line
	// protocol controller, case insensitive
	Type string `koanf:"type" yaml:"type"`

	// Async makes the device report terminal events to the shell's notifier
	// instead of blocking until the motion ends
	Async bool `koanf:"async" yaml:"async"`

	// Addr holds the network or filesystem address of the controller,
	// e.g. 192.168.100.123:2006 for a device connected to port 6
	// on a digi portserver, or /dev/ttyS4 for an RS232 device on a serial cable
	Addr string `koanf:"addr" yaml:"addr,omitempty"`

	// Serial determines if the connection is serial/RS232 (True) or TCP (False)
	Serial bool `koanf:"serial" yaml:"serial,omitempty"`

	// Baud is the serial baud rate, 115200 if zero
	Baud int `koanf:"baud" yaml:"baud,omitempty"`

	// Enabled powers a simulated driver stage at startup
	Enabled bool `koanf:"enabled" yaml:"enabled,omitempty"`

	// MaxVelocity is the initial velocity of a simulated motor
	MaxVelocity uint32 `koanf:"maxvelocity" yaml:"maxvelocity,omitempty"`

	// Resolution is the initial micro-step resolution of a simulated motor
	Resolution int `koanf:"resolution" yaml:"resolution,omitempty"`

	// LeftEndStop, RightEndStop and StallAt place obstacles in the travel
	// of a simulated motor
	LeftEndStop  *int32 `koanf:"leftendstop" yaml:"leftendstop,omitempty"`
	RightEndStop *int32 `koanf:"rightendstop" yaml:"rightendstop,omitempty"`
	StallAt      *int32 `koanf:"stallat" yaml:"stallat,omitempty"`
}

// Config is a struct that holds the initialization parameters for the
// shell, its devices and its HTTP interface
type Config struct {
	// Addr is the address the run verb listens at
	Addr string `koanf:"addr" yaml:"addr"`

	// Async enables the background notifier.  Without it every device is
	// driven synchronously.
	Async bool `koanf:"async" yaml:"async"`

	// LogLevel is a logrus level, e.g. "info" or "debug"
	LogLevel string `koanf:"loglevel" yaml:"loglevel"`

	// Devices is the list of devices to bind, in enumeration order
	Devices []DeviceSetup `koanf:"devices" yaml:"devices"`
}

// NewDevice constructs the driver described by ds
func NewDevice(ds DeviceSetup) (stepper.Device, error) {
	if ds.Name == "" {
		return nil, fmt.Errorf("device of type %q has no name: %w", ds.Type, stepper.ErrInvalid)
	}
	typ := strings.ToLower(ds.Type)
	switch typ {
	case "sim", "simulator", "mock":
		return sim.New(sim.Config{
			Name:         ds.Name,
			Async:        ds.Async,
			Enabled:      ds.Enabled,
			MaxVelocity:  ds.MaxVelocity,
			Resolution:   stepper.MicroStepResolution(ds.Resolution),
			LeftEndStop:  ds.LeftEndStop,
			RightEndStop: ds.RightEndStop,
			StallAt:      ds.StallAt,
		}), nil
	case "serialstep", "serial-stepper":
		if ds.Addr == "" {
			return nil, fmt.Errorf("device %s has no address: %w", ds.Name, stepper.ErrInvalid)
		}
		return serialstep.NewController(ds.Name, ds.Addr, ds.Serial, ds.Baud, ds.Async), nil
	default:
		return nil, fmt.Errorf("device %s: type %q not understood: %w", ds.Name, ds.Type, stepper.ErrNotSupported)
	}
}

// BuildRegistry binds every configured device, in order
func BuildRegistry(c Config) (*device.Registry, error) {
	reg, err := device.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, ds := range c.Devices {
		dev, err := NewDevice(ds)
		if err != nil {
			return nil, err
		}
		if err := reg.Add(dev); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Env is the shell and what it is wired to
type Env struct {
	Registry *device.Registry
	Shell    *shell.Shell
	Notifier *shell.Notifier
	Metrics  *prometheus.Registry
}

// BuildEnv binds the devices of c and makes a shell over them.  The notifier,
// if c enables it, reports to out.
func BuildEnv(c Config, out shell.Printer) (Env, error) {
	reg, err := BuildRegistry(c)
	if err != nil {
		return Env{}, err
	}
	promReg := prometheus.NewRegistry()
	m, err := shell.NewMetrics(promReg)
	if err != nil {
		return Env{}, err
	}
	var n *shell.Notifier
	if c.Async {
		n = shell.NewNotifier(out, m)
	}
	return Env{
		Registry: reg,
		Shell:    shell.New(reg, n, m),
		Notifier: n,
		Metrics:  promReg,
	}, nil
}

// Close stops the notifier, if any, and hangs up on remote controllers.
// Call it once, at process exit.
func (e Env) Close() {
	if e.Notifier != nil {
		e.Notifier.Close()
	}
	for i := 0; ; i++ {
		dev, ok := e.Registry.Lookup(i)
		if !ok {
			return
		}
		if c, ok := dev.(io.Closer); ok {
			c.Close()
		}
	}
}

// BuildMux constructs a chi mux serving the shell under /shell and the
// per-axis routes under /motion.  The mux serves a special route, /endpoints,
// which returns all routes as JSON.
func BuildMux(e Env) chi.Router {
	// make the root handler
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	// one lock for the whole server; a locked server refuses commands but
	// still answers queries that do not touch hardware
	lock := locker.New("/devices", "/complete", "/metrics")

	mount := func(stem string, httper generichttp.HTTPer) {
		// prepare the URL, "shell" => "/shell"
		hndlS := generichttp.SubMuxSanitize(stem)

		locker.Inject(httper, lock)

		// add the endpoints to the graph
		supergraph[hndlS] = httper.RT().Endpoints()

		r := chi.NewRouter()
		lock.Bind(httper.RT(), r)
		root.Mount(hndlS, r)
	}

	mount("shell", actuator.NewHTTPShell(e.Shell, e.Registry, e.Metrics))

	mc := motion.NewHTTPMotionController(e.Shell, e.Registry)
	for i := 0; ; i++ {
		dev, ok := e.Registry.Lookup(i)
		if !ok {
			break
		}
		if raw, ok := dev.(ascii.RawCommunicator); ok {
			ascii.InjectRawComm(mc.RT(), "/raw/"+dev.Name(), raw)
		}
	}
	mount("motion", mc)

	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root
}
