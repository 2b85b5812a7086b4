package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/theckman/yacspin"
	yml "gopkg.in/yaml.v2"

	"github.com/nasa-jpl/stepperctl/console"
	"github.com/nasa-jpl/stepperctl/shell"
	"github.com/nasa-jpl/stepperctl/stepper"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "stepperctl.yml"
	k              = koanf.New(".")

	// ErrTimeout is generated when exec --wait gives up on a motion
	ErrTimeout = errors.New("timed out waiting for the motion to end")
)

// defaultConfig is a single simulated motor reporting in the background
func defaultConfig() Config {
	return Config{
		Addr:     ":8000",
		Async:    true,
		LogLevel: "warning",
		Devices: []DeviceSetup{{
			Name:    "stepper0",
			Type:    "sim",
			Async:   true,
			Enabled: true,
		}},
	}
}

func flags(verb string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(verb, pflag.ExitOnError)
	// flags come before the command line, so "exec move x -10" keeps its -10
	fs.SetInterspersed(false)
	fs.StringVarP(&ConfigFileName, "config", "c", ConfigFileName, "configuration file")
	fs.String("addr", "", "address the HTTP interface listens at (run)")
	fs.Bool("async", false, "report motion completion in the background")
	fs.String("loglevel", "", "log level: debug, info, warning, error")
	fs.BoolP("wait", "w", false, "wait for an asynchronous motion to end (exec)")
	fs.Duration("timeout", time.Minute, "how long to wait for a motion (exec)")
	fs.Bool("stop", false, "stop at the first failed line (script)")
	return fs
}

func setupconfig(fs *pflag.FlagSet) {
	k.Load(structs.Provider(defaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		log.Fatalf("error loading flags: %v", err)
	}
}

func loadConfig() Config {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	if c.LogLevel != "" {
		lvl, err := log.ParseLevel(c.LogLevel)
		if err != nil {
			log.WithField("loglevel", c.LogLevel).Warn("log level not understood, ignoring")
		} else {
			log.SetLevel(lvl)
		}
	}
	return c
}

func root() {
	str := `stepperctl is an operator shell for stepper motor controllers.  It drives
simulated motors and line protocol controllers on serial ports or terminal
servers, interactively, from scripts, or over HTTP.

Usage:
	stepperctl <command> [flags]

Commands:
	shell
	exec
	script
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `stepperctl is amenable to configuration via its .yaml file, stepperctl.yml in
the working directory unless --config says otherwise.  For a primer on YAML, see
https://yaml.org/start.html

Flags override the file: --addr, --async, --loglevel.

Commands:
	shell                 interactive console with completion (tab) and history
	exec [--wait] <line>  run one command line, e.g. exec move stepper0 400
	script [--stop] <f>   run the command lines of a file, - for stdin
	run                   serve the shell and the axes over HTTP at addr
	mkconf                write the current configuration to stepperctl.yml
	conf                  print the current configuration

Device names must be unique.  They are what the operator types, e.g.
"stepper move stepper0 400".

Devices and matching "type" fields, case insensitive:
- Simulated motor "sim", "simulator", "mock"
	> enabled, maxvelocity, resolution, leftendstop, rightendstop, stallat
- Line protocol stepper controller "serialstep", "serial-stepper"
	> addr, serial, baud

With async, devices which report events return immediately from moves and the
shell prints a line when the motion ends.  exec exits right after a command
unless --wait is given.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("stepperctl version %v\n", Version)
}

func interactive() int {
	c := loadConfig()
	fwd := console.NewForwarder(shell.NewTextPrinter(os.Stdout))
	env, err := BuildEnv(c, fwd)
	if err != nil {
		log.Error(err)
		return 1
	}
	defer env.Close()
	p := console.NewProgram(env.Shell)
	fwd.Attach(p)
	defer fwd.Attach(nil)
	if _, err := p.Run(); err != nil {
		log.Error(err)
		return 1
	}
	return 0
}

// commandLine joins the positional arguments of exec into a shell line,
// adding the root command when it was left off
func commandLine(args []string) string {
	if len(args) > 0 && args[0] != shell.RootCommand && args[0] != "help" {
		args = append([]string{shell.RootCommand}, args...)
	}
	return strings.Join(args, " ")
}

func execute(fs *pflag.FlagSet) int {
	if fs.NArg() == 0 {
		log.Error("exec needs a command line, e.g. exec info stepper0")
		return 2
	}
	c := loadConfig()
	out := shell.NewTextPrinter(os.Stdout)
	env, err := BuildEnv(c, out)
	if err != nil {
		log.Error(err)
		return 1
	}
	defer env.Close()

	events := make(chan stepper.Event, 1)
	if env.Notifier != nil {
		env.Notifier.OnEvent = func(ev stepper.Event) {
			select {
			case events <- ev:
			default:
			}
		}
	}
	if err := env.Shell.ExecLine(out, commandLine(fs.Args())); err != nil {
		return 1
	}
	wait, _ := fs.GetBool("wait")
	if !wait || env.Notifier == nil || !env.Notifier.Started() {
		return 0
	}
	timeout, _ := fs.GetDuration("timeout")
	if err := waitForEvent(events, timeout); err != nil {
		log.Debug(err)
		return 1
	}
	return 0
}

// waitForEvent spins until the notifier reports a terminal event
func waitForEvent(events <-chan stepper.Event, timeout time.Duration) error {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " waiting for the motion to end",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return err
	}
	if err := spinner.Start(); err != nil {
		return err
	}
	select {
	case ev := <-events:
		if ev == stepper.StepsCompleted {
			spinner.StopMessage(ev.String())
			return spinner.Stop()
		}
		spinner.StopFailMessage(ev.String())
		spinner.StopFail()
		return fmt.Errorf("motion ended by %s: %w", ev, stepper.ErrCanceled)
	case <-time.After(timeout):
		spinner.StopFailMessage("timed out")
		spinner.StopFail()
		return ErrTimeout
	}
}

func script(fs *pflag.FlagSet) int {
	if fs.NArg() != 1 {
		log.Error("script needs one file, - for stdin")
		return 2
	}
	var r io.Reader = os.Stdin
	if path := fs.Arg(0); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			log.Error(err)
			return 1
		}
		defer f.Close()
		r = f
	}
	c := loadConfig()
	out := shell.NewTextPrinter(os.Stdout)
	env, err := BuildEnv(c, out)
	if err != nil {
		log.Error(err)
		return 1
	}
	defer env.Close()

	stop, _ := fs.GetBool("stop")
	failed, err := console.Script{Echo: true, StopOnError: stop}.Run(env.Shell, out, r)
	if err != nil {
		log.Error(err)
		return 1
	}
	if failed > 0 {
		log.WithField("failed", failed).Warn("script finished with errors")
		return 1
	}
	return 0
}

func run() {
	c := loadConfig()
	env, err := BuildEnv(c, shell.NewTextPrinter(os.Stdout))
	if err != nil {
		log.Fatal(err)
	}
	defer env.Close()
	mux := BuildMux(env)
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	fs := flags(cmd)
	fs.Parse(args[2:])
	setupconfig(fs)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "shell":
		os.Exit(interactive())
	case "exec":
		os.Exit(execute(fs))
	case "script":
		os.Exit(script(fs))
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
