// Package shell implements the operator command interface for stepper motor
// devices: the "stepper" command and its subcommands, argument validation,
// completion, and asynchronous reporting of motion completion.
package shell

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/nasa-jpl/stepperctl/stepper"
)

// RootCommand is the top level command all subcommands live under
const RootCommand = "stepper"

// positions of arguments in the argument vector of a subcommand
const (
	argIdxDev   = 1
	argIdxParam = 2
	argIdxValue = 3
)

var (
	// ErrUnknownCommand is generated when a subcommand does not exist
	ErrUnknownCommand = fmt.Errorf("command not found: %w", stepper.ENOEXEC)

	// ErrArgCount is generated when a subcommand is given the wrong number of arguments
	ErrArgCount = fmt.Errorf("wrong parameter count: %w", stepper.ErrInvalid)
)

// Devices enumerates and resolves the bound devices
type Devices interface {
	// Lookup returns the idx-th bound device, or false past the end
	Lookup(idx int) (stepper.Device, bool)
}

// Enumerator returns the idx-th completion candidate, or false past the end
type Enumerator func(idx int) (string, bool)

// Command describes one subcommand of the stepper command
type Command struct {
	// Name is what the operator types
	Name string

	// Syntax is the usage of the arguments, e.g. "<device> <on/off>"
	Syntax string

	// Help is a one line description
	Help string

	// Args is the mandatory argument count, including the name itself
	Args int

	// Optional is the number of optional arguments after the mandatory ones
	Optional int

	// Params are the completion sources for argv[1], argv[2], ...
	Params []Enumerator

	handler func(sh *Shell, out Printer, argv []string) error
}

// Shell dispatches stepper subcommands against a set of devices.
// Commands run one at a time; the notifier reports asynchronous completions
// concurrently.
type Shell struct {
	mu       sync.Mutex
	devices  Devices
	notifier *Notifier
	metrics  *Metrics
	commands []Command
}

// New returns a shell over devices.  When notifier is nil every command is
// driven synchronously and no background task is ever started.
func New(devices Devices, notifier *Notifier, m *Metrics) *Shell {
	sh := &Shell{devices: devices, notifier: notifier, metrics: m}
	sh.commands = sh.commandTable()
	return sh
}

// Notifier returns the completion notifier, which may be nil
func (sh *Shell) Notifier() *Notifier {
	return sh.notifier
}

// Commands returns the subcommand table
func (sh *Shell) Commands() []Command {
	return sh.commands
}

func (sh *Shell) command(name string) (Command, bool) {
	for _, c := range sh.commands {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// Exec runs one subcommand.  argv[0] is the subcommand name, argv[1] the
// device name and the rest its parameters.  The returned error carries the
// status code (see stepper.Code) of a failed command; the shell stays usable.
func (sh *Shell) Exec(out Printer, argv ...string) error {
	if len(argv) == 0 {
		sh.Usage(out)
		return ErrArgCount
	}
	cmd, ok := sh.command(argv[0])
	if !ok {
		out.Error("%s: %s", argv[0], "command not found")
		return ErrUnknownCommand
	}
	if len(argv) < cmd.Args || len(argv) > cmd.Args+cmd.Optional {
		out.Error("%s: wrong parameter count", cmd.Name)
		out.Print("Usage: %s %s %s", RootCommand, cmd.Name, cmd.Syntax)
		return ErrArgCount
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	err := cmd.handler(sh, out, argv)
	sh.metrics.command(cmd.Name, err)
	if err != nil {
		log.WithFields(log.Fields{"command": cmd.Name, "args": argv[1:], "code": stepper.Code(err)}).
			Debug("stepper command failed")
	}
	return err
}

// ExecLine tokenizes a line of operator input and runs it.  The first token
// must be the root command, or "help".  Blank lines do nothing.
func (sh *Shell) ExecLine(out Printer, line string) error {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return nil
	}
	switch tokens[0] {
	case RootCommand:
		if len(tokens) == 1 {
			sh.Usage(out)
			return nil
		}
		return sh.Exec(out, tokens[1:]...)
	case "help":
		sh.Usage(out)
		return nil
	default:
		out.Error("%s: %s", tokens[0], "command not found")
		return ErrUnknownCommand
	}
}

// Usage prints the subcommand table
func (sh *Shell) Usage(out Printer) {
	out.Print("%s - Stepper motor commands", RootCommand)
	out.Print("Subcommands:")
	for _, c := range sh.commands {
		out.Print("  %-30s %s", c.Name+" "+c.Syntax, c.Help)
	}
}

// resolve finds the device named by argv[argIdxDev]
func (sh *Shell) resolve(out Printer, argv []string) (stepper.Device, error) {
	name := argv[argIdxDev]
	for i := 0; ; i++ {
		dev, ok := sh.devices.Lookup(i)
		if !ok {
			break
		}
		if dev.Name() == name {
			return dev, nil
		}
	}
	out.Error("Stepper device %s not found", name)
	return nil, fmt.Errorf("stepper device %s: %w", name, stepper.ErrNoDevice)
}

// completionSignal prepares the notification handle for an asynchronous
// capable command on dev.  It returns nil when dev is driven synchronously.
func (sh *Shell) completionSignal(out Printer, dev stepper.Device) *stepper.Signal {
	if sh.notifier == nil || !stepper.ReportsEvents(dev) {
		return nil
	}
	if err := sh.notifier.EnsureStarted(); err != nil {
		out.Error("Cannot start poll thread")
		return nil
	}
	return sh.notifier.Signal()
}

// deviceNames enumerates the bound devices for completion
func (sh *Shell) deviceNames(idx int) (string, bool) {
	dev, ok := sh.devices.Lookup(idx)
	if !ok {
		return "", false
	}
	return dev.Name(), true
}

// Complete returns the candidates for the last, possibly empty, token of a
// partial line.  A line ending in whitespace completes a new token.
func (sh *Shell) Complete(line string) []string {
	tokens := strings.Fields(line)
	if line == "" || strings.HasSuffix(line, " ") || strings.HasSuffix(line, "\t") {
		tokens = append(tokens, "")
	}
	prefix := tokens[len(tokens)-1]
	var enum Enumerator
	switch len(tokens) {
	case 1:
		enum = func(idx int) (string, bool) {
			names := []string{RootCommand, "help"}
			if idx >= len(names) {
				return "", false
			}
			return names[idx], true
		}
	case 2:
		if tokens[0] != RootCommand {
			return nil
		}
		enum = func(idx int) (string, bool) {
			if idx >= len(sh.commands) {
				return "", false
			}
			return sh.commands[idx].Name, true
		}
	default:
		if tokens[0] != RootCommand {
			return nil
		}
		cmd, ok := sh.command(tokens[1])
		pos := len(tokens) - 3 // argv[1] is tokens[2]
		if !ok || pos >= len(cmd.Params) {
			return nil
		}
		enum = cmd.Params[pos]
	}
	var out []string
	for i := 0; ; i++ {
		s, ok := enum(i)
		if !ok {
			break
		}
		if strings.HasPrefix(s, prefix) {
			out = append(out, s)
		}
	}
	return out
}

// CommonPrefix returns the longest prefix shared by all candidates
func CommonPrefix(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	first, last := sorted[0], sorted[len(sorted)-1]
	i := 0
	for i < len(first) && i < len(last) && first[i] == last[i] {
		i++
	}
	return first[:i]
}
