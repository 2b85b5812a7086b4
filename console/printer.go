package console

import (
	"fmt"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nasa-jpl/stepperctl/shell"
)

// Sender delivers messages to a running program, see tea.Program.Send
type Sender interface {
	Send(msg tea.Msg)
}

// noticeMsg is one line printed outside of a command
type noticeMsg struct {
	line shell.Line
}

// Forwarder is a shell.Printer for output produced outside of a command,
// such as notifier reports.  Lines go to Fallback until a program is
// attached, then above the program's input line.
type Forwarder struct {
	Fallback shell.Printer

	mu sync.Mutex
	p  Sender
}

// NewForwarder returns a Forwarder printing to fallback until Attach
func NewForwarder(fallback shell.Printer) *Forwarder {
	return &Forwarder{Fallback: fallback}
}

// Attach sends further output to p, usually a *tea.Program running a
// console Model.  A nil p detaches.
func (f *Forwarder) Attach(p Sender) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.p = p
}

func (f *Forwarder) line(l shell.Level, format string, a ...interface{}) {
	f.mu.Lock()
	p := f.p
	f.mu.Unlock()
	if p != nil {
		text := strings.TrimRight(fmt.Sprintf(format, a...), "\n")
		p.Send(noticeMsg{line: shell.Line{Level: l, Text: text}})
		return
	}
	switch l {
	case shell.Info:
		f.Fallback.Info(format, a...)
	case shell.Warn:
		f.Fallback.Warn(format, a...)
	case shell.Error:
		f.Fallback.Error(format, a...)
	default:
		f.Fallback.Print(format, a...)
	}
}

// Print forwards a normal line
func (f *Forwarder) Print(format string, a ...interface{}) { f.line(shell.Normal, format, a...) }

// Info forwards an informational line
func (f *Forwarder) Info(format string, a ...interface{}) { f.line(shell.Info, format, a...) }

// Warn forwards a warning line
func (f *Forwarder) Warn(format string, a ...interface{}) { f.line(shell.Warn, format, a...) }

// Error forwards an error line
func (f *Forwarder) Error(format string, a ...interface{}) { f.line(shell.Error, format, a...) }
