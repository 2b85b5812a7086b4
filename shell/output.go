package shell

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level is the severity of one output line
type Level int

const (
	// Normal is plain output
	Normal Level = iota
	// Info is informational output, e.g. notifier reports
	Info
	// Warn is a recoverable failure, e.g. a failed query
	Warn
	// Error is a failed command
	Error
)

func (l Level) String() string {
	switch l {
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "normal"
	}
}

// Printer receives the line oriented output of commands and of the notifier.
// Implementations must be safe for use from the foreground and the notifier
// at the same time.
type Printer interface {
	Print(format string, a ...interface{})
	Info(format string, a ...interface{})
	Warn(format string, a ...interface{})
	Error(format string, a ...interface{})
}

// TextPrinter writes one colored line per call to an io.Writer
type TextPrinter struct {
	mu  sync.Mutex
	w   io.Writer
	lvl map[Level]*color.Color
}

// NewTextPrinter returns a TextPrinter writing to w.
// Coloring follows color.NoColor.
func NewTextPrinter(w io.Writer) *TextPrinter {
	return &TextPrinter{
		w: w,
		lvl: map[Level]*color.Color{
			Normal: color.New(color.Reset),
			Info:   color.New(color.FgGreen),
			Warn:   color.New(color.FgYellow),
			Error:  color.New(color.FgRed, color.Bold),
		},
	}
}

func (p *TextPrinter) line(l Level, format string, a ...interface{}) {
	s := strings.TrimRight(fmt.Sprintf(format, a...), "\n")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lvl[l].Fprintln(p.w, s)
}

// Print writes a normal line
func (p *TextPrinter) Print(format string, a ...interface{}) { p.line(Normal, format, a...) }

// Info writes an informational line
func (p *TextPrinter) Info(format string, a ...interface{}) { p.line(Info, format, a...) }

// Warn writes a warning line
func (p *TextPrinter) Warn(format string, a ...interface{}) { p.line(Warn, format, a...) }

// Error writes an error line
func (p *TextPrinter) Error(format string, a ...interface{}) { p.line(Error, format, a...) }

// Line is one line captured by a Recorder
type Line struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// Recorder is a Printer which keeps the lines in memory
type Recorder struct {
	mu    sync.Mutex
	lines []Line
}

func (r *Recorder) add(l Level, format string, a ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, Line{Level: l, Text: strings.TrimRight(fmt.Sprintf(format, a...), "\n")})
}

// Print records a normal line
func (r *Recorder) Print(format string, a ...interface{}) { r.add(Normal, format, a...) }

// Info records an informational line
func (r *Recorder) Info(format string, a ...interface{}) { r.add(Info, format, a...) }

// Warn records a warning line
func (r *Recorder) Warn(format string, a ...interface{}) { r.add(Warn, format, a...) }

// Error records an error line
func (r *Recorder) Error(format string, a ...interface{}) { r.add(Error, format, a...) }

// Lines returns a copy of the recorded lines
func (r *Recorder) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Line, len(r.lines))
	copy(out, r.lines)
	return out
}

// Texts returns the text of the recorded lines at level l
func (r *Recorder) Texts(l Level) []string {
	var out []string
	for _, line := range r.Lines() {
		if line.Level == l {
			out = append(out, line.Text)
		}
	}
	return out
}

// Reset discards the recorded lines
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = nil
}
