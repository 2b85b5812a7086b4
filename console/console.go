// Package console is the interactive terminal front end of the stepper shell
package console

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"

	"github.com/nasa-jpl/stepperctl/shell"
)

// Prompt is printed before the input line
const Prompt = "stepperctl> "

var levelColors = map[shell.Level]*color.Color{
	shell.Normal: color.New(color.Reset),
	shell.Info:   color.New(color.FgGreen),
	shell.Warn:   color.New(color.FgYellow),
	shell.Error:  color.New(color.FgRed, color.Bold),
}

// Render formats recorded lines for the terminal
func Render(lines []shell.Line) string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = levelColors[l.Level].Sprint(l.Text)
	}
	return strings.Join(out, "\n")
}

// execDoneMsg carries the output of a finished command line
type execDoneMsg struct {
	lines []shell.Line
	err   error
}

// Model is the bubbletea model of the console: one editable input line with
// history and completion.  Command output is printed above it.
type Model struct {
	sh *shell.Shell

	input   string
	history []string
	histIdx int
	running bool
	lastErr error
}

// New returns a console over sh
func New(sh *shell.Shell) Model {
	return Model{sh: sh}
}

// NewProgram returns a bubbletea program running a console over sh.
// Options are passed through, e.g. tea.WithInput for tests.
func NewProgram(sh *shell.Shell, opts ...tea.ProgramOption) *tea.Program {
	return tea.NewProgram(New(sh), opts...)
}

// Input returns the line being edited
func (m Model) Input() string {
	return m.input
}

// History returns the lines entered so far, oldest first
func (m Model) History() []string {
	return m.history
}

// LastErr returns the error of the last command line, nil if it succeeded
func (m Model) LastErr() error {
	return m.lastErr
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Println("Type \"help\" for the list of stepper commands, \"exit\" to leave.")
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case execDoneMsg:
		m.running = false
		m.lastErr = msg.err
		if len(msg.lines) == 0 {
			return m, nil
		}
		return m, tea.Println(Render(msg.lines))
	case noticeMsg:
		return m, tea.Println(Render([]shell.Line{msg.line}))
	case tea.KeyMsg:
		return m.key(msg)
	}
	return m, nil
}

func (m Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyCtrlD:
		if m.input == "" {
			return m, tea.Quit
		}
	case tea.KeyCtrlU, tea.KeyEsc:
		m.input = ""
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	case tea.KeySpace:
		m.input += " "
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
	case tea.KeyUp:
		if m.histIdx > 0 {
			m.histIdx--
			m.input = m.history[m.histIdx]
		}
	case tea.KeyDown:
		if m.histIdx < len(m.history) {
			m.histIdx++
		}
		if m.histIdx == len(m.history) {
			m.input = ""
		} else {
			m.input = m.history[m.histIdx]
		}
	case tea.KeyTab:
		return m.complete()
	case tea.KeyEnter:
		return m.enter()
	}
	return m, nil
}

// complete extends the last token of the input to the longest prefix shared
// by its candidates, and lists them when more than one remains
func (m Model) complete() (tea.Model, tea.Cmd) {
	cands := m.sh.Complete(m.input)
	if len(cands) == 0 {
		return m, nil
	}
	stem := m.input[:len(m.input)-len(lastToken(m.input))]
	if len(cands) == 1 {
		m.input = stem + cands[0] + " "
		return m, nil
	}
	m.input = stem + shell.CommonPrefix(cands)
	return m, tea.Println(strings.Join(cands, "  "))
}

func lastToken(line string) string {
	if line == "" || strings.HasSuffix(line, " ") {
		return ""
	}
	fields := strings.Fields(line)
	return fields[len(fields)-1]
}

func (m Model) enter() (tea.Model, tea.Cmd) {
	if m.running {
		return m, nil
	}
	line := strings.TrimSpace(m.input)
	m.input = ""
	echo := tea.Println(Prompt + line)
	if line == "" {
		return m, echo
	}
	m.history = append(m.history, line)
	m.histIdx = len(m.history)
	if line == "exit" || line == "quit" {
		return m, tea.Sequence(echo, tea.Quit)
	}
	m.running = true
	return m, tea.Sequence(echo, execLine(m.sh, line))
}

// execLine runs line off the event loop and reports its output
func execLine(sh *shell.Shell, line string) tea.Cmd {
	return func() tea.Msg {
		rec := &shell.Recorder{}
		err := sh.ExecLine(rec, line)
		return execDoneMsg{lines: rec.Lines(), err: err}
	}
}

// View implements tea.Model
func (m Model) View() string {
	if m.running {
		return fmt.Sprintf("%s%s (running)", Prompt, m.input)
	}
	return Prompt + m.input
}
