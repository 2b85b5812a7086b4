package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/nasa-jpl/stepperctl/shell"
)

// ScriptError reports the first failed line of a script run with StopOnError
type ScriptError struct {
	Line int
	Text string
	Err  error
}

func (e ScriptError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e ScriptError) Unwrap() error {
	return e.Err
}

// Script runs command lines read from a file or pipe, one per line.
// Blank lines and lines beginning with # are skipped.
type Script struct {
	// Echo prints each line with the prompt before running it
	Echo bool

	// StopOnError ends the script at the first failed line
	StopOnError bool
}

// Run executes every line of r against sh, printing to out.  It returns the
// number of lines which failed.  With StopOnError the first failure is also
// returned as a ScriptError.
func (s Script) Run(sh *shell.Shell, out shell.Printer, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	failed := 0
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if s.Echo {
			out.Print("%s%s", Prompt, line)
		}
		err := sh.ExecLine(out, line)
		if err == nil {
			continue
		}
		failed++
		log.WithFields(log.Fields{"line": n, "text": line, "err": err}).Debug("script line failed")
		if s.StopOnError {
			return failed, ScriptError{Line: n, Text: line, Err: err}
		}
	}
	return failed, sc.Err()
}
