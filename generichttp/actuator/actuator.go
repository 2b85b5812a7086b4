// Package actuator exposes a stepper shell over HTTP
package actuator

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nasa-jpl/stepperctl/generichttp"
	"github.com/nasa-jpl/stepperctl/shell"
	"github.com/nasa-jpl/stepperctl/stepper"
)

// Namer lists the names of the bound devices
type Namer interface {
	Names() []string
}

// Result is the reply to an executed command line
type Result struct {
	// Code is the status of the command, 0 on success or a negative errno
	Code int `json:"code"`

	// Lines is what the command printed
	Lines []shell.Line `json:"lines"`
}

// Completion is the reply to a completion request
type Completion struct {
	Candidates []string `json:"candidates"`
	Prefix     string   `json:"prefix"`
}

// HTTPShell holds a shell and a route table exposing it
type HTTPShell struct {
	Shell *shell.Shell

	RouteTable generichttp.RouteTable
}

// NewHTTPShell returns a new HTTP wrapper with the route table pre-configured.
// If g is not nil, its metrics are served on /metrics.
func NewHTTPShell(sh *shell.Shell, devs Namer, g prometheus.Gatherer) HTTPShell {
	w := HTTPShell{Shell: sh}
	rt := generichttp.RouteTable{
		{Method: http.MethodPost, Path: "/exec"}:    Exec(sh),
		{Method: http.MethodGet, Path: "/devices"}:  ListDevices(devs),
		{Method: http.MethodGet, Path: "/complete"}: Complete(sh),
	}
	if g != nil {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/metrics"}] =
			promhttp.HandlerFor(g, promhttp.HandlerOpts{}).ServeHTTP
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPShell) RT() generichttp.RouteTable {
	return h.RouteTable
}

// Exec runs the command line in {"str": line} and replies with a Result.
// A failed command is still a 200; its status is in the code.
func Exec(sh *shell.Shell) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		str := generichttp.StrT{}
		err := json.NewDecoder(r.Body).Decode(&str)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec := &shell.Recorder{}
		err = sh.ExecLine(rec, str.Str)
		lines := rec.Lines()
		if lines == nil {
			lines = []shell.Line{}
		}
		generichttp.ReplyJSON(w, Result{Code: stepper.Code(err), Lines: lines})
	}
}

// ListDevices replies with the names of the bound devices
func ListDevices(devs Namer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names := devs.Names()
		if names == nil {
			names = []string{}
		}
		generichttp.ReplyJSON(w, names)
	}
}

// Complete replies with the completion candidates for the line query parameter
func Complete(sh *shell.Shell) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cands := sh.Complete(r.URL.Query().Get("line"))
		if cands == nil {
			cands = []string{}
		}
		generichttp.ReplyJSON(w, Completion{Candidates: cands, Prefix: shell.CommonPrefix(cands)})
	}
}
