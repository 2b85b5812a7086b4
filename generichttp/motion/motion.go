// Package motion provides an HTTP interface to stepper motors, one route per
// capability, addressed by device name
package motion

/*
Writes are dispatched through the shell so they share its serialization,
completion reporting, and metrics with the console.  Reads go straight to
the device capability.
*/
import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/stepperctl/generichttp"
	"github.com/nasa-jpl/stepperctl/shell"
	"github.com/nasa-jpl/stepperctl/stepper"
)

// Dispatcher runs one stepper subcommand, see shell.Shell.Exec
type Dispatcher interface {
	Exec(out shell.Printer, argv ...string) error
}

// Resolver finds a bound device by name
type Resolver interface {
	Get(name string) (stepper.Device, error)
}

// HTTPMotionController wraps the bound devices in an HTTP route table
type HTTPMotionController struct {
	RouteTable generichttp.RouteTable
}

// NewHTTPMotionController returns a new HTTP wrapper with the route table pre-configured
func NewHTTPMotionController(d Dispatcher, devs Resolver) HTTPMotionController {
	rt := generichttp.RouteTable{}
	HTTPEnable(d, rt)
	HTTPMove(d, devs, rt)
	HTTPSpeed(d, devs, rt)
	return HTTPMotionController{RouteTable: rt}
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPMotionController) RT() generichttp.RouteTable {
	return h.RouteTable
}

// StatusFor maps the status code carried by err to an HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, stepper.ErrNoDevice):
		return http.StatusNotFound
	case errors.Is(err, stepper.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, stepper.ErrBusy), errors.Is(err, stepper.ErrCanceled):
		return http.StatusConflict
	case errors.Is(err, stepper.ErrNotSupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// dispatch runs argv and replies 200, or the status for the failure with the
// error lines the command printed as the body
func dispatch(d Dispatcher, w http.ResponseWriter, argv ...string) {
	rec := &shell.Recorder{}
	err := d.Exec(rec, argv...)
	if err != nil {
		msg := strings.Join(rec.Texts(shell.Error), "\n")
		if msg == "" {
			msg = err.Error()
		}
		http.Error(w, msg, StatusFor(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// device resolves the {axis} URL parameter, replying with an error if it
// does not name a bound device
func device(devs Resolver, w http.ResponseWriter, r *http.Request) (stepper.Device, bool) {
	dev, err := devs.Get(chi.URLParam(r, "axis"))
	if err != nil {
		http.Error(w, err.Error(), StatusFor(err))
		return nil, false
	}
	return dev, true
}
