package motion

import (
	"encoding/json"
	"go/types"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/stepperctl/generichttp"
	"github.com/nasa-jpl/stepperctl/stepper"
)

// HTTPMove adds routes for position and motion state to the route table
func HTTPMove(d Dispatcher, devs Resolver, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/pos"}] = GetPos(devs)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/pos"}] = SetPos(d)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/actual-pos"}] = SetActualPos(d)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/moving"}] = GetMoving(devs)
}

// GetPos returns an HTTP handler func that gets the actual position of an axis
func GetPos(devs Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev, ok := device(devs, w, r)
		if !ok {
			return
		}
		pos, err := stepper.GetActualPosition(dev)
		if err != nil {
			http.Error(w, err.Error(), StatusFor(err))
			return
		}
		hp := generichttp.HumanPayload{T: types.Int, Int: int(pos)}
		hp.EncodeAndRespond(w, r)
	}
}

func popAxisRelative(r *http.Request) (string, bool, error) {
	axis := chi.URLParam(r, "axis")
	relative := r.URL.Query().Get("relative")
	if relative == "" {
		relative = "false"
	}
	b, err := strconv.ParseBool(relative)
	return axis, b, err
}

func decodeInt(w http.ResponseWriter, r *http.Request) (string, bool) {
	i := generichttp.IntT{}
	err := json.NewDecoder(r.Body).Decode(&i)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return strconv.Itoa(i.Int), true
}

// SetPos returns an HTTP handler func that triggers an absolute or relative
// move on an axis based on the relative query parameter
func SetPos(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis, rel, err := popAxisRelative(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		steps, ok := decodeInt(w, r)
		if !ok {
			return
		}
		if rel {
			dispatch(d, w, "move", axis, steps)
		} else {
			dispatch(d, w, "set_target_position", axis, steps)
		}
	}
}

// SetActualPos returns an HTTP handler func that redefines the position of an axis
func SetActualPos(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pos, ok := decodeInt(w, r)
		if !ok {
			return
		}
		dispatch(d, w, "set_actual_position", chi.URLParam(r, "axis"), pos)
	}
}

// GetMoving returns an HTTP handler func that reports if an axis is moving
func GetMoving(devs Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev, ok := device(devs, w, r)
		if !ok {
			return
		}
		moving, err := stepper.IsMoving(dev)
		if err != nil {
			http.Error(w, err.Error(), StatusFor(err))
			return
		}
		hp := generichttp.HumanPayload{T: types.Bool, Bool: moving}
		hp.EncodeAndRespond(w, r)
	}
}
