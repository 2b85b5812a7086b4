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

// ConstantVelocity is the body of a constant velocity request
type ConstantVelocity struct {
	Direction string `json:"direction"`
	Velocity  int    `json:"velocity"`
}

// HTTPSpeed adds routes for velocity and resolution to the route table
func HTTPSpeed(d Dispatcher, devs Resolver, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/velocity"}] = SetVelocity(d)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/constant-velocity"}] = SetConstantVelocity(d)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/resolution"}] = GetResolution(devs)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/resolution"}] = SetResolution(d)
}

// SetVelocity returns an HTTP handler func that sets the maximum velocity of an axis
func SetVelocity(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := decodeInt(w, r)
		if !ok {
			return
		}
		dispatch(d, w, "set_max_velocity", chi.URLParam(r, "axis"), v)
	}
}

// SetConstantVelocity returns an HTTP handler func that runs an axis at
// constant velocity
func SetConstantVelocity(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cv := ConstantVelocity{}
		err := json.NewDecoder(r.Body).Decode(&cv)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		dispatch(d, w, "enable_constant_velocity_mode", chi.URLParam(r, "axis"),
			cv.Direction, strconv.Itoa(cv.Velocity))
	}
}

// GetResolution returns an HTTP handler func that gets the micro-step resolution of an axis
func GetResolution(devs Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dev, ok := device(devs, w, r)
		if !ok {
			return
		}
		res, err := stepper.GetMicroStepRes(dev)
		if err != nil {
			http.Error(w, err.Error(), StatusFor(err))
			return
		}
		hp := generichttp.HumanPayload{T: types.Int, Int: int(res)}
		hp.EncodeAndRespond(w, r)
	}
}

// SetResolution returns an HTTP handler func that sets the micro-step resolution of an axis
func SetResolution(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, ok := decodeInt(w, r)
		if !ok {
			return
		}
		dispatch(d, w, "set_micro_step_res", chi.URLParam(r, "axis"), res)
	}
}
