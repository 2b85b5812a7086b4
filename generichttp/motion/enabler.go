package motion

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/stepperctl/generichttp"
)

// HTTPEnable adds routes for enabling to the route table
func HTTPEnable(d Dispatcher, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/enabled"}] = SetEnabled(d)
}

// SetEnabled returns an HTTP handler func that enables or disables the axis
func SetEnabled(d Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		boolT := generichttp.BoolT{}
		err := json.NewDecoder(r.Body).Decode(&boolT)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		arg := "off"
		if boolT.Bool {
			arg = "on"
		}
		dispatch(d, w, "enable", axis, arg)
	}
}
