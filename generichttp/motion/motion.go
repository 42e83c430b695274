// Package motion exposes beamline motors over HTTP
package motion

import (
	"context"
	"encoding/json"
	"errors"
	"go/types"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/APS-USAXS/ipython-usaxs/devices"
	"github.com/APS-USAXS/ipython-usaxs/generichttp"
)

// Mover describes position-related methods for axes
type Mover interface {
	// GetPos gets the current position of an axis
	GetPos(ctx context.Context, axis string) (float64, error)

	// MoveAbs moves an axis to an absolute position
	MoveAbs(ctx context.Context, axis string, pos float64) error

	// MoveRel moves an axis a relative amount
	MoveRel(ctx context.Context, axis string, delta float64) error

	// Home homes an axis
	Home(ctx context.Context, axis string) error
}

// Stopper can stop an axis
type Stopper interface {
	Stop(ctx context.Context, axis string) error
}

// Speeder can get and set the velocity of an axis
type Speeder interface {
	GetVelocity(ctx context.Context, axis string) (float64, error)
	SetVelocity(ctx context.Context, axis string, v float64) error
}

// Lister lists the axes
type Lister interface {
	Axes() []string
}

// status maps lookup failures to 404
func status(err error) int {
	if errors.Is(err, devices.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// HTTPMove adds routes for the mover to the table
func HTTPMove(m Mover, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/home"}] = Home(m)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/pos"}] = GetPos(m)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/pos"}] = SetPos(m)
}

// HTTPStop adds the stop route
func HTTPStop(s Stopper, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/stop"}] = func(w http.ResponseWriter, r *http.Request) {
		if err := s.Stop(r.Context(), chi.URLParam(r, "axis")); err != nil {
			http.Error(w, err.Error(), status(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// HTTPSpeed adds the velocity routes
func HTTPSpeed(s Speeder, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/velocity"}] = func(w http.ResponseWriter, r *http.Request) {
		v, err := s.GetVelocity(r.Context(), chi.URLParam(r, "axis"))
		if err != nil {
			http.Error(w, err.Error(), status(err))
			return
		}
		hp := generichttp.HumanPayload{T: types.Float64, Float: v}
		hp.EncodeAndRespond(w, r)
	}
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/axis/{axis}/velocity"}] = func(w http.ResponseWriter, r *http.Request) {
		f := generichttp.FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err = s.SetVelocity(r.Context(), chi.URLParam(r, "axis"), f.F64); err != nil {
			http.Error(w, err.Error(), status(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// HTTPList adds /axes
func HTTPList(l Lister, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/axes"}] = func(w http.ResponseWriter, r *http.Request) {
		generichttp.RespondJSON(w, l.Axes())
	}
}

// GetPos returns a handler that replies with the position of an axis
func GetPos(m Mover) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis := chi.URLParam(r, "axis")
		pos, err := m.GetPos(r.Context(), axis)
		if err != nil {
			http.Error(w, err.Error(), status(err))
			return
		}
		hp := generichttp.HumanPayload{T: types.Float64, Float: pos}
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

// SetPos returns a handler that moves an axis, relative if the relative
// query parameter is true
func SetPos(m Mover) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		axis, rel, err := popAxisRelative(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f := generichttp.FloatT{}
		err = json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if rel {
			err = m.MoveRel(r.Context(), axis, f.F64)
		} else {
			err = m.MoveAbs(r.Context(), axis, f.F64)
		}
		if err != nil {
			http.Error(w, err.Error(), status(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Home returns a handler that homes an axis
func Home(m Mover) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := m.Home(r.Context(), chi.URLParam(r, "axis")); err != nil {
			http.Error(w, err.Error(), status(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
