// Package shutter exposes the beamline shutters over HTTP
package shutter

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-chi/chi"

	"github.com/APS-USAXS/ipython-usaxs/devices"
	"github.com/APS-USAXS/ipython-usaxs/generichttp"
)

// HTTPShutters serves a set of named shutters
type HTTPShutters struct {
	Shutters map[string]devices.Shutter

	rt generichttp.RouteTable
}

// NewHTTPShutters binds
//
//	GET  /shutters
//	GET  /shutter/{name}/state
//	POST /shutter/{name}/open
//	POST /shutter/{name}/close
func NewHTTPShutters(s map[string]devices.Shutter) *HTTPShutters {
	h := &HTTPShutters{Shutters: s, rt: generichttp.RouteTable{}}
	h.rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/shutters"}] = h.list
	h.rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/shutter/{name}/state"}] = h.state
	h.rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/shutter/{name}/open"}] = h.action(devices.Shutter.Open)
	h.rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/shutter/{name}/close"}] = h.action(devices.Shutter.Close)
	return h
}

// RT implements generichttp.HTTPer
func (h *HTTPShutters) RT() generichttp.RouteTable { return h.rt }

func (h *HTTPShutters) lookup(w http.ResponseWriter, r *http.Request) (devices.Shutter, bool) {
	s, ok := h.Shutters[chi.URLParam(r, "name")]
	if !ok {
		http.Error(w, devices.ErrNotFound.Error(), http.StatusNotFound)
	}
	return s, ok
}

func (h *HTTPShutters) list(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.Shutters))
	for k := range h.Shutters {
		names = append(names, k)
	}
	sort.Strings(names)
	generichttp.RespondJSON(w, names)
}

func (h *HTTPShutters) state(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	generichttp.GetString(func(r *http.Request) (string, error) {
		return s.State(r.Context())
	})(w, r)
}

func (h *HTTPShutters) action(fcn func(devices.Shutter, context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := h.lookup(w, r)
		if !ok {
			return
		}
		if err := fcn(s, r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
