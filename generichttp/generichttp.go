// Package generichttp binds beamline objects to HTTP routes.
//
// A RouteTable maps a method and path to a handler; capability packages
// (motion, thermal, shutter) fill tables from small interfaces and the
// server mounts each table on its own chi router.  Values travel as JSON
// in the form {"f64": 1.5}, {"bool": true}, {"str": "open"}, {"int": 3}.
package generichttp

import (
	"encoding/json"
	"go/types"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi"
)

// MethodPath is an HTTP method and a chi route pattern
type MethodPath struct {
	Method string
	Path   string
}

// RouteTable maps routes to handlers
type RouteTable map[MethodPath]http.HandlerFunc

// HTTPer is something that owns a route table
type HTTPer interface {
	RT() RouteTable
}

// Endpoints lists the routes of the table as "METHOD path", sorted by path
func (rt RouteTable) Endpoints() []string {
	keys := make([]MethodPath, 0, len(rt))
	for k := range rt {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Path == keys[j].Path {
			return keys[i].Method < keys[j].Method
		}
		return keys[i].Path < keys[j].Path
	})
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Method + " " + k.Path
	}
	return out
}

// Bind registers every route of the table on r
func (rt RouteTable) Bind(r chi.Router) {
	for k, h := range rt {
		r.MethodFunc(k.Method, k.Path, h)
	}
}

// SubMuxSanitize turns "usaxs/motors" into "/usaxs/motors" for chi.Mount
func SubMuxSanitize(str string) string {
	str = strings.TrimSuffix(str, "*")
	str = strings.Trim(str, "/")
	return "/" + str
}

// FloatT is a JSON float
type FloatT struct {
	F64 float64 `json:"f64"`
}

// BoolT is a JSON bool
type BoolT struct {
	Bool bool `json:"bool"`
}

// StrT is a JSON string
type StrT struct {
	Str string `json:"str"`
}

// IntT is a JSON int
type IntT struct {
	Int int `json:"int"`
}

// HumanPayload holds one value of kind T for a JSON response
type HumanPayload struct {
	T      types.BasicKind
	Float  float64
	Bool   bool
	String string
	Int    int
}

// EncodeAndRespond writes the payload to w as JSON
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var v interface{}
	switch hp.T {
	case types.Float64:
		v = FloatT{hp.Float}
	case types.Bool:
		v = BoolT{hp.Bool}
	case types.String:
		v = StrT{hp.String}
	case types.Int:
		v = IntT{hp.Int}
	default:
		http.Error(w, "unsupported payload type", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// RespondJSON encodes any value as the response
func RespondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GetFloat calls fcn with the request context and replies {"f64": value}
func GetFloat(fcn func(*http.Request) (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fcn(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.Float64, Float: f}
		hp.EncodeAndRespond(w, r)
	}
}

// SetFloat decodes {"f64": value} and calls fcn with it
func SetFloat(fcn func(*http.Request, float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err = fcn(r, f.F64); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetBool calls fcn and replies {"bool": value}
func GetBool(fcn func(*http.Request) (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fcn(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.Bool, Bool: b}
		hp.EncodeAndRespond(w, r)
	}
}

// SetBool decodes {"bool": value} and calls fcn with it
func SetBool(fcn func(*http.Request, bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := BoolT{}
		err := json.NewDecoder(r.Body).Decode(&b)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err = fcn(r, b.Bool); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetString calls fcn and replies {"str": value}
func GetString(fcn func(*http.Request) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := fcn(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := HumanPayload{T: types.String, String: s}
		hp.EncodeAndRespond(w, r)
	}
}
