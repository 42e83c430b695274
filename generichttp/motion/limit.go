package motion

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi"

	"github.com/APS-USAXS/ipython-usaxs/generichttp"
	"github.com/APS-USAXS/ipython-usaxs/util"
)

var errClamped = errors.New("requested position violates software limits, aborted")

// LimitMiddleware imposes axis-specific limits on motion.  The axis is
// read from the last path element before "pos".
type LimitMiddleware struct {
	// Limits contains the server imposed limits on the axes
	Limits map[string]util.Limiter

	// Mov is used to query axis positions for relative moves
	Mov Mover
}

// axisOf finds the {axis} of /axis/{axis}/pos.  Middleware on a sub-router
// runs before chi has matched the route, so URLParam may be empty.
func axisOf(r *http.Request) string {
	if a := chi.URLParam(r, "axis"); a != "" {
		return a
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	for i := len(parts) - 1; i > 0; i-- {
		if parts[i] == "pos" {
			return parts[i-1]
		}
	}
	return ""
}

// Check refuses with 400 a move that would violate the axis limit,
// otherwise passes control to next
func (l *LimitMiddleware) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/pos") || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		axis := axisOf(r)
		limiter, ok := l.Limits[axis]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		_, relative, err := popAxisRelative(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		// downstream handlers want the body too
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		f := generichttp.FloatT{}
		if err = json.Unmarshal(body, &f); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cmd := f.F64
		if relative {
			cur, err := l.Mov.GetPos(r.Context(), axis)
			if err != nil {
				http.Error(w, err.Error(), status(err))
				return
			}
			cmd += cur
		}
		if !limiter.Check(cmd) {
			http.Error(w, errClamped.Error(), http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Inject places a /axis/{axis}/limits route on the table of the HTTPer
func (l *LimitMiddleware) Inject(h generichttp.HTTPer) {
	h.RT()[generichttp.MethodPath{Method: http.MethodGet, Path: "/axis/{axis}/limits"}] = Limits(l)
}

// Limits returns a handler that replies with the limits of an axis, or
// null if it has none
func Limits(l *LimitMiddleware) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lim, ok := l.Limits[chi.URLParam(r, "axis")]
		if !ok {
			generichttp.RespondJSON(w, nil)
			return
		}
		generichttp.RespondJSON(w, lim)
	}
}
