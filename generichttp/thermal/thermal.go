// Package thermal exposes process (temperature) controllers over HTTP
package thermal

import (
	"context"
	"net/http"

	"github.com/APS-USAXS/ipython-usaxs/generichttp"
)

// Controller is a single channel temperature controller
type Controller interface {
	// Temperature gets the temperature in Celsius
	Temperature(ctx context.Context) (float64, error)

	// Setpoint gets the temperature setpoint in Celsius
	Setpoint(ctx context.Context) (float64, error)

	// SetSetpoint sets the temperature setpoint in Celsius
	SetSetpoint(ctx context.Context, degC float64) error
}

// Settler can report that the temperature is at the setpoint
type Settler interface {
	Settled(ctx context.Context) (bool, error)
}

// Rater can set the ramp rate in C/min
type Rater interface {
	SetRate(ctx context.Context, degPerMin float64) error
}

// HTTPController binds the temperature routes of c to the table, and the
// settled and rate routes if c has them
func HTTPController(c Controller, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/temperature"}] = generichttp.GetFloat(func(r *http.Request) (float64, error) {
		return c.Temperature(r.Context())
	})
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/temperature-setpoint"}] = generichttp.GetFloat(func(r *http.Request) (float64, error) {
		return c.Setpoint(r.Context())
	})
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/temperature-setpoint"}] = generichttp.SetFloat(func(r *http.Request, f float64) error {
		return c.SetSetpoint(r.Context(), f)
	})
	if s, ok := c.(Settler); ok {
		table[generichttp.MethodPath{Method: http.MethodGet, Path: "/settled"}] = generichttp.GetBool(func(r *http.Request) (bool, error) {
			return s.Settled(r.Context())
		})
	}
	if rt, ok := c.(Rater); ok {
		table[generichttp.MethodPath{Method: http.MethodPost, Path: "/rate"}] = generichttp.SetFloat(func(r *http.Request, f float64) error {
			return rt.SetRate(r.Context(), f)
		})
	}
}

// HTTPThermal is a controller with its own route table
type HTTPThermal struct {
	rt generichttp.RouteTable
}

// NewHTTPThermal wraps c
func NewHTTPThermal(c Controller) HTTPThermal {
	h := HTTPThermal{rt: generichttp.RouteTable{}}
	HTTPController(c, h.rt)
	return h
}

// RT implements generichttp.HTTPer
func (h HTTPThermal) RT() generichttp.RouteTable { return h.rt }
