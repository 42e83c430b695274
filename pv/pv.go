// Package pv provides access to EPICS process variables.
//
// A Network moves Values to and from named PVs.  Two Networks are provided:
// an in-memory MockNetwork for tests and simulation, and CANetwork which uses
// the EPICS base command line tools.  Devices hold typed handles (Float, Int,
// String, Bool, Array) bound to a Network and a PV name.
package pv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/APS-USAXS/ipython-usaxs/util"
)

var (
	// ErrNotConnected is returned when a PV cannot be reached or has never been set
	ErrNotConnected = errors.New("PV not connected")

	// ErrWrongType is returned when a Value does not hold what the caller asked for
	ErrWrongType = errors.New("PV value has the wrong type")
)

// Kind enumerates what a Value holds
type Kind int

const (
	// KindFloat is a scalar number
	KindFloat Kind = iota
	// KindString is a string
	KindString
	// KindArray is a waveform of numbers
	KindArray
	// KindLongString is a string held in a char waveform, with no length limit
	KindLongString
)

// Value is the content of a PV
type Value struct {
	Kind  Kind
	Num   float64
	Str   string
	Array []float64
}

// FloatValue returns a scalar Value
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Num: f} }

// StringValue returns a string Value
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// LongStringValue returns a Value for a char waveform written as a string
func LongStringValue(s string) Value { return Value{Kind: KindLongString, Str: s} }

// ArrayValue returns a waveform Value.  The slice is copied.
func ArrayValue(a []float64) Value {
	cp := make([]float64, len(a))
	copy(cp, a)
	return Value{Kind: KindArray, Array: cp}
}

// Float returns the scalar content, parsing a numeric string if needed
func (v Value) Float() (float64, error) {
	switch v.Kind {
	case KindFloat:
		return v.Num, nil
	case KindString, KindLongString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrWrongType, v.Str)
		}
		return f, nil
	case KindArray:
		if len(v.Array) == 1 {
			return v.Array[0], nil
		}
	}
	return 0, ErrWrongType
}

// String formats the Value the way caget -t would print it
func (v Value) String() string {
	switch v.Kind {
	case KindString, KindLongString:
		return v.Str
	case KindArray:
		return util.FloatSliceToCSV(v.Array)
	default:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	}
}

// Network reads and writes PVs.  Implementations must be safe for concurrent use.
type Network interface {
	Get(ctx context.Context, name string) (Value, error)
	Put(ctx context.Context, name string, v Value) error
}
