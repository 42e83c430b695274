package pv

import (
	"context"
	"math"

	"github.com/APS-USAXS/ipython-usaxs/util"
)

// Readable is anything that can report its PV name and current value
type Readable interface {
	PVName() string
	Read(ctx context.Context) (Value, error)
}

type handle struct {
	Net  Network
	Name string
}

func (h handle) PVName() string { return h.Name }

func (h handle) Read(ctx context.Context) (Value, error) { return h.Net.Get(ctx, h.Name) }

// Float is a scalar PV
type Float struct{ handle }

// NewFloat binds a Float to a PV
func NewFloat(net Network, name string) Float { return Float{handle{net, name}} }

// Get returns the current value
func (f Float) Get(ctx context.Context) (float64, error) {
	v, err := f.Net.Get(ctx, f.Name)
	if err != nil {
		return 0, err
	}
	return v.Float()
}

// Put writes a new value
func (f Float) Put(ctx context.Context, x float64) error {
	return f.Net.Put(ctx, f.Name, FloatValue(x))
}

// Int is an integer PV (longout, mbbo, bo index)
type Int struct{ handle }

// NewInt binds an Int to a PV
func NewInt(net Network, name string) Int { return Int{handle{net, name}} }

// Get returns the current value rounded to the nearest integer
func (i Int) Get(ctx context.Context) (int, error) {
	v, err := i.Net.Get(ctx, i.Name)
	if err != nil {
		return 0, err
	}
	f, err := v.Float()
	if err != nil {
		return 0, err
	}
	return int(math.Round(f)), nil
}

// Put writes a new value
func (i Int) Put(ctx context.Context, x int) error {
	return i.Net.Put(ctx, i.Name, FloatValue(float64(x)))
}

// String is a stringout/stringin PV
type String struct{ handle }

// NewString binds a String to a PV
func NewString(net Network, name string) String { return String{handle{net, name}} }

// Get returns the current value
func (s String) Get(ctx context.Context) (string, error) {
	v, err := s.Net.Get(ctx, s.Name)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// Put writes msg, trimmed to fit an EPICS string
func (s String) Put(ctx context.Context, msg string) error {
	return s.Net.Put(ctx, s.Name, StringValue(util.TrimForEPICS(msg)))
}

// LongString is a char waveform PV holding a string longer than a
// stringout allows, such as an areaDetector file path
type LongString struct{ handle }

// NewLongString binds a LongString to a PV
func NewLongString(net Network, name string) LongString {
	return LongString{handle{net, name}}
}

// Get returns the current value.  A waveform read back as numbers is decoded
// as characters up to the first NUL.
func (s LongString) Get(ctx context.Context) (string, error) {
	v, err := s.Net.Get(ctx, s.Name)
	if err != nil {
		return "", err
	}
	if v.Kind != KindArray {
		return v.String(), nil
	}
	b := make([]byte, 0, len(v.Array))
	for _, f := range v.Array {
		if f == 0 {
			break
		}
		b = append(b, byte(f))
	}
	return string(b), nil
}

// Put writes msg whole
func (s LongString) Put(ctx context.Context, msg string) error {
	return s.Net.Put(ctx, s.Name, LongStringValue(msg))
}

// Bool is a binary PV, nonzero is true
type Bool struct{ handle }

// NewBool binds a Bool to a PV
func NewBool(net Network, name string) Bool { return Bool{handle{net, name}} }

// Get returns the current value
func (b Bool) Get(ctx context.Context) (bool, error) {
	v, err := b.Net.Get(ctx, b.Name)
	if err != nil {
		return false, err
	}
	if v.Kind == KindString {
		switch v.Str {
		case "Yes", "On", "Open", "High", "Enable", "Enabled", "1":
			return true, nil
		case "No", "Off", "Close", "Closed", "Low", "Disable", "Disabled", "0":
			return false, nil
		}
	}
	f, err := v.Float()
	if err != nil {
		return false, err
	}
	return f != 0, nil
}

// Put writes 1 for true and 0 for false
func (b Bool) Put(ctx context.Context, x bool) error {
	f := 0.
	if x {
		f = 1
	}
	return b.Net.Put(ctx, b.Name, FloatValue(f))
}

// Array is a waveform PV
type Array struct{ handle }

// NewArray binds an Array to a PV
func NewArray(net Network, name string) Array { return Array{handle{net, name}} }

// Get returns the current waveform
func (a Array) Get(ctx context.Context) ([]float64, error) {
	v, err := a.Net.Get(ctx, a.Name)
	if err != nil {
		return nil, err
	}
	switch v.Kind {
	case KindArray:
		return append([]float64(nil), v.Array...), nil
	case KindFloat:
		return []float64{v.Num}, nil
	}
	return nil, ErrWrongType
}

// Put writes a new waveform
func (a Array) Put(ctx context.Context, x []float64) error {
	return a.Net.Put(ctx, a.Name, ArrayValue(x))
}
