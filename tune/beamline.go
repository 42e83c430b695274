package tune

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/APS-USAXS/ipython-usaxs/devices"
	"github.com/APS-USAXS/ipython-usaxs/pv"
)

// ErrUnknownAxis is returned for an axis name with no tuner
var ErrUnknownAxis = errors.New("unknown tune axis")

// Ranges are the half widths of each tune scan, for about 12 keV
type Ranges struct {
	MR   float64 `koanf:"mr" yaml:"mr"`
	M2RP float64 `koanf:"m2rp" yaml:"m2rp"`
	AR   float64 `koanf:"ar" yaml:"ar"`
	A2RP float64 `koanf:"a2rp" yaml:"a2rp"`
	MSR  float64 `koanf:"msr" yaml:"msr"`
	ASR  float64 `koanf:"asr" yaml:"asr"`
}

// DefaultRanges are the ranges used when nothing is configured
func DefaultRanges() Ranges {
	return Ranges{MR: 0.0025, M2RP: 3, AR: 0.002, A2RP: 3, MSR: 3, ASR: 3}
}

// Widths are the PVs the current tune widths are published to
type Widths struct {
	MR, M2RP, AR, A2RP, MSR, ASR pv.Float
}

func newWidths(net pv.Network) Widths {
	const u = "9idcLAX:USAXS:tune_"
	return Widths{
		MR:   pv.NewFloat(net, u+"mr_range"),
		M2RP: pv.NewFloat(net, u+"m2rp_range"),
		AR:   pv.NewFloat(net, u+"ar_range"),
		A2RP: pv.NewFloat(net, u+"a2rp_range"),
		MSR:  pv.NewFloat(net, u+"msr_range"),
		ASR:  pv.NewFloat(net, u+"asr_range"),
	}
}

// scalerChannel reads a scaler channel found by name when it is needed, so the
// channel names may change between tunes
type scalerChannel struct {
	s    *devices.Scaler
	name string
}

func (c scalerChannel) Get(ctx context.Context) (float64, error) {
	ch, err := c.s.Channel(ctx, c.name)
	if err != nil {
		return 0, err
	}
	return ch.Get(ctx)
}

// Tuners are the beamline's tunable axes: mr, m2rp, ar, a2rp, msr and asr
type Tuners struct {
	Ranges Ranges
	Widths Widths

	// UsingMSStage tunes against I0 instead of I00
	UsingMSStage bool

	// UserSettings, when set, runs after the default ranges are restored
	UserSettings func(ctx context.Context, t *Tuners) error

	axes  map[string]*Axis
	order []string
	b     *devices.Beamline
	log   *zap.Logger
}

// New builds the tuners of b
func New(b *devices.Beamline, r Ranges, usingMSStage bool, log *zap.Logger) *Tuners {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Tuners{
		Ranges:       r,
		Widths:       newWidths(b.Net),
		UsingMSStage: usingMSStage,
		axes:         make(map[string]*Axis),
		b:            b,
		log:          log,
	}
	det := "I00"
	if usingMSStage {
		det = "I0"
	}
	s := b.Scaler0
	add := func(name string, m *devices.Motor, channel string, num int, pre, post Hook) {
		a := NewAxis(name, m, scalerChannel{s, channel}, s, log)
		a.Num = num
		a.PreTune, a.PostTune = pre, post
		t.axes[name] = a
		t.order = append(t.order, name)
	}
	ctr := &b.Terms.USAXS

	add("mr", b.MStage.R, det, 31,
		t.pretune(b.MStage.R, 31, func() float64 { return t.Ranges.MR }, 0.1, -1),
		t.posttune(b.MStage.R, func(ctx context.Context, a *Axis) error {
			return ctr.MrValCenter.Put(ctx, a.Center)
		}))
	add("m2rp", b.MStage.R2P, det, 21,
		t.pretune(b.MStage.R2P, 21, func() float64 { return t.Ranges.M2RP }, 0.1, 0.02),
		t.posttune(b.MStage.R2P, func(ctx context.Context, a *Axis) error {
			return s.Delay.Put(ctx, 0.05)
		}))
	add("ar", b.AStage.R, "I0", 35,
		t.pretune(b.AStage.R, 35, func() float64 { return t.Ranges.AR }, 0.1, -1),
		t.posttune(b.AStage.R, func(ctx context.Context, a *Axis) error {
			if !a.TuneOK {
				return nil
			}
			if err := ctr.ArValCenter.Put(ctx, a.Center); err != nil {
				return err
			}
			// the Q calculation needs the new 2theta0
			return b.USAXSQCalc.CopyAToB(ctx)
		}))
	add("a2rp", b.AStage.R2P, det, 31,
		t.pretune(b.AStage.R2P, 31, func() float64 { return t.Ranges.A2RP }, 0.1, 0.02),
		t.posttune(b.AStage.R2P, func(ctx context.Context, a *Axis) error {
			if a.TuneOK {
				if err := b.USAXSQCalc.CopyAToB(ctx); err != nil {
					return err
				}
			}
			return s.Delay.Put(ctx, 0.05)
		}))
	add("msr", b.MSStage.RP, det, 31,
		t.pretune(b.MSStage.RP, 31, func() float64 { return t.Ranges.MSR }, 0.1, -1),
		t.posttune(b.MSStage.RP, func(ctx context.Context, a *Axis) error {
			return ctr.MsrValCenter.Put(ctx, a.Center)
		}))
	add("asr", b.ASStage.RP, det, 31,
		t.pretune(b.ASStage.RP, 31, func() float64 { return t.Ranges.ASR }, 0.1, -1),
		t.posttune(b.ASStage.RP, func(ctx context.Context, a *Axis) error {
			return ctr.AsrValCenter.Put(ctx, a.Center)
		}))
	for _, a := range t.axes {
		a.Width = 2 * t.rangeOf(a.Name)
	}
	return t
}

// pretune logs the start position, sets the scan shape, and sets the scaler
// preset time.  A negative delay leaves the scaler delay alone.
func (t *Tuners) pretune(m *devices.Motor, num int, rng func() float64, preset, delay float64) Hook {
	return func(ctx context.Context, a *Axis) error {
		pos, err := m.Position(ctx)
		if err != nil {
			return err
		}
		t.log.Info(fmt.Sprintf("Tuning axis %s, current position is %g", m.Name, pos))
		a.PeakChoice = ChoiceCOM
		a.Num = num
		a.Width = 2 * rng()
		if err := t.b.Scaler0.PresetTime.Put(ctx, preset); err != nil {
			return err
		}
		if delay >= 0 {
			return t.b.Scaler0.Delay.Put(ctx, delay)
		}
		return nil
	}
}

func (t *Tuners) posttune(m *devices.Motor, after Hook) Hook {
	return func(ctx context.Context, a *Axis) error {
		pos, err := m.Position(ctx)
		if err != nil {
			return err
		}
		t.log.Info(fmt.Sprintf("Tuning axis %s, final position is %g", m.Name, pos))
		return after(ctx, a)
	}
}

func (t *Tuners) rangeOf(name string) float64 {
	switch name {
	case "mr":
		return t.Ranges.MR
	case "m2rp":
		return t.Ranges.M2RP
	case "ar":
		return t.Ranges.AR
	case "a2rp":
		return t.Ranges.A2RP
	case "msr":
		return t.Ranges.MSR
	case "asr":
		return t.Ranges.ASR
	}
	return 0
}

// Axis returns the tuner named name
func (t *Tuners) Axis(name string) (*Axis, error) {
	a, ok := t.axes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAxis, name)
	}
	return a, nil
}

// Names lists the axes in the order they were defined
func (t *Tuners) Names() []string {
	return append([]string(nil), t.order...)
}

// TuneAxes tunes each named axis in turn.  A failed tune is logged; it does
// not stop the others.
func (t *Tuners) TuneAxes(ctx context.Context, names ...string) error {
	for _, name := range names {
		a, err := t.Axis(name)
		if err != nil {
			return err
		}
		if err := a.Tune(ctx); err != nil {
			return err
		}
		if !a.TuneOK {
			t.log.Warn("tune did not find a peak", zap.String("axis", name))
		}
	}
	return nil
}

// DefaultTuneRanges restores every axis to the configured width
func (t *Tuners) DefaultTuneRanges(ctx context.Context) error {
	for name, a := range t.axes {
		a.Width = 2 * t.rangeOf(name)
	}
	return ctx.Err()
}

// UserDefinedSettings runs the UserSettings hook, if any
func (t *Tuners) UserDefinedSettings(ctx context.Context) error {
	if t.UserSettings == nil {
		return nil
	}
	return t.UserSettings(ctx, t)
}

// UpdateEPICSTuningWidths publishes the current tune widths
func (t *Tuners) UpdateEPICSTuningWidths(ctx context.Context) error {
	pairs := []struct {
		p    pv.Float
		axis string
	}{
		{t.Widths.MR, "mr"}, {t.Widths.M2RP, "m2rp"}, {t.Widths.AR, "ar"},
		{t.Widths.A2RP, "a2rp"}, {t.Widths.MSR, "msr"}, {t.Widths.ASR, "asr"},
	}
	for _, p := range pairs {
		if err := p.p.Put(ctx, t.axes[p.axis].Width); err != nil {
			return err
		}
	}
	return nil
}
