package tune

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/APS-USAXS/ipython-usaxs/util"
)

// Mover is an axis that can be positioned
type Mover interface {
	Position(ctx context.Context) (float64, error)
	Move(ctx context.Context, pos float64) error
}

// Detector reads the signal being maximized
type Detector interface {
	Get(ctx context.Context) (float64, error)
}

// Counter triggers the detector before each reading
type Counter interface {
	Count(ctx context.Context) error
}

// Hook runs before or after a tune
type Hook func(ctx context.Context, a *Axis) error

const (
	// DefaultPeakFactor is how much larger than the least reading the peak must be
	DefaultPeakFactor = 4

	// DefaultMinimumPoints is the fewest readings a tune accepts
	DefaultMinimumPoints = 3

	// DefaultStepFactor divides the width between passes of MultiPassTune
	DefaultStepFactor = 4

	// DefaultPassMax is the most passes MultiPassTune makes
	DefaultPassMax = 6
)

// Axis tunes one motor against a detector
type Axis struct {
	Name     string
	Motor    Mover
	Detector Detector
	Counter  Counter

	Num        int
	Width      float64
	PeakChoice Choice

	PeakFactor    float64
	MinimumPoints int
	StepFactor    float64
	PassMax       int

	PreTune, PostTune Hook

	// TuneOK, Center and Stats are the result of the last pass
	TuneOK bool
	Center float64
	Stats  Stats

	Log *zap.Logger
}

// NewAxis returns an Axis with the usual peak acceptance settings
func NewAxis(name string, m Mover, det Detector, counter Counter, log *zap.Logger) *Axis {
	if log == nil {
		log = zap.NewNop()
	}
	return &Axis{
		Name:          name,
		Motor:         m,
		Detector:      det,
		Counter:       counter,
		Num:           10,
		Width:         1,
		PeakChoice:    ChoiceCOM,
		PeakFactor:    DefaultPeakFactor,
		MinimumPoints: DefaultMinimumPoints,
		StepFactor:    DefaultStepFactor,
		PassMax:       DefaultPassMax,
		Log:           log,
	}
}

func (a *Axis) log() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}

// PeakDetected reports whether s is a usable peak
func (a *Axis) PeakDetected(s Stats) bool {
	if s.N < a.MinimumPoints {
		return false
	}
	if !(s.MaxY > a.PeakFactor*s.MinY) {
		return false
	}
	return !math.IsNaN(s.FWHM) && !math.IsInf(s.FWHM, 0) && s.FWHM != 0
}

func (a *Axis) read(ctx context.Context) (float64, error) {
	if a.Counter != nil {
		if err := a.Counter.Count(ctx); err != nil {
			return 0, err
		}
	}
	return a.Detector.Get(ctx)
}

// pass scans Num points over center +/- width/2 and then moves to the peak,
// or back to center when there is none
func (a *Axis) pass(ctx context.Context, width float64) error {
	start, err := a.Motor.Position(ctx)
	if err != nil {
		return err
	}
	xs := util.Linspace(start-width/2, start+width/2, a.Num)
	ys := make([]float64, 0, len(xs))
	for _, x := range xs {
		if err := a.Motor.Move(ctx, x); err != nil {
			return err
		}
		y, err := a.read(ctx)
		if err != nil {
			return fmt.Errorf("tuning %s at %g: %w", a.Name, x, err)
		}
		ys = append(ys, y)
	}
	a.Stats, err = PeakStats(xs, ys)
	if err != nil {
		return err
	}
	a.TuneOK = a.PeakDetected(a.Stats)
	final := start
	if a.TuneOK {
		final = a.Stats.Position(a.PeakChoice)
		if math.IsNaN(final) {
			a.TuneOK = false
			final = start
		}
	}
	a.Center = final
	a.log().Info("tune pass", zap.String("axis", a.Name), zap.Bool("tune_ok", a.TuneOK),
		zap.Float64("start", start), zap.Float64("final", final),
		zap.Float64("com", a.Stats.COM), zap.Float64("fwhm", a.Stats.FWHM))
	return a.Motor.Move(ctx, final)
}

func (a *Axis) hook(ctx context.Context, h Hook) error {
	if h == nil {
		return nil
	}
	return h(ctx, a)
}

// Tune runs PreTune, one scan at Width, then PostTune
func (a *Axis) Tune(ctx context.Context) error {
	if err := a.hook(ctx, a.PreTune); err != nil {
		return err
	}
	if err := a.pass(ctx, a.Width); err != nil {
		return err
	}
	return a.hook(ctx, a.PostTune)
}

// MultiPassTune runs PreTune, then scans repeatedly, dividing the width by
// StepFactor after each good pass, until a pass finds no peak or PassMax
// passes were made, then runs PostTune.  TuneOK keeps the result of the last
// pass that was made.
func (a *Axis) MultiPassTune(ctx context.Context) error {
	if err := a.hook(ctx, a.PreTune); err != nil {
		return err
	}
	width := a.Width
	for i := 0; i < a.PassMax; i++ {
		if err := a.pass(ctx, width); err != nil {
			return err
		}
		if !a.TuneOK {
			if i == 0 {
				a.log().Warn("no peak on the first pass", zap.String("axis", a.Name))
			}
			break
		}
		if a.StepFactor > 0 {
			width /= a.StepFactor
		}
	}
	return a.hook(ctx, a.PostTune)
}
