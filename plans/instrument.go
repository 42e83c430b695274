// Package plans holds the experiment procedures of the USAXS instrument:
// the scans, the tunes and the changes between USAXS, SAXS, WAXS and
// radiography geometry.
package plans

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/APS-USAXS/ipython-usaxs/commandlist"
	"github.com/APS-USAXS/ipython-usaxs/devices"
	"github.com/APS-USAXS/ipython-usaxs/metadata"
	"github.com/APS-USAXS/ipython-usaxs/tune"
)

// ErrStopRequested is returned when the operator asked to stop before the
// next scan
var ErrStopRequested = errors.New("stop before next scan requested")

// Instrument runs procedures on the beamline
type Instrument struct {
	B      *devices.Beamline
	Tuners *tune.Tuners

	// MD is recorded with every procedure, under the caller's md
	MD metadata.MD

	// PausePoll is how often a paused instrument checks to continue
	PausePoll time.Duration

	// LastScan, LastFile and Background are the results of the latest
	// USAXS scan, area detector image, and dark current measurement
	LastScan   []ScanPoint
	LastFile   string
	Background map[string]float64

	Log *zap.Logger
	Now func() time.Time
}

var _ commandlist.Procedures = (*Instrument)(nil)

// New returns an Instrument for b
func New(b *devices.Beamline, t *tune.Tuners, log *zap.Logger) *Instrument {
	if log == nil {
		log = zap.NewNop()
	}
	return &Instrument{B: b, Tuners: t, PausePoll: time.Second, Log: log}
}

func (i *Instrument) now() time.Time {
	if i.Now == nil {
		return time.Now()
	}
	return i.Now()
}

func (i *Instrument) log() *zap.Logger {
	if i.Log == nil {
		return zap.NewNop()
	}
	return i.Log
}

// Executor returns a command list executor that runs on i
func (i *Instrument) Executor(opts commandlist.Options) *commandlist.Executor {
	return &commandlist.Executor{
		Beamline: i.B,
		Procs:    i,
		Tuners:   i.Tuners,
		Options:  opts,
		MD:       i.MD,
		Log:      i.Log,
		Now:      i.Now,
	}
}

// state writes msg to the state PV and the log
func (i *Instrument) state(ctx context.Context, msg string) error {
	i.log().Info(msg)
	return i.B.UserData.SetState(ctx, msg)
}

// checkpoint honors the operator's pause and stop requests
func (i *Instrument) checkpoint(ctx context.Context) error {
	t := i.B.Terms
	stop, err := t.StopBeforeNextScan.Get(ctx)
	if err != nil {
		return err
	}
	if stop {
		if err := t.StopBeforeNextScan.Put(ctx, false); err != nil {
			return err
		}
		return ErrStopRequested
	}
	announced := false
	for {
		pause, err := t.PauseBeforeNextScan.Get(ctx)
		if err != nil || !pause {
			return err
		}
		if !announced {
			if err := i.state(ctx, "Paused by operator, waiting"); err != nil {
				return err
			}
			announced = true
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(i.PausePoll):
		}
	}
}

// moveSample moves the sample stage and records what is in the beam
func (i *Instrument) moveSample(ctx context.Context, s commandlist.Sample) error {
	b := i.B
	if err := devices.MoveMotors(ctx,
		devices.Target{P: b.SStage.X, Pos: s.X},
		devices.Target{P: b.SStage.Y, Pos: s.Y}); err != nil {
		return err
	}
	if err := b.UserData.SampleTitle.Put(ctx, s.Title); err != nil {
		return err
	}
	return b.UserData.SampleThickness.Put(ctx, s.Thickness)
}

// openShutters opens the mono and USAXS shutters for a measurement
func (i *Instrument) openShutters(ctx context.Context) error {
	if err := i.B.MonoShutter.Open(ctx); err != nil {
		return err
	}
	return i.B.USAXSShutter.Open(ctx)
}

// measure wraps a data collection with the before and after plan steps
func (i *Instrument) measure(ctx context.Context, md metadata.MD, collect func(metadata.MD) error) error {
	if err := i.checkpoint(ctx); err != nil {
		return err
	}
	md = metadata.Merge(i.MD, md)
	if err := commandlist.BeforePlan(ctx, i.B, i, md, i.now()); err != nil {
		return err
	}
	if err := collect(md); err != nil {
		return err
	}
	return commandlist.AfterPlan(ctx, i.B, 1)
}
