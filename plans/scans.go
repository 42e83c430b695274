package plans

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/APS-USAXS/ipython-usaxs/commandlist"
	"github.com/APS-USAXS/ipython-usaxs/devices"
	"github.com/APS-USAXS/ipython-usaxs/metadata"
	"github.com/APS-USAXS/ipython-usaxs/pv"
	"github.com/APS-USAXS/ipython-usaxs/util"
)

// ErrNoTuners is returned by the tune procedures of an Instrument with no tuners
var ErrNoTuners = errors.New("no tuners configured")

// BackgroundChannels are the scaler channels whose dark currents are measured
var BackgroundChannels = []string{"upd2", "I0", "I00", "trd"}

// ScanPoint is one reading of a USAXS scan
type ScanPoint struct {
	AR  float64
	I0  float64
	UPD float64
}

// USAXSScan steps the analyzer across the USAXS range, counting the
// photodiode and I0 at each point.  With the fly scan enabled the AR
// trajectory is published for the fly scan hardware too.
func (i *Instrument) USAXSScan(ctx context.Context, s commandlist.Sample, md metadata.MD) error {
	return i.measure(ctx, md, func(md metadata.MD) (err error) {
		b := i.B
		u := &b.Terms.USAXS
		if err := i.ModeUSAXS(ctx); err != nil {
			return err
		}
		if err := i.moveSample(ctx, s); err != nil {
			return err
		}
		if err := i.state(ctx, "USAXS scan for "+s.Title); err != nil {
			return err
		}
		center, err := u.ArValCenter.Get(ctx)
		if err != nil {
			return err
		}
		offset, err := u.StartOffset.Get(ctx)
		if err != nil {
			return err
		}
		finish, err := u.Finish.Get(ctx)
		if err != nil {
			return err
		}
		n, err := u.NumPoints.Get(ctx)
		if err != nil {
			return err
		}
		count, err := u.CountTime.Get(ctx)
		if err != nil {
			return err
		}
		positions := util.Linspace(center+offset, finish, n)
		if err := b.ARStart.Put(ctx, positions[0]); err != nil {
			return err
		}
		fly, err := b.Terms.FlyScan.UseFlyscan.Get(ctx)
		if err != nil {
			return err
		}
		if fly {
			tr := b.FlyScanTrajectories
			if err := tr.AR.Put(ctx, positions); err != nil {
				return err
			}
			if err := tr.NumPulsePositions.Put(ctx, len(positions)); err != nil {
				return err
			}
		}
		if err := b.Scaler0.PresetTime.Put(ctx, count); err != nil {
			return err
		}
		defer func() {
			// runs on failure and cancellation too
			cctx := context.WithoutCancel(ctx)
			if serr := u.Scanning.Put(cctx, 0); err == nil {
				err = serr
			}
			if cerr := b.USAXSShutter.Close(cctx); err == nil {
				err = cerr
			}
		}()
		if err := i.openShutters(ctx); err != nil {
			return err
		}
		if err := u.Scanning.Put(ctx, 1); err != nil {
			return err
		}
		points, err := i.stepAR(ctx, positions)
		i.LastScan = points
		if err != nil {
			return err
		}
		order, err := b.Terms.FlyScan.OrderNumber.Get(ctx)
		if err != nil {
			return err
		}
		if err := b.Terms.FlyScan.OrderNumber.Put(ctx, order+1); err != nil {
			return err
		}
		i.log().Info("USAXS scan finished", zap.String("title", s.Title),
			zap.Int("points", len(points)), zap.Any("line_number", md["line_number"]))
		return nil
	})
}

func (i *Instrument) stepAR(ctx context.Context, positions []float64) ([]ScanPoint, error) {
	b := i.B
	points := make([]ScanPoint, 0, len(positions))
	for _, ar := range positions {
		if err := b.AStage.R.Move(ctx, ar); err != nil {
			return points, err
		}
		if err := b.Scaler0.Count(ctx); err != nil {
			return points, err
		}
		p := ScanPoint{AR: ar}
		for _, ch := range []struct {
			name string
			dst  *float64
		}{{"I0", &p.I0}, {"upd2", &p.UPD}} {
			c, err := b.Scaler0.Channel(ctx, ch.name)
			if err != nil {
				return points, err
			}
			if *ch.dst, err = c.Get(ctx); err != nil {
				return points, err
			}
		}
		points = append(points, p)
	}
	return points, nil
}

// areaDetector runs one HDF5 staged acquisition
type areaDetector struct {
	label       string
	det         *devices.AreaDetector
	mode        func(context.Context) error
	collecting  pv.Int
	acquireTime pv.Float
	numImages   pv.Int
}

func (i *Instrument) collect(ctx context.Context, a areaDetector, s commandlist.Sample, md metadata.MD) error {
	return i.measure(ctx, md, func(md metadata.MD) (err error) {
		if err := a.mode(ctx); err != nil {
			return err
		}
		if err := i.moveSample(ctx, s); err != nil {
			return err
		}
		if err := i.state(ctx, fmt.Sprintf("%s collection for %s", a.label, s.Title)); err != nil {
			return err
		}
		t, err := a.acquireTime.Get(ctx)
		if err != nil {
			return err
		}
		n, err := a.numImages.Get(ctx)
		if err != nil {
			return err
		}
		if n < 1 {
			n = 1
		}
		if err := a.det.Cam.AcquireTime.Put(ctx, t); err != nil {
			return err
		}
		if err := a.det.Cam.NumImages.Put(ctx, n); err != nil {
			return err
		}
		defer func() {
			cctx := context.WithoutCancel(ctx)
			if uerr := a.det.Unstage(cctx); err == nil {
				err = uerr
			}
			if cerr := a.collecting.Put(cctx, 0); err == nil {
				err = cerr
			}
			if cerr := i.B.USAXSShutter.Close(cctx); err == nil {
				err = cerr
			}
		}()
		if err := i.openShutters(ctx); err != nil {
			return err
		}
		if err := a.collecting.Put(ctx, 1); err != nil {
			return err
		}
		sf, err := a.det.Stage(ctx, i.now())
		if err != nil {
			return err
		}
		if err := a.det.Acquire(ctx); err != nil {
			return err
		}
		i.LastFile = sf.FullName
		i.log().Info(a.label+" image written", zap.String("file", sf.FullName),
			zap.String("title", s.Title), zap.Any("line_number", md["line_number"]))
		return nil
	})
}

// SAXS collects a pinhole SAXS image
func (i *Instrument) SAXS(ctx context.Context, s commandlist.Sample, md metadata.MD) error {
	t := i.B.Terms.SAXS
	return i.collect(ctx, areaDetector{
		label:       "SAXS",
		det:         i.B.SAXSDet,
		mode:        i.ModeSAXS,
		collecting:  t.Collecting,
		acquireTime: t.AcquireTime,
		numImages:   t.NumImages,
	}, s, md)
}

// WAXS collects a WAXS image
func (i *Instrument) WAXS(ctx context.Context, s commandlist.Sample, md metadata.MD) error {
	t := i.B.Terms.WAXS
	return i.collect(ctx, areaDetector{
		label:       "WAXS",
		det:         i.B.WAXSDet,
		mode:        i.ModeWAXS,
		collecting:  t.Collecting,
		acquireTime: t.AcquireTime,
		numImages:   t.NumImages,
	}, s, md)
}

func (i *Instrument) tune(ctx context.Context, label string, axes ...string) error {
	if i.Tuners == nil {
		return ErrNoTuners
	}
	b := i.B
	if err := i.openShutters(ctx); err != nil {
		return err
	}
	if err := i.state(ctx, label); err != nil {
		return err
	}
	if err := i.Tuners.TuneAxes(ctx, axes...); err != nil {
		return err
	}
	if err := b.Terms.PreUSAXSTune.Done(ctx, i.now()); err != nil {
		return err
	}
	return i.state(ctx, label+" finished")
}

// PreUSAXSTune puts the instrument in USAXS mode and tunes the optics,
// at the tune location when one is set
func (i *Instrument) PreUSAXSTune(ctx context.Context, md metadata.MD) error {
	b := i.B
	p := b.Terms.PreUSAXSTune
	if err := i.ModeUSAXS(ctx); err != nil {
		return err
	}
	specific, err := p.UseSpecificLocation.Get(ctx)
	if err != nil {
		return err
	}
	if specific {
		x, err := p.SX.Get(ctx)
		if err != nil {
			return err
		}
		y, err := p.SY.Get(ctx)
		if err != nil {
			return err
		}
		if err := devices.MoveMotors(ctx, devices.Target{P: b.SStage.X, Pos: x}, devices.Target{P: b.SStage.Y, Pos: y}); err != nil {
			return err
		}
	}
	axes := []string{"mr", "m2rp", "ar", "a2rp"}
	if b.Terms.USAXS.UseMSStage {
		axes = append(axes, "msr")
	}
	if b.Terms.USAXS.UseSBUSAXS {
		axes = append(axes, "asr")
	}
	return i.tune(ctx, "pre-USAXS optics tune", axes...)
}

// PreSWAXSTune tunes the collimating crystals without leaving the SAXS or
// WAXS geometry
func (i *Instrument) PreSWAXSTune(ctx context.Context, md metadata.MD) error {
	return i.tune(ctx, "pre-SWAXS optics tune", "mr", "m2rp")
}

// MeasureBackground counts with the beam off and records the dark rate of
// each BackgroundChannels channel, in counts per second
func (i *Instrument) MeasureBackground(ctx context.Context) error {
	b := i.B
	if err := b.USAXSShutter.Close(ctx); err != nil {
		return err
	}
	if err := i.state(ctx, "measuring dark currents"); err != nil {
		return err
	}
	preset, err := b.Scaler0.PresetTime.Get(ctx)
	if err != nil {
		return err
	}
	if err := b.Scaler0.Count(ctx); err != nil {
		return err
	}
	bg := make(map[string]float64, len(BackgroundChannels))
	for _, name := range BackgroundChannels {
		c, err := b.Scaler0.Channel(ctx, name)
		if err != nil {
			return err
		}
		counts, err := c.Get(ctx)
		if err != nil {
			return err
		}
		if preset > 0 {
			counts /= preset
		}
		bg[name] = counts
		i.log().Info("dark current", zap.String("channel", name), zap.Float64("rate", counts))
	}
	i.Background = bg
	return nil
}
