package plans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/APS-USAXS/ipython-usaxs/commandlist"
	"github.com/APS-USAXS/ipython-usaxs/metadata"
)

// Heater is a temperature controller a series can ramp
type Heater interface {
	SetRate(ctx context.Context, degPerMin float64) error
	SetTarget(ctx context.Context, target float64, wait bool, timeout time.Duration, timeoutFail bool) error
	Settled(ctx context.Context) (bool, error)
	Temperature(ctx context.Context) (float64, error)
}

// LinkamSeries describes a heating run: collect at Temp1 for Hold, then
// collect while ramping to Temp2, then collect once more
type LinkamSeries struct {
	Sample commandlist.Sample

	Temp1, Rate1 float64
	Hold         time.Duration
	Temp2, Rate2 float64

	// Timeout bounds the wait for Temp1; zero waits forever
	Timeout time.Duration
}

// sampleName labels a collection with the temperature and minutes elapsed
func sampleName(title string, temp float64, elapsed time.Duration) string {
	return fmt.Sprintf("%s_%.0fC_%.0fmin", title, temp+0.5, elapsed.Minutes())
}

// RunLinkamSeries runs the series on h in the USAXS, SAXS and WAXS
// geometries.  A failed collection is logged, the instrument is reset, and
// the series goes on.
func (i *Instrument) RunLinkamSeries(ctx context.Context, exec *commandlist.Executor, h Heater, ls LinkamSeries, md metadata.MD) error {
	if err := exec.BeforeCommandList(ctx, md, nil); err != nil {
		return err
	}
	if err := i.ModeUSAXS(ctx); err != nil {
		return err
	}
	if err := h.SetRate(ctx, ls.Rate1); err != nil {
		return err
	}
	if err := h.SetTarget(ctx, ls.Temp1, true, ls.Timeout, false); err != nil {
		return err
	}
	i.log().Info(fmt.Sprintf("Reached temperature, now collecting data for %v", ls.Hold))
	t0 := i.now()
	for i.now().Sub(t0) < ls.Hold {
		if err := i.collectAllThree(ctx, h, ls, t0, md); err != nil {
			return err
		}
	}
	i.log().Info(fmt.Sprintf("waited for %v, now changing temperature to %g C", ls.Hold, ls.Temp2))
	if err := h.SetRate(ctx, ls.Rate2); err != nil {
		return err
	}
	if err := h.SetTarget(ctx, ls.Temp2, false, 0, false); err != nil {
		return err
	}
	for {
		settled, err := h.Settled(ctx)
		if err != nil {
			return err
		}
		if settled {
			break
		}
		if err := i.collectAllThree(ctx, h, ls, t0, md); err != nil {
			return err
		}
	}
	i.log().Info(fmt.Sprintf("reached %g C", ls.Temp2))
	if err := i.collectAllThree(ctx, h, ls, t0, md); err != nil {
		return err
	}
	if err := exec.AfterCommandList(ctx); err != nil {
		return err
	}
	i.log().Info("finished")
	return nil
}

// collectAllThree runs a USAXS scan, a SAXS image and a WAXS image, each
// titled with the temperature at its start.  Only cancellation stops it.
func (i *Instrument) collectAllThree(ctx context.Context, h Heater, ls LinkamSeries, t0 time.Time, md metadata.MD) error {
	for _, run := range []func(context.Context, commandlist.Sample, metadata.MD) error{i.USAXSScan, i.SAXS, i.WAXS} {
		temp, err := h.Temperature(ctx)
		if err != nil {
			return err
		}
		s := ls.Sample
		s.Title = sampleName(ls.Sample.Title, temp, i.now().Sub(t0))
		err = run(ctx, s, metadata.Merge(md, metadata.MD{"title": s.Title}))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrStopRequested) {
			return err
		}
		if err != nil {
			i.log().Error("collection failed", zap.String("title", s.Title), zap.Error(err))
			if rerr := i.ResetUSAXS(ctx); rerr != nil {
				i.log().Error("reset after failed collection", zap.Error(rerr))
			}
		}
	}
	return nil
}

// ResetUSAXS puts the instrument back to rest after a failed measurement:
// the USAXS shutter closed, the scanning and collecting flags cleared, and
// the analyzer back at its center
func (i *Instrument) ResetUSAXS(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	b := i.B
	t := b.Terms
	var first error
	for _, step := range []func() error{
		func() error { return i.state(ctx, "resetting USAXS") },
		func() error { return b.USAXSShutter.Close(ctx) },
		func() error { return t.USAXS.Scanning.Put(ctx, 0) },
		func() error { return t.SAXS.Collecting.Put(ctx, 0) },
		func() error { return t.WAXS.Collecting.Put(ctx, 0) },
		func() error {
			ar0, err := t.USAXS.ArValCenter.Get(ctx)
			if err != nil {
				return err
			}
			return b.AStage.R.Move(ctx, ar0)
		},
	} {
		if err := step(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
