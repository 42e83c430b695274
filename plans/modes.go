package plans

import (
	"context"
	"fmt"

	"github.com/APS-USAXS/ipython-usaxs/devices"
	"github.com/APS-USAXS/ipython-usaxs/pv"
)

// stageMove is one motor and the terms PV holding where it goes
type stageMove struct {
	m  *devices.Motor
	at pv.Float
}

func (i *Instrument) moveTo(ctx context.Context, moves ...stageMove) error {
	targets := make([]devices.Target, 0, len(moves))
	for _, mv := range moves {
		pos, err := mv.at.Get(ctx)
		if err != nil {
			return fmt.Errorf("position for %s: %w", mv.m.Name, err)
		}
		targets = append(targets, devices.Target{P: mv.m, Pos: pos})
	}
	return devices.MoveMotors(ctx, targets...)
}

// slits opens the beam defining and guard slits to the sizes in the terms
func (i *Instrument) slits(ctx context.Context, h, v, gh, gv pv.Float) error {
	var sizes [4]float64
	for k, p := range []pv.Float{h, v, gh, gv} {
		x, err := p.Get(ctx)
		if err != nil {
			return err
		}
		sizes[k] = x
	}
	if err := i.B.USAXSSlit.SetSize(ctx, &sizes[0], &sizes[1]); err != nil {
		return err
	}
	return i.B.GuardSlit.SetSize(ctx, &sizes[2], &sizes[3])
}

func (i *Instrument) mode(ctx context.Context) (string, error) {
	return i.B.Terms.SAXS.UsaxsSaxsMode.Get(ctx)
}

func (i *Instrument) setMode(ctx context.Context, mode string) error {
	return i.B.Terms.SAXS.UsaxsSaxsMode.Put(ctx, mode)
}

func (i *Instrument) saxsOut(ctx context.Context) error {
	b, s := i.B, i.B.Terms.SAXS
	return i.moveTo(ctx, stageMove{b.SAXSStage.Y, s.YOut}, stageMove{b.SAXSStage.Z, s.ZOut})
}

func (i *Instrument) waxsOut(ctx context.Context) error {
	return i.moveTo(ctx, stageMove{i.B.WAXSX, i.B.Terms.WAXS.XOut})
}

// changeMode closes the shutter, marks the geometry dirty, runs the moves,
// and records the new mode.  Nothing moves when already in mode.
func (i *Instrument) changeMode(ctx context.Context, mode, label string, moves ...func(context.Context) error) error {
	now, err := i.mode(ctx)
	if err != nil {
		return err
	}
	if now == mode {
		i.log().Info(fmt.Sprintf("instrument is already in %s mode", label))
		return nil
	}
	if err := i.state(ctx, fmt.Sprintf("Moving USAXS to %s mode", label)); err != nil {
		return err
	}
	if err := i.B.USAXSShutter.Close(ctx); err != nil {
		return err
	}
	if err := i.B.CCDShutter.Close(ctx); err != nil {
		return err
	}
	if err := i.setMode(ctx, devices.ModeDirty); err != nil {
		return err
	}
	for _, mv := range moves {
		if err := mv(ctx); err != nil {
			return err
		}
	}
	if err := i.setMode(ctx, mode); err != nil {
		return err
	}
	return i.state(ctx, fmt.Sprintf("USAXS is in %s mode", label))
}

// ModeUSAXS moves the SAXS and WAXS detectors out and the analyzer in
func (i *Instrument) ModeUSAXS(ctx context.Context) error {
	b, s := i.B, i.B.Terms.SAXS
	return i.changeMode(ctx, devices.ModeUSAXSInBeam, "USAXS",
		i.waxsOut, i.saxsOut,
		func(ctx context.Context) error {
			return i.moveTo(ctx, stageMove{b.AStage.X, s.AxOut}, stageMove{b.DStage.X, s.DxOut})
		},
		func(ctx context.Context) error {
			return i.slits(ctx, s.USAXSHSize, s.USAXSVSize, s.USAXSGuardHSize, s.USAXSGuardVSize)
		})
}

// ModeSAXS moves the analyzer and WAXS detector aside and the SAXS detector in
func (i *Instrument) ModeSAXS(ctx context.Context) error {
	b, s := i.B, i.B.Terms.SAXS
	return i.changeMode(ctx, devices.ModeSAXSInBeam, "SAXS",
		i.waxsOut,
		func(ctx context.Context) error {
			return i.moveTo(ctx, stageMove{b.AStage.X, s.AxIn}, stageMove{b.DStage.X, s.DxIn})
		},
		func(ctx context.Context) error {
			return i.moveTo(ctx, stageMove{b.SAXSStage.Y, s.YIn}, stageMove{b.SAXSStage.Z, s.ZIn})
		},
		func(ctx context.Context) error {
			return i.slits(ctx, s.HSize, s.VSize, s.GuardHSize, s.GuardVSize)
		})
}

// ModeWAXS moves the analyzer and SAXS detector aside and the WAXS detector in
func (i *Instrument) ModeWAXS(ctx context.Context) error {
	b, s, w := i.B, i.B.Terms.SAXS, i.B.Terms.WAXS
	return i.changeMode(ctx, devices.ModeWAXSInBeam, "WAXS",
		i.saxsOut,
		func(ctx context.Context) error {
			return i.moveTo(ctx, stageMove{b.AStage.X, s.AxIn}, stageMove{b.DStage.X, s.DxIn})
		},
		func(ctx context.Context) error { return i.moveTo(ctx, stageMove{b.WAXSX, w.XIn}) },
		func(ctx context.Context) error {
			return i.slits(ctx, s.HSize, s.VSize, s.GuardHSize, s.GuardVSize)
		})
}

// ModeRadiography puts the USAXS optics in and opens the imaging camera shutter
func (i *Instrument) ModeRadiography(ctx context.Context) error {
	b, s, im := i.B, i.B.Terms.SAXS, i.B.Terms.Imaging
	err := i.changeMode(ctx, devices.ModeRadiography, "Radiography",
		i.waxsOut, i.saxsOut,
		func(ctx context.Context) error {
			return i.moveTo(ctx, stageMove{b.AStage.X, im.AxIn}, stageMove{b.DStage.X, s.DxOut})
		},
		func(ctx context.Context) error {
			return i.slits(ctx, im.HSize, im.VSize, im.GuardHSize, im.GuardVSize)
		})
	if err != nil {
		return err
	}
	if err := i.openShutters(ctx); err != nil {
		return err
	}
	return b.CCDShutter.Open(ctx)
}
