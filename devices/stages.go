package devices

import (
	"context"
	"errors"

	"github.com/APS-USAXS/ipython-usaxs/pv"
)

// ErrSlitSize is returned when a slit is asked to move with only one dimension
var ErrSlitSize = errors.New("must define both horizontal and vertical size")

// SampleStage holds the sample
type SampleStage struct {
	X, Y *Motor
}

// DetectorStage carries the USAXS photodiode
type DetectorStage struct {
	X, Y *Motor
}

// CollimatorStage is the monochromator crystal stage
type CollimatorStage struct {
	R, X, Y, R2P *Motor
}

// CollimatorSideStage is the side-reflection collimator stage
type CollimatorSideStage struct {
	X, Y, RP *Motor
}

// AnalyzerStage is the analyzer crystal stage
type AnalyzerStage struct {
	R, X, Y, Z, R2P, RT *Motor
}

// AnalyzerSideStage is the side-reflection analyzer stage
type AnalyzerSideStage struct {
	Y, RP *Motor
}

// SAXSStage carries the pinhole SAXS detector
type SAXSStage struct {
	X, Y, Z *Motor
}

// USAXSSlit is the slit just before the sample
type USAXSSlit struct {
	HSize, X, VSize, Y *Motor
}

// SetSize opens the slit to h by v, moving both blades together
func (s *USAXSSlit) SetSize(ctx context.Context, h, v *float64) error {
	if h == nil || v == nil {
		return ErrSlitSize
	}
	return MoveMotors(ctx, Target{s.HSize, *h}, Target{s.VSize, *v})
}

// GuardSlit is the guard slit.  Its size is set through calc records.
type GuardSlit struct {
	Bot, Inb, Outb, Top, X, Y *Motor

	HSize, VSize SignalPositioner
}

// SetSize sets the guard slit aperture
func (s *GuardSlit) SetSize(ctx context.Context, h, v *float64) error {
	if h == nil || v == nil {
		return ErrSlitSize
	}
	return MoveMotors(ctx, Target{s.HSize, *h}, Target{s.VSize, *v})
}

func newStages(net pv.Network, b *Beamline) {
	mk := func(name, prefix string, labels ...string) *Motor {
		m := NewMotor(net, name, prefix, labels...)
		b.addMotor(m)
		return m
	}
	b.GuardSlit = &GuardSlit{
		Bot:   mk("guard_slit.bot", "9idcLAX:mxv:c0:m6", "gslit"),
		Inb:   mk("guard_slit.inb", "9idcLAX:mxv:c0:m4", "gslit"),
		Outb:  mk("guard_slit.outb", "9idcLAX:mxv:c0:m3", "gslit"),
		Top:   mk("guard_slit.top", "9idcLAX:mxv:c0:m5", "gslit"),
		X:     mk("guard_slit.x", "9idcLAX:m58:c1:m5", "gslit"),
		Y:     mk("guard_slit.y", "9idcLAX:m58:c0:m6", "gslit"),
		HSize: SignalPositioner{pv.NewFloat(net, "9idcLAX:GSlit1H:size")},
		VSize: SignalPositioner{pv.NewFloat(net, "9idcLAX:GSlit1V:size")},
	}
	b.USAXSSlit = &USAXSSlit{
		HSize: mk("usaxs_slit.h_size", "9idcLAX:m58:c2:m8", "uslit"),
		X:     mk("usaxs_slit.x", "9idcLAX:m58:c2:m6", "uslit"),
		VSize: mk("usaxs_slit.v_size", "9idcLAX:m58:c2:m7", "uslit"),
		Y:     mk("usaxs_slit.y", "9idcLAX:m58:c2:m5", "uslit"),
	}
	b.SStage = &SampleStage{
		X: mk("s_stage.x", "9idcLAX:m58:c2:m1", "sample"),
		Y: mk("s_stage.y", "9idcLAX:m58:c2:m2", "sample"),
	}
	b.DStage = &DetectorStage{
		X: mk("d_stage.x", "9idcLAX:m58:c2:m3", "detector"),
		Y: mk("d_stage.y", "9idcLAX:aero:c2:m1", "detector"),
	}
	b.MStage = &CollimatorStage{
		R:   mk("m_stage.r", "9idcLAX:aero:c3:m1", "collimator", "tunable"),
		X:   mk("m_stage.x", "9idcLAX:m58:c0:m2", "collimator"),
		Y:   mk("m_stage.y", "9idcLAX:m58:c0:m3", "collimator"),
		R2P: mk("m_stage.r2p", "9idcLAX:pi:c0:m2", "collimator", "tunable"),
	}
	b.MSStage = &CollimatorSideStage{
		X:  mk("ms_stage.x", "9idcLAX:m58:c1:m1", "side_collimator"),
		Y:  mk("ms_stage.y", "9idcLAX:m58:c1:m2"),
		RP: mk("ms_stage.rp", "9idcLAX:pi:c0:m3", "side_collimator", "tunable"),
	}
	b.AStage = &AnalyzerStage{
		R:   mk("a_stage.r", "9idcLAX:aero:c0:m1", "analyzer", "tunable"),
		X:   mk("a_stage.x", "9idcLAX:m58:c0:m5", "analyzer"),
		Y:   mk("a_stage.y", "9idcLAX:aero:c1:m1", "analyzer"),
		Z:   mk("a_stage.z", "9idcLAX:m58:c0:m7", "analyzer"),
		R2P: mk("a_stage.r2p", "9idcLAX:pi:c0:m1", "analyzer", "tunable"),
		RT:  mk("a_stage.rt", "9idcLAX:m58:c1:m3", "analyzer"),
	}
	b.ASStage = &AnalyzerSideStage{
		Y:  mk("as_stage.y", "9idcLAX:m58:c1:m4", "analyzer"),
		RP: mk("as_stage.rp", "9idcLAX:pi:c0:m4", "analyzer", "tunable"),
	}
	b.SAXSStage = &SAXSStage{
		X: mk("saxs_stage.x", "9idcLAX:mxv:c0:m1", "saxs"),
		Y: mk("saxs_stage.y", "9idcLAX:mxv:c0:m8", "saxs"),
		Z: mk("saxs_stage.z", "9idcLAX:mxv:c0:m2", "saxs"),
	}
	b.CamY = mk("camy", "9idcLAX:m58:c1:m7")
	b.TCam = mk("tcam", "9idcLAX:m58:c1:m6")
	b.Tens = mk("tens", "9idcLAX:m58:c1:m8")
	b.WAXSX = mk("waxsx", "9idcLAX:m58:c0:m4", "waxs")
}
