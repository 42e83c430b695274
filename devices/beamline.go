// Package devices is the registry of the 9-ID-C USAXS/SAXS/WAXS instrument:
// motors, slits, shutters, filters, the scaler, area detectors, and the
// slow-control parameter caches, each bound to its EPICS PVs.
package devices

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/APS-USAXS/ipython-usaxs/process"
	"github.com/APS-USAXS/ipython-usaxs/pv"
)

// ErrNotFound is returned when a device name is not in the registry
var ErrNotFound = errors.New("no such device")

// Autosave controls the autosave task in an IOC
type Autosave struct {
	Disable pv.Int
	MaxTime pv.Float
}

// Trajectories are the fly scan trajectory waveforms
type Trajectories struct {
	AR, AY, DY        pv.Array
	NumPulsePositions pv.Int
}

// Beamline is the assembled registry
type Beamline struct {
	Net pv.Network
	Log *zap.Logger

	GuardSlit *GuardSlit
	USAXSSlit *USAXSSlit
	SStage    *SampleStage
	DStage    *DetectorStage
	MStage    *CollimatorStage
	MSStage   *CollimatorSideStage
	AStage    *AnalyzerStage
	ASStage   *AnalyzerSideStage
	SAXSStage *SAXSStage

	CamY, TCam, Tens, WAXSX *Motor

	FEShutter   *ApsPssShutter
	MonoShutter *ApsPssShutter

	// TiFilterShutter is the same device as USAXSShutter
	USAXSShutter    *InOutShutter
	TiFilterShutter *InOutShutter
	CCDShutter      *InOutShutter

	Pf4AlTi  *DualPf4FilterBox
	Pf4Glass *DualPf4FilterBox

	Scaler0 *Scaler

	SAXSDet  *AreaDetector // Pilatus 100k
	WAXSDet  *AreaDetector // Pilatus 200kw
	Blackfly *Blackfly
	Alta     *AreaDetector

	Terms         *Terms
	UserData      *UserData
	SampleData    *SampleData
	Diagnostics   *Diagnostics
	Monochromator *Monochromator
	USAXSQCalc    *SwaitRecord

	LinkamCI94 *process.LinkamCI94
	LinkamTC1  *process.LinkamT96

	LAXAutosave         Autosave
	FlyScanTrajectories Trajectories
	ARStart             pv.Float
	FuelSprayBit        pv.Bool

	motors map[string]*Motor
	order  []string
}

// New assembles the beamline on net.  overrides replaces the record prefix
// of motors by name, e.g. "a_stage.r": "9idcLAX:aero:c0:m1".
func New(net pv.Network, log *zap.Logger, overrides map[string]string) (*Beamline, error) {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Beamline{Net: net, Log: log, motors: make(map[string]*Motor)}
	newStages(net, b)
	for name, prefix := range overrides {
		m, ok := b.motors[name]
		if !ok {
			return nil, fmt.Errorf("%w: motor override %q", ErrNotFound, name)
		}
		log.Info("motor PV override", zap.String("motor", name), zap.String("prefix", prefix))
		m.bind(net, prefix)
	}

	b.FEShutter = NewApsPssShutter(net, "FE_shutter", "9ida:rShtrA", "PA:09ID:STA_A_FES_OPEN_PL.VAL")
	b.MonoShutter = NewApsPssShutter(net, "mono_shutter", "9ida:rShtrB", "PA:09ID:STA_B_SBS_OPEN_PL.VAL")
	b.USAXSShutter = NewInOutShutter(net, "usaxs_shutter", "9idb:BioEnc2B3")
	b.TiFilterShutter = b.USAXSShutter
	b.CCDShutter = NewInOutShutter(net, "ccd_shutter", "9idcRIO:Galil2Bo0_CMD")

	b.Pf4AlTi = NewDualPf4FilterBox(net, "pf4", "9idcRIO:pf4:")
	b.Pf4Glass = NewDualPf4FilterBox(net, "pf4_glass", "9idcRIO:pf42:")

	b.Scaler0 = NewScaler(net, "scaler0", "9idcLAX:vsc:c0")

	b.SAXSDet = NewAreaDetector(net, "saxs_det", AreaDetectorPrefixes["Pilatus 100k"])
	b.WAXSDet = NewAreaDetector(net, "waxs_det", AreaDetectorPrefixes["Pilatus 200kw"])
	b.Blackfly = NewBlackfly(net, "blackfly_det", AreaDetectorPrefixes["PointGrey BlackFly"])
	b.Alta = NewAreaDetector(net, "alta_det", AreaDetectorPrefixes["Alta"])

	b.Terms = newTerms(net)
	b.UserData = newUserData(net)
	b.SampleData = newSampleData(net)
	b.Diagnostics = newDiagnostics(net)
	b.Monochromator = newMonochromator(net, log)
	b.USAXSQCalc = NewSwaitRecord(net, "9idcLAX:USAXS:Q")

	b.LinkamCI94 = process.NewLinkamCI94(net, "9idcLAX:ci94:", log)
	b.LinkamTC1 = process.NewLinkamT96(net, "9idcLINKAM:tc1:", log)

	b.LAXAutosave = Autosave{
		Disable: pv.NewInt(net, "9idcLAX:SR_disable"),
		MaxTime: pv.NewFloat(net, "9idcLAX:SR_disableMaxSecs"),
	}
	b.FlyScanTrajectories = Trajectories{
		AR:                pv.NewArray(net, "9idcLAX:traj1:M1Traj"),
		AY:                pv.NewArray(net, "9idcLAX:traj3:M1Traj"),
		DY:                pv.NewArray(net, "9idcLAX:traj2:M1Traj"),
		NumPulsePositions: pv.NewInt(net, "9idcLAX:traj1:NumPulsePositions"),
	}
	b.ARStart = pv.NewFloat(net, "9idcLAX:USAXS:ARstart")
	b.FuelSprayBit = pv.NewBool(net, "9idcLAX:bit1")
	return b, nil
}

func (b *Beamline) addMotor(m *Motor) {
	b.motors[m.Name] = m
	b.order = append(b.order, m.Name)
}

// Motor looks a motor up by its short name, e.g. "s_stage.x"
func (b *Beamline) Motor(name string) (*Motor, error) {
	m, ok := b.motors[name]
	if !ok {
		return nil, fmt.Errorf("%w: motor %q", ErrNotFound, name)
	}
	return m, nil
}

// Motors lists every motor in declaration order
func (b *Beamline) Motors() []*Motor {
	out := make([]*Motor, 0, len(b.order))
	for _, n := range b.order {
		out = append(out, b.motors[n])
	}
	return out
}

// MotorNames lists the motor names, sorted
func (b *Beamline) MotorNames() []string {
	out := append([]string(nil), b.order...)
	sort.Strings(out)
	return out
}

// Shutters returns the shutters by name
func (b *Beamline) Shutters() map[string]Shutter {
	return map[string]Shutter{
		"FE_shutter":        b.FEShutter,
		"mono_shutter":      b.MonoShutter,
		"usaxs_shutter":     b.USAXSShutter,
		"ti_filter_shutter": b.TiFilterShutter,
		"ccd_shutter":       b.CCDShutter,
	}
}

// Devices returns every device that can be read as a table
func (b *Beamline) Devices() map[string]Device {
	out := map[string]Device{
		"FE_shutter":    b.FEShutter,
		"mono_shutter":  b.MonoShutter,
		"usaxs_shutter": b.USAXSShutter,
		"ccd_shutter":   b.CCDShutter,
		"pf4_AlTi":      b.Pf4AlTi,
		"pf4_glass":     b.Pf4Glass,
		"scaler0":       b.Scaler0,
		"saxs_det":      b.SAXSDet,
		"waxs_det":      b.WAXSDet,
		"blackfly_det":  b.Blackfly,
		"alta_det":      b.Alta,
		"user_data":     b.UserData,
		"sample_data":   b.SampleData,
		"PSS":           b.Diagnostics.PSS,
		"BL_EPS":        b.Diagnostics.BLEPS,
		"FE_EPS":        b.Diagnostics.FEEPS,
		"monochromator": b.Monochromator,
	}
	for name, m := range b.motors {
		out[name] = m
	}
	return out
}
