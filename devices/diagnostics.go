package devices

import (
	"context"
	"strings"

	"github.com/APS-USAXS/ipython-usaxs/pv"
)

// PSS are the personnel safety system signals for 9-ID
type PSS struct {
	ABeamActive            pv.String
	BBeamActive            pv.String
	BBeamReady             pv.String
	AShutterOpenChainA     pv.String
	BShutterOpenChainA     pv.String
	BShutterClosedChainB   pv.String
	CShutterClosedChainA   pv.String
	CShutterClosedChainB   pv.String
	CStationNoAccessChainA pv.String
}

func newPSS(net pv.Network) *PSS {
	s := func(name string) pv.String { return pv.NewString(net, name) }
	return &PSS{
		ABeamActive:            s("PA:09ID:A_BEAM_ACTIVE.VAL"),
		BBeamActive:            s("PA:09ID:B_BEAM_ACTIVE.VAL"),
		BBeamReady:             s("PA:09ID:B_BEAM_READY.VAL"),
		AShutterOpenChainA:     s("PA:09ID:STA_A_FES_OPEN_PL"),
		BShutterOpenChainA:     s("PA:09ID:STA_B_FES_OPEN_PL"),
		BShutterClosedChainB:   s("PB:09ID:STA_B_SBS_CLSD_PL"),
		CShutterClosedChainA:   s("PA:09ID:SCS_PS_CLSD_LS"),
		CShutterClosedChainB:   s("PB:09ID:SCS_PS_CLSD_LS"),
		CStationNoAccessChainA: s("PA:09ID:STA_C_NO_ACCESS.VAL"),
	}
}

// CStationEnabled reports whether the beam plug before 9-ID-C is out.  With
// the plug in, the C station cannot use beam.
func (p *PSS) CStationEnabled(ctx context.Context) (bool, error) {
	a, err := p.CShutterClosedChainA.Get(ctx)
	if err != nil {
		return false, err
	}
	b, err := p.CShutterClosedChainB.Get(ctx)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(a, "OFF") || strings.EqualFold(b, "OFF"), nil
}

// Signals implements Device
func (p *PSS) Signals() []NamedSignal {
	return []NamedSignal{
		{"PSS_a_beam_active", p.ABeamActive},
		{"PSS_b_beam_active", p.BBeamActive},
		{"PSS_b_beam_ready", p.BBeamReady},
		{"PSS_a_shutter_open_chain_A", p.AShutterOpenChainA},
		{"PSS_b_shutter_open_chain_A", p.BShutterOpenChainA},
		{"PSS_b_shutter_closed_chain_B", p.BShutterClosedChainB},
		{"PSS_c_shutter_closed_chain_A", p.CShutterClosedChainA},
		{"PSS_c_shutter_closed_chain_B", p.CShutterClosedChainB},
		{"PSS_c_station_no_access_chain_A", p.CStationNoAccessChainA},
	}
}

// BLEPS is the beam line equipment protection system
type BLEPS struct {
	RedLight        pv.Float
	StationShutterB pv.String
	Flow            [2]pv.Float
	FlowSetpoint    [2]pv.Float

	// Temperature[0] is the chopper
	Temperature         [8]pv.Float
	TemperatureSetpoint [8]pv.Float

	ShutterPermit pv.String
	VacuumPermit  pv.String
	VacuumOK      pv.String
}

func newBLEPS(net pv.Network) *BLEPS {
	b := &BLEPS{
		RedLight:        pv.NewFloat(net, "9idBLEPS:RED_LIGHT"),
		StationShutterB: pv.NewString(net, "9idBLEPS:SBS_CLOSED"),
		ShutterPermit:   pv.NewString(net, "EPS:09:ID:BLEPS:SPER"),
		VacuumPermit:    pv.NewString(net, "EPS:09:ID:BLEPS:VACPER"),
		VacuumOK:        pv.NewString(net, "EPS:09:ID:BLEPS:VAC"),
	}
	for i := range b.Flow {
		n := string(rune('1' + i))
		b.Flow[i] = pv.NewFloat(net, "9idBLEPS:FLOW"+n+"_CURRENT")
		b.FlowSetpoint[i] = pv.NewFloat(net, "9idBLEPS:FLOW"+n+"_SET_POINT")
	}
	for i := range b.Temperature {
		n := string(rune('1' + i))
		b.Temperature[i] = pv.NewFloat(net, "9idBLEPS:TEMP"+n+"_CURRENT")
		b.TemperatureSetpoint[i] = pv.NewFloat(net, "9idBLEPS:TEMP"+n+"_SET_POINT")
	}
	return b
}

// Signals implements Device
func (b *BLEPS) Signals() []NamedSignal {
	out := []NamedSignal{
		{"BL_EPS_red_light", b.RedLight},
		{"BL_EPS_station_shutter_b", b.StationShutterB},
		{"BL_EPS_shutter_permit", b.ShutterPermit},
		{"BL_EPS_vacuum_permit", b.VacuumPermit},
		{"BL_EPS_vacuum_ok", b.VacuumOK},
	}
	for i := range b.Flow {
		out = append(out, NamedSignal{"BL_EPS_flow_" + string(rune('1'+i)), b.Flow[i]})
	}
	for i := range b.Temperature {
		out = append(out, NamedSignal{"BL_EPS_temperature_" + string(rune('1'+i)), b.Temperature[i]})
	}
	return out
}

// FEEPS is the front end equipment protection system
type FEEPS struct {
	FEPermit       pv.String
	MajorFault     pv.String
	MinorFault     pv.String
	MPSPermit      pv.String
	PhotonShutter1 pv.String
	PhotonShutter2 pv.String
	SafetyShutter1 pv.String
	SafetyShutter2 pv.String
}

func newFEEPS(net pv.Network) *FEEPS {
	s := func(name string) pv.String { return pv.NewString(net, name) }
	return &FEEPS{
		FEPermit:       s("EPS:09:ID:FE:PERM"),
		MajorFault:     s("EPS:09:ID:Major"),
		MinorFault:     s("EPS:09:ID:Minor"),
		MPSPermit:      s("EPS:09:ID:MPS:RF:PERM"),
		PhotonShutter1: s("EPS:09:ID:PS1:POSITION"),
		PhotonShutter2: s("EPS:09:ID:PS2:POSITION"),
		SafetyShutter1: s("EPS:09:ID:SS1:POSITION"),
		SafetyShutter2: s("EPS:09:ID:SS2:POSITION"),
	}
}

// Signals implements Device
func (f *FEEPS) Signals() []NamedSignal {
	return []NamedSignal{
		{"FE_EPS_fe_permit", f.FEPermit},
		{"FE_EPS_major_fault", f.MajorFault},
		{"FE_EPS_minor_fault", f.MinorFault},
		{"FE_EPS_mps_permit", f.MPSPermit},
		{"FE_EPS_photon_shutter_1", f.PhotonShutter1},
		{"FE_EPS_photon_shutter_2", f.PhotonShutter2},
		{"FE_EPS_safety_shutter_1", f.SafetyShutter1},
		{"FE_EPS_safety_shutter_2", f.SafetyShutter2},
	}
}

// Diagnostics groups the protection systems and the beam-in-hutch calc
type Diagnostics struct {
	PSS   *PSS
	BLEPS *BLEPS
	FEEPS *FEEPS

	beamInHutch pv.Float
}

func newDiagnostics(net pv.Network) *Diagnostics {
	return &Diagnostics{
		PSS:         newPSS(net),
		BLEPS:       newBLEPS(net),
		FEEPS:       newFEEPS(net),
		beamInHutch: pv.NewFloat(net, "9idcLAX:blCalc:userCalc1.VAL"),
	}
}

// BeamInHutch is true when the beam-in-hutch calc is nonzero
func (d *Diagnostics) BeamInHutch(ctx context.Context) (bool, error) {
	v, err := d.beamInHutch.Get(ctx)
	return v != 0, err
}
