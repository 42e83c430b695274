package devices

import (
	"context"
	"fmt"
	"time"

	"github.com/APS-USAXS/ipython-usaxs/pv"
)

// UserData is what the instrument GUIs show about the current user and state
type UserData struct {
	GUPNumber       pv.String
	MacroFile       pv.String
	MacroFileTime   pv.String
	RunCycle        pv.String
	SampleThickness pv.Float
	SampleTitle     pv.String
	Scanning        pv.Int
	ScanMacro       pv.String
	SpecFile        pv.String
	SpecScan        pv.String
	State           pv.String
	TimeStamp       pv.String
	UserDir         pv.String
	UserName        pv.String

	// CollectionInProgress tells the GUIs a user is collecting data
	CollectionInProgress pv.Int
}

func newUserData(net pv.Network) *UserData {
	s := func(name string) pv.String { return pv.NewString(net, name) }
	return &UserData{
		GUPNumber:            s("9idcLAX:GUPNumber"),
		MacroFile:            s("9idcLAX:USAXS:macroFile"),
		MacroFileTime:        s("9idcLAX:USAXS:macroFileTime"),
		RunCycle:             s("9idcLAX:RunCycle"),
		SampleThickness:      pv.NewFloat(net, "9idcLAX:sampleThickness"),
		SampleTitle:          s("9idcLAX:sampleTitle"),
		Scanning:             pv.NewInt(net, "9idcLAX:USAXS:scanning"),
		ScanMacro:            s("9idcLAX:USAXS:scanMacro"),
		SpecFile:             s("9idcLAX:USAXS:specFile"),
		SpecScan:             s("9idcLAX:USAXS:specScan"),
		State:                s("9idcLAX:state"),
		TimeStamp:            s("9idcLAX:USAXS:timeStamp"),
		UserDir:              s("9idcLAX:userDir"),
		UserName:             s("9idcLAX:userName"),
		CollectionInProgress: pv.NewInt(net, "9idcLAX:dataColInProgress"),
	}
}

// SetState tells EPICS what we are doing.  Long messages are trimmed.
func (u *UserData) SetState(ctx context.Context, msg string) error {
	return u.State.Put(ctx, msg)
}

// Stamp writes the current time to the time stamp PV
func (u *UserData) Stamp(ctx context.Context, now time.Time) error {
	return u.TimeStamp.Put(ctx, now.Format("2006-01-02 15:04:05"))
}

// Signals implements Device
func (u *UserData) Signals() []NamedSignal {
	return []NamedSignal{
		{"user_data_GUP_number", u.GUPNumber},
		{"user_data_macro_file", u.MacroFile},
		{"user_data_macro_file_time", u.MacroFileTime},
		{"user_data_run_cycle", u.RunCycle},
		{"user_data_sample_thickness", u.SampleThickness},
		{"user_data_sample_title", u.SampleTitle},
		{"user_data_scanning", u.Scanning},
		{"user_data_spec_file", u.SpecFile},
		{"user_data_spec_scan", u.SpecScan},
		{"user_data_state", u.State},
		{"user_data_time_stamp", u.TimeStamp},
		{"user_data_user_dir", u.UserDir},
		{"user_data_user_name", u.UserName},
		{"user_data_collection_in_progress", u.CollectionInProgress},
	}
}

// SampleData describes the sample, after the NeXus base classes
type SampleData struct {
	Temperature             pv.Float
	Concentration           pv.Float
	VolumeFraction          pv.Float
	ScatteringLengthDensity pv.Float
	MagneticField           pv.Float
	StressField             pv.Float
	ElectricField           pv.Float
	XTranslation            pv.Float
	RotationAngle           pv.Float

	MagneticFieldDir pv.String
	StressFieldDir   pv.String
	ElectricFieldDir pv.String

	Description     pv.String
	ChemicalFormula pv.String
}

func newSampleData(net pv.Network) *SampleData {
	f := func(s string) pv.Float { return pv.NewFloat(net, "9idcSample:"+s) }
	s := func(s string) pv.String { return pv.NewString(net, "9idcSample:"+s) }
	return &SampleData{
		Temperature:             f("Temperature"),
		Concentration:           f("Concentration"),
		VolumeFraction:          f("VolumeFraction"),
		ScatteringLengthDensity: f("ScatteringLengthDensity"),
		MagneticField:           f("MagneticField"),
		StressField:             f("StressField"),
		ElectricField:           f("ElectricField"),
		XTranslation:            f("XTranslation"),
		RotationAngle:           f("RotationAngle"),
		MagneticFieldDir:        s("MagneticFieldDir"),
		StressFieldDir:          s("StressFieldDir"),
		ElectricFieldDir:        s("ElectricFieldDir"),
		Description:             s("Description"),
		ChemicalFormula:         s("ChemicalFormula"),
	}
}

// ResetAll returns every field to its preset value
func (d *SampleData) ResetAll(ctx context.Context) error {
	floats := []struct {
		p pv.Float
		v float64
	}{
		{d.Temperature, 25},
		{d.Concentration, 1},
		{d.VolumeFraction, 1},
		{d.ScatteringLengthDensity, 1},
		{d.MagneticField, 0},
		{d.StressField, 0},
		{d.ElectricField, 0},
		{d.XTranslation, 0},
		{d.RotationAngle, 0},
	}
	for _, x := range floats {
		if err := x.p.Put(ctx, x.v); err != nil {
			return fmt.Errorf("resetting %s: %w", x.p.PVName(), err)
		}
	}
	strs := []struct {
		p pv.String
		v string
	}{
		{d.MagneticFieldDir, "X"},
		{d.StressFieldDir, "X"},
		{d.ElectricFieldDir, "X"},
		{d.Description, ""},
		{d.ChemicalFormula, ""},
	}
	for _, x := range strs {
		if err := x.p.Put(ctx, x.v); err != nil {
			return fmt.Errorf("resetting %s: %w", x.p.PVName(), err)
		}
	}
	return nil
}

// Signals implements Device
func (d *SampleData) Signals() []NamedSignal {
	return []NamedSignal{
		{"sample_data_temperature", d.Temperature},
		{"sample_data_concentration", d.Concentration},
		{"sample_data_volume_fraction", d.VolumeFraction},
		{"sample_data_scattering_length_density", d.ScatteringLengthDensity},
		{"sample_data_magnetic_field", d.MagneticField},
		{"sample_data_stress_field", d.StressField},
		{"sample_data_electric_field", d.ElectricField},
		{"sample_data_x_translation", d.XTranslation},
		{"sample_data_rotation_angle", d.RotationAngle},
		{"sample_data_magnetic_field_dir", d.MagneticFieldDir},
		{"sample_data_stress_field_dir", d.StressFieldDir},
		{"sample_data_electric_field_dir", d.ElectricFieldDir},
		{"sample_data_description", d.Description},
		{"sample_data_chemical_formula", d.ChemicalFormula},
	}
}
