package process

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/APS-USAXS/ipython-usaxs/pv"
)

// LinkamCI94 is a Linkam CI94 temperature controller behind an EPICS IOC
type LinkamCI94 struct {
	*Controller

	TemperatureIn   pv.Float
	PumpSpeed       pv.Float
	Rate            pv.Float // deg C/min
	Speed           pv.Float // pump RPM, 0 is automatic
	EndAfterProfile pv.Int
	EndOnStop       pv.Int
	StartControl    pv.Int
	StopControl     pv.Int
	HoldControl     pv.Int
	PumpMode        pv.Int
	ErrorByte       pv.Int
	Status          pv.Int
	StatusIn        pv.String
	GenStat         pv.Int
	PumpSpeedIn     pv.String
	DSCIn           pv.String
}

// NewLinkamCI94 binds the controller under prefix, e.g. 9idcLAX:ci94:
func NewLinkamCI94(net pv.Network, prefix string, log *zap.Logger) *LinkamCI94 {
	f := func(s string) pv.Float { return pv.NewFloat(net, prefix+s) }
	i := func(s string) pv.Int { return pv.NewInt(net, prefix+s) }
	s := func(s string) pv.String { return pv.NewString(net, prefix+s) }
	return &LinkamCI94{
		Controller:      New("Linkam CI94", f("temp"), f("setLimit"), "C", log),
		TemperatureIn:   f("tempIn"),
		PumpSpeed:       f("pumpSpeed"),
		Rate:            f("setRate"),
		Speed:           f("setSpeed"),
		EndAfterProfile: i("endAfterProfile"),
		EndOnStop:       i("endOnStop"),
		StartControl:    i("start"),
		StopControl:     i("stop"),
		HoldControl:     i("hold"),
		PumpMode:        i("pumpMode"),
		ErrorByte:       i("errorByte"),
		Status:          i("status"),
		StatusIn:        s("statusIn"),
		GenStat:         i("genStat"),
		PumpSpeedIn:     s("pumpSpeedIn"),
		DSCIn:           s("dscIn"),
	}
}

// SetRate sets the ramp rate in degrees per minute
func (l *LinkamCI94) SetRate(ctx context.Context, degPerMin float64) error {
	return l.Rate.Put(ctx, degPerMin)
}

// Start begins running the heating profile
func (l *LinkamCI94) Start(ctx context.Context) error { return l.StartControl.Put(ctx, 1) }

// Stop ends temperature control
func (l *LinkamCI94) Stop(ctx context.Context) error { return l.StopControl.Put(ctx, 1) }

// Hold freezes the current temperature
func (l *LinkamCI94) Hold(ctx context.Context) error { return l.HoldControl.Put(ctx, 1) }

// LinkamT96 is a Linkam T96 temperature controller behind an EPICS IOC
type LinkamT96 struct {
	*Controller

	Vacuum           pv.Int
	Heating          pv.Int
	LNPMode          pv.Int
	LNPSpeed         pv.Float
	Rate             pv.Float // deg C/min
	VacuumLimit      pv.Float
	ControllerConfig pv.Int
	ControllerError  pv.Int
	ControllerStatus pv.Int
	HeaterPower      pv.Float
	LNPStatus        pv.Int
	Pressure         pv.Float
	RampAtLimit      pv.Bool
	StageConfig      pv.Int
	StatusError      pv.Int
	VacuumAtLimit    pv.Bool
	VacuumStatus     pv.Int

	// SettleDelay is slept between writing the target and turning heat on
	SettleDelay time.Duration

	heatingSet pv.Int
}

// withRBV is a setpoint PV whose readback lives in name_RBV
type withRBV struct {
	set, rbv pv.Float
}

func (w withRBV) Get(ctx context.Context) (float64, error) { return w.rbv.Get(ctx) }

func (w withRBV) Put(ctx context.Context, v float64) error { return w.set.Put(ctx, v) }

// NewLinkamT96 binds the controller under prefix, e.g. 9idcLINKAM:tc1:
func NewLinkamT96(net pv.Network, prefix string, log *zap.Logger) *LinkamT96 {
	f := func(s string) pv.Float { return pv.NewFloat(net, prefix+s) }
	i := func(s string) pv.Int { return pv.NewInt(net, prefix+s) }
	target := withRBV{set: f("rampLimit"), rbv: f("rampLimit_RBV")}
	return &LinkamT96{
		Controller:       New("Linkam T96", f("temperature_RBV"), target, "C", log),
		Vacuum:           i("vacuum"),
		Heating:          i("heating_RBV"),
		heatingSet:       i("heating"),
		LNPMode:          i("lnpMode"),
		LNPSpeed:         f("lnpSpeed"),
		Rate:             f("rampRate"),
		VacuumLimit:      f("vacuumLimit"),
		ControllerConfig: i("controllerConfig_RBV"),
		ControllerError:  i("controllerError_RBV"),
		ControllerStatus: i("controllerStatus_RBV"),
		HeaterPower:      f("heaterPower_RBV"),
		LNPStatus:        i("lnpStatus_RBV"),
		Pressure:         f("pressure_RBV"),
		RampAtLimit:      pv.NewBool(net, prefix+"rampAtLimit_RBV"),
		StageConfig:      i("stageConfig_RBV"),
		StatusError:      i("statusError_RBV"),
		VacuumAtLimit:    pv.NewBool(net, prefix+"vacuumAtLimit_RBV"),
		VacuumStatus:     i("vacuumStatus_RBV"),
		SettleDelay:      100 * time.Millisecond,
	}
}

// SetTarget writes the ramp limit, gives the IOC a moment, turns heating on,
// and optionally waits to settle
func (l *LinkamT96) SetTarget(ctx context.Context, target float64, wait bool, timeout time.Duration, timeoutFail bool) error {
	if err := l.Target.Put(ctx, target); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(l.SettleDelay):
	}
	if err := l.heatingSet.Put(ctx, 1); err != nil {
		return fmt.Errorf("turning on %s heater: %w", l.Name, err)
	}
	l.log().Info(fmt.Sprintf("Set %s to %.2f%s", l.Name, target, l.Units))
	if !wait {
		return nil
	}
	return l.WaitUntilSettled(ctx, timeout, timeoutFail)
}

// SetSetpoint changes the target and heats without waiting
func (l *LinkamT96) SetSetpoint(ctx context.Context, v float64) error {
	return l.SetTarget(ctx, v, false, 0, false)
}

// SetRate sets the ramp rate in degrees per minute
func (l *LinkamT96) SetRate(ctx context.Context, degPerMin float64) error {
	return l.Rate.Put(ctx, degPerMin)
}
