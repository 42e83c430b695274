package devices

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/APS-USAXS/ipython-usaxs/pv"
)

// FeedbackMargin is how close the feedback output may get to a drive limit
// before a warning is raised
const FeedbackMargin = 0.2

// DCMFeedback is the monochromator EPID feedback loop
type DCMFeedback struct {
	Control pv.Float
	On      pv.Int
	DRVH    pv.Float
	DRVL    pv.Float
	OVAL    pv.Float

	log *zap.Logger
}

func newDCMFeedback(net pv.Network, prefix string, log *zap.Logger) *DCMFeedback {
	return &DCMFeedback{
		Control: pv.NewFloat(net, prefix),
		On:      pv.NewInt(net, prefix+":on"),
		DRVH:    pv.NewFloat(net, prefix+".DRVH"),
		DRVL:    pv.NewFloat(net, prefix+".DRVL"),
		OVAL:    pv.NewFloat(net, prefix+".OVAL"),
		log:     log,
	}
}

// IsOn reports whether feedback is running
func (d *DCMFeedback) IsOn(ctx context.Context) (bool, error) {
	v, err := d.On.Get(ctx)
	return v == 1, err
}

// CheckPosition warns when the feedback output is within FeedbackMargin of
// either drive limit, returning true in that case
func (d *DCMFeedback) CheckPosition(ctx context.Context) (bool, error) {
	hi, err := d.DRVH.Get(ctx)
	if err != nil {
		return false, err
	}
	lo, err := d.DRVL.Get(ctx)
	if err != nil {
		return false, err
	}
	out, err := d.OVAL.Get(ctx)
	if err != nil {
		return false, err
	}
	if math.Min(hi-out, out-lo) < FeedbackMargin {
		d.log.Warn("USAXS Feedback problem: feedback is very close to its limits",
			zap.Float64("oval", out), zap.Float64("drvh", hi), zap.Float64("drvl", lo))
		return true, nil
	}
	return false, nil
}

// Monochromator is the 9-ID DCM with its feedback and monitors
type Monochromator struct {
	Energy      pv.Float
	Wavelength  pv.Float
	Feedback    *DCMFeedback
	Temperature pv.Float
	CryoLevel   pv.Float
}

func newMonochromator(net pv.Network, log *zap.Logger) *Monochromator {
	return &Monochromator{
		Energy:      pv.NewFloat(net, "9ida:BraggERdbkAO"),
		Wavelength:  pv.NewFloat(net, "9ida:BraggLambdaRdbkAO"),
		Feedback:    newDCMFeedback(net, "9idcLAX:fbe:omega", log),
		Temperature: pv.NewFloat(net, "9ida:DP41:s1:temp"),
		CryoLevel:   pv.NewFloat(net, "9idCRYO:MainLevel:val"),
	}
}

// Signals implements Device
func (m *Monochromator) Signals() []NamedSignal {
	return []NamedSignal{
		{"monochromator_dcm_energy", m.Energy},
		{"monochromator_dcm_wavelength", m.Wavelength},
		{"monochromator_feedback_oval", m.Feedback.OVAL},
		{"monochromator_temperature", m.Temperature},
		{"monochromator_cryo_level", m.CryoLevel},
	}
}

// SwaitRecord is a synApps swait (userCalc) record; only the inputs used
// here are bound
type SwaitRecord struct {
	VAL  pv.Float
	A, B pv.Float
}

// NewSwaitRecord binds a swait record
func NewSwaitRecord(net pv.Network, prefix string) *SwaitRecord {
	return &SwaitRecord{
		VAL: pv.NewFloat(net, prefix+".VAL"),
		A:   pv.NewFloat(net, prefix+".A"),
		B:   pv.NewFloat(net, prefix+".B"),
	}
}

// CopyAToB stores the A input in B, e.g. a new 2theta0 for the Q calc
func (s *SwaitRecord) CopyAToB(ctx context.Context) error {
	a, err := s.A.Get(ctx)
	if err != nil {
		return err
	}
	return s.B.Put(ctx, a)
}
