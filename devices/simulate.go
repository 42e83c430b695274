package devices

import (
	"context"

	"github.com/APS-USAXS/ipython-usaxs/pv"
)

// SimulateMotor makes a motor record on a MockNetwork arrive instantly
func SimulateMotor(n *pv.MockNetwork, m *Motor) {
	p := m.Prefix
	for field, v := range map[string]float64{".VAL": 0, ".RBV": 0, ".DMOV": 1, ".HLM": 1000, ".LLM": -1000, ".VELO": 1} {
		if !n.Has(p + field) {
			n.SeedFloat(p+field, v)
		}
	}
	n.Follow(p+".VAL", p+".RBV")
	n.OnPut(p+".HOMF", func(ctx context.Context, n *pv.MockNetwork, _ string, _ pv.Value) {
		n.SeedFloat(p+".VAL", 0)
		n.SeedFloat(p+".RBV", 0)
	})
}

// SimulatePssShutter makes a PSS shutter status follow its requests
func SimulatePssShutter(n *pv.MockNetwork, s *ApsPssShutter) {
	n.SeedString(s.pssState.Name, s.ClosedValues[len(s.ClosedValues)-1])
	n.OnPut(s.openSignal.Name, func(ctx context.Context, n *pv.MockNetwork, _ string, _ pv.Value) {
		n.SeedString(s.pssState.Name, s.OpenValues[len(s.OpenValues)-1])
	})
	n.OnPut(s.closeSignal.Name, func(ctx context.Context, n *pv.MockNetwork, _ string, _ pv.Value) {
		n.SeedString(s.pssState.Name, s.ClosedValues[len(s.ClosedValues)-1])
	})
}

// SimulateScaler makes counts end at once.  Channel names follow the
// instrument: clock, I0, I00, upd2, trd.
func SimulateScaler(n *pv.MockNetwork, s *Scaler) {
	for i, name := range []string{"clock", "I0", "I00", "upd2", "trd"} {
		n.SeedString(s.names[i].Name, name)
	}
	n.OnPut(s.count.Name, func(ctx context.Context, n *pv.MockNetwork, _ string, _ pv.Value) {
		n.SeedFloat(s.count.Name, 0)
	})
}

// SimulateAreaDetector makes acquisitions end at once and the file path exist
func SimulateAreaDetector(n *pv.MockNetwork, d *AreaDetector) {
	n.SeedFloat(d.HDF1.FilePathExists.Name, 1)
	n.SeedFloat(d.HDF1.FileNumber.Name, 1)
	n.OnPut(d.Cam.Acquire.Name, func(ctx context.Context, n *pv.MockNetwork, _ string, v pv.Value) {
		n.SeedFloat(d.Cam.Acquire.Name, 0)
		if capture, _ := n.Get(ctx, d.HDF1.Capture.Name); capture.Num == 1 {
			num, _ := n.Get(ctx, d.HDF1.FileNumber.Name)
			n.SeedFloat(d.HDF1.FileNumber.Name, num.Num+1)
		}
	})
}

// Simulate wires every device of b into n so the instrument can be exercised
// without hardware.  n should be Permissive so unseeded parameters read zero.
func Simulate(n *pv.MockNetwork, b *Beamline) {
	for _, m := range b.Motors() {
		SimulateMotor(n, m)
	}
	SimulatePssShutter(n, b.FEShutter)
	SimulatePssShutter(n, b.MonoShutter)
	SimulateScaler(n, b.Scaler0)
	for _, d := range []*AreaDetector{b.SAXSDet, b.WAXSDet, b.Blackfly.AreaDetector, b.Alta} {
		SimulateAreaDetector(n, d)
	}
	n.SeedFloat(b.Blackfly.SizeX.Name, 4)
	n.SeedFloat(b.Blackfly.SizeY.Name, 2)
	n.Seed(b.Blackfly.ArrayData.Name, pv.ArrayValue([]float64{0, 1, 2, 3, 4, 5, 6, 7}))
	n.SeedString(b.UserData.State.Name, "")
	n.SeedString(b.Terms.SAXS.UsaxsSaxsMode.Name, ModeUSAXSInBeam)

	n.SeedFloat("9idcLAX:ci94:setLimit", 25)
	n.SeedFloat("9idcLAX:ci94:temp", 25)
	n.Follow("9idcLAX:ci94:setLimit", "9idcLAX:ci94:temp")
	n.SeedFloat("9idcLINKAM:tc1:temperature_RBV", 25)
	n.SeedFloat("9idcLINKAM:tc1:rampLimit_RBV", 25)
	n.Follow("9idcLINKAM:tc1:rampLimit", "9idcLINKAM:tc1:rampLimit_RBV")
	n.Follow("9idcLINKAM:tc1:rampLimit", "9idcLINKAM:tc1:temperature_RBV")
}
