package tune_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/APS-USAXS/ipython-usaxs/devices"
	"github.com/APS-USAXS/ipython-usaxs/pv"
	"github.com/APS-USAXS/ipython-usaxs/tune"
	"github.com/APS-USAXS/ipython-usaxs/util"
)

func gauss(x, center, sigma float64) float64 {
	return 1000*math.Exp(-0.5*math.Pow((x-center)/sigma, 2)) + 10
}

func TestPeakStatsGaussian(t *testing.T) {
	x := util.Linspace(-5, 5, 101)
	y := make([]float64, len(x))
	for i := range x {
		y[i] = gauss(x[i], 1, 0.5)
	}
	s, err := tune.PeakStats(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 1, s.MaxX, 1e-9)
	assert.InDelta(t, 1, s.Cen, 1e-3)
	// 2*sqrt(2 ln 2)*sigma
	assert.InDelta(t, 2.3548*0.5, s.FWHM, 0.01)
	// the baseline pulls the center of mass toward the middle of the scan
	assert.InDelta(t, 0.93, s.COM, 0.02)
	assert.Equal(t, 101, s.N)
}

func TestPeakStatsNoCrossings(t *testing.T) {
	s, err := tune.PeakStats([]float64{0, 1, 2}, []float64{1, 2, 3})
	require.NoError(t, err)
	if !math.IsNaN(s.FWHM) {
		// a ramp crosses its midpoint once, so there is no width
		t.Errorf("expected NaN got %v", s.FWHM)
	}
	assert.Equal(t, 2.0, s.MaxX)
	assert.Equal(t, 0.0, s.MinX)
}

func TestPeakStatsEmpty(t *testing.T) {
	_, err := tune.PeakStats(nil, nil)
	assert.ErrorIs(t, err, tune.ErrNoData)
}

func TestStatsPosition(t *testing.T) {
	s := tune.Stats{COM: 1, Cen: 2, MaxX: 3}
	assert.Equal(t, 1.0, s.Position(tune.ChoiceCOM))
	assert.Equal(t, 2.0, s.Position(tune.ChoiceCen))
	assert.Equal(t, 3.0, s.Position(tune.ChoiceMax))
	assert.Equal(t, 1.0, s.Position("bogus"))
}

type fakeMotor struct {
	pos   float64
	moves int
}

func (m *fakeMotor) Position(context.Context) (float64, error) { return m.pos, nil }
func (m *fakeMotor) Move(_ context.Context, p float64) error {
	m.pos = p
	m.moves++
	return nil
}

type peak struct {
	m      *fakeMotor
	center float64
	flat   bool
}

func (p peak) Get(context.Context) (float64, error) {
	if p.flat {
		return 5, nil
	}
	return gauss(p.m.pos, p.center, 0.1), nil
}

func TestAxisTuneMovesToPeak(t *testing.T) {
	m := &fakeMotor{pos: 0}
	a := tune.NewAxis("test", m, peak{m: m, center: 0.2}, nil, nil)
	a.Num = 41
	a.Width = 2
	a.PeakChoice = tune.ChoiceCen
	var pre, post bool
	a.PreTune = func(context.Context, *tune.Axis) error { pre = true; return nil }
	a.PostTune = func(_ context.Context, a *tune.Axis) error { post = a.TuneOK; return nil }
	require.NoError(t, a.Tune(context.Background()))
	assert.True(t, pre)
	assert.True(t, post, "post hook sees the result")
	assert.True(t, a.TuneOK)
	assert.InDelta(t, 0.2, m.pos, 0.01)
	assert.Equal(t, m.pos, a.Center)
}

func TestAxisTuneNoPeakReturnsToStart(t *testing.T) {
	m := &fakeMotor{pos: 1.5}
	a := tune.NewAxis("flat", m, peak{m: m, flat: true}, nil, nil)
	a.Num = 11
	require.NoError(t, a.Tune(context.Background()))
	assert.False(t, a.TuneOK)
	assert.Equal(t, 1.5, m.pos)
}

func TestAxisMinimumPoints(t *testing.T) {
	m := &fakeMotor{}
	a := tune.NewAxis("few", m, peak{m: m, center: 0}, nil, nil)
	a.Num = 2
	require.NoError(t, a.Tune(context.Background()))
	assert.False(t, a.TuneOK)
}

func TestMultiPassTuneNarrows(t *testing.T) {
	m := &fakeMotor{pos: 0}
	a := tune.NewAxis("multi", m, peak{m: m, center: 0.05}, nil, nil)
	a.Num = 21
	a.Width = 2
	a.PassMax = 2
	require.NoError(t, a.MultiPassTune(context.Background()))
	assert.True(t, a.TuneOK)
	// two passes of 21 points plus the final move of each
	assert.Equal(t, 2*22, m.moves)
	assert.InDelta(t, 0.05, m.pos, 0.02)
}

func simulated(t *testing.T) (*pv.MockNetwork, *devices.Beamline) {
	t.Helper()
	n := pv.NewMockNetwork()
	n.Permissive = true
	b, err := devices.New(n, nil, nil)
	require.NoError(t, err)
	devices.Simulate(n, b)
	return n, b
}

func TestBeamlineTuneAR(t *testing.T) {
	n, b := simulated(t)
	ctx := context.Background()
	require.NoError(t, b.AStage.R.Move(ctx, 8.84))
	n.SeedFloat(b.USAXSQCalc.A.Name, 8.84)
	// I0 is the second scaler channel
	n.OnPut(b.Scaler0.Prefix+".CNT", func(ctx context.Context, n *pv.MockNetwork, _ string, _ pv.Value) {
		pos, _ := n.Get(ctx, b.AStage.R.Prefix+".RBV")
		n.SeedFloat(b.Scaler0.Prefix+".S2", gauss(pos.Num, 8.8405, 0.0002))
	})

	tn := tune.New(b, tune.DefaultRanges(), false, nil)
	require.NoError(t, tn.TuneAxes(ctx, "ar"))
	a, err := tn.Axis("ar")
	require.NoError(t, err)
	assert.True(t, a.TuneOK)
	assert.Equal(t, 35, a.Num)
	assert.InDelta(t, 0.004, a.Width, 1e-12)

	center, _ := b.Terms.USAXS.ArValCenter.Get(ctx)
	assert.InDelta(t, 8.8405, center, 1e-4)
	qb, _ := b.USAXSQCalc.B.Get(ctx)
	assert.Equal(t, 8.84, qb)
	preset, _ := b.Scaler0.PresetTime.Get(ctx)
	assert.Equal(t, 0.1, preset)
}

func TestBeamlineTuneMissWithoutPeak(t *testing.T) {
	_, b := simulated(t)
	ctx := context.Background()
	tn := tune.New(b, tune.DefaultRanges(), false, nil)
	require.NoError(t, tn.TuneAxes(ctx, "a2rp"))
	a, _ := tn.Axis("a2rp")
	assert.False(t, a.TuneOK)
	delay, _ := b.Scaler0.Delay.Get(ctx)
	assert.Equal(t, 0.05, delay)

	_, err := tn.Axis("nonesuch")
	assert.ErrorIs(t, err, tune.ErrUnknownAxis)
}

func TestUpdateEPICSTuningWidths(t *testing.T) {
	_, b := simulated(t)
	ctx := context.Background()
	tn := tune.New(b, tune.DefaultRanges(), false, nil)
	called := false
	tn.UserSettings = func(context.Context, *tune.Tuners) error { called = true; return nil }
	require.NoError(t, tn.DefaultTuneRanges(ctx))
	require.NoError(t, tn.UserDefinedSettings(ctx))
	require.NoError(t, tn.UpdateEPICSTuningWidths(ctx))
	assert.True(t, called)
	w, _ := tn.Widths.MR.Get(ctx)
	assert.Equal(t, 0.005, w)
	w, _ = tn.Widths.M2RP.Get(ctx)
	assert.Equal(t, 6.0, w)
	assert.Equal(t, []string{"mr", "m2rp", "ar", "a2rp", "msr", "asr"}, tn.Names())
}
