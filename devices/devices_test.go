package devices_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/APS-USAXS/ipython-usaxs/devices"
	"github.com/APS-USAXS/ipython-usaxs/pv"
)

func simulated(t *testing.T) (*pv.MockNetwork, *devices.Beamline) {
	t.Helper()
	n := pv.NewMockNetwork()
	n.Permissive = true
	b, err := devices.New(n, nil, nil)
	require.NoError(t, err)
	devices.Simulate(n, b)
	return n, b
}

func TestMotorMove(t *testing.T) {
	_, b := simulated(t)
	ctx := context.Background()
	m, err := b.Motor("s_stage.x")
	require.NoError(t, err)
	require.NoError(t, m.Move(ctx, 12.5))
	pos, err := m.Position(ctx)
	require.NoError(t, err)
	if pos != 12.5 {
		t.Errorf("expected %v got %v", 12.5, pos)
	}
	require.NoError(t, m.MoveRel(ctx, -2.5))
	pos, _ = m.Position(ctx)
	assert.Equal(t, 10.0, pos)
}

func TestMotorWaitsForDMOV(t *testing.T) {
	n := pv.NewMockNetwork()
	m := devices.NewMotor(n, "tcam", "9idcLAX:m58:c1:m6")
	m.PollInterval = time.Millisecond
	n.SeedFloat("9idcLAX:m58:c1:m6.DMOV", 1)
	n.OnPut("9idcLAX:m58:c1:m6.VAL", func(ctx context.Context, n *pv.MockNetwork, _ string, v pv.Value) {
		n.SeedFloat("9idcLAX:m58:c1:m6.DMOV", 0)
		go func() {
			time.Sleep(5 * time.Millisecond)
			n.SeedFloat("9idcLAX:m58:c1:m6.RBV", v.Num)
			n.SeedFloat("9idcLAX:m58:c1:m6.DMOV", 1)
		}()
	})
	require.NoError(t, m.Move(context.Background(), 3))
	pos, err := m.Position(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3.0, pos)
}

func TestMotorWaitsForLateDMOV(t *testing.T) {
	n := pv.NewMockNetwork()
	m := devices.NewMotor(n, "ar", "9idcLAX:aero:c3:m1")
	m.PollInterval = time.Millisecond
	m.MoveGrace = time.Second
	n.SeedFloat("9idcLAX:aero:c3:m1.DMOV", 1)
	n.SeedFloat("9idcLAX:aero:c3:m1.RBV", 0)
	// the record processes the put a little after caput has returned
	n.OnPut("9idcLAX:aero:c3:m1.VAL", func(ctx context.Context, n *pv.MockNetwork, _ string, v pv.Value) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			n.SeedFloat("9idcLAX:aero:c3:m1.DMOV", 0)
			time.Sleep(20 * time.Millisecond)
			n.SeedFloat("9idcLAX:aero:c3:m1.RBV", v.Num)
			n.SeedFloat("9idcLAX:aero:c3:m1.DMOV", 1)
		}()
	})
	require.NoError(t, m.Move(context.Background(), 8.5))
	pos, err := m.Position(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8.5, pos)
}

func TestMotorMoveToCurrentPositionDoesNotWaitOutGrace(t *testing.T) {
	n := pv.NewMockNetwork()
	m := devices.NewMotor(n, "ar", "9idcLAX:aero:c3:m1")
	m.PollInterval = time.Millisecond
	m.MoveGrace = time.Minute
	n.SeedFloat("9idcLAX:aero:c3:m1.DMOV", 1)
	n.SeedFloat("9idcLAX:aero:c3:m1.RBV", 8.5)
	n.SeedFloat("9idcLAX:aero:c3:m1.RDBD", 0.001)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Move(ctx, 8.5001))
}

func TestMotorGraceExpires(t *testing.T) {
	n := pv.NewMockNetwork()
	m := devices.NewMotor(n, "ar", "9idcLAX:aero:c3:m1")
	m.PollInterval = time.Millisecond
	m.MoveGrace = 10 * time.Millisecond
	n.SeedFloat("9idcLAX:aero:c3:m1.DMOV", 1)
	n.SeedFloat("9idcLAX:aero:c3:m1.RBV", 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Move(ctx, 1))
}

func TestSetLimOrdersAndSkipsWhileMoving(t *testing.T) {
	n, b := simulated(t)
	ctx := context.Background()
	m, _ := b.Motor("a_stage.r")
	require.NoError(t, m.SetLim(ctx, 5, -5))
	lo, _ := m.GetLim(ctx, -1)
	hi, _ := m.GetLim(ctx, 1)
	assert.Equal(t, -5.0, lo)
	assert.Equal(t, 5.0, hi)

	n.SeedFloat(m.Prefix+".DMOV", 0)
	require.NoError(t, m.SetLim(ctx, -1, 1))
	hi, _ = m.GetLim(ctx, 1)
	assert.Equal(t, 5.0, hi, "limits must not change while moving")
}

func TestSlitSetSizeNeedsBoth(t *testing.T) {
	_, b := simulated(t)
	h := 0.4
	err := b.USAXSSlit.SetSize(context.Background(), &h, nil)
	assert.ErrorIs(t, err, devices.ErrSlitSize)
	v := 1.2
	require.NoError(t, b.GuardSlit.SetSize(context.Background(), &h, &v))
	got, _ := b.GuardSlit.VSize.Get(context.Background())
	assert.Equal(t, 1.2, got)
}

func TestPssShutterOpenClose(t *testing.T) {
	_, b := simulated(t)
	ctx := context.Background()
	require.NoError(t, b.MonoShutter.Open(ctx))
	st, err := b.MonoShutter.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, devices.StateOpen, st)
	require.NoError(t, b.MonoShutter.Close(ctx))
	st, _ = b.MonoShutter.State(ctx)
	assert.Equal(t, devices.StateClose, st)
}

func TestPssWaitForStateTimesOut(t *testing.T) {
	n := pv.NewMockNetwork()
	s := devices.NewApsPssShutter(n, "FE_shutter", "9ida:rShtrA", "PA:09ID:STA_A_FES_OPEN_PL.VAL")
	n.SeedString("PA:09ID:STA_A_FES_OPEN_PL.VAL", "CLOSED")
	start := time.Now()
	err := s.WaitForState(context.Background(), []string{"OPEN"}, 50*time.Millisecond, time.Millisecond)
	if !errors.Is(err, devices.ErrShutterTimeout) {
		t.Errorf("expected ErrShutterTimeout got %v", err)
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestPreUSAXSTuneNeeded(t *testing.T) {
	n := pv.NewMockNetwork()
	n.Permissive = true
	b, err := devices.New(n, nil, nil)
	require.NoError(t, err)
	p := b.Terms.PreUSAXSTune
	ctx := context.Background()
	now := time.Unix(1000000, 0)

	n.SeedFloat(p.EpochLastTune.Name, float64(now.Unix()))
	n.SeedFloat(p.ReqTimeBetweenTune.Name, 3600)
	n.SeedFloat(p.ReqNumScansBetweenTune.Name, 5)
	n.SeedFloat(p.NumScansLastTune.Name, 2)
	needed, err := p.Needed(ctx, now)
	require.NoError(t, err)
	assert.False(t, needed)

	n.SeedFloat(p.RunTuneNext.Name, 1)
	needed, _ = p.Needed(ctx, now)
	assert.True(t, needed)
	next, _ := p.RunTuneNext.Get(ctx)
	assert.False(t, next, "request flag is cleared")

	n.SeedFloat(p.NumScansLastTune.Name, 6)
	needed, _ = p.Needed(ctx, now)
	assert.True(t, needed)

	n.SeedFloat(p.NumScansLastTune.Name, 0)
	needed, _ = p.Needed(ctx, now.Add(2*time.Hour))
	assert.True(t, needed)
}

func TestFeedbackNearLimitWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	n := pv.NewMockNetwork()
	b, err := devices.New(n, zap.New(core), nil)
	require.NoError(t, err)
	fb := b.Monochromator.Feedback
	n.SeedFloat(fb.DRVH.Name, 5)
	n.SeedFloat(fb.DRVL.Name, -5)
	n.SeedFloat(fb.OVAL.Name, 1)
	near, err := fb.CheckPosition(context.Background())
	require.NoError(t, err)
	assert.False(t, near)
	n.SeedFloat(fb.OVAL.Name, 4.9)
	near, _ = fb.CheckPosition(context.Background())
	assert.True(t, near)
	assert.Equal(t, 1, logs.Len())
}

func TestAreaDetectorStage(t *testing.T) {
	n, b := simulated(t)
	ctx := context.Background()
	n.SeedFloat(b.SAXSDet.HDF1.FileNumber.Name, 7)
	now := time.Date(2019, 11, 3, 12, 0, 0, 0, time.Local)
	sf, err := b.SAXSDet.Stage(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/share1/USAXS_data/2019-11/", sf.WritePath)
	re := regexp.MustCompile(`^/share1/USAXS_data/2019-11/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}_000006\.h5$`)
	if !re.MatchString(sf.FullName) {
		t.Errorf("unexpected file name %q", sf.FullName)
	}
	mode, _ := b.SAXSDet.HDF1.FileWriteMode.Get(ctx)
	assert.Equal(t, devices.ADStream, mode)
	capture, _ := b.SAXSDet.HDF1.Capture.Get(ctx)
	assert.Equal(t, 1, capture)

	require.NoError(t, b.SAXSDet.Unstage(ctx))
	capture, _ = b.SAXSDet.HDF1.Capture.Get(ctx)
	assert.Equal(t, 0, capture)
}

func TestAreaDetectorStageLongPath(t *testing.T) {
	n, b := simulated(t)
	ctx := context.Background()
	d := b.SAXSDet
	d.WritePathTemplate = "/mnt/usaxscontrol/USAXS_data/%Y-%m/user_working_folder_saxs/"
	now := time.Date(2019, 11, 3, 12, 0, 0, 0, time.Local)
	sf, err := d.Stage(ctx, now)
	require.NoError(t, err)
	want := "/mnt/usaxscontrol/USAXS_data/2019-11/user_working_folder_saxs/"
	require.Greater(t, len(want), 40)
	puts := n.PutsTo(d.HDF1.FilePath.Name)
	require.Len(t, puts, 1)
	assert.Equal(t, pv.KindLongString, puts[0].Kind)
	assert.Equal(t, want, puts[0].Str)
	got, err := d.HDF1.FilePath.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, want, sf.WritePath)
}

func TestAreaDetectorPathMissing(t *testing.T) {
	n, b := simulated(t)
	n.SeedFloat(b.WAXSDet.HDF1.FilePathExists.Name, 0)
	_, err := b.WAXSDet.Stage(context.Background(), time.Now())
	assert.ErrorIs(t, err, devices.ErrPathMissing)
}

func TestShortUID(t *testing.T) {
	id := devices.NewShortUID()
	assert.Len(t, id, 23)
	assert.Equal(t, 3, strings.Count(id, "-"))
}

func TestMotorOverride(t *testing.T) {
	n := pv.NewMockNetwork()
	b, err := devices.New(n, nil, map[string]string{"tens": "9idcLAX:m58:c3:m8"})
	require.NoError(t, err)
	m, _ := b.Motor("tens")
	assert.Equal(t, "9idcLAX:m58:c3:m8", m.Prefix)

	_, err = devices.New(n, nil, map[string]string{"nonesuch": "x"})
	assert.ErrorIs(t, err, devices.ErrNotFound)
}

func TestDeviceRead(t *testing.T) {
	n := pv.NewMockNetwork()
	b, err := devices.New(n, nil, nil)
	require.NoError(t, err)
	n.SeedString(b.UserData.State.Name, "Starting data collection")
	var buf bytes.Buffer
	require.NoError(t, devices.DeviceRead(context.Background(), &buf, b.UserData, true))
	out := buf.String()
	assert.Contains(t, out, "user_data_state")
	assert.Contains(t, out, "Starting data collection")
	assert.NotContains(t, out, "user_data_user_name")
}

func TestBlackflySnapshot(t *testing.T) {
	_, b := simulated(t)
	var buf bytes.Buffer
	require.NoError(t, b.Blackfly.Snapshot(context.Background(), &buf, time.Now()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("SIMPLE  =")))
}

func TestWriteFITSShape(t *testing.T) {
	err := devices.WriteFITS(io.Discard, 3, 3, []float64{1, 2}, nil)
	assert.ErrorIs(t, err, devices.ErrImageShape)
}

func ExampleMoveMotors() {
	n := pv.NewMockNetwork()
	n.Permissive = true
	b, _ := devices.New(n, nil, nil)
	devices.Simulate(n, b)
	ctx := context.Background()
	devices.MoveMotors(ctx,
		devices.Target{P: b.SStage.X, Pos: 1},
		devices.Target{P: b.SStage.Y, Pos: 2})
	x, _ := b.SStage.X.Position(ctx)
	y, _ := b.SStage.Y.Position(ctx)
	fmt.Println(x, y)
	// Output: 1 2
}
