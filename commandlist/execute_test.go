package commandlist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/APS-USAXS/ipython-usaxs/devices"
	"github.com/APS-USAXS/ipython-usaxs/metadata"
	"github.com/APS-USAXS/ipython-usaxs/pv"
	"github.com/APS-USAXS/ipython-usaxs/tune"
)

type call struct {
	name   string
	sample Sample
	md     metadata.MD
}

type recorder struct {
	calls []call
	fail  map[string]error
}

func (r *recorder) add(name string, s Sample, md metadata.MD) error {
	r.calls = append(r.calls, call{name, s, md})
	return r.fail[name]
}

func (r *recorder) names() []string {
	var out []string
	for _, c := range r.calls {
		out = append(out, c.name)
	}
	return out
}

func (r *recorder) PreUSAXSTune(_ context.Context, md metadata.MD) error {
	return r.add("preUSAXStune", Sample{}, md)
}
func (r *recorder) PreSWAXSTune(_ context.Context, md metadata.MD) error {
	return r.add("preSWAXStune", Sample{}, md)
}
func (r *recorder) USAXSScan(_ context.Context, s Sample, md metadata.MD) error {
	return r.add("USAXSscan", s, md)
}
func (r *recorder) SAXS(_ context.Context, s Sample, md metadata.MD) error {
	return r.add("SAXS", s, md)
}
func (r *recorder) WAXS(_ context.Context, s Sample, md metadata.MD) error {
	return r.add("WAXS", s, md)
}
func (r *recorder) ModeRadiography(context.Context) error { return r.add("radiography", Sample{}, nil) }
func (r *recorder) ModeSAXS(context.Context) error        { return r.add("mode_SAXS", Sample{}, nil) }
func (r *recorder) ModeUSAXS(context.Context) error       { return r.add("mode_USAXS", Sample{}, nil) }
func (r *recorder) ModeWAXS(context.Context) error        { return r.add("mode_WAXS", Sample{}, nil) }
func (r *recorder) MeasureBackground(context.Context) error {
	return r.add("background", Sample{}, nil)
}

var when = time.Date(2019, 11, 3, 12, 30, 15, 0, time.Local)

func executor(t *testing.T) (*Executor, *recorder, *pv.MockNetwork, *observer.ObservedLogs) {
	t.Helper()
	n := pv.NewMockNetwork()
	n.Permissive = true
	b, err := devices.New(n, nil, nil)
	require.NoError(t, err)
	devices.Simulate(n, b)
	core, logs := observer.New(zap.InfoLevel)
	rec := &recorder{}
	dir := t.TempDir()
	for _, d := range []string{"livedata", "macros", "archive"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, d), 0o755))
	}
	e := &Executor{
		Beamline: b,
		Procs:    rec,
		Tuners:   tune.New(b, tune.DefaultRanges(), false, nil),
		Options: Options{
			LivedataDir:  filepath.Join(dir, "livedata"),
			PosterityDir: filepath.Join(dir, "macros"),
			ArchiveDir:   filepath.Join(dir, "archive"),
		},
		MD:  metadata.MD{"beamline_id": metadata.BeamlineID, "title": "from config"},
		Log: zap.New(core),
		Now: func() time.Time { return when },
	}
	return e, rec, n, logs
}

func TestExecuteDispatch(t *testing.T) {
	e, rec, _, logs := executor(t)
	ctx := context.Background()
	cmds, err := ParseText(strings.NewReader(`
preUSAXStune
FlyScan 1 2 0.5 "glassy carbon"
saxsExp 3 4 1 water
WAXS 5 6 1 water
mode_Radiography
mode_SAXS
mode_USAXS
mode_WAXS
mono_shutter open
`))
	require.NoError(t, err)
	require.NoError(t, e.Execute(ctx, "overnight.txt", cmds, metadata.MD{"user": "extra"}))

	assert.Equal(t, []string{"preUSAXStune", "USAXSscan", "SAXS", "WAXS",
		"radiography", "mode_SAXS", "mode_USAXS", "mode_WAXS"}, rec.names())

	fly := rec.calls[1]
	assert.Equal(t, Sample{1, 2, 0.5, "glassy carbon"}, fly.sample)
	assert.Equal(t, 3, fly.md["line_number"])
	assert.Equal(t, "FlyScan", fly.md["action"])
	assert.Equal(t, "glassy carbon", fly.md["title"], "the sample title wins over other metadata")
	assert.Equal(t, 1.0, fly.md["sx"])
	assert.Equal(t, "extra", fly.md["user"])
	assert.Equal(t, "overnight.txt", fly.md["filename"])
	assert.True(t, filepath.IsAbs(fly.md["full_filename"].(string)))
	assert.Equal(t, "2019-11-03 12:30:15.000000", fly.md["iso8601"])
	assert.Equal(t, metadata.BeamlineID, fly.md["beamline_id"])
	archive := fly.md["archive"].(string)
	text, err := os.ReadFile(archive)
	require.NoError(t, err)
	assert.Contains(t, string(text), "Command file: overnight.txt")
	assert.Equal(t, "from config", rec.calls[0].md["title"])

	assert.Equal(t, 1, logs.FilterMessage("no handling for line 10: mono_shutter open").Len())
	assert.Equal(t, 1, logs.FilterMessage("file line 3: FlyScan 1 2 0.5 \"glassy carbon\"").Len())

	state, _ := e.Beamline.UserData.State.Get(ctx)
	assert.Equal(t, StateDone, state)
	busy, _ := e.Beamline.UserData.CollectionInProgress.Get(ctx)
	assert.Equal(t, 0, busy)
}

func TestExecuteEmptyIsNoop(t *testing.T) {
	e, rec, n, _ := executor(t)
	before := len(n.History())
	require.NoError(t, e.Execute(context.Background(), "empty.txt", nil, nil))
	assert.Empty(t, rec.calls)
	assert.Equal(t, before, len(n.History()))
}

func TestExecuteBadArgsStops(t *testing.T) {
	e, rec, _, _ := executor(t)
	cmds := []Command{
		{Action: "SAXS", Args: []string{"0", "x", "0", "blank"}, LineNumber: 7, Raw: "SAXS 0 x 0 blank"},
		{Action: "WAXS", Args: []string{"0", "0", "0", "blank"}, LineNumber: 8},
	}
	err := e.Execute(context.Background(), "bad.txt", cmds, nil)
	assert.ErrorIs(t, err, ErrBadArgs)
	assert.Contains(t, err.Error(), "line 7")
	assert.Empty(t, rec.calls)
}

func TestBeforeCommandList(t *testing.T) {
	e, rec, n, _ := executor(t)
	ctx := context.Background()
	b := e.Beamline
	e.Options.MeasureDarkCurrents = true
	e.Options.SyncOrderNumbers = true
	n.SeedFloat(b.Terms.PreUSAXSTune.RunTuneOnQdo.Name, 1)
	n.SeedFloat(b.Terms.FlyScan.OrderNumber.Name, 12)
	n.SeedFloat(b.SAXSDet.HDF1.FileNumber.Name, 40)
	n.SeedFloat(b.WAXSDet.HDF1.FileNumber.Name, 3)
	n.SeedFloat(b.Terms.SAXS.Collecting.Name, 1)

	cmds := []Command{{Action: "SAXS", Args: []string{"0", "0", "0", "blank"}, LineNumber: 1}}
	require.NoError(t, e.BeforeCommandList(ctx, nil, cmds))
	assert.Equal(t, []string{"background", "preUSAXStune"}, rec.names())

	for _, p := range []pv.Int{b.Terms.FlyScan.OrderNumber, b.SAXSDet.HDF1.FileNumber, b.WAXSDet.HDF1.FileNumber} {
		v, _ := p.Get(ctx)
		assert.Equal(t, 40, v, p.Name)
	}
	state, _ := b.UserData.State.Get(ctx)
	assert.Equal(t, StateStarting, state)
	c, _ := b.Terms.SAXS.Collecting.Get(ctx)
	assert.Equal(t, 0, c)
	w, _ := e.Tuners.Widths.AR.Get(ctx)
	assert.Equal(t, 0.004, w)

	posted, err := os.ReadFile(filepath.Join(e.Options.LivedataDir, PostedTableName))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(posted), "bluesky command sequence\nwritten: 2019-11-03 12:30:15"))
	_, err = os.Stat(filepath.Join(e.Options.PosterityDir, "20191103-123015-commands.txt"))
	assert.NoError(t, err)
	name, _ := b.UserData.MacroFile.Get(ctx)
	assert.Equal(t, PostedTableName, name)
}

func TestBeforePlan(t *testing.T) {
	e, rec, n, _ := executor(t)
	ctx := context.Background()
	b := e.Beamline

	n.SeedFloat(b.Terms.PreUSAXSTune.ReqNumScansBetweenTune.Name, 5)
	n.SeedFloat(b.Terms.PreUSAXSTune.ReqTimeBetweenTune.Name, 3600)
	n.SeedFloat(b.Terms.PreUSAXSTune.EpochLastTune.Name, float64(when.Unix()))
	require.NoError(t, BeforePlan(ctx, b, rec, nil, when))
	assert.Empty(t, rec.calls)

	n.SeedFloat(b.Terms.PreUSAXSTune.RunTuneNext.Name, 1)
	require.NoError(t, BeforePlan(ctx, b, rec, nil, when))
	n.SeedFloat(b.Terms.PreUSAXSTune.RunTuneNext.Name, 1)
	n.SeedString(b.Terms.SAXS.UsaxsSaxsMode.Name, devices.ModeSAXSInBeam)
	require.NoError(t, BeforePlan(ctx, b, rec, nil, when))
	assert.Equal(t, []string{"preUSAXStune", "preSWAXStune"}, rec.names())
}

func TestAfterPlan(t *testing.T) {
	e, _, n, _ := executor(t)
	p := e.Beamline.Terms.PreUSAXSTune.NumScansLastTune
	n.SeedFloat(p.Name, 2)
	require.NoError(t, AfterPlan(context.Background(), e.Beamline, 3))
	v, _ := p.Get(context.Background())
	assert.Equal(t, 5, v)
}

func TestExecuteFailureEndsCollection(t *testing.T) {
	e, rec, n, _ := executor(t)
	ctx := context.Background()
	boom := errors.New("detector offline")
	rec.fail = map[string]error{"SAXS": boom}
	cmds, err := ParseText(strings.NewReader("SAXS 1 2 1 water\nWAXS 1 2 1 water\n"))
	require.NoError(t, err)
	err = e.Execute(ctx, "overnight.txt", cmds, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"SAXS"}, rec.names())
	b := e.Beamline
	busy, _ := b.UserData.CollectionInProgress.Get(ctx)
	assert.Equal(t, 0, busy)
	state, _ := b.UserData.State.Get(ctx)
	assert.Equal(t, StateAborted, state)
	shutter, _ := b.TiFilterShutter.State(ctx)
	assert.Equal(t, devices.StateClose, shutter)
	assert.Equal(t, []pv.Value{pv.FloatValue(1), pv.FloatValue(0)}, n.PutsTo(b.UserData.CollectionInProgress.Name))
}

func TestExecuteCanceledEndsCollection(t *testing.T) {
	e, _, _, _ := executor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cmds, err := ParseText(strings.NewReader("SAXS 1 2 1 water\n"))
	require.NoError(t, err)
	err = e.Execute(ctx, "overnight.txt", cmds, nil)
	assert.ErrorIs(t, err, context.Canceled)
	busy, _ := e.Beamline.UserData.CollectionInProgress.Get(context.Background())
	assert.Equal(t, 0, busy)
	state, _ := e.Beamline.UserData.State.Get(context.Background())
	assert.Equal(t, StateAborted, state)
}
