package commandlist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
	"go.uber.org/zap"

	"github.com/APS-USAXS/ipython-usaxs/devices"
	"github.com/APS-USAXS/ipython-usaxs/metadata"
	"github.com/APS-USAXS/ipython-usaxs/tune"
)

// ErrBadArgs is returned when a command's arguments cannot be used
var ErrBadArgs = errors.New("bad command arguments")

const (
	// StateStarting is written to the state PV when a command list starts
	StateStarting = "Starting data collection"

	// StateDone is written when a command list ends.  The exact text
	// triggers the end-of-run music on the beamline.
	StateDone = "USAXS macro file done"

	// StateAborted is written when a command list ends on an error
	StateAborted = "USAXS macro file aborted"

	// PostedTableName is the name of the command table posted for the
	// live data page
	PostedTableName = "commands.txt"

	isoFormat = "2006-01-02 15:04:05.000000"
)

// Sample is where and what to measure
type Sample struct {
	X, Y      float64
	Thickness float64
	Title     string
}

// ParseSample reads sx sy thickness title from args
func ParseSample(args []string) (Sample, error) {
	if len(args) < 4 {
		return Sample{}, fmt.Errorf("%w: need sx sy thickness title, got %d values", ErrBadArgs, len(args))
	}
	var (
		s   Sample
		err error
	)
	for i, dst := range []*float64{&s.X, &s.Y, &s.Thickness} {
		*dst, err = strconv.ParseFloat(args[i], 64)
		if err != nil {
			return s, fmt.Errorf("%w: %q is not a number", ErrBadArgs, args[i])
		}
	}
	s.Title = args[3]
	return s, nil
}

// Procedures are the experiment procedures a command file can call
type Procedures interface {
	PreUSAXSTune(ctx context.Context, md metadata.MD) error
	PreSWAXSTune(ctx context.Context, md metadata.MD) error
	USAXSScan(ctx context.Context, s Sample, md metadata.MD) error
	SAXS(ctx context.Context, s Sample, md metadata.MD) error
	WAXS(ctx context.Context, s Sample, md metadata.MD) error
	ModeRadiography(ctx context.Context) error
	ModeSAXS(ctx context.Context) error
	ModeUSAXS(ctx context.Context) error
	ModeWAXS(ctx context.Context) error
	MeasureBackground(ctx context.Context) error
}

// Options are the site settings of an Executor
type Options struct {
	MeasureDarkCurrents bool
	SyncOrderNumbers    bool

	// LivedataDir receives the command table for the live data web page
	LivedataDir string
	// PosterityDir keeps a time stamped copy of every command table
	PosterityDir string
	// ArchiveDir keeps the text of every command file that was run
	ArchiveDir string
}

// Executor runs command lists on the beamline
type Executor struct {
	Beamline *devices.Beamline
	Procs    Procedures
	Tuners   *tune.Tuners
	Options  Options

	// MD is recorded with every command, under the caller's md
	MD metadata.MD

	Log *zap.Logger
	Now func() time.Time
}

func (e *Executor) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Executor) log() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

// RunCommandFile reads filename and executes it
func (e *Executor) RunCommandFile(ctx context.Context, filename string, md metadata.MD) error {
	cmds, err := GetCommandList(filename)
	if err != nil {
		return err
	}
	return e.Execute(ctx, filename, cmds, md)
}

// Execute runs cmds, read from filename.  Actions that are not recognized
// are logged and skipped.
func (e *Executor) Execute(ctx context.Context, filename string, cmds []Command, md metadata.MD) error {
	if len(cmds) == 0 {
		return nil
	}
	fullName, err := filepath.Abs(filename)
	if err != nil {
		fullName = filename
	}
	text := fmt.Sprintf("Command file: %s\n%s", filename, TableString(cmds))
	e.log().Info(text)
	archive, err := e.archive(text)
	if err != nil {
		return err
	}

	if err := e.BeforeCommandList(ctx, md, cmds); err != nil {
		return e.abort(ctx, err)
	}
	for _, c := range cmds {
		if err := ctx.Err(); err != nil {
			return e.abort(ctx, err)
		}
		e.log().Info(fmt.Sprintf("file line %d: %s", c.LineNumber, c.Raw))
		cmdMD := metadata.Merge(e.MD, metadata.MD{
			"full_filename": fullName,
			"filename":      filename,
			"line_number":   c.LineNumber,
			"action":        c.Action,
			"parameters":    c.Args,
			"archive":       archive,
			"iso8601":       e.now().Format(isoFormat),
		}, md)
		if err := e.dispatch(ctx, c, cmdMD); err != nil {
			return e.abort(ctx, fmt.Errorf("%s line %d: %w", filename, c.LineNumber, err))
		}
	}
	return e.AfterCommandList(ctx)
}

// abort ends a command list that stopped on err and returns err.  The
// cleanup runs even when ctx is canceled.
func (e *Executor) abort(ctx context.Context, err error) error {
	e.log().Error("command list stopped", zap.Error(err))
	if cerr := e.endCommandList(context.WithoutCancel(ctx), StateAborted); cerr != nil {
		e.log().Error("cleanup after command list failed", zap.Error(cerr))
	}
	return err
}

func (e *Executor) dispatch(ctx context.Context, c Command, md metadata.MD) error {
	var scan func(context.Context, Sample, metadata.MD) error
	switch strings.ToLower(c.Action) {
	case "preusaxstune":
		return e.Procs.PreUSAXSTune(ctx, md)
	case "flyscan", "usaxsscan":
		scan = e.Procs.USAXSScan
	case "saxs", "saxsexp":
		scan = e.Procs.SAXS
	case "waxs", "waxsexp":
		scan = e.Procs.WAXS
	case "mode_radiography":
		return e.Procs.ModeRadiography(ctx)
	case "mode_saxs":
		return e.Procs.ModeSAXS(ctx)
	case "mode_usaxs":
		return e.Procs.ModeUSAXS(ctx)
	case "mode_waxs":
		return e.Procs.ModeWAXS(ctx)
	default:
		e.log().Info(fmt.Sprintf("no handling for line %d: %s", c.LineNumber, c.Raw))
		return nil
	}
	s, err := ParseSample(c.Args)
	if err != nil {
		return err
	}
	md["sx"], md["sy"], md["thickness"], md["title"] = s.X, s.Y, s.Thickness, s.Title
	return scan(ctx, s, md)
}

// BeforeCommandList marks the start of data collection, restores the tune
// ranges, tunes when asked to, and posts the command table
func (e *Executor) BeforeCommandList(ctx context.Context, md metadata.MD, cmds []Command) error {
	b := e.Beamline
	steps := []func() error{
		func() error { return b.UserData.Stamp(ctx, e.now()) },
		func() error { return b.UserData.SetState(ctx, StateStarting) },
		func() error { return b.UserData.CollectionInProgress.Put(ctx, 1) },
		func() error { return b.TiFilterShutter.Close(ctx) },
		func() error { return b.Terms.SAXS.Collecting.Put(ctx, 0) },
		func() error { return b.Terms.WAXS.Collecting.Put(ctx, 0) },
	}
	for _, s := range steps {
		if err := s(); err != nil {
			return err
		}
	}
	if e.Options.MeasureDarkCurrents {
		if err := e.Procs.MeasureBackground(ctx); err != nil {
			return err
		}
	}
	if t := e.Tuners; t != nil {
		if err := t.DefaultTuneRanges(ctx); err != nil {
			return err
		}
		if err := t.UserDefinedSettings(ctx); err != nil {
			return err
		}
		if err := t.UpdateEPICSTuningWidths(ctx); err != nil {
			return err
		}
	}
	onQdo, err := b.Terms.PreUSAXSTune.RunTuneOnQdo.Get(ctx)
	if err != nil {
		return err
	}
	if onQdo {
		e.log().Info("Running preUSAXStune as requested at start of measurements")
		if err := e.Procs.PreUSAXSTune(ctx, md); err != nil {
			return err
		}
	}
	if e.Options.SyncOrderNumbers {
		if err := SyncOrderNumbers(ctx, b); err != nil {
			return err
		}
	}
	if cmds != nil {
		return e.PostCommandsListfile2WWW(ctx, cmds)
	}
	return nil
}

// AfterCommandList marks the end of data collection
func (e *Executor) AfterCommandList(ctx context.Context) error {
	return e.endCommandList(ctx, StateDone)
}

// endCommandList tries every step and returns the first error
func (e *Executor) endCommandList(ctx context.Context, state string) error {
	b := e.Beamline
	var first error
	for _, step := range []func() error{
		func() error { return b.UserData.Stamp(ctx, e.now()) },
		func() error { return b.UserData.SetState(ctx, state) },
		func() error { return b.UserData.CollectionInProgress.Put(ctx, 0) },
		func() error { return b.TiFilterShutter.Close(ctx) },
	} {
		if err := step(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SyncOrderNumbers writes the largest of the fly scan order number and the
// SAXS and WAXS file numbers to all three
func SyncOrderNumbers(ctx context.Context, b *devices.Beamline) error {
	order := 0
	for _, p := range []interface {
		Get(context.Context) (int, error)
	}{b.Terms.FlyScan.OrderNumber, b.SAXSDet.HDF1.FileNumber, b.WAXSDet.HDF1.FileNumber} {
		n, err := p.Get(ctx)
		if err != nil {
			return err
		}
		if n > order {
			order = n
		}
	}
	if err := b.SAXSDet.HDF1.FileNumber.Put(ctx, order); err != nil {
		return err
	}
	if err := b.WAXSDet.HDF1.FileNumber.Put(ctx, order); err != nil {
		return err
	}
	return b.Terms.FlyScan.OrderNumber.Put(ctx, order)
}

// PostCommandsListfile2WWW publishes the command table for the live data
// page and keeps a time stamped copy
func (e *Executor) PostCommandsListfile2WWW(ctx context.Context, cmds []Command) error {
	now := e.now()
	stamp := now.Format(isoFormat)
	contents := fmt.Sprintf("bluesky command sequence\nwritten: %s\n%s", stamp, TableString(cmds))
	if dir := e.Options.LivedataDir; dir != "" {
		if err := os.WriteFile(filepath.Join(dir, PostedTableName), []byte(contents), 0o644); err != nil {
			return err
		}
	}
	ud := e.Beamline.UserData
	if err := ud.MacroFile.Put(ctx, PostedTableName); err != nil {
		return err
	}
	if err := ud.MacroFileTime.Put(ctx, stamp); err != nil {
		return err
	}
	if dir := e.Options.PosterityDir; dir != "" {
		name := strftime.Format("%Y%m%d-%H%M%S-", now) + PostedTableName
		if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// archive keeps text under ArchiveDir/YYYY/MM and returns the file name
func (e *Executor) archive(text string) (string, error) {
	if e.Options.ArchiveDir == "" {
		return "", nil
	}
	now := e.now()
	dir := filepath.Join(e.Options.ArchiveDir, strftime.Format("%Y/%m", now))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := filepath.Join(dir, strftime.Format("%Y%m%d-%H%M%S", now)+"-commands.txt")
	return name, os.WriteFile(name, []byte(text), 0o644)
}

// BeforePlan tunes first when a tune is due: the USAXS optics when the
// instrument is in the USAXS mode, else the SAXS/WAXS ones
func BeforePlan(ctx context.Context, b *devices.Beamline, p Procedures, md metadata.MD, now time.Time) error {
	needed, err := b.Terms.PreUSAXSTune.Needed(ctx, now)
	if err != nil || !needed {
		return err
	}
	mode, err := b.Terms.SAXS.UsaxsSaxsMode.Get(ctx)
	if err != nil {
		return err
	}
	if mode == devices.ModeUSAXSInBeam {
		return p.PreUSAXSTune(ctx, md)
	}
	return p.PreSWAXSTune(ctx, md)
}

// AfterPlan counts weight more scans since the last tune
func AfterPlan(ctx context.Context, b *devices.Beamline, weight int) error {
	p := b.Terms.PreUSAXSTune.NumScansLastTune
	n, err := p.Get(ctx)
	if err != nil {
		return err
	}
	return p.Put(ctx, n+weight)
}
