package devices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ncruces/go-strftime"

	"github.com/APS-USAXS/ipython-usaxs/pv"
)

// ErrPathMissing is returned when the IOC says the HDF5 write path does not exist
var ErrPathMissing = errors.New("path does not exist on IOC")

// AreaDetectorPrefixes maps each detector to its PV prefix
var AreaDetectorPrefixes = map[string]string{
	"Pilatus 100k":       "usaxs_pilatus1:",
	"Pilatus 200kw":      "usaxs_pilatus2:",
	"PointGrey BlackFly": "9idFLY1:",
	"Alta":               "9idalta:",
}

// HDF5FileTemplate is the C format the HDF5 plugin builds full file names with
const HDF5FileTemplate = "%s%s_%6.6d.h5"

// ADStream is the HDF5 plugin's Stream file write mode
const ADStream = 2

// NewShortUID returns a uuid with its last group removed
func NewShortUID() string {
	id := uuid.New().String()
	return id[:strings.LastIndex(id, "-")]
}

// Cam is the camera driver of an area detector
type Cam struct {
	Acquire     pv.Int
	AcquireTime pv.Float
	NumImages   pv.Int
	ImageMode   pv.Int
}

// HDF5Plugin is the NDFileHDF5 plugin of an area detector
type HDF5Plugin struct {
	FilePath, FileName, FileTemplate pv.LongString
	FullFileName                     pv.LongString
	FileNumber                       pv.Int
	FilePathExists                   pv.Bool
	AutoIncrement, AutoSave          pv.Int
	NumCapture, Capture              pv.Int
	FileWriteMode, ArrayCounter      pv.Int
	EnableCallbacks                  pv.Int
}

// StagedFile describes where a staged HDF5 plugin will write
type StagedFile struct {
	Name      string // short uid given to the plugin
	ReadPath  string
	WritePath string
	FullName  string // the file the next frames will land in
}

// AreaDetector is an areaDetector IOC with a camera and an HDF5 plugin
type AreaDetector struct {
	Name   string
	Prefix string

	Cam  Cam
	HDF1 HDF5Plugin

	// WritePathTemplate and ReadPathTemplate are strftime patterns for the
	// directory as seen by the IOC and by us
	WritePathTemplate string
	ReadPathTemplate  string

	PollInterval time.Duration

	saved []func(context.Context) error
}

// NewAreaDetector binds an area detector under prefix
func NewAreaDetector(net pv.Network, name, prefix string) *AreaDetector {
	c := prefix + "cam1:"
	h := prefix + "HDF1:"
	return &AreaDetector{
		Name:   name,
		Prefix: prefix,
		Cam: Cam{
			Acquire:     pv.NewInt(net, c+"Acquire"),
			AcquireTime: pv.NewFloat(net, c+"AcquireTime"),
			NumImages:   pv.NewInt(net, c+"NumImages"),
			ImageMode:   pv.NewInt(net, c+"ImageMode"),
		},
		HDF1: HDF5Plugin{
			FilePath:        pv.NewLongString(net, h+"FilePath"),
			FileName:        pv.NewLongString(net, h+"FileName"),
			FileTemplate:    pv.NewLongString(net, h+"FileTemplate"),
			FullFileName:    pv.NewLongString(net, h+"FullFileName_RBV"),
			FileNumber:      pv.NewInt(net, h+"FileNumber"),
			FilePathExists:  pv.NewBool(net, h+"FilePathExists_RBV"),
			AutoIncrement:   pv.NewInt(net, h+"AutoIncrement"),
			AutoSave:        pv.NewInt(net, h+"AutoSave"),
			NumCapture:      pv.NewInt(net, h+"NumCapture"),
			Capture:         pv.NewInt(net, h+"Capture"),
			FileWriteMode:   pv.NewInt(net, h+"FileWriteMode"),
			ArrayCounter:    pv.NewInt(net, h+"ArrayCounter"),
			EnableCallbacks: pv.NewInt(net, h+"EnableCallbacks"),
		},
		WritePathTemplate: "/mnt/share1/USAXS_data/%Y-%m/",
		ReadPathTemplate:  "/share1/USAXS_data/%Y-%m/",
		PollInterval:      DefaultPollInterval,
	}
}

// stageInt writes v to p, remembering the old value for Unstage
func (d *AreaDetector) stageInt(ctx context.Context, p pv.Int, v int) error {
	if old, err := p.Get(ctx); err == nil {
		d.saved = append(d.saved, func(ctx context.Context) error { return p.Put(ctx, old) })
	}
	return p.Put(ctx, v)
}

func (d *AreaDetector) stageString(ctx context.Context, p pv.LongString, v string) error {
	if old, err := p.Get(ctx); err == nil {
		d.saved = append(d.saved, func(ctx context.Context) error { return p.Put(ctx, old) })
	}
	return p.Put(ctx, v)
}

// Stage prepares the HDF5 plugin for a new file: a short uid file name in
// today's directory, auto increment and auto save on, stream mode, capture
// started.  The returned FullName uses the file number the plugin will
// consume next.
func (d *AreaDetector) Stage(ctx context.Context, now time.Time) (StagedFile, error) {
	sf := StagedFile{
		Name:      NewShortUID(),
		WritePath: strftime.Format(d.WritePathTemplate, now),
		ReadPath:  strftime.Format(d.ReadPathTemplate, now),
	}
	d.saved = nil
	// an old file must not be open
	if err := d.HDF1.Capture.Put(ctx, 0); err != nil {
		return sf, err
	}
	if err := d.HDF1.FilePath.Put(ctx, sf.WritePath); err != nil {
		return sf, err
	}
	if err := d.HDF1.FileName.Put(ctx, sf.Name); err != nil {
		return sf, err
	}
	steps := []func() error{
		func() error { return d.stageInt(ctx, d.HDF1.AutoIncrement, 1) },
		func() error { return d.stageInt(ctx, d.HDF1.ArrayCounter, 0) },
		func() error { return d.stageInt(ctx, d.HDF1.AutoSave, 1) },
		func() error { return d.stageInt(ctx, d.HDF1.NumCapture, 0) },
		func() error { return d.stageString(ctx, d.HDF1.FileTemplate, HDF5FileTemplate) },
		func() error { return d.stageInt(ctx, d.HDF1.FileWriteMode, ADStream) },
		func() error { return d.stageInt(ctx, d.HDF1.Capture, 1) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return sf, fmt.Errorf("staging %s: %w", d.Name, err)
		}
	}
	n, err := d.HDF1.FileNumber.Get(ctx)
	if err != nil {
		return sf, err
	}
	// the file number is already the *next* one
	sf.FullName = fmt.Sprintf(HDF5FileTemplate, sf.ReadPath, sf.Name, n-1)
	exists, err := d.HDF1.FilePathExists.Get(ctx)
	if err != nil {
		return sf, err
	}
	if !exists {
		return sf, fmt.Errorf("%w: %s", ErrPathMissing, sf.WritePath)
	}
	return sf, nil
}

// Unstage restores what Stage changed, most recent first
func (d *AreaDetector) Unstage(ctx context.Context) error {
	var first error
	for i := len(d.saved) - 1; i >= 0; i-- {
		if err := d.saved[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	d.saved = nil
	return first
}

// Acquire starts an acquisition and waits until the camera is idle
func (d *AreaDetector) Acquire(ctx context.Context) error {
	if err := d.Cam.Acquire.Put(ctx, 1); err != nil {
		return err
	}
	poll := d.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		busy, err := d.Cam.Acquire.Get(ctx)
		if err != nil {
			return err
		}
		if busy == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			d.Cam.Acquire.Put(context.Background(), 0)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Signals implements Device
func (d *AreaDetector) Signals() []NamedSignal {
	return []NamedSignal{
		{d.Name + "_cam_acquire_time", d.Cam.AcquireTime},
		{d.Name + "_cam_num_images", d.Cam.NumImages},
		{d.Name + "_hdf1_file_path", d.HDF1.FilePath},
		{d.Name + "_hdf1_file_name", d.HDF1.FileName},
		{d.Name + "_hdf1_file_number", d.HDF1.FileNumber},
	}
}
