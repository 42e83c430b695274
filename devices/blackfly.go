package devices

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/astrogo/fitsio"

	"github.com/APS-USAXS/ipython-usaxs/pv"
)

// ErrImageShape is returned when the image array does not match its reported size
var ErrImageShape = errors.New("image array does not match its dimensions")

// Blackfly is the PointGrey BlackFly camera.  It does not write files
// through the IOC; frames are read from the image plugin.
type Blackfly struct {
	*AreaDetector

	ArrayData    pv.Array
	SizeX, SizeY pv.Int
}

// NewBlackfly binds the camera under prefix
func NewBlackfly(net pv.Network, name, prefix string) *Blackfly {
	return &Blackfly{
		AreaDetector: NewAreaDetector(net, name, prefix),
		ArrayData:    pv.NewArray(net, prefix+"image1:ArrayData"),
		SizeX:        pv.NewInt(net, prefix+"image1:ArraySize0_RBV"),
		SizeY:        pv.NewInt(net, prefix+"image1:ArraySize1_RBV"),
	}
}

// Frame reads the most recent image as row-major pixels
func (b *Blackfly) Frame(ctx context.Context) (width, height int, pix []float64, err error) {
	width, err = b.SizeX.Get(ctx)
	if err != nil {
		return
	}
	height, err = b.SizeY.Get(ctx)
	if err != nil {
		return
	}
	pix, err = b.ArrayData.Get(ctx)
	if err != nil {
		return
	}
	if len(pix) < width*height || width <= 0 || height <= 0 {
		err = fmt.Errorf("%w: %d pixels for %dx%d", ErrImageShape, len(pix), width, height)
		return
	}
	pix = pix[:width*height]
	return
}

// Snapshot acquires one frame and streams it to w as a 16-bit FITS image
func (b *Blackfly) Snapshot(ctx context.Context, w io.Writer, now time.Time) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	width, height, pix, err := b.Frame(ctx)
	if err != nil {
		return err
	}
	cards := []fitsio.Card{
		{Name: "DETECTOR", Value: b.Name},
		{Name: "DATE-OBS", Value: now.UTC().Format("2006-01-02T15:04:05")},
	}
	if exp, err := b.Cam.AcquireTime.Get(ctx); err == nil {
		cards = append(cards, fitsio.Card{Name: "EXPTIME", Value: exp, Comment: "exposure time, s"})
	}
	return WriteFITS(w, width, height, pix, cards)
}

// WriteFITS writes one unsigned 16-bit frame, stored with the BZERO offset
func WriteFITS(w io.Writer, width, height int, pix []float64, cards []fitsio.Card) error {
	if len(pix) != width*height {
		return ErrImageShape
	}
	cards = append(cards, fitsio.Card{Name: "BZERO", Value: 32768}, fitsio.Card{Name: "BSCALE", Value: 1.0})
	f, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer f.Close()
	im := fitsio.NewImage(16, []int{width, height})
	defer im.Close()
	if err := im.Header().Append(cards...); err != nil {
		return err
	}
	ints := make([]int16, len(pix))
	for i, p := range pix {
		u := math.Round(math.Max(0, math.Min(p, math.MaxUint16)))
		ints[i] = int16(int32(u) - 32768)
	}
	if err := im.Write(ints); err != nil {
		return err
	}
	return f.Write(im)
}
