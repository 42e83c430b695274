package devices

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/APS-USAXS/ipython-usaxs/pv"
)

// NamedSignal is a PV as a device reports it
type NamedSignal struct {
	Name   string
	Signal pv.Readable
}

// Device is anything that can list its signals
type Device interface {
	Signals() []NamedSignal
}

// Reading is one row of DeviceRead
type Reading struct {
	Name  string
	PV    string
	Value string
}

// Read reads every signal of d.  Signals that cannot be reached are reported
// as "disconnected" unless skipDisconnected is set, in which case they are
// left out.
func Read(ctx context.Context, d Device, skipDisconnected bool) ([]Reading, error) {
	var out []Reading
	for _, s := range d.Signals() {
		v, err := s.Signal.Read(ctx)
		r := Reading{Name: s.Name, PV: s.Signal.PVName()}
		switch {
		case err == nil:
			r.Value = v.String()
		case errors.Is(err, pv.ErrNotConnected):
			if skipDisconnected {
				continue
			}
			r.Value = "disconnected"
		default:
			return out, fmt.Errorf("reading %s: %w", s.Name, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// DeviceRead reads d and writes it to w as a name/value/PV table
func DeviceRead(ctx context.Context, w io.Writer, d Device, skipDisconnected bool) error {
	rows, err := Read(ctx, d, skipDisconnected)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"name", "value", "PV"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, r := range rows {
		table.Append([]string{r.Name, r.Value, r.PV})
	}
	table.Render()
	return nil
}
