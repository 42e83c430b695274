// Package tune aligns an axis by scanning it across a peak and moving to the
// peak's position.
package tune

import (
	"errors"
	"math"
)

// ErrNoData is returned when a scan has nothing to compute statistics from
var ErrNoData = errors.New("no data points")

// Stats describes a peak in a 1D scan
type Stats struct {
	MaxX, MaxY float64
	MinX, MinY float64

	// COM is the center of mass, sum(x*y)/sum(y)
	COM float64

	// Cen is the midpoint of the half-maximum crossings, FWHM their spacing.
	// Both are NaN when y does not cross half maximum twice.
	Cen  float64
	FWHM float64

	N int
}

// PeakStats computes the peak statistics of y(x).  Half maximum is taken as
// midway between the smallest and largest y.
func PeakStats(x, y []float64) (Stats, error) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n == 0 {
		return Stats{}, ErrNoData
	}
	s := Stats{MaxX: x[0], MaxY: y[0], MinX: x[0], MinY: y[0], N: n}
	var sxy, sy float64
	for i := 0; i < n; i++ {
		if y[i] > s.MaxY {
			s.MaxX, s.MaxY = x[i], y[i]
		}
		if y[i] < s.MinY {
			s.MinX, s.MinY = x[i], y[i]
		}
		sxy += x[i] * y[i]
		sy += y[i]
	}
	s.COM = math.NaN()
	if sy != 0 {
		s.COM = sxy / sy
	}

	half := (s.MaxY + s.MinY) / 2
	var crossings []float64
	for i := 0; i < n; i++ {
		b := y[i] - half
		if b == 0 {
			crossings = append(crossings, x[i])
			continue
		}
		if i == 0 {
			continue
		}
		if a := y[i-1] - half; a*b < 0 {
			crossings = append(crossings, x[i-1]+(x[i]-x[i-1])*a/(a-b))
		}
	}
	s.Cen, s.FWHM = math.NaN(), math.NaN()
	if len(crossings) >= 2 {
		lo, hi := crossings[0], crossings[len(crossings)-1]
		s.Cen = (lo + hi) / 2
		s.FWHM = math.Abs(hi - lo)
	}
	return s, nil
}

// Choice is which statistic locates the peak
type Choice string

const (
	// ChoiceCOM is the center of mass
	ChoiceCOM Choice = "com"
	// ChoiceCen is the FWHM midpoint
	ChoiceCen Choice = "cen"
	// ChoiceMax is the position of the largest reading
	ChoiceMax Choice = "max"
)

// Position returns the peak position by c.  Unknown choices use the center
// of mass.
func (s Stats) Position(c Choice) float64 {
	switch c {
	case ChoiceCen:
		return s.Cen
	case ChoiceMax:
		return s.MaxX
	}
	return s.COM
}
