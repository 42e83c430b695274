// Package util contains misc internal utilities.
package util

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxEPICSStringLength is the longest string an EPICS stringout record holds
const MaxEPICSStringLength = 40

// Limiter imposes software limits on a value
type Limiter struct {
	Min float64 `json:"min" yaml:"Min"`
	Max float64 `json:"max" yaml:"Max"`
}

// Check returns true if min <= value <= max
func (l Limiter) Check(value float64) bool {
	return value >= l.Min && value <= l.Max
}

// Clamp restricts input to lie in [low, high]
func Clamp(input, low, high float64) float64 {
	return math.Max(low, math.Min(input, high))
}

// SecsToDuration converts a floating point number of seconds to a time.Duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * 1e9))
}

// TrimForEPICS shortens msg so it fits in an EPICS stringout record.
// Overlong strings keep at most MaxEPICSStringLength-1 bytes, cut on a rune
// boundary.
func TrimForEPICS(msg string) string {
	if len(msg) <= MaxEPICSStringLength {
		return msg
	}
	n := MaxEPICSStringLength - 1
	for n > 0 && !utf8.RuneStart(msg[n]) {
		n--
	}
	return msg[:n]
}

// FloatSliceToCSV converts a slice of floats to CSV formatted data.
// e.g., []float64{1,2.5} => "1,2.5"
func FloatSliceToCSV(fs []float64) string {
	s := make([]string, len(fs))
	for i, v := range fs {
		s[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(s, ",")
}

// ChunkStrings splits s into successive slices of at most n elements
func ChunkStrings(s []string, n int) [][]string {
	if n <= 0 {
		return [][]string{s}
	}
	var out [][]string
	for i := 0; i < len(s); i += n {
		end := i + n
		if end > len(s) {
			end = len(s)
		}
		out = append(out, s[i:end])
	}
	return out
}

// Linspace returns evenly spaced values in [start, stop] with num points,
// including both endpoints.  num < 2 returns just start.
func Linspace(start, stop float64, num int) []float64 {
	if num < 2 {
		return []float64{start}
	}
	out := make([]float64, num)
	step := (stop - start) / float64(num-1)
	for i := 0; i < num; i++ {
		out[i] = start + float64(i)*step
	}
	out[num-1] = stop
	return out
}
