// Package export persists capture results.
package export

import (
	"context"

	"gonum.org/v1/gonum/floats"

	"github.com/hb9tf/specview/sdr"
)

// Exporter consumes capture results until the channel is closed or ctx is
// done.
type Exporter interface {
	Write(context.Context, <-chan sdr.CaptureResult) error
}

// summary holds the per-capture statistics stored next to the raw data.
type summary struct {
	Bins   int
	DBLow  float64
	DBHigh float64
	DBAvg  float64
}

// summarize returns false for results without magnitudes.
func summarize(r sdr.CaptureResult) (summary, bool) {
	if len(r.Magnitudes) == 0 {
		return summary{}, false
	}
	return summary{
		Bins:   len(r.Magnitudes),
		DBLow:  floats.Min(r.Magnitudes),
		DBHigh: floats.Max(r.Magnitudes),
		DBAvg:  floats.Sum(r.Magnitudes) / float64(len(r.Magnitudes)),
	}, true
}
