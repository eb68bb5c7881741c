// Package filter drops or trims frames on their way from a source to the
// display.
package filter

import (
	"context"
	"math"

	"github.com/golang/glog"

	"github.com/hb9tf/specview/sdr"
)

// Filterer inspects a frame and returns the frame to pass on, or false to
// drop it.
type Filterer interface {
	Apply(sdr.Frame) (sdr.Frame, bool)
}

// Filter copies frames from input to output through filters, in order. It
// returns when input is closed or ctx is done. output is not closed.
func Filter(ctx context.Context, input <-chan sdr.Frame, output chan<- sdr.Frame, filters []Filterer) error {
	for {
		var (
			f  sdr.Frame
			ok bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok = <-input:
		}
		if !ok {
			return nil
		}

		keep := true
		for _, flt := range filters {
			if f, keep = flt.Apply(f); !keep {
				break
			}
		}
		if !keep {
			glog.V(2).Infof("dropped frame from %s at %.0f Hz (%d bins)", f.Source, f.CenterFreq, len(f.Magnitudes))
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case output <- f:
		}
	}
}

// FilterFreq keeps the bins within [FreqLow, FreqHigh] Hz and drops frames
// without any bin in that window.
type FilterFreq struct {
	FreqLow  float64
	FreqHigh float64
}

func (ff *FilterFreq) Apply(f sdr.Frame) (sdr.Frame, bool) {
	n := len(f.Magnitudes)
	// Check if the frame lies entirely outside what we want to include.
	if n == 0 || f.LowFreq() > ff.FreqHigh || f.HighFreq() < ff.FreqLow {
		return f, false
	}
	binWidth := f.Bandwidth / float64(n)
	if binWidth <= 0 {
		return f, true
	}
	first := int(math.Max(0, math.Floor((ff.FreqLow-f.LowFreq())/binWidth)))
	last := int(math.Min(float64(n), math.Ceil((ff.FreqHigh-f.LowFreq())/binWidth)))
	if first >= last {
		return f, false
	}
	if first == 0 && last == n {
		return f, true
	}

	low := f.LowFreq() + float64(first)*binWidth
	high := f.LowFreq() + float64(last)*binWidth
	glog.V(2).Infof("cropped frame from %s to %.0f-%.0f Hz (%d of %d bins)", f.Source, low, high, last-first, n)
	f.Magnitudes = append([]float64(nil), f.Magnitudes[first:last]...)
	f.CenterFreq = (low + high) / 2
	f.Bandwidth = high - low
	return f, true
}

// FilterEmpty drops frames without magnitudes.
type FilterEmpty struct{}

func (FilterEmpty) Apply(f sdr.Frame) (sdr.Frame, bool) {
	return f, len(f.Magnitudes) > 0
}
