package display

import (
	"fmt"
	"math"

	"github.com/golang/glog"
	"gonum.org/v1/gonum/floats"

	"github.com/hb9tf/specview/render"
)

// Known good defaults if the heuristic has nothing to work with.
const (
	DefaultMinDB = -100.0
	DefaultMaxDB = -40.0
)

// Heuristic constants, all in dB.
const (
	signalBuffer       = 5.0   // above peak signal
	highGainThreshold  = 40.0  // total gain
	highGainAdjustment = -5.0  // applied above highGainThreshold
	noiseFloorOffset   = 30.0  // assumed distance of the noise floor below the peak
	snrBuffer          = 10.0  // added to the SNR for the range
	MinRange           = 30.0  // smallest useful display range
	MaxRange           = 48.0  // HackRF dynamic range
	absoluteMinDB      = -110.0
	absoluteMaxDB      = -10.0
)

// Levels describes the current signal conditions.
type Levels struct {
	// Strength is the peak signal in dBFS. NaN if unknown.
	Strength float64 `json:"strength"`
	LNAGain  float64 `json:"lnaGain"`
	VGAGain  float64 `json:"vgaGain"`
}

// OptimalRange picks a display range that places the peak signal just below
// the top of the scale while keeping a useful amount of the noise floor.
func OptimalRange(l Levels) render.DisplayRange {
	if math.IsNaN(l.Strength) || math.IsInf(l.Strength, 0) {
		return render.DisplayRange{MinDB: DefaultMinDB, MaxDB: DefaultMaxDB}
	}

	reference := l.Strength + signalBuffer
	if l.LNAGain+l.VGAGain > highGainThreshold {
		reference += highGainAdjustment
	}

	noiseFloor := l.Strength - noiseFloorOffset
	snr := l.Strength - noiseFloor
	rangeDB := math.Min(MaxRange, math.Max(MinRange, snr+snrBuffer))

	maxDB := reference
	minDB := reference - rangeDB
	if maxDB > absoluteMaxDB {
		maxDB = absoluteMaxDB
		minDB = maxDB - rangeDB
	}
	if minDB < absoluteMinDB {
		minDB = absoluteMinDB
		maxDB = minDB + rangeDB
	}
	return render.DisplayRange{MinDB: minDB, MaxDB: maxDB}
}

// ValidateManualRange applies the rules for a user supplied range: max above
// min and at least MinRange dB apart.
func ValidateManualRange(r render.DisplayRange) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.MaxDB-r.MinDB < MinRange {
		return fmt.Errorf("display range must be at least %.0f dB, got %.1f dB", MinRange, r.MaxDB-r.MinDB)
	}
	return nil
}

// PeakLevel returns the strongest bin of the latest frame, or NaN if there is
// none.
func (d *Display) PeakLevel() float64 {
	f, ok := d.History.Latest()
	if !ok || len(f.Magnitudes) == 0 {
		return math.NaN()
	}
	return floats.Max(f.Magnitudes)
}

// AutoRange derives a display range from the latest frame's peak and the
// given gains, applies it and returns it. A non-NaN l.Strength overrides the
// measured peak.
func (d *Display) AutoRange(l Levels) (render.DisplayRange, error) {
	if math.IsNaN(l.Strength) {
		l.Strength = d.PeakLevel()
	}
	r := OptimalRange(l)
	if err := d.SetMinMax(r.MinDB, r.MaxDB); err != nil {
		return r, err
	}
	glog.Infof("display range set to %.1f..%.1f dB (peak %.1f dBFS, gain %.0f dB)", r.MinDB, r.MaxDB, l.Strength, l.LNAGain+l.VGAGain)
	return r, nil
}
