package render

import (
	"fmt"
	"math"
)

// Number of intervals per axis.
const (
	FreqIntervals  = 10
	TimeIntervals  = 5
	PowerIntervals = 8
)

var expSuffixLookup = map[int]string{
	0: "Hz",  // 10^0
	1: "kHz", // 10^3
	2: "MHz", // 10^6
	3: "GHz", // 10^9
	4: "THz", // 10^12
}

// Tick is an axis label. Pos is the fraction along the axis measured from its
// origin: left for frequency, top (newest row) for time, bottom for power.
type Tick struct {
	Value float64 `json:"value"`
	Pos   float64 `json:"pos"`
	Label string  `json:"label"`
}

// FormatFreq renders a frequency in Hz with the largest fitting SI suffix.
func FormatFreq(freq float64) string {
	exp := 0
	for f := math.Abs(freq); f >= 1000; f = f / 1000.0 {
		exp += 1
	}
	suffix, ok := expSuffixLookup[exp]
	if !ok || exp == 0 {
		return fmt.Sprintf("%.0f Hz", freq)
	}
	return fmt.Sprintf("%.3f %s", freq/math.Pow(1000, float64(exp)), suffix)
}

// FrequencyTicks spreads FreqIntervals intervals over center ± bandwidth/2.
func FrequencyTicks(center, bandwidth float64) []Tick {
	start := center - bandwidth/2
	end := center + bandwidth/2
	ticks := make([]Tick, FreqIntervals+1)
	for i := range ticks {
		freq := start + (end-start)*float64(i)/FreqIntervals
		ticks[i] = Tick{
			Value: freq,
			Pos:   float64(i) / FreqIntervals,
			Label: FormatFreq(freq),
		}
	}
	return ticks
}

// TimeTicks spreads TimeIntervals intervals over [0, span] seconds with t=0
// at the newest row.
func TimeTicks(span float64) []Tick {
	ticks := make([]Tick, TimeIntervals+1)
	for i := range ticks {
		t := span * float64(i) / TimeIntervals
		label := fmt.Sprintf("-%.1f s", t)
		if t == 0 {
			label = "0.0 s"
		}
		ticks[i] = Tick{
			Value: t,
			Pos:   float64(i) / TimeIntervals,
			Label: label,
		}
	}
	return ticks
}

// PowerTicks spreads PowerIntervals intervals from r.MinDB to r.MaxDB.
func PowerTicks(r DisplayRange) []Tick {
	ticks := make([]Tick, PowerIntervals+1)
	for i := range ticks {
		p := r.MinDB + (r.MaxDB-r.MinDB)*float64(i)/PowerIntervals
		ticks[i] = Tick{
			Value: p,
			Pos:   float64(i) / PowerIntervals,
			Label: fmt.Sprintf("%.0f dB", p),
		}
	}
	return ticks
}
