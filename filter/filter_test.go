package filter

import (
	"context"
	"flag"
	"testing"

	"github.com/hb9tf/specview/sdr"
)

// tenBins covers 100 to 110 MHz in 1 MHz bins.
func tenBins() sdr.Frame {
	mags := make([]float64, 10)
	for i := range mags {
		mags[i] = float64(-i)
	}
	return sdr.Frame{Magnitudes: mags, CenterFreq: 105e6, Bandwidth: 10e6}
}

func TestFilterFreq(t *testing.T) {
	tests := []struct {
		desc          string
		low, high     float64
		wantKeep      bool
		wantBins      int
		wantFirst     float64
		wantCenter    float64
		wantBandwidth float64
	}{
		{"inside", 90e6, 120e6, true, 10, 0, 105e6, 10e6},
		{"crop", 102e6, 104.5e6, true, 3, -2, 103.5e6, 3e6},
		{"below", 80e6, 90e6, false, 0, 0, 0, 0},
		{"above", 111e6, 120e6, false, 0, 0, 0, 0},
	}
	for _, tc := range tests {
		ff := &FilterFreq{FreqLow: tc.low, FreqHigh: tc.high}
		in := tenBins()
		got, keep := ff.Apply(in)
		if keep != tc.wantKeep {
			t.Errorf("%s: keep = %t, want %t", tc.desc, keep, tc.wantKeep)
			continue
		}
		if !keep {
			continue
		}
		if len(got.Magnitudes) != tc.wantBins || got.Magnitudes[0] != tc.wantFirst ||
			got.CenterFreq != tc.wantCenter || got.Bandwidth != tc.wantBandwidth {
			t.Errorf("%s: Apply() = %+v", tc.desc, got)
		}
		if in.Magnitudes[0] != 0 || len(in.Magnitudes) != 10 {
			t.Errorf("%s: input frame modified", tc.desc)
		}
	}
}

func TestFilter(t *testing.T) {
	input := make(chan sdr.Frame, 3)
	input <- tenBins()
	input <- sdr.Frame{}
	input <- sdr.Frame{Magnitudes: []float64{-1}, CenterFreq: 50e6, Bandwidth: 1e6}
	close(input)

	output := make(chan sdr.Frame, 3)
	filters := []Filterer{FilterEmpty{}, &FilterFreq{FreqLow: 100e6, FreqHigh: 110e6}}
	if err := Filter(context.Background(), input, output, filters); err != nil {
		t.Fatalf("Filter returned error: %s", err)
	}
	close(output)

	var n int
	for f := range output {
		n++
		if f.CenterFreq != 105e6 {
			t.Errorf("unexpected frame passed: %+v", f)
		}
	}
	if n != 1 {
		t.Errorf("%d frames passed, want 1", n)
	}
}

func TestFilterVerbose(t *testing.T) {
	// Drops and crops are logged at V(2).
	flag.Set("logtostderr", "true")
	flag.Set("v", "2")
	defer flag.Set("v", "0")

	input := make(chan sdr.Frame, 2)
	input <- tenBins()
	input <- sdr.Frame{Source: "sim"}
	close(input)

	output := make(chan sdr.Frame, 2)
	filters := []Filterer{FilterEmpty{}, &FilterFreq{FreqLow: 102e6, FreqHigh: 104.5e6}}
	if err := Filter(context.Background(), input, output, filters); err != nil {
		t.Fatalf("Filter returned error: %s", err)
	}
	close(output)

	var got []sdr.Frame
	for f := range output {
		got = append(got, f)
	}
	if len(got) != 1 || len(got[0].Magnitudes) != 3 {
		t.Errorf("passed frames = %+v, want one cropped to 3 bins", got)
	}
}
