package display

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/hb9tf/specview/colormap"
	"github.com/hb9tf/specview/render"
	"github.com/hb9tf/specview/sdr"
)

func newDisplay(t *testing.T) *Display {
	t.Helper()
	d, err := New(DefaultOptions())
	if err != nil {
		t.Fatalf("New returned error: %s", err)
	}
	return d
}

func frameOf(mags ...float64) sdr.Frame {
	return sdr.Frame{Magnitudes: mags, CenterFreq: 100e6, Bandwidth: 1e6, SampleRate: 1e6}
}

func TestPushFrameFeedsBothRenderers(t *testing.T) {
	d := newDisplay(t)
	if err := d.SetMinMax(-120, -20); err != nil {
		t.Fatal(err)
	}
	d.PushFrame(frameOf(-120, -20))
	d.PushFrame(sdr.Frame{}) // ignored

	if d.History.Len() != 1 {
		t.Fatalf("history holds %d frames, want 1", d.History.Len())
	}
	if !d.Waterfall.Update() {
		t.Fatal("waterfall did not rebuild")
	}
	heat := colormap.Heat()
	g := d.Waterfall.Geometry()
	if g.Color(0) != heat.At(0) || g.Color(1) != heat.At(255) {
		t.Errorf("waterfall colors = %+v, %+v", g.Color(0), g.Color(1))
	}
	if line := d.Spectrum.Line(); line == nil || line.Len() != 2 {
		t.Errorf("spectrum line = %+v, want 2 vertices", line)
	}
}

func TestSettersFanOut(t *testing.T) {
	d := newDisplay(t)
	if err := d.SetMinMax(-90, -30); err != nil {
		t.Fatal(err)
	}
	want := render.DisplayRange{MinDB: -90, MaxDB: -30}
	if d.Waterfall.Range() != want || d.Spectrum.Range() != want {
		t.Errorf("ranges = %+v / %+v, want %+v", d.Waterfall.Range(), d.Spectrum.Range(), want)
	}
	if err := d.SetMinMax(-30, -90); err == nil {
		t.Error("SetMinMax with inverted range succeeded")
	}
	if err := d.SetColorMap("grayscale"); err != nil {
		t.Fatal(err)
	}
	if got := d.Waterfall.ColorMap().Name(); got != "grayscale" {
		t.Errorf("waterfall color map = %q, want grayscale", got)
	}
	if err := d.SetTimeSpan(1); err != nil {
		t.Fatal(err)
	}
	if d.History.Cap() != 60 {
		t.Errorf("history capacity = %d, want 60", d.History.Cap())
	}
}

func TestRunDrainsChannel(t *testing.T) {
	d := newDisplay(t)
	frames := make(chan sdr.Frame, 4)
	for i := 0; i < 3; i++ {
		frames <- frameOf(float64(-100 + i))
	}
	close(frames)
	if err := d.Run(context.Background(), frames); err != nil {
		t.Fatalf("Run returned error: %s", err)
	}
	if d.History.Len() != 3 {
		t.Errorf("history holds %d frames, want 3", d.History.Len())
	}
	if f, _ := d.History.Latest(); f.Magnitudes[0] != -98 {
		t.Errorf("latest frame = %v, want -98", f.Magnitudes)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	d := newDisplay(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx, make(chan sdr.Frame))
	}()
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSubscribe(t *testing.T) {
	opts := DefaultOptions()
	opts.SubscriberBuffer = 1
	d, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	ch, cancel := d.Subscribe()
	d.PushFrame(frameOf(-10))
	d.PushFrame(frameOf(-20)) // dropped, queue full

	f := <-ch
	if f.Magnitudes[0] != -10 {
		t.Errorf("received %v, want -10", f.Magnitudes)
	}
	cancel()
	cancel() // idempotent
	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
	d.PushFrame(frameOf(-30)) // no subscribers left, must not panic
}

func TestOptimalRange(t *testing.T) {
	tests := []struct {
		desc string
		l    Levels
		want render.DisplayRange
	}{
		{
			desc: "moderate signal",
			l:    Levels{Strength: -50, LNAGain: 20, VGAGain: 20},
			want: render.DisplayRange{MinDB: -85, MaxDB: -45},
		},
		{
			desc: "high gain",
			l:    Levels{Strength: -50, LNAGain: 30, VGAGain: 20},
			want: render.DisplayRange{MinDB: -90, MaxDB: -50},
		},
		{
			desc: "strong signal clamps at the top",
			l:    Levels{Strength: -5},
			want: render.DisplayRange{MinDB: -50, MaxDB: -10},
		},
		{
			desc: "weak signal clamps at the bottom",
			l:    Levels{Strength: -100},
			want: render.DisplayRange{MinDB: -110, MaxDB: -70},
		},
		{
			desc: "unknown strength",
			l:    Levels{Strength: math.NaN()},
			want: render.DisplayRange{MinDB: DefaultMinDB, MaxDB: DefaultMaxDB},
		},
	}
	for _, tc := range tests {
		if got := OptimalRange(tc.l); got != tc.want {
			t.Errorf("%s: OptimalRange(%+v) = %+v, want %+v", tc.desc, tc.l, got, tc.want)
		}
	}
}

func TestValidateManualRange(t *testing.T) {
	if err := ValidateManualRange(render.DisplayRange{MinDB: -100, MaxDB: -60}); err != nil {
		t.Errorf("40 dB range rejected: %s", err)
	}
	if err := ValidateManualRange(render.DisplayRange{MinDB: -100, MaxDB: -80}); err == nil {
		t.Error("20 dB range accepted")
	}
	if err := ValidateManualRange(render.DisplayRange{MinDB: -60, MaxDB: -100}); err == nil {
		t.Error("inverted range accepted")
	}
}

func TestAutoRangeUsesLatestPeak(t *testing.T) {
	d := newDisplay(t)
	if !math.IsNaN(d.PeakLevel()) {
		t.Error("PeakLevel without frames is not NaN")
	}
	d.PushFrame(frameOf(-95, -50, -90))
	r, err := d.AutoRange(Levels{Strength: math.NaN(), LNAGain: 16, VGAGain: 20})
	if err != nil {
		t.Fatal(err)
	}
	want := render.DisplayRange{MinDB: -85, MaxDB: -45}
	if r != want {
		t.Errorf("AutoRange() = %+v, want %+v", r, want)
	}
	if d.Waterfall.Range() != want {
		t.Errorf("waterfall range = %+v, want %+v", d.Waterfall.Range(), want)
	}
}
