// Command viewer shows a live waterfall and spectrum of the simulated
// receiver in a desktop window.
//
// Keys: C captures one frame, Up/Down shift the display range by 5 dB,
// A picks the range from the current peak and M cycles the color maps.
package main

import (
	"context"
	"flag"
	"image"

	"github.com/golang/glog"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/hb9tf/specview/capture"
	"github.com/hb9tf/specview/colormap"
	"github.com/hb9tf/specview/display"
	"github.com/hb9tf/specview/raster"
	"github.com/hb9tf/specview/render"
	"github.com/hb9tf/specview/sdr"
	"github.com/hb9tf/specview/simulator"
)

// Flags
var (
	centerFreq = flag.Float64("centerFreq", 100e6, "center frequency of the simulated receiver in Hz")
	sampleRate = flag.Float64("sampleRate", 2e6, "sample rate of the simulated receiver in Hz")
	fftSize    = flag.Int("fftSize", 1024, "FFT size of the simulated receiver (power of two)")
	frameRate  = flag.Float64("frameRate", render.DefaultFrameRate, "frames per second produced by the simulated receiver")
	timeSpan   = flag.Float64("timeSpan", render.DefaultTimeSpan, "visible waterfall history in seconds")
	colorMap   = flag.String("colorMap", "heat", "color map to use (one of: grayscale, heat, spectre)")
	width      = flag.Int("width", 1024, "window width in pixels")
	height     = flag.Int("height", 768, "window height in pixels")

	captureToDisplay = flag.Bool("captureToDisplay", false, "push successful captures into the waterfall")
	captureFFTSize   = flag.Int("captureFFTSize", 4096, "FFT size of one-shot captures (power of two)")
)

const rangeStep = 5.0 // dB per key press

type viewer struct {
	disp     *display.Display
	capturer *capture.Capturer
	capRange sdr.CaptureRange

	width, height int
	waterfall     *ebiten.Image
	spectrum      *ebiten.Image
	spectrumSeen  uint64 // spectrum version the uploaded image reflects
}

func (v *viewer) Update() error {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyC):
		// Captures block until the receiver answers; keep them off the render loop.
		go func() {
			if _, err := v.capturer.CaptureRange(context.Background(), v.capRange); err != nil {
				glog.Warningf("capture failed: %s", err)
			}
		}()
	case inpututil.IsKeyJustPressed(ebiten.KeyUp):
		v.shiftRange(rangeStep)
	case inpututil.IsKeyJustPressed(ebiten.KeyDown):
		v.shiftRange(-rangeStep)
	case inpututil.IsKeyJustPressed(ebiten.KeyA):
		v.disp.AutoRange(display.Levels{Strength: v.disp.PeakLevel()})
	case inpututil.IsKeyJustPressed(ebiten.KeyM):
		v.nextColorMap()
	}
	return nil
}

func (v *viewer) shiftRange(db float64) {
	r := v.disp.Waterfall.Range()
	if err := v.disp.SetMinMax(r.MinDB+db, r.MaxDB+db); err != nil {
		glog.Warningf("unable to shift display range: %s", err)
		return
	}
	glog.V(1).Infof("display range %.0f..%.0f dB", r.MinDB+db, r.MaxDB+db)
}

func (v *viewer) nextColorMap() {
	names := colormap.Names()
	current := v.disp.Waterfall.ColorMap().Name()
	next := names[0]
	for i, n := range names {
		if n == current {
			next = names[(i+1)%len(names)]
			break
		}
	}
	if err := v.disp.SetColorMap(next); err != nil {
		glog.Warningf("unable to switch color map: %s", err)
		return
	}
	glog.V(1).Infof("color map %s", next)
}

// upload copies src into dst, reallocating dst if the size changed.
func upload(dst *ebiten.Image, src *image.RGBA) *ebiten.Image {
	b := src.Bounds()
	if dst == nil || dst.Bounds().Dx() != b.Dx() || dst.Bounds().Dy() != b.Dy() {
		if dst != nil {
			dst.Deallocate()
		}
		dst = ebiten.NewImage(b.Dx(), b.Dy())
	}
	dst.WritePixels(src.Pix)
	return dst
}

func (v *viewer) Draw(screen *ebiten.Image) {
	// Waterfall on the upper two thirds, spectrum below.
	wfHeight := v.height * 2 / 3
	wfW, wfH := raster.PlotSize(v.width, wfHeight, true)
	spW, spH := raster.PlotSize(v.width, v.height-wfHeight, true)

	// Rasterize and upload only what changed since the last tick.
	wf := v.disp.Waterfall
	if wf.Update() || v.waterfall == nil {
		v.waterfall = upload(v.waterfall, raster.Waterfall(wf.Geometry(), wf.FrequencyTicks(), wf.TimeTicks(), raster.Options{Width: wfW, Height: wfH, AddGrid: true}))
	}

	sp := v.disp.Spectrum
	if ver := sp.Version(); ver != v.spectrumSeen || v.spectrum == nil {
		v.spectrum = upload(v.spectrum, raster.Spectrum(sp.Line(), sp.Fill(), sp.FrequencyTicks(), sp.PowerTicks(), raster.Options{Width: spW, Height: spH, AddGrid: true}))
		v.spectrumSeen = ver
	}

	screen.DrawImage(v.waterfall, nil)
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(0, float64(wfHeight))
	screen.DrawImage(v.spectrum, op)
}

func (v *viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return v.width, v.height
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()
	defer glog.Flush()

	simOpts := simulator.DefaultOptions()
	simOpts.CenterFreq = *centerFreq
	simOpts.SampleRate = *sampleRate
	simOpts.FFTSize = *fftSize
	simOpts.FrameRate = *frameRate
	sim, err := simulator.New(simOpts)
	if err != nil {
		glog.Exitf("unable to set up simulator: %s", err)
	}

	dopts := display.DefaultOptions()
	dopts.Waterfall.TimeSpan = *timeSpan
	dopts.Waterfall.FrameRate = *frameRate
	dopts.Waterfall.ColorMap = *colorMap
	dopts.Spectrum.ColorMap = *colorMap
	disp, err := display.New(dopts)
	if err != nil {
		glog.Exitf("unable to set up display: %s", err)
	}

	capturer := capture.New(sim, capture.WithListener(capture.ListenerFuncs{
		OnComplete: func(res *sdr.CaptureResult) {
			if !res.Success {
				return
			}
			glog.Infof("capture %s: %d bins", res.ID, len(res.Magnitudes))
			if *captureToDisplay {
				disp.PushFrame(res.Frame("capture"))
			}
		},
		OnError: func(msg string) {
			glog.Warningf("capture error: %s", msg)
		},
	}))

	frames := make(chan sdr.Frame, 16)
	go func() {
		if err := sim.Stream(ctx, frames); err != nil && ctx.Err() == nil {
			glog.Errorf("simulator stopped: %s", err)
		}
	}()
	go disp.Run(ctx, frames)

	v := &viewer{
		disp:     disp,
		capturer: capturer,
		capRange: sdr.CaptureRange{
			StartFreq:  *centerFreq - *sampleRate/2,
			EndFreq:    *centerFreq + *sampleRate/2,
			FFTSize:    *captureFFTSize,
			SampleRate: *sampleRate,
		},
		width:  *width,
		height: *height,
	}
	ebiten.SetWindowTitle("specview")
	ebiten.SetWindowSize(*width, *height)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if err := ebiten.RunGame(v); err != nil {
		glog.Exitf("viewer stopped: %s", err)
	}
}
