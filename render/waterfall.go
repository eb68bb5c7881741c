package render

import (
	"fmt"
	"math"
	"sync"

	"github.com/golang/glog"

	"github.com/hb9tf/specview/colormap"
	"github.com/hb9tf/specview/history"
	"github.com/hb9tf/specview/sdr"
)

// WaterfallOptions configures a Waterfall.
type WaterfallOptions struct {
	// TimeSpan is the visible history in seconds.
	TimeSpan float64
	// FrameRate is the assumed frame arrival rate used to size the history.
	FrameRate float64
	Range     DisplayRange
	ColorMap  string
}

// DefaultWaterfallOptions shows 10 s at 60 frames/s from -120 to -20 dB.
func DefaultWaterfallOptions() WaterfallOptions {
	return WaterfallOptions{
		TimeSpan:  DefaultTimeSpan,
		FrameRate: DefaultFrameRate,
		Range:     DefaultDisplayRange,
		ColorMap:  colormap.DefaultName,
	}
}

// Waterfall renders the frame history as a time/frequency grid: one row per
// frame with the newest at the top, one column per bin.
//
// Update and the setters may be called from different goroutines; the
// history lock is never held while geometry is built.
type Waterfall struct {
	history   *history.Buffer
	frameRate float64

	mu        sync.Mutex
	timeSpan  float64
	rng       DisplayRange
	cmap      *colormap.Map
	seen      uint64 // history version the geometry reflects
	dirty     bool   // settings changed since the last build
	geom      *Geometry
	center    float64
	bandwidth float64
}

// NewWaterfall creates a waterfall over h and sizes h for opts.TimeSpan.
func NewWaterfall(h *history.Buffer, opts WaterfallOptions) (*Waterfall, error) {
	if opts.FrameRate <= 0 {
		return nil, fmt.Errorf("invalid frame rate %f: must be positive", opts.FrameRate)
	}
	if err := opts.Range.Validate(); err != nil {
		return nil, err
	}
	cmap, err := colormap.ByName(opts.ColorMap)
	if err != nil {
		return nil, err
	}
	w := &Waterfall{
		history:   h,
		frameRate: opts.FrameRate,
		rng:       opts.Range,
		cmap:      cmap,
		dirty:     true,
	}
	if err := w.SetTimeSpan(opts.TimeSpan); err != nil {
		return nil, err
	}
	return w, nil
}

// MaxHistory is the number of rows needed to show seconds at the assumed
// frame rate.
func (w *Waterfall) MaxHistory(seconds float64) int {
	return int(math.Round(seconds * w.frameRate))
}

// SetTimeSpan changes the visible history and resizes the frame history.
func (w *Waterfall) SetTimeSpan(seconds float64) error {
	if !(seconds > 0) {
		return fmt.Errorf("invalid time span %f: must be positive", seconds)
	}
	if seconds*w.frameRate > history.MaxCapacity {
		return fmt.Errorf("invalid time span %f: at most %.0f s fit in the history", seconds, history.MaxCapacity/w.frameRate)
	}
	n := w.MaxHistory(seconds)
	if n < 1 {
		n = 1
	}
	if err := w.history.SetCapacity(n); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.timeSpan = seconds
	w.dirty = true
	glog.V(1).Infof("waterfall time span set to %.1f s (%d rows)", seconds, n)
	return nil
}

// TimeSpan returns the visible history in seconds.
func (w *Waterfall) TimeSpan() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timeSpan
}

// SetMinMax changes the display range and forces a rebuild.
func (w *Waterfall) SetMinMax(minDB, maxDB float64) error {
	r := DisplayRange{MinDB: minDB, MaxDB: maxDB}
	if err := r.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rng = r
	w.dirty = true
	return nil
}

// Range returns the current display range.
func (w *Waterfall) Range() DisplayRange {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rng
}

// SetColorMap switches to the named color map and forces a rebuild.
func (w *Waterfall) SetColorMap(name string) error {
	cmap, err := colormap.ByName(name)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cmap = cmap
	w.dirty = true
	return nil
}

// ColorMap returns the active color map.
func (w *Waterfall) ColorMap() *colormap.Map {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cmap
}

// Update rebuilds the geometry if frames arrived or settings changed since
// the last build and reports whether it did. An empty history is a no-op and
// leaves the previous geometry in place.
func (w *Waterfall) Update() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	since := w.seen
	if w.dirty {
		since = math.MaxUint64 // force a snapshot
	}
	frames, version := w.history.SnapshotIfChanged(since)
	if frames == nil {
		return false
	}
	w.seen = version
	if len(frames) == 0 || len(frames[0].Magnitudes) == 0 {
		return false
	}
	w.dirty = false

	rowSpan := w.history.Cap()
	if len(frames) > rowSpan {
		rowSpan = len(frames)
	}
	w.geom = buildWaterfall(frames, rowSpan, w.rng, w.cmap)
	w.center = frames[0].CenterFreq
	w.bandwidth = frames[0].Bandwidth
	glog.V(2).Infof("waterfall rebuilt: %d rows x %d bins", w.geom.Rows, w.geom.Cols)
	return true
}

// Geometry returns the last built grid, or nil before the first build.
func (w *Waterfall) Geometry() *Geometry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.geom
}

// FrequencyTicks labels the frequency axis of the newest frame.
func (w *Waterfall) FrequencyTicks() []Tick {
	w.mu.Lock()
	defer w.mu.Unlock()
	return FrequencyTicks(w.center, w.bandwidth)
}

// TimeTicks labels the time axis.
func (w *Waterfall) TimeTicks() []Tick {
	w.mu.Lock()
	defer w.mu.Unlock()
	return TimeTicks(w.timeSpan)
}

// buildWaterfall lays out frames (newest first) as a grid. The column count
// follows the newest frame; rows of a different width are resampled by
// nearest bin.
func buildWaterfall(frames []sdr.Frame, rowSpan int, rng DisplayRange, cmap *colormap.Map) *Geometry {
	rows := len(frames)
	cols := len(frames[0].Magnitudes)
	g := newGeometry(Grid, rows*cols)
	g.Rows, g.Cols, g.RowSpan = rows, cols, rowSpan

	for r, f := range frames {
		y := float32(1 - 2*float64(r)/float64(rowSpan))
		row := f.Magnitudes
		for c := 0; c < cols; c++ {
			x := float32(2*float64(c)/float64(cols) - 1)
			t := 0.0
			switch {
			case len(row) == cols:
				t = rng.Normalize(row[c])
			case len(row) > 0:
				t = rng.Normalize(row[c*len(row)/cols])
			}
			g.set(r*cols+c, x, y, cmap.Lookup(t))
		}
	}
	return g
}
