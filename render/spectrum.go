package render

import (
	"sync"

	"github.com/golang/glog"

	"github.com/hb9tf/specview/colormap"
	"github.com/hb9tf/specview/sdr"
)

// SpectrumOptions configures a Spectrum.
type SpectrumOptions struct {
	Range    DisplayRange
	ColorMap string
	// Fill adds a filled area beneath the line.
	Fill bool
}

// DefaultSpectrumOptions draws a filled spectrum from -120 to -20 dB.
func DefaultSpectrumOptions() SpectrumOptions {
	return SpectrumOptions{
		Range:    DefaultDisplayRange,
		ColorMap: colormap.DefaultName,
		Fill:     true,
	}
}

// Spectrum renders the most recent frame as a polyline across the bins.
type Spectrum struct {
	mu    sync.Mutex
	rng   DisplayRange
	cmap  *colormap.Map
	fill  bool
	frame sdr.Frame // latest frame, kept to rebuild on setting changes
	line  *Geometry
	area  *Geometry

	version uint64 // increases with every change to the frame or settings
}

// NewSpectrum creates a spectrum renderer.
func NewSpectrum(opts SpectrumOptions) (*Spectrum, error) {
	if err := opts.Range.Validate(); err != nil {
		return nil, err
	}
	cmap, err := colormap.ByName(opts.ColorMap)
	if err != nil {
		return nil, err
	}
	return &Spectrum{
		rng:  opts.Range,
		cmap: cmap,
		fill: opts.Fill,
	}, nil
}

// UpdateData replaces the displayed frame and rebuilds the geometry. An empty
// frame is ignored.
func (s *Spectrum) UpdateData(f sdr.Frame) {
	if len(f.Magnitudes) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = f
	s.rebuild()
}

// SetMinMax changes the power axis range.
func (s *Spectrum) SetMinMax(minDB, maxDB float64) error {
	r := DisplayRange{MinDB: minDB, MaxDB: maxDB}
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = r
	s.rebuild()
	return nil
}

// SetColorMap switches the color map used to shade the line.
func (s *Spectrum) SetColorMap(name string) error {
	cmap, err := colormap.ByName(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmap = cmap
	s.rebuild()
	return nil
}

// Range returns the power axis range.
func (s *Spectrum) Range() DisplayRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng
}

// Line returns the spectrum polyline, or nil before the first frame.
func (s *Spectrum) Line() *Geometry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.line
}

// Fill returns the area beneath the line, or nil if filling is disabled or
// no frame arrived yet.
func (s *Spectrum) Fill() *Geometry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.area
}

// Frame returns the displayed frame.
func (s *Spectrum) Frame() (sdr.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, len(s.frame.Magnitudes) > 0
}

// FrequencyTicks labels the frequency axis of the displayed frame.
func (s *Spectrum) FrequencyTicks() []Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FrequencyTicks(s.frame.CenterFreq, s.frame.Bandwidth)
}

// PowerTicks labels the power axis.
func (s *Spectrum) PowerTicks() []Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PowerTicks(s.rng)
}

// Version changes whenever the geometry or the axis labels may have changed.
func (s *Spectrum) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// rebuild must be called with s.mu held.
func (s *Spectrum) rebuild() {
	s.version++
	mags := s.frame.Magnitudes
	n := len(mags)
	if n == 0 {
		return
	}
	line := newGeometry(LineStrip, n)
	var area *Geometry
	if s.fill {
		area = newGeometry(TriangleStrip, 2*n)
	}
	for i, v := range mags {
		x := float32(2*float64(i)/float64(n) - 1)
		t := s.rng.Normalize(v)
		y := float32(2*t - 1)
		c := s.cmap.Lookup(t)
		line.set(i, x, y, c)
		if area != nil {
			area.set(2*i, x, y, c)
			area.set(2*i+1, x, -1, s.cmap.At(0))
		}
	}
	s.line = line
	s.area = area
	glog.V(2).Infof("spectrum rebuilt: %d bins", n)
}
