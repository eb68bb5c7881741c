// Package colormap provides fixed 256 entry lookup tables mapping a normalized
// intensity to a display color.
package colormap

import (
	"fmt"
	"image/color"
	"sort"
	"strings"
)

// Size is the number of entries in every color map.
const Size = 256

// RGB is a color with components in [0, 1].
type RGB struct {
	R, G, B float32
}

// RGBA converts the color to an opaque 8-bit color.
func (c RGB) RGBA() color.RGBA {
	return color.RGBA{to8(c.R), to8(c.G), to8(c.B), 255}
}

func to8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}

// Map is an immutable color lookup table.
type Map struct {
	name    string
	entries [Size]RGB
}

// Name of the color map.
func (m *Map) Name() string {
	return m.name
}

// At returns the entry at index i, clamped to [0, Size-1].
func (m *Map) At(i int) RGB {
	switch {
	case i < 0:
		i = 0
	case i >= Size:
		i = Size - 1
	}
	return m.entries[i]
}

// Index converts a normalized intensity to a table index.
func Index(t float64) int {
	switch {
	case t != t || t <= 0: // NaN maps to the bottom of the scale
		return 0
	case t >= 1:
		return Size - 1
	}
	return int(t * (Size - 1))
}

// Lookup returns the color for a normalized intensity t in [0, 1].
// Values outside the domain are clamped.
func (m *Map) Lookup(t float64) RGB {
	return m.entries[Index(t)]
}

// FromStops builds a map from a gradient. The [0, 1] domain is split into
// len(stops)-1 equal segments, each a linear interpolation between two stops.
func FromStops(name string, stops []color.RGBA) (*Map, error) {
	if len(stops) < 2 {
		return nil, fmt.Errorf("color map %q needs at least 2 stops, got %d", name, len(stops))
	}
	m := &Map{name: name}
	segments := float64(len(stops) - 1)
	for i := 0; i < Size; i++ {
		t := float64(i) / (Size - 1)
		seg := int(t * segments)
		if seg >= len(stops)-1 {
			seg = len(stops) - 2
		}
		s := float32(t*segments - float64(seg))
		from, to := stops[seg], stops[seg+1]
		m.entries[i] = RGB{
			R: lerp(from.R, to.R, s),
			G: lerp(from.G, to.G, s),
			B: lerp(from.B, to.B, s),
		}
	}
	return m, nil
}

func lerp(a, b uint8, s float32) float32 {
	fa, fb := float32(a)/255, float32(b)/255
	return fa + (fb-fa)*s
}

var (
	// Stops for the default heat map: black -> blue -> red -> yellow -> white.
	heatStops = []color.RGBA{
		{0, 0, 0, 255},       // black
		{0, 0, 255, 255},     // blue
		{255, 0, 0, 255},     // red
		{255, 255, 0, 255},   // yellow
		{255, 255, 255, 255}, // white
	}
	// Colors defining the gradient used by spectre heatmaps. The higher the index, the warmer.
	spectreStops = []color.RGBA{
		{0, 0, 0, 255},       // black
		{0, 0, 255, 255},     // blue
		{0, 255, 255, 255},   // cyan
		{0, 255, 0, 255},     // green
		{255, 255, 0, 255},   // yellow
		{255, 0, 0, 255},     // red
		{255, 255, 255, 255}, // white
	}
	grayscaleStops = []color.RGBA{
		{0, 0, 0, 255},
		{255, 255, 255, 255},
	}

	builders = map[string][]color.RGBA{
		"heat":      heatStops,
		"spectre":   spectreStops,
		"grayscale": grayscaleStops,
	}
)

// DefaultName is the name of the color map used when none is configured.
const DefaultName = "heat"

// Heat returns the default black -> blue -> red -> yellow -> white map.
func Heat() *Map {
	m, _ := FromStops("heat", heatStops)
	return m
}

// ByName returns a freshly built color map. Names are case insensitive.
func ByName(name string) (*Map, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		n = DefaultName
	}
	stops, ok := builders[n]
	if !ok {
		return nil, fmt.Errorf("%q is not a supported color map, pick one of: %s", name, strings.Join(Names(), ", "))
	}
	return FromStops(n, stops)
}

// Names lists the supported color maps in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(builders))
	for n := range builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
