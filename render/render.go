// Package render turns FFT frames into renderable geometry: a 2-D waterfall
// built from the frame history and a 1-D spectrum of the latest frame.
//
// Geometry is expressed in normalized device coordinates ([-1, 1] on both
// axes, +y up) with one RGB color per vertex, ready to be uploaded to a GPU
// vertex buffer or rasterized by package raster. Every rebuild allocates new
// buffers; a published *Geometry is never written to again.
package render

import (
	"fmt"

	"github.com/hb9tf/specview/colormap"
)

// Defaults taken over from the desktop waterfall.
const (
	DefaultMinDB     = -120.0
	DefaultMaxDB     = -20.0
	DefaultTimeSpan  = 10.0 // seconds
	DefaultFrameRate = 60.0 // assumed frames per second
)

// DisplayRange bounds the color mapping: MinDB maps to the first and MaxDB
// to the last color map entry.
type DisplayRange struct {
	MinDB float64 `json:"minDB"`
	MaxDB float64 `json:"maxDB"`
}

// DefaultDisplayRange is -120 dB to -20 dB.
var DefaultDisplayRange = DisplayRange{MinDB: DefaultMinDB, MaxDB: DefaultMaxDB}

// Validate requires MinDB < MaxDB.
func (r DisplayRange) Validate() error {
	if !(r.MinDB < r.MaxDB) {
		return fmt.Errorf("invalid display range: min %.1f dB must be below max %.1f dB", r.MinDB, r.MaxDB)
	}
	return nil
}

// Normalize maps v into [0, 1], clamping values outside the range.
func (r DisplayRange) Normalize(v float64) float64 {
	t := (v - r.MinDB) / (r.MaxDB - r.MinDB)
	switch {
	case t != t: // NaN
		return 0
	case t < 0:
		return 0
	case t > 1:
		return 1
	}
	return t
}

// Primitive tells a backend how to interpret a Geometry's vertices.
type Primitive int

const (
	// Grid is a Rows x Cols lattice of vertices in row-major order. Each
	// vertex is the top-left corner of a cell of size 2/Cols x 2/RowSpan.
	Grid Primitive = iota
	// LineStrip connects consecutive vertices.
	LineStrip
	// TriangleStrip forms triangles from every three consecutive vertices.
	TriangleStrip
)

func (p Primitive) String() string {
	switch p {
	case Grid:
		return "grid"
	case LineStrip:
		return "line_strip"
	case TriangleStrip:
		return "triangle_strip"
	}
	return fmt.Sprintf("primitive(%d)", int(p))
}

// Geometry is a vertex/color buffer pair.
type Geometry struct {
	Primitive Primitive
	// Rows and Cols describe a Grid. RowSpan is the number of rows the full
	// vertical extent represents; Rows <= RowSpan while the history fills up.
	Rows, Cols, RowSpan int

	Positions []float32 // x, y pairs
	Colors    []float32 // r, g, b triples
}

func newGeometry(p Primitive, vertices int) *Geometry {
	return &Geometry{
		Primitive: p,
		Positions: make([]float32, 2*vertices),
		Colors:    make([]float32, 3*vertices),
	}
}

// Len is the number of vertices.
func (g *Geometry) Len() int {
	return len(g.Positions) / 2
}

// Vertex returns the position of vertex i.
func (g *Geometry) Vertex(i int) (x, y float32) {
	return g.Positions[2*i], g.Positions[2*i+1]
}

// Color returns the color of vertex i.
func (g *Geometry) Color(i int) colormap.RGB {
	return colormap.RGB{R: g.Colors[3*i], G: g.Colors[3*i+1], B: g.Colors[3*i+2]}
}

func (g *Geometry) set(i int, x, y float32, c colormap.RGB) {
	g.Positions[2*i] = x
	g.Positions[2*i+1] = y
	g.Colors[3*i] = c.R
	g.Colors[3*i+1] = c.G
	g.Colors[3*i+2] = c.B
}
