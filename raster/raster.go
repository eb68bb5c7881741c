// Package raster draws render geometry into images, with optional axis
// ticks and labels.
package raster

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/hb9tf/specview/render"
)

var (
	waterfallBackground = color.RGBA{41, 41, 46, 255}
	spectrumBackground  = color.RGBA{30, 30, 30, 255}
	gridLineColor       = color.RGBA{60, 60, 60, 255}
	lineColor           = color.RGBA{86, 156, 214, 255}

	gridColor           = color.RGBA{255, 255, 255, 255} // white
	gridBackgroundColor = color.RGBA{0, 0, 0, 255}       // black
)

const (
	gridMarginTop    = 20 // pixels
	gridMarginLeft   = 80 // pixels
	gridMarginBottom = 5  // pixels
	gridTickLen      = 6  // pixels
	fillAlpha        = 90
)

// Options controls the size of the plot area and whether axes are drawn
// around it.
type Options struct {
	Width   int
	Height  int
	AddGrid bool
}

// DefaultOptions is a 640x480 plot with axes.
func DefaultOptions() Options {
	return Options{Width: 640, Height: 480, AddGrid: true}
}

func (o Options) normalized() Options {
	if o.Width <= 0 {
		o.Width = 640
	}
	if o.Height <= 0 {
		o.Height = 480
	}
	return o
}

// PlotSize returns the plot area that fits a width x height canvas once the
// axes are added.
func PlotSize(width, height int, addGrid bool) (int, int) {
	if !addGrid {
		return width, height
	}
	return max(1, width-gridMarginLeft), max(1, height-gridMarginTop-gridMarginBottom)
}

// toPixel converts normalized device coordinates into the plot's pixel space.
func toPixel(x, y float32, w, h int) (int, int) {
	px := int(math.Round(float64(x+1) / 2 * float64(w)))
	py := int(math.Round(float64(1-y) / 2 * float64(h)))
	return px, py
}

// Waterfall rasterizes a Grid geometry. A nil or empty geometry yields a
// blank plot.
func Waterfall(g *render.Geometry, freqTicks, timeTicks []render.Tick, opts Options) *image.RGBA {
	opts = opts.normalized()
	plot := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(plot, plot.Bounds(), &image.Uniform{waterfallBackground}, image.Point{}, draw.Src)

	if g != nil && g.Primitive == render.Grid && g.Cols > 0 && g.RowSpan > 0 {
		cellW := float32(2) / float32(g.Cols)
		cellH := float32(2) / float32(g.RowSpan)
		for i := 0; i < g.Len(); i++ {
			x, y := g.Vertex(i)
			x0, y0 := toPixel(x, y, opts.Width, opts.Height)
			x1, y1 := toPixel(x+cellW, y-cellH, opts.Width, opts.Height)
			if x1 == x0 {
				x1++
			}
			if y1 == y0 {
				y1++
			}
			draw.Draw(plot, image.Rect(x0, y0, x1, y1), &image.Uniform{g.Color(i).RGBA()}, image.Point{}, draw.Src)
		}
	}

	if !opts.AddGrid {
		return plot
	}
	return DrawGrid(plot, freqTicks, timeTicks, false)
}

// Spectrum rasterizes a line strip and an optional fill beneath it.
func Spectrum(line, fill *render.Geometry, freqTicks, powerTicks []render.Tick, opts Options) *image.RGBA {
	opts = opts.normalized()
	w, h := opts.Width, opts.Height
	plot := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(plot, plot.Bounds(), &image.Uniform{spectrumBackground}, image.Point{}, draw.Src)

	// Grid lines.
	for i := 0; i <= render.FreqIntervals; i++ {
		drawTick(plot, image.Point{w * i / render.FreqIntervals, 0}, h, false, gridLineColor)
	}
	for i := 0; i <= render.PowerIntervals; i++ {
		drawTick(plot, image.Point{0, h * i / render.PowerIntervals}, w, true, gridLineColor)
	}

	if fill != nil && fill.Primitive == render.TriangleStrip {
		fillArea(plot, fill, w, h)
	}
	if line != nil && line.Primitive == render.LineStrip {
		for i := 0; i+1 < line.Len(); i++ {
			x0, y0 := line.Vertex(i)
			x1, y1 := line.Vertex(i + 1)
			ax, ay := toPixel(x0, y0, w, h)
			bx, by := toPixel(x1, y1, w, h)
			drawLine(plot, ax, ay, bx, by, lineColor)
		}
	}

	if !opts.AddGrid {
		return plot
	}
	return DrawGrid(plot, freqTicks, powerTicks, true)
}

// fillArea paints the area between consecutive top vertices of a
// (top, base) triangle strip and the bottom of the plot.
func fillArea(plot *image.RGBA, g *render.Geometry, w, h int) {
	src := &image.Uniform{color.NRGBA{lineColor.R, lineColor.G, lineColor.B, fillAlpha}}
	for i := 0; i+2 < g.Len(); i += 2 {
		x0, y0 := g.Vertex(i)
		x1, y1 := g.Vertex(i + 2)
		ax, ay := toPixel(x0, y0, w, h)
		bx, by := toPixel(x1, y1, w, h)
		for px := ax; px < bx; px++ {
			top := ay + (by-ay)*(px-ax)/(bx-ax)
			draw.Draw(plot, image.Rect(px, top, px+1, h), src, image.Point{}, draw.Over)
		}
	}
}

// drawLine uses Bresenham's algorithm.
func drawLine(canvas *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		if image.Pt(x0, y0).In(canvas.Bounds()) {
			canvas.SetRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func drawTick(canvas *image.RGBA, start image.Point, length int, horizontal bool, c color.RGBA) {
	for i := 0; i <= length; i++ {
		if horizontal {
			canvas.SetRGBA(start.X+i, start.Y, c)
		} else {
			canvas.SetRGBA(start.X, start.Y+i, c)
		}
	}
}

func drawLabel(canvas *image.RGBA, x, y int, label string) {
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(gridColor),
		Face: basicfont.Face7x13,
		Dot: fixed.Point26_6{
			X: fixed.I(x),
			Y: fixed.I(y),
		},
	}
	d.DrawString(label)
}

// DrawGrid enlarges source by a top and left margin and labels the axes:
// xTicks along the top, yTicks along the left edge. yTicks positions run top
// down unless yFromBottom is set.
func DrawGrid(source *image.RGBA, xTicks, yTicks []render.Tick, yFromBottom bool) *image.RGBA {
	sw, sh := source.Bounds().Dx(), source.Bounds().Dy()
	canvas := image.NewRGBA(image.Rect(0, 0, sw+gridMarginLeft, sh+gridMarginTop+gridMarginBottom))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{gridBackgroundColor}, image.Point{}, draw.Src)
	r := image.Rect(gridMarginLeft, gridMarginTop, gridMarginLeft+sw, gridMarginTop+sh)
	draw.Draw(canvas, r, source, source.Bounds().Min, draw.Src)

	// Draw X ticks. Labels are skipped where they would overlap the previous one.
	nextFree := 0
	for _, t := range xTicks {
		x := gridMarginLeft + int(t.Pos*float64(sw))
		drawTick(canvas, image.Point{x, gridMarginTop - gridTickLen}, gridTickLen, false, gridColor)
		width := font.MeasureString(basicfont.Face7x13, t.Label).Ceil()
		lx := x - width/2
		if lx < nextFree || lx+width > canvas.Bounds().Dx() {
			continue
		}
		drawLabel(canvas, lx, gridMarginTop-gridTickLen-2, t.Label)
		nextFree = lx + width + 4
	}

	// Draw Y ticks.
	for _, t := range yTicks {
		pos := t.Pos
		if yFromBottom {
			pos = 1 - pos
		}
		y := gridMarginTop + int(pos*float64(sh))
		drawTick(canvas, image.Point{gridMarginLeft - gridTickLen, y}, gridTickLen, true, gridColor)
		drawLabel(canvas, 5, y+5, t.Label)
	}

	return canvas
}
