// Package extraction renders stored captures from the SQL exporter's table
// as a waterfall image.
package extraction

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"slices"
	"time"

	"github.com/golang/glog"
	"gonum.org/v1/gonum/floats"

	"github.com/hb9tf/specview/history"
	"github.com/hb9tf/specview/raster"
	"github.com/hb9tf/specview/render"
	"github.com/hb9tf/specview/sdr"
)

const (
	// getCapturesTmpl selects the newest successful captures overlapping the
	// frequency window within the time window, newest first.
	getCapturesTmpl = `SELECT
		ID,
		StartFreq,
		EndFreq,
		FFTSize,
		SampleRate,
		Timestamp,
		Magnitudes
	FROM
		captures
	WHERE
		Success = ?
		AND EndFreq >= ?
		AND StartFreq <= ?
		AND Timestamp >= ?
		AND Timestamp <= ?
	ORDER BY
		Timestamp DESC
	LIMIT ?;`

	defaultMaxRows = 1000
	// maxBins bounds the common frequency grid of captures with mixed ranges.
	maxBins = 4096
)

type FilterOptions struct {
	StartFreq float64
	EndFreq   float64
	StartTime time.Time
	EndTime   time.Time
	// MaxRows caps the number of captures, and so the rows, in the image.
	MaxRows int
}

type ImageOptions struct {
	Height  int
	Width   int
	AddGrid bool
	// Range defaults to the lowest and highest stored value.
	Range    *render.DisplayRange
	ColorMap string
}

type RenderRequest struct {
	Filter *FilterOptions
	Image  *ImageOptions
}

type SourceMetadata struct {
	Captures  int
	LowFreq   float64
	HighFreq  float64
	StartTime time.Time
	EndTime   time.Time
}

type RenderMetadata struct {
	ImageHeight  int
	ImageWidth   int
	Range        render.DisplayRange
	FreqPerPixel float64
	SecPerPixel  float64
}

type RenderResult struct {
	Image image.Image

	SourceMeta *SourceMetadata
	ImageMeta  *RenderMetadata
}

// Load reads the newest captures matching f as frames, oldest first.
func Load(ctx context.Context, db *sql.DB, f *FilterOptions) ([]sdr.Frame, error) {
	maxRows := f.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	// Every capture becomes one history row.
	maxRows = min(maxRows, history.MaxCapacity)
	endFreq := f.EndFreq
	if endFreq <= 0 {
		endFreq = math.MaxFloat64
	}
	endTime := f.EndTime
	if endTime.IsZero() {
		endTime = time.Now()
	}

	rows, err := db.QueryContext(ctx, getCapturesTmpl, true, f.StartFreq, endFreq, f.StartTime.UnixMilli(), endTime.UnixMilli(), maxRows)
	if err != nil {
		return nil, fmt.Errorf("unable to query captures: %w", err)
	}
	defer rows.Close()

	var frames []sdr.Frame
	for rows.Next() {
		var (
			res  sdr.CaptureResult
			ts   int64
			mags string
		)
		if err := rows.Scan(&res.ID, &res.Range.StartFreq, &res.Range.EndFreq, &res.Range.FFTSize, &res.Range.SampleRate, &ts, &mags); err != nil {
			glog.Warningf("unable to get capture from DB: %s", err)
			continue
		}
		if err := json.Unmarshal([]byte(mags), &res.Magnitudes); err != nil || len(res.Magnitudes) == 0 {
			glog.Warningf("skipping capture %s without usable magnitudes", res.ID)
			continue
		}
		res.Timestamp = float64(ts) / 1000
		frames = append(frames, res.Frame("capture"))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to read captures: %w", err)
	}
	slices.Reverse(frames)
	return frames, nil
}

// Render draws the captures matching req.Filter, newest at the top.
func Render(ctx context.Context, db *sql.DB, req *RenderRequest) (*RenderResult, error) {
	frames, err := Load(ctx, db, req.Filter)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no captures match the filter")
	}

	meta := &SourceMetadata{
		Captures:  len(frames),
		LowFreq:   math.MaxFloat64,
		StartTime: frames[0].Time,
		EndTime:   frames[len(frames)-1].Time,
	}
	lowDB, highDB := math.Inf(1), math.Inf(-1)
	for _, f := range frames {
		meta.LowFreq = math.Min(meta.LowFreq, f.LowFreq())
		meta.HighFreq = math.Max(meta.HighFreq, f.HighFreq())
		lowDB = math.Min(lowDB, floats.Min(f.Magnitudes))
		highDB = math.Max(highDB, floats.Max(f.Magnitudes))
	}
	frames = regrid(frames, meta.LowFreq, meta.HighFreq)
	rng := render.DisplayRange{MinDB: lowDB, MaxDB: highDB}
	if req.Image.Range != nil {
		rng = *req.Image.Range
	}
	if rng.MaxDB <= rng.MinDB {
		// All values equal; widen so they map to the middle of the scale.
		rng.MinDB, rng.MaxDB = rng.MinDB-1, rng.MinDB+1
	}

	// One row per capture.
	h, err := history.New(len(frames))
	if err != nil {
		return nil, err
	}
	wf, err := render.NewWaterfall(h, render.WaterfallOptions{
		TimeSpan:  float64(len(frames)),
		FrameRate: 1,
		Range:     rng,
		ColorMap:  req.Image.ColorMap,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to set up waterfall: %w", err)
	}
	for _, f := range frames {
		h.Push(f)
	}
	wf.Update()

	width, height := req.Image.Width, req.Image.Height
	if width <= 0 {
		width = len(frames[len(frames)-1].Magnitudes)
	}
	if height <= 0 {
		height = len(frames)
	}
	span := meta.EndTime.Sub(meta.StartTime).Seconds()
	img := raster.Waterfall(wf.Geometry(), wf.FrequencyTicks(), render.TimeTicks(span), raster.Options{
		Width:   width,
		Height:  height,
		AddGrid: req.Image.AddGrid,
	})

	return &RenderResult{
		Image:      img,
		SourceMeta: meta,
		ImageMeta: &RenderMetadata{
			ImageHeight:  height,
			ImageWidth:   width,
			Range:        rng,
			FreqPerPixel: (meta.HighFreq - meta.LowFreq) / float64(width),
			SecPerPixel:  span / float64(height),
		},
	}, nil
}

// regrid maps frames covering different frequency ranges onto one grid
// spanning low to high, so every row and the axis labels share a scale.
// Bins a frame does not cover are -Inf. Frames already covering low to high
// are returned as is.
func regrid(frames []sdr.Frame, low, high float64) []sdr.Frame {
	span := high - low
	bins := 0
	mixed := false
	for _, f := range frames {
		if f.LowFreq() != low || f.HighFreq() != high {
			mixed = true
		}
		if f.Bandwidth > 0 {
			bins = max(bins, int(math.Round(float64(len(f.Magnitudes))*span/f.Bandwidth)))
		}
	}
	if !mixed || span <= 0 || bins < 1 {
		return frames
	}
	bins = min(bins, maxBins)
	glog.V(1).Infof("captures cover mixed ranges, regridding to %d bins over %.0f-%.0f Hz", bins, low, high)

	out := make([]sdr.Frame, len(frames))
	for i, f := range frames {
		mags := make([]float64, bins)
		for b := range mags {
			// Center of the output bin, as an index into the frame's bins.
			freq := low + (float64(b)+0.5)*span/float64(bins)
			j := int(math.Floor((freq - f.LowFreq()) / f.Bandwidth * float64(len(f.Magnitudes))))
			if f.Bandwidth <= 0 || j < 0 || j >= len(f.Magnitudes) {
				mags[b] = math.Inf(-1)
				continue
			}
			mags[b] = f.Magnitudes[j]
		}
		f.Magnitudes = mags
		f.CenterFreq = (low + high) / 2
		f.Bandwidth = span
		out[i] = f
	}
	return out
}
