// Package display ties the frame history to the waterfall and spectrum
// renderers and fans frames out to live subscribers.
package display

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/hb9tf/specview/history"
	"github.com/hb9tf/specview/render"
	"github.com/hb9tf/specview/sdr"
)

// Options configures a Display.
type Options struct {
	Waterfall render.WaterfallOptions
	Spectrum  render.SpectrumOptions
	// SubscriberBuffer is the per-subscriber queue length. Frames are dropped
	// for subscribers that fall behind.
	SubscriberBuffer int
}

// DefaultOptions returns the renderer defaults.
func DefaultOptions() Options {
	return Options{
		Waterfall:        render.DefaultWaterfallOptions(),
		Spectrum:         render.DefaultSpectrumOptions(),
		SubscriberBuffer: 16,
	}
}

// Display is the producer-facing side of the rendering pipeline.
type Display struct {
	History   *history.Buffer
	Waterfall *render.Waterfall
	Spectrum  *render.Spectrum

	subBuffer int
	subsMu    sync.Mutex
	subs      map[chan sdr.Frame]struct{}
}

// New creates a display with its own frame history.
func New(opts Options) (*Display, error) {
	// Capacity is set by the waterfall's time span.
	h, err := history.New(1)
	if err != nil {
		return nil, err
	}
	wf, err := render.NewWaterfall(h, opts.Waterfall)
	if err != nil {
		return nil, err
	}
	sp, err := render.NewSpectrum(opts.Spectrum)
	if err != nil {
		return nil, err
	}
	if opts.SubscriberBuffer < 1 {
		opts.SubscriberBuffer = 1
	}
	return &Display{
		History:   h,
		Waterfall: wf,
		Spectrum:  sp,
		subBuffer: opts.SubscriberBuffer,
		subs:      map[chan sdr.Frame]struct{}{},
	}, nil
}

// PushFrame ingests a frame into the history, updates the spectrum and
// notifies subscribers. Frames without magnitudes are ignored.
func (d *Display) PushFrame(f sdr.Frame) {
	if len(f.Magnitudes) == 0 {
		glog.V(2).Info("ignoring frame without magnitudes")
		return
	}
	d.History.Push(f)
	// The history copied the magnitudes; hand out the shared read-only copy.
	if latest, ok := d.History.Latest(); ok {
		f = latest
	}
	d.Spectrum.UpdateData(f)
	d.publish(f)
}

// Run drains frames until the channel is closed or ctx is done. It is the
// message-passing alternative to calling PushFrame from the producer.
func (d *Display) Run(ctx context.Context, frames <-chan sdr.Frame) error {
	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				glog.Infof("frame source closed after %d frames", count)
				return nil
			}
			d.PushFrame(f)
			count++
			if count%1000 == 0 {
				glog.V(1).Infof("display ingested %d frames", count)
			}
		}
	}
}

// SetTimeSpan changes the waterfall's visible history.
func (d *Display) SetTimeSpan(seconds float64) error {
	return d.Waterfall.SetTimeSpan(seconds)
}

// SetMinMax changes the dB range of both renderers.
func (d *Display) SetMinMax(minDB, maxDB float64) error {
	if err := d.Waterfall.SetMinMax(minDB, maxDB); err != nil {
		return err
	}
	return d.Spectrum.SetMinMax(minDB, maxDB)
}

// SetColorMap switches the color map of both renderers.
func (d *Display) SetColorMap(name string) error {
	if err := d.Waterfall.SetColorMap(name); err != nil {
		return err
	}
	return d.Spectrum.SetColorMap(name)
}

// Subscribe returns a channel receiving every pushed frame and a function to
// cancel the subscription. Slow subscribers miss frames rather than block
// the producer.
func (d *Display) Subscribe() (<-chan sdr.Frame, func()) {
	ch := make(chan sdr.Frame, d.subBuffer)
	d.subsMu.Lock()
	d.subs[ch] = struct{}{}
	d.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.subsMu.Lock()
			delete(d.subs, ch)
			d.subsMu.Unlock()
			close(ch)
		})
	}
}

func (d *Display) publish(f sdr.Frame) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for ch := range d.subs {
		select {
		case ch <- f:
		default:
			glog.V(2).Info("subscriber queue full, dropping frame")
		}
	}
}
