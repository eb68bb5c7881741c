// Package capture implements validated one-shot spectrum captures against a
// live receiver.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/hb9tf/specview/sdr"
)

// DefaultExtractTimeout bounds a single FFT pull from the receiver.
const DefaultExtractTimeout = 5 * time.Second

// Option configures a Capturer.
type Option func(*Capturer)

// WithExtractTimeout sets how long to wait for the receiver to deliver a
// frame. Zero waits indefinitely.
func WithExtractTimeout(d time.Duration) Option {
	return func(c *Capturer) {
		c.timeout = d
	}
}

// WithListener registers a lifecycle listener.
func WithListener(l Listener) Option {
	return func(c *Capturer) {
		c.listeners = append(c.listeners, l)
	}
}

// WithClock overrides the wall clock used to stamp results.
func WithClock(now func() time.Time) Option {
	return func(c *Capturer) {
		c.now = now
	}
}

// Capturer orchestrates single captures. It is either idle or capturing;
// concurrent calls to CaptureRange while capturing fail with
// ErrCaptureInProgress. The receiver is never called concurrently: a pull
// abandoned by Stop or the timeout keeps new captures out until it returns.
type Capturer struct {
	rx      sdr.Receiver
	timeout time.Duration
	now     func() time.Time

	listenersMu sync.RWMutex
	listeners   []Listener

	mu        sync.Mutex
	capturing bool
	pulling   bool // a receiver pull is running, possibly abandoned
	gen       uint64
	cancel    context.CancelCauseFunc
}

// New creates a Capturer for rx. rx may be nil, in which case every capture
// fails with ErrNoReceiver.
func New(rx sdr.Receiver, opts ...Option) *Capturer {
	c := &Capturer{
		rx:      rx,
		timeout: DefaultExtractTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if rx == nil {
		glog.Warning("capture: no receiver attached, captures will fail")
	}
	return c
}

// AddListener registers a lifecycle listener after construction.
func (c *Capturer) AddListener(l Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Capturer) emit(fn func(Listener)) {
	c.listenersMu.RLock()
	ls := c.listeners
	c.listenersMu.RUnlock()
	for _, l := range ls {
		fn(l)
	}
}

// IsCapturing reports whether a capture is in flight.
func (c *Capturer) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// CenterFreq returns the receiver's center frequency, or 0 without a receiver.
func (c *Capturer) CenterFreq() float64 {
	if c.rx == nil {
		return 0
	}
	return c.rx.CenterFreq()
}

// SampleRate returns the receiver's sample rate, or 0 without a receiver.
func (c *Capturer) SampleRate() float64 {
	if c.rx == nil {
		return 0
	}
	return c.rx.SampleRate()
}

// FFTSize returns the receiver's FFT size, or 0 without a receiver.
func (c *Capturer) FFTSize() int {
	if c.rx == nil {
		return 0
	}
	return c.rx.FFTSize()
}

// CaptureRange validates r and pulls one FFT frame from the receiver. It
// blocks until the frame arrives, the extract timeout expires, ctx is done or
// Stop is called.
//
// The returned result is never nil. On failure it carries Success=false and
// the error message, and the returned error is an *Error matching one of the
// Err* kinds.
func (c *Capturer) CaptureRange(ctx context.Context, r sdr.CaptureRange) (*sdr.CaptureResult, error) {
	res := &sdr.CaptureResult{
		ID:    uuid.NewString(),
		Range: r,
	}

	if c.rx == nil {
		return c.reject(res, newError(ErrNoReceiver, "", nil))
	}

	c.mu.Lock()
	if c.capturing {
		c.mu.Unlock()
		return c.reject(res, newError(ErrCaptureInProgress, "", nil))
	}
	if c.pulling {
		c.mu.Unlock()
		return c.reject(res, newError(ErrCaptureInProgress, "receiver still busy with an abandoned pull", nil))
	}
	if err := Validate(r, c.rx.SampleRate()); err != nil {
		c.mu.Unlock()
		return c.reject(res, err.(*Error))
	}
	ctx, cancel := context.WithCancelCause(ctx)
	c.capturing = true
	c.pulling = true
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.mu.Unlock()
	defer c.finish(gen, cancel)

	glog.V(1).Infof("capture %s: started %.0f-%.0f Hz, fftSize=%d, sampleRate=%.0f", res.ID, r.StartFreq, r.EndFreq, r.FFTSize, r.SampleRate)
	c.emit(func(l Listener) { l.CaptureStarted(r) })

	data, err := c.extract(ctx, r.FFTSize)
	res.Timestamp = float64(c.now().UnixMilli()) / 1000
	if err != nil {
		cerr := newError(ErrFFTExtractionFailed, "", err)
		res.Error = cerr.Error()
		glog.Warningf("capture %s: %s\n", res.ID, cerr)
		c.emit(func(l Listener) { l.CaptureComplete(res) })
		return res, cerr
	}
	res.Magnitudes = data
	res.Success = true
	glog.V(1).Infof("capture %s: complete with %d bins", res.ID, len(data))
	c.emit(func(l Listener) { l.CaptureComplete(res) })
	return res, nil
}

// reject fails a capture before it started.
func (c *Capturer) reject(res *sdr.CaptureResult, err *Error) (*sdr.CaptureResult, error) {
	res.Error = err.Error()
	res.Timestamp = float64(c.now().UnixMilli()) / 1000
	glog.Warningf("capture %s rejected: %s\n", res.ID, err)
	c.emit(func(l Listener) { l.CaptureError(res.Error) })
	return res, err
}

// finish transitions back to idle unless Stop already did and a newer
// capture took over.
func (c *Capturer) finish(gen uint64, cancel context.CancelCauseFunc) {
	c.mu.Lock()
	if c.gen == gen && c.capturing {
		c.capturing = false
		c.cancel = nil
	}
	c.mu.Unlock()
	cancel(nil)
}

// Stop abandons an in-flight capture. The receiver pull itself is not
// interrupted; its result is discarded and captures are rejected until it
// returns.
func (c *Capturer) Stop() {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return
	}
	c.capturing = false
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	glog.Info("capture stopped by user")
	c.emit(func(l Listener) { l.CaptureError(ErrStopped.Error()) })
	cancel(ErrStopped)
}

type pulled struct {
	data []float64
	err  error
}

func (c *Capturer) extract(ctx context.Context, size int) ([]float64, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// Each pull writes into its own buffer so an abandoned pull can't alias
	// a later result.
	buf := make([]float64, size)
	c.emit(func(l Listener) { l.Progress(50) })

	done := make(chan pulled, 1)
	go func() {
		err := c.pull(buf)
		c.mu.Lock()
		c.pulling = false
		c.mu.Unlock()
		done <- pulled{data: buf, err: err}
	}()

	select {
	case p := <-done:
		if p.err != nil {
			return nil, p.err
		}
		c.emit(func(l Listener) { l.Progress(100) })
		return p.data, nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// pull converts receiver panics into errors.
func (c *Capturer) pull(buf []float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("receiver panicked: %v", r)
		}
	}()
	if err := c.rx.ExtractFFT(buf); err != nil {
		return fmt.Errorf("failed to get FFT data from receiver: %w", err)
	}
	return nil
}
