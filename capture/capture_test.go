package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hb9tf/specview/sdr"
)

// fakeReceiver fills buffers with a constant and optionally blocks until
// release is closed.
type fakeReceiver struct {
	center     float64
	sampleRate float64
	fftSize    int
	value      float64
	err        error
	panicMsg   string

	entered chan struct{}
	release chan struct{}
}

func (f *fakeReceiver) CenterFreq() float64 { return f.center }
func (f *fakeReceiver) SampleRate() float64 { return f.sampleRate }
func (f *fakeReceiver) FFTSize() int        { return f.fftSize }

func (f *fakeReceiver) ExtractFFT(buf []float64) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return f.err
	}
	for i := range buf {
		buf[i] = f.value
	}
	return nil
}

// recorder collects lifecycle events in order.
type recorder struct {
	mu     sync.Mutex
	events []string
	errors []string
	result *sdr.CaptureResult
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) CaptureStarted(sdr.CaptureRange) { r.add("started") }
func (r *recorder) CaptureComplete(res *sdr.CaptureResult) {
	r.mu.Lock()
	r.result = res
	r.mu.Unlock()
	r.add("complete")
}
func (r *recorder) CaptureError(msg string) {
	r.mu.Lock()
	r.errors = append(r.errors, msg)
	r.mu.Unlock()
	r.add("error")
}
func (r *recorder) Progress(int) {}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var scenarioRange = sdr.CaptureRange{
	StartFreq:  100_000_000,
	EndFreq:    100_050_000,
	FFTSize:    4096,
	SampleRate: 50_000,
}

func TestCaptureRangeSuccess(t *testing.T) {
	rx := &fakeReceiver{sampleRate: 200_000, fftSize: 4096, value: -90.0}
	rec := &recorder{}
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 250_000_000, time.UTC)
	c := New(rx, WithListener(rec), WithClock(func() time.Time { return fixed }))

	res, err := c.CaptureRange(context.Background(), scenarioRange)
	if err != nil {
		t.Fatalf("CaptureRange returned error: %s", err)
	}
	if !res.Success {
		t.Fatalf("CaptureRange result not successful: %+v", res.Error)
	}
	if len(res.Magnitudes) != 4096 {
		t.Fatalf("got %d magnitudes, want 4096", len(res.Magnitudes))
	}
	for i, v := range res.Magnitudes {
		if v != -90.0 {
			t.Fatalf("magnitude[%d] = %f, want -90.0", i, v)
		}
	}
	if want := float64(fixed.UnixMilli()) / 1000; res.Timestamp != want {
		t.Errorf("Timestamp = %f, want %f", res.Timestamp, want)
	}
	if res.ID == "" {
		t.Error("result has no ID")
	}
	if res.Range != scenarioRange {
		t.Errorf("Range = %+v, want %+v", res.Range, scenarioRange)
	}
	if got := rec.snapshot(); !equal(got, []string{"started", "complete"}) {
		t.Errorf("events = %v, want [started complete]", got)
	}
	if c.IsCapturing() {
		t.Error("capturer still capturing after completion")
	}
}

func TestCaptureRangeExceedsCapability(t *testing.T) {
	rx := &fakeReceiver{sampleRate: 20_000, fftSize: 4096, value: -90.0}
	rec := &recorder{}
	c := New(rx, WithListener(rec))

	res, err := c.CaptureRange(context.Background(), scenarioRange)
	if !errors.Is(err, ErrExceedsCapability) {
		t.Fatalf("err = %v, want ErrExceedsCapability", err)
	}
	if res == nil || res.Success {
		t.Fatalf("result = %+v, want failed result", res)
	}
	if res.Error == "" {
		t.Error("failed result carries no error message")
	}
	if got := rec.snapshot(); !equal(got, []string{"error"}) {
		t.Errorf("events = %v, want [error]", got)
	}
}

func TestCaptureRangeNoReceiver(t *testing.T) {
	rec := &recorder{}
	c := New(nil, WithListener(rec))

	res, err := c.CaptureRange(context.Background(), scenarioRange)
	if !errors.Is(err, ErrNoReceiver) {
		t.Fatalf("err = %v, want ErrNoReceiver", err)
	}
	if res.Success {
		t.Error("result successful without receiver")
	}
	if got := rec.snapshot(); !equal(got, []string{"error"}) {
		t.Errorf("events = %v, want [error]", got)
	}
	if c.CenterFreq() != 0 || c.SampleRate() != 0 || c.FFTSize() != 0 {
		t.Error("read-throughs without receiver must return 0")
	}
}

func TestReadThroughs(t *testing.T) {
	rx := &fakeReceiver{center: 145_500_000, sampleRate: 2_000_000, fftSize: 2048}
	c := New(rx)
	if got := c.CenterFreq(); got != 145_500_000 {
		t.Errorf("CenterFreq() = %f", got)
	}
	if got := c.SampleRate(); got != 2_000_000 {
		t.Errorf("SampleRate() = %f", got)
	}
	if got := c.FFTSize(); got != 2048 {
		t.Errorf("FFTSize() = %d", got)
	}
}

func TestCaptureRangeInProgress(t *testing.T) {
	rx := &fakeReceiver{
		sampleRate: 200_000,
		value:      -90.0,
		entered:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
	c := New(rx, WithExtractTimeout(0))

	type outcome struct {
		res *sdr.CaptureResult
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := c.CaptureRange(context.Background(), scenarioRange)
		first <- outcome{res, err}
	}()
	<-rx.entered

	res, err := c.CaptureRange(context.Background(), scenarioRange)
	if !errors.Is(err, ErrCaptureInProgress) {
		t.Fatalf("second call err = %v, want ErrCaptureInProgress", err)
	}
	if res.Success {
		t.Error("second call reported success")
	}
	if !c.IsCapturing() {
		t.Error("rejected call altered the capturing state")
	}

	close(rx.release)
	got := <-first
	if got.err != nil || !got.res.Success {
		t.Fatalf("in-flight call = (%+v, %v), want success", got.res, got.err)
	}
	if len(got.res.Magnitudes) != scenarioRange.FFTSize {
		t.Errorf("in-flight call got %d bins, want %d", len(got.res.Magnitudes), scenarioRange.FFTSize)
	}
}

func TestCaptureRangeExtractionFailures(t *testing.T) {
	tests := []struct {
		desc string
		rx   *fakeReceiver
	}{
		{
			desc: "receiver error",
			rx:   &fakeReceiver{sampleRate: 200_000, err: errors.New("usb transfer failed")},
		},
		{
			desc: "receiver panic",
			rx:   &fakeReceiver{sampleRate: 200_000, panicMsg: "nil device handle"},
		},
	}
	for _, tc := range tests {
		rec := &recorder{}
		c := New(tc.rx, WithListener(rec))
		res, err := c.CaptureRange(context.Background(), scenarioRange)
		if !errors.Is(err, ErrFFTExtractionFailed) {
			t.Errorf("%s: err = %v, want ErrFFTExtractionFailed", tc.desc, err)
			continue
		}
		if res.Success {
			t.Errorf("%s: result successful", tc.desc)
		}
		if got := rec.snapshot(); !equal(got, []string{"started", "complete"}) {
			t.Errorf("%s: events = %v, want [started complete]", tc.desc, got)
		}
		if rec.result != res {
			t.Errorf("%s: complete event carried a different result", tc.desc)
		}
		if c.IsCapturing() {
			t.Errorf("%s: capturer still capturing", tc.desc)
		}
	}
}

func TestCaptureRangeTimeout(t *testing.T) {
	rx := &fakeReceiver{sampleRate: 200_000, release: make(chan struct{})}
	defer close(rx.release)
	c := New(rx, WithExtractTimeout(20*time.Millisecond))

	res, err := c.CaptureRange(context.Background(), scenarioRange)
	if !errors.Is(err, ErrFFTExtractionFailed) {
		t.Fatalf("err = %v, want ErrFFTExtractionFailed", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want it to wrap context.DeadlineExceeded", err)
	}
	if res.Success {
		t.Error("timed out capture reported success")
	}
	if c.IsCapturing() {
		t.Error("capturer still capturing after timeout")
	}
}

func TestStop(t *testing.T) {
	rx := &fakeReceiver{
		sampleRate: 200_000,
		entered:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
	defer close(rx.release)
	rec := &recorder{}
	c := New(rx, WithListener(rec), WithExtractTimeout(0))

	done := make(chan error, 1)
	go func() {
		_, err := c.CaptureRange(context.Background(), scenarioRange)
		done <- err
	}()
	<-rx.entered

	c.Stop()
	if c.IsCapturing() {
		t.Error("capturer still capturing after Stop")
	}
	err := <-done
	if !errors.Is(err, ErrFFTExtractionFailed) || !errors.Is(err, ErrStopped) {
		t.Errorf("err = %v, want ErrFFTExtractionFailed wrapping ErrStopped", err)
	}
	if got := rec.snapshot(); !equal(got, []string{"started", "error", "complete"}) {
		t.Errorf("events = %v, want [started error complete]", got)
	}

	// Stop while idle is a no-op.
	c.Stop()
	if got := rec.snapshot(); len(got) != 3 {
		t.Errorf("Stop while idle emitted events: %v", got)
	}
}

func TestProgress(t *testing.T) {
	rx := &fakeReceiver{sampleRate: 200_000, value: -50}
	var mu sync.Mutex
	var progress []int
	c := New(rx, WithListener(ListenerFuncs{
		OnProgress: func(p int) {
			mu.Lock()
			defer mu.Unlock()
			progress = append(progress, p)
		},
	}))
	if _, err := c.CaptureRange(context.Background(), scenarioRange); err != nil {
		t.Fatalf("CaptureRange returned error: %s", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(progress) != 2 || progress[0] != 50 || progress[1] != 100 {
		t.Errorf("progress = %v, want [50 100]", progress)
	}
}

// slowReceiver blocks every pull until release is closed and records how
// many pulls overlapped.
type slowReceiver struct {
	release chan struct{}

	mu        sync.Mutex
	calls     int
	active    int
	maxActive int
}

func (s *slowReceiver) CenterFreq() float64 { return 100e6 }
func (s *slowReceiver) SampleRate() float64 { return 200_000 }
func (s *slowReceiver) FFTSize() int        { return 4096 }

func (s *slowReceiver) ExtractFFT(buf []float64) error {
	s.mu.Lock()
	s.calls++
	s.active++
	s.maxActive = max(s.maxActive, s.active)
	s.mu.Unlock()

	<-s.release

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	return nil
}

func TestAbandonedPullKeepsReceiverExclusive(t *testing.T) {
	rx := &slowReceiver{release: make(chan struct{})}
	c := New(rx, WithExtractTimeout(20*time.Millisecond))

	if _, err := c.CaptureRange(context.Background(), scenarioRange); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("first capture err = %v, want a timeout", err)
	}
	if c.IsCapturing() {
		t.Error("capturer still capturing after timeout")
	}
	_, err := c.CaptureRange(context.Background(), scenarioRange)
	if !errors.Is(err, ErrCaptureInProgress) {
		t.Fatalf("capture during abandoned pull err = %v, want ErrCaptureInProgress", err)
	}

	close(rx.release)
	deadline := time.Now().Add(time.Second)
	for {
		_, err := c.CaptureRange(context.Background(), scenarioRange)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrCaptureInProgress) {
			t.Fatalf("capture after release err = %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("receiver never became available after the abandoned pull returned")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rx.mu.Lock()
	defer rx.mu.Unlock()
	if rx.maxActive != 1 {
		t.Errorf("up to %d concurrent ExtractFFT calls, want 1", rx.maxActive)
	}
	if rx.calls != 2 {
		t.Errorf("ExtractFFT called %d times, want 2", rx.calls)
	}
}
