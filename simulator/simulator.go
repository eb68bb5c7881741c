// Package simulator provides a synthetic receiver producing FFT frames of a
// few tones over gaussian noise. It serves as both a capture receiver and a
// streaming frame source when no hardware is attached.
package simulator

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"

	"github.com/hb9tf/specview/sdr"
)

const SourceName = "sim"

// floorDB keeps log10 away from zero bins.
const floorDB = -200.0

// Tone is a carrier relative to the center frequency.
type Tone struct {
	Offset float64 // Hz
	Power  float64 // dBFS
}

// Options configures a Receiver.
type Options struct {
	Identifier string
	CenterFreq float64
	SampleRate float64
	FFTSize    int
	// NoiseFloor is the gaussian noise level in dBFS. -Inf disables noise.
	NoiseFloor float64
	Tones      []Tone
	// FrameRate is the number of frames per second emitted by Stream.
	FrameRate float64
	Seed      int64
}

// DefaultOptions is a 2 MHz wide view around 100 MHz with two carriers.
func DefaultOptions() Options {
	return Options{
		Identifier: "sim",
		CenterFreq: 100e6,
		SampleRate: 2e6,
		FFTSize:    1024,
		NoiseFloor: -90,
		Tones: []Tone{
			{Offset: 200e3, Power: -40},
			{Offset: -350e3, Power: -65},
		},
		FrameRate: 60,
		Seed:      time.Now().UnixNano(),
	}
}

// Receiver synthesizes IQ samples and returns their shifted power spectrum.
type Receiver struct {
	opts Options
	// gain is the coherent gain of the window, used to normalize bins so a
	// bin centered tone reads at its configured power.
	gain float64

	mu  sync.Mutex
	rng *rand.Rand
	// t is the time of the next sample, keeping tones phase continuous.
	t float64
}

// New validates opts and returns a ready receiver.
func New(opts Options) (*Receiver, error) {
	if opts.FFTSize < 2 || opts.FFTSize&(opts.FFTSize-1) != 0 {
		return nil, fmt.Errorf("FFT size must be a power of two, got %d", opts.FFTSize)
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", opts.SampleRate)
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 60
	}
	return &Receiver{
		opts: opts,
		gain: coherentGain(opts.FFTSize),
		rng:  rand.New(rand.NewSource(opts.Seed)),
	}, nil
}

// Name implements sdr.Source.
func (r *Receiver) Name() string { return SourceName }

func (r *Receiver) CenterFreq() float64 { return r.opts.CenterFreq }

func (r *Receiver) SampleRate() float64 { return r.opts.SampleRate }

func (r *Receiver) FFTSize() int { return r.opts.FFTSize }

// FrameInterval is the time between two frames emitted by Stream.
func (r *Receiver) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / r.opts.FrameRate)
}

// ExtractFFT fills buf with power values in dBFS, lowest frequency first.
// The transform size is len(buf), which must be a power of two, so captures
// may ask for a different resolution than the streamed frames.
func (r *Receiver) ExtractFFT(buf []float64) error {
	n := len(buf)
	if n < 2 || n&(n-1) != 0 {
		return fmt.Errorf("buffer holds %d bins, need a power of two", n)
	}
	gain := r.gain
	if n != r.opts.FFTSize {
		gain = coherentGain(n)
	}

	samples := r.samples(n)
	spectrum := fft.FFT(window.HannComplex(samples))

	// Shift DC to the middle.
	half := n / 2
	for i := 0; i < n; i++ {
		mag := cmplx.Abs(spectrum[(i+half)%n]) / gain
		db := floorDB
		if mag > 0 {
			db = math.Max(floorDB, 20*math.Log10(mag))
		}
		buf[i] = db
	}
	return nil
}

// coherentGain is the sum of an n point Hann window.
func coherentGain(n int) float64 {
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	return floats.Sum(window.Hann(ones))
}

func (r *Receiver) samples(n int) []complex128 {
	r.mu.Lock()
	defer r.mu.Unlock()

	sigma := math.Pow(10, r.opts.NoiseFloor/20) / math.Sqrt2
	dt := 1 / r.opts.SampleRate
	out := make([]complex128, n)
	for i := range out {
		t := r.t + float64(i)*dt
		var s complex128
		for _, tone := range r.opts.Tones {
			amp := math.Pow(10, tone.Power/20)
			s += cmplx.Rect(amp, 2*math.Pi*tone.Offset*t)
		}
		if sigma > 0 {
			s += complex(r.rng.NormFloat64()*sigma, r.rng.NormFloat64()*sigma)
		}
		out[i] = s
	}
	r.t += float64(n) * dt
	return out
}

// Frame extracts one spectrum and wraps it with the receiver's metadata.
func (r *Receiver) Frame() (sdr.Frame, error) {
	mags := make([]float64, r.opts.FFTSize)
	if err := r.ExtractFFT(mags); err != nil {
		return sdr.Frame{}, err
	}
	return sdr.Frame{
		Identifier: r.opts.Identifier,
		Source:     SourceName,
		Magnitudes: mags,
		CenterFreq: r.opts.CenterFreq,
		Bandwidth:  r.opts.SampleRate,
		SampleRate: r.opts.SampleRate,
		Time:       time.Now(),
	}, nil
}

// Stream emits FrameRate frames per second until ctx is done.
func (r *Receiver) Stream(ctx context.Context, frames chan<- sdr.Frame) error {
	ticker := time.NewTicker(r.FrameInterval())
	defer ticker.Stop()
	glog.Infof("simulating %d bin spectrum around %s at %.0f fps", r.opts.FFTSize, formatMHz(r.opts.CenterFreq), r.opts.FrameRate)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		f, err := r.Frame()
		if err != nil {
			return fmt.Errorf("unable to synthesize frame: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frames <- f:
		}
	}
}

func formatMHz(hz float64) string {
	return fmt.Sprintf("%.3f MHz", hz/1e6)
}
