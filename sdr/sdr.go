package sdr

import (
	"context"
	"time"
)

// Frame is one FFT magnitude snapshot as produced by a DSP source.
type Frame struct {
	// Metadata
	Identifier string `json:"identifier,omitempty"`
	Source     string `json:"source,omitempty"`

	// Radio Data
	Magnitudes []float64 `json:"magnitudes"` // dB, one value per bin
	CenterFreq float64   `json:"centerFreq"`
	Bandwidth  float64   `json:"bandwidth"`
	SampleRate float64   `json:"sampleRate"`
	Time       time.Time `json:"time"`
}

// LowFreq is the frequency of the first bin in Hz.
func (f Frame) LowFreq() float64 {
	return f.CenterFreq - f.Bandwidth/2
}

// HighFreq is the frequency of the upper edge of the last bin in Hz.
func (f Frame) HighFreq() float64 {
	return f.CenterFreq + f.Bandwidth/2
}

// Receiver is the live receiver capability consumed by the capture pipeline.
// The queries must be cheap and must not fail; implementations return 0 when
// a value is not available.
type Receiver interface {
	// CenterFreq is the current RF center frequency in Hz.
	CenterFreq() float64
	// SampleRate is the current input sample rate in Hz.
	SampleRate() float64
	// FFTSize is the current FFT size in bins.
	FFTSize() int
	// ExtractFFT fills buf with one frame of magnitudes in dB.
	ExtractFFT(buf []float64) error
}

// Source produces frames at its own cadence until ctx is done.
type Source interface {
	Name() string
	Stream(ctx context.Context, frames chan<- Frame) error
}

// CaptureRange is a requested frequency/FFT configuration for a single capture.
type CaptureRange struct {
	// StartFreq is the lower frequency of the range in Hz.
	StartFreq float64 `json:"startFreq"`
	// EndFreq is the upper frequency of the range in Hz.
	EndFreq float64 `json:"endFreq"`
	// FFTSize is the number of bins to capture. Must be a power of two.
	FFTSize int `json:"fftSize"`
	// SampleRate is the requested sample rate in Hz.
	SampleRate float64 `json:"sampleRate"`
}

// IsValid reports whether the range is structurally sound. It does not check
// against receiver capabilities.
func (r CaptureRange) IsValid() bool {
	return r.StartFreq < r.EndFreq &&
		r.FFTSize > 0 &&
		r.SampleRate > 0
}

// CaptureResult is the outcome of a single capture.
type CaptureResult struct {
	ID         string       `json:"id"`
	Success    bool         `json:"success"`
	Magnitudes []float64    `json:"magnitudes,omitempty"`
	Range      CaptureRange `json:"range"`
	Error      string       `json:"error,omitempty"`
	// Timestamp is in seconds since the Unix epoch.
	Timestamp float64 `json:"timestamp"`
}

// Time returns the capture timestamp as time.Time.
func (r *CaptureResult) Time() time.Time {
	return time.UnixMilli(int64(r.Timestamp * 1000))
}

// Frame converts a successful capture into a frame for the display pipeline.
func (r *CaptureResult) Frame(source string) Frame {
	return Frame{
		Identifier: r.ID,
		Source:     source,
		Magnitudes: r.Magnitudes,
		CenterFreq: (r.Range.StartFreq + r.Range.EndFreq) / 2,
		Bandwidth:  r.Range.EndFreq - r.Range.StartFreq,
		SampleRate: r.Range.SampleRate,
		Time:       r.Time(),
	}
}
