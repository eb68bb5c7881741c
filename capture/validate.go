package capture

import (
	"fmt"
	"math/bits"

	"github.com/hb9tf/specview/sdr"
)

// Validate checks a capture range against the receiver's current sample rate.
// Checks run in order: structure, capability, FFT size.
func Validate(r sdr.CaptureRange, currentSampleRate float64) error {
	if !r.IsValid() {
		return newError(ErrInvalidRange, fmt.Sprintf("start=%.0f end=%.0f fftSize=%d sampleRate=%.0f", r.StartFreq, r.EndFreq, r.FFTSize, r.SampleRate), nil)
	}
	if r.SampleRate > currentSampleRate {
		return newError(ErrExceedsCapability, fmt.Sprintf("requested %.0f Hz, receiver runs at %.0f Hz", r.SampleRate, currentSampleRate), nil)
	}
	if !isPowerOfTwo(r.FFTSize) {
		return newError(ErrInvalidFFTSize, fmt.Sprintf("got %d", r.FFTSize), nil)
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && bits.OnesCount(uint(n)) == 1
}
