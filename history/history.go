// Package history keeps a bounded, time ordered window of FFT frames shared
// between a producer and any number of renderers.
package history

import (
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/hb9tf/specview/sdr"
)

// MaxCapacity bounds the number of frames a buffer may be configured to hold.
const MaxCapacity = 1 << 16

// Buffer is a bounded ring of frames. Pushes go to the front and the oldest
// frame is evicted once the capacity is exceeded. Storage grows with the
// frames pushed, not with the configured capacity.
//
// All methods are safe for concurrent use. The lock is only held while frames
// are copied in or out.
type Buffer struct {
	mu       sync.Mutex
	frames   []sdr.Frame // push order; a ring starting at oldest once full
	oldest   int
	capacity int
	version  uint64
}

func checkCapacity(n int) error {
	if n < 1 || n > MaxCapacity {
		return fmt.Errorf("invalid history capacity %d: must be between 1 and %d", n, MaxCapacity)
	}
	return nil
}

// New returns an empty buffer holding at most capacity frames.
func New(capacity int) (*Buffer, error) {
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}
	return &Buffer{capacity: capacity}, nil
}

// Push inserts f as the newest frame. The magnitudes are copied so the
// producer may reuse its buffer.
func (b *Buffer) Push(f sdr.Frame) {
	f.Magnitudes = append([]float64(nil), f.Magnitudes...)

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) < b.capacity {
		b.frames = append(b.frames, f)
	} else {
		b.frames[b.oldest] = f // overwrites the oldest frame
		b.oldest = (b.oldest + 1) % len(b.frames)
	}
	b.version++
}

// Snapshot returns the frames newest first. The returned slice is owned by
// the caller; the frames' magnitudes must be treated as read-only.
func (b *Buffer) Snapshot() []sdr.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// SnapshotIfChanged returns a snapshot together with the version it reflects,
// or nil if the version still equals since.
func (b *Buffer) SnapshotIfChanged(since uint64) ([]sdr.Frame, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.version == since {
		return nil, since
	}
	return b.snapshotLocked(), b.version
}

// at returns the i-th newest frame.
func (b *Buffer) at(i int) sdr.Frame {
	n := len(b.frames)
	return b.frames[(b.oldest+n-1-i)%n]
}

func (b *Buffer) snapshotLocked() []sdr.Frame {
	out := make([]sdr.Frame, len(b.frames))
	for i := range out {
		out[i] = b.at(i)
	}
	return out
}

// Latest returns the newest frame.
func (b *Buffer) Latest() (sdr.Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		return sdr.Frame{}, false
	}
	return b.at(0), true
}

// SetCapacity changes the maximum number of frames, dropping the oldest ones
// immediately if the buffer holds more than n.
func (b *Buffer) SetCapacity(n int) error {
	if err := checkCapacity(n); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if n == b.capacity {
		return nil
	}
	keep := min(len(b.frames), n)
	frames := make([]sdr.Frame, keep)
	for i := 0; i < keep; i++ {
		frames[keep-1-i] = b.at(i)
	}
	if dropped := len(b.frames) - keep; dropped > 0 {
		glog.V(1).Infof("history capacity reduced to %d, dropped %d frames", n, dropped)
	}
	b.frames = frames
	b.oldest = 0
	b.capacity = n
	b.version++
	return nil
}

// Len is the number of frames currently held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Cap is the maximum number of frames held.
func (b *Buffer) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// Version increases with every mutation.
func (b *Buffer) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}
