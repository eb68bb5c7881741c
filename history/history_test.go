package history

import (
	"sync"
	"testing"

	"github.com/hb9tf/specview/sdr"
)

// frame returns a frame tagged with its push sequence number in bin 0.
func frame(seq int) sdr.Frame {
	return sdr.Frame{
		Magnitudes: []float64{float64(seq), -100},
		CenterFreq: 100e6,
		Bandwidth:  50e3,
	}
}

func seqs(frames []sdr.Frame) []int {
	out := make([]int, len(frames))
	for i, f := range frames {
		out[i] = int(f.Magnitudes[0])
	}
	return out
}

func TestNewRejectsInvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -1} {
		if _, err := New(c); err == nil {
			t.Errorf("New(%d) succeeded, want error", c)
		}
	}
}

func TestPushEvictsOldest(t *testing.T) {
	b, err := New(1000)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 1100; i++ {
		b.Push(frame(i))
		if b.Len() > 1000 {
			t.Fatalf("after push %d: Len() = %d exceeds capacity", i, b.Len())
		}
	}
	if b.Len() != 1000 {
		t.Fatalf("Len() = %d, want 1000", b.Len())
	}
	got := seqs(b.Snapshot())
	for i, s := range got {
		if want := 1100 - i; s != want {
			t.Fatalf("snapshot[%d] = push #%d, want #%d", i, s, want)
		}
	}
	if got[len(got)-1] != 101 {
		t.Errorf("oldest retained = #%d, want #101", got[len(got)-1])
	}
}

func TestSnapshotNewestFirst(t *testing.T) {
	b, _ := New(4)
	for i := 1; i <= 3; i++ {
		b.Push(frame(i))
	}
	got := seqs(b.Snapshot())
	want := []int{3, 2, 1}
	if len(got) != len(want) {
		t.Fatalf("Snapshot() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Snapshot() = %v, want %v", got, want)
		}
	}
	latest, ok := b.Latest()
	if !ok || latest.Magnitudes[0] != 3 {
		t.Errorf("Latest() = %+v, %t, want push #3", latest, ok)
	}
}

func TestSnapshotIdempotent(t *testing.T) {
	b, _ := New(8)
	for i := 1; i <= 12; i++ {
		b.Push(frame(i))
	}
	a, c := seqs(b.Snapshot()), seqs(b.Snapshot())
	if len(a) != len(c) {
		t.Fatalf("snapshots differ in length: %d vs %d", len(a), len(c))
	}
	for i := range a {
		if a[i] != c[i] {
			t.Fatalf("snapshots differ at %d: %v vs %v", i, a, c)
		}
	}
}

func TestPushCopiesMagnitudes(t *testing.T) {
	b, _ := New(2)
	mags := []float64{-10, -20}
	b.Push(sdr.Frame{Magnitudes: mags})
	mags[0] = 99
	f, _ := b.Latest()
	if f.Magnitudes[0] != -10 {
		t.Errorf("buffered frame changed with producer buffer: %v", f.Magnitudes)
	}
}

func TestSetCapacityTrims(t *testing.T) {
	b, _ := New(10)
	for i := 1; i <= 10; i++ {
		b.Push(frame(i))
	}
	if err := b.SetCapacity(3); err != nil {
		t.Fatalf("SetCapacity(3) returned error: %s", err)
	}
	got := seqs(b.Snapshot())
	if len(got) != 3 || got[0] != 10 || got[1] != 9 || got[2] != 8 {
		t.Fatalf("after SetCapacity(3) snapshot = %v, want [10 9 8]", got)
	}
	b.Push(frame(11))
	if got := seqs(b.Snapshot()); len(got) != 3 || got[0] != 11 || got[2] != 9 {
		t.Errorf("after push snapshot = %v, want [11 10 9]", got)
	}

	if err := b.SetCapacity(5); err != nil {
		t.Fatalf("SetCapacity(5) returned error: %s", err)
	}
	if b.Cap() != 5 || b.Len() != 3 {
		t.Errorf("Cap()=%d Len()=%d, want 5 and 3", b.Cap(), b.Len())
	}
	if err := b.SetCapacity(0); err == nil {
		t.Error("SetCapacity(0) succeeded, want error")
	}
}

func TestCapacityAllocatesOnPush(t *testing.T) {
	b, err := New(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.SetCapacity(MaxCapacity); err != nil {
		t.Fatalf("SetCapacity(%d) returned error: %s", MaxCapacity, err)
	}
	if cap(b.frames) > 1 {
		t.Errorf("empty buffer reserved %d frames", cap(b.frames))
	}
	for i := 1; i <= 3; i++ {
		b.Push(frame(i))
	}
	if cap(b.frames) > 8 {
		t.Errorf("buffer with 3 frames reserved %d", cap(b.frames))
	}
	if got := seqs(b.Snapshot()); len(got) != 3 || got[0] != 3 || got[2] != 1 {
		t.Errorf("snapshot = %v, want [3 2 1]", got)
	}

	for _, n := range []int{MaxCapacity + 1, 6_000_000} {
		if _, err := New(n); err == nil {
			t.Errorf("New(%d) succeeded, want error", n)
		}
		if err := b.SetCapacity(n); err == nil {
			t.Errorf("SetCapacity(%d) succeeded, want error", n)
		}
	}
	if b.Cap() != MaxCapacity {
		t.Errorf("Cap() = %d after rejected changes, want %d", b.Cap(), MaxCapacity)
	}
}

func TestGrowAfterWrap(t *testing.T) {
	b, _ := New(3)
	for i := 1; i <= 5; i++ {
		b.Push(frame(i))
	}
	if err := b.SetCapacity(5); err != nil {
		t.Fatal(err)
	}
	for i := 6; i <= 8; i++ {
		b.Push(frame(i))
	}
	got := seqs(b.Snapshot())
	want := []int{8, 7, 6, 5, 4}
	if len(got) != len(want) {
		t.Fatalf("snapshot = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot = %v, want %v", got, want)
		}
	}
}

func TestSetCapacityAfterWrap(t *testing.T) {
	b, _ := New(4)
	for i := 1; i <= 7; i++ { // head has wrapped around
		b.Push(frame(i))
	}
	if err := b.SetCapacity(2); err != nil {
		t.Fatal(err)
	}
	if got := seqs(b.Snapshot()); len(got) != 2 || got[0] != 7 || got[1] != 6 {
		t.Errorf("snapshot = %v, want [7 6]", got)
	}
}

func TestSnapshotIfChanged(t *testing.T) {
	b, _ := New(4)
	b.Push(frame(1))
	frames, v := b.SnapshotIfChanged(0)
	if len(frames) != 1 {
		t.Fatalf("first SnapshotIfChanged returned %d frames, want 1", len(frames))
	}
	if frames, _ := b.SnapshotIfChanged(v); frames != nil {
		t.Errorf("unchanged buffer returned %d frames, want nil", len(frames))
	}
	b.Push(frame(2))
	if frames, v2 := b.SnapshotIfChanged(v); len(frames) != 2 || v2 == v {
		t.Errorf("changed buffer returned %d frames at version %d", len(frames), v2)
	}
}

func TestConcurrentProducerAndReaders(t *testing.T) {
	b, _ := New(64)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 1; i <= 5000; i++ {
			b.Push(frame(i))
		}
	}()
	for r := 0; r < 2; r++ {
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				snap := b.Snapshot()
				if len(snap) > 64 {
					t.Errorf("snapshot of %d frames exceeds capacity", len(snap))
					return
				}
				// Frames must come out strictly newest first.
				s := seqs(snap)
				for j := 1; j < len(s); j++ {
					if s[j] != s[j-1]-1 {
						t.Errorf("torn snapshot: %v", s)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
