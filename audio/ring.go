package audio

import (
	"sync/atomic"

	"github.com/ardnew/soundbooster/pkg"
)

// DefaultRingFrames is the default ring capacity: 16 ms of audio.
const DefaultRingFrames = 16

// Ring is a fixed-capacity single-producer/single-consumer frame queue.
//
// Storage is allocated once at construction. Push never blocks: a full ring
// rejects the frame with pkg.ErrOverrun and the caller counts it. Pop on an
// empty ring reports false so the consumer can substitute silence.
//
// One goroutine (or task) may Push while another Pops. Reset is only safe
// while neither side is active.
type Ring struct {
	slots []Frame
	mask  uint64

	// Monotonic positions; slot index is position & mask.
	head atomic.Uint64 // next position to read
	tail atomic.Uint64 // next position to write

	pushed   atomic.Uint64
	popped   atomic.Uint64
	rejected atomic.Uint64
}

// NewRing creates a ring holding at least capacity frames.
// Capacity is rounded up to a power of two, with a minimum of 2.
func NewRing(capacity int) *Ring {
	n := 2
	for n < capacity {
		n <<= 1
	}
	return &Ring{
		slots: make([]Frame, n),
		mask:  uint64(n - 1),
	}
}

// Push copies f into the next free slot.
// Returns pkg.ErrOverrun if the ring is full.
func (r *Ring) Push(f Frame) error {
	tail := r.tail.Load()
	if tail-r.head.Load() >= uint64(len(r.slots)) {
		r.rejected.Add(1)
		return pkg.ErrOverrun
	}
	r.slots[tail&r.mask] = f
	r.tail.Store(tail + 1)
	r.pushed.Add(1)
	return nil
}

// Pop removes and returns the oldest frame.
// Returns false if the ring is empty.
func (r *Ring) Pop() (Frame, bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		return Frame{}, false
	}
	f := r.slots[head&r.mask]
	r.head.Store(head + 1)
	r.popped.Add(1)
	return f, true
}

// PopInto removes the oldest frame into dst without an intermediate copy
// on the caller's stack. Returns false if the ring is empty.
func (r *Ring) PopInto(dst *Frame) bool {
	head := r.head.Load()
	if head == r.tail.Load() {
		return false
	}
	*dst = r.slots[head&r.mask]
	r.head.Store(head + 1)
	r.popped.Add(1)
	return true
}

// Len returns the number of frames currently queued.
func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns the ring capacity in frames.
func (r *Ring) Cap() int {
	return len(r.slots)
}

// Reset discards all queued frames.
func (r *Ring) Reset() {
	r.head.Store(r.tail.Load())
	pkg.LogDebug(pkg.ComponentRing, "ring reset", "capacity", len(r.slots))
}

// RingStats reports lifetime ring counters.
type RingStats struct {
	Pushed   uint64
	Popped   uint64
	Rejected uint64
}

// Stats returns lifetime push, pop, and rejection counts.
func (r *Ring) Stats() RingStats {
	return RingStats{
		Pushed:   r.pushed.Load(),
		Popped:   r.popped.Load(),
		Rejected: r.rejected.Load(),
	}
}
