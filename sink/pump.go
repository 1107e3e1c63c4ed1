package sink

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ardnew/soundbooster/audio"
	"github.com/ardnew/soundbooster/pkg"
)

// FrameWriter consumes frames. Implementations may block; the Pump calls
// them from its own goroutine, never from the executor.
type FrameWriter interface {
	WriteFrame(f audio.Frame) error
}

// PumpStats reports lifetime pump counters.
type PumpStats struct {
	Queued   uint64 // frames accepted by Push
	Written  uint64 // frames delivered to the writer
	Rejected uint64 // frames refused because the queue was full
	Failed   uint64 // frames the writer returned an error for
}

// Pump decouples a blocking FrameWriter from the executor.
//
// Push is the producer side of an SPSC ring and never blocks, so the DSP
// stage can feed a slow device without stalling the audio plane. Run drains
// the ring into the writer until its context ends.
type Pump struct {
	ring   *audio.Ring
	dst    FrameWriter
	notify chan struct{}

	written atomic.Uint64
	failed  atomic.Uint64

	warn rate.Sometimes
}

// NewPump creates a pump buffering up to frames frames ahead of dst.
func NewPump(dst FrameWriter, frames int) *Pump {
	if frames <= 0 {
		frames = audio.DefaultRingFrames
	}
	return &Pump{
		ring:   audio.NewRing(frames),
		dst:    dst,
		notify: make(chan struct{}, 1),
		warn:   rate.Sometimes{Interval: time.Second},
	}
}

// Push queues f for the writer. Returns pkg.ErrOverrun if the writer has
// fallen a full ring behind.
func (p *Pump) Push(f audio.Frame) error {
	if err := p.ring.Push(f); err != nil {
		return err
	}
	select {
	case p.notify <- struct{}{}:
	default:
	}
	return nil
}

// Run delivers queued frames until ctx is done. A writer returning io.EOF
// or io.ErrClosedPipe ends the pump; other errors are counted and skipped.
func (p *Pump) Run(ctx context.Context) error {
	var f audio.Frame
	for {
		for p.ring.PopInto(&f) {
			if err := p.dst.WriteFrame(f); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
					return err
				}
				p.failed.Add(1)
				p.warn.Do(func() {
					pkg.LogWarn(pkg.ComponentSink, "sink write failed", "error", err)
				})
				continue
			}
			p.written.Add(1)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.notify:
		}
	}
}

// Stats returns the pump counters. Safe from any goroutine.
func (p *Pump) Stats() PumpStats {
	rs := p.ring.Stats()
	return PumpStats{
		Queued:   rs.Pushed,
		Written:  p.written.Load(),
		Rejected: rs.Rejected,
		Failed:   p.failed.Load(),
	}
}
