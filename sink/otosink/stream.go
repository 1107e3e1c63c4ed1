package otosink

import (
	"sync/atomic"

	"github.com/ardnew/soundbooster/audio"
)

// Stream adapts a frame ring to the byte-oriented reader a playback driver
// pulls from. Push is the producer side; Read, called on the driver's
// goroutine, is the consumer. When the ring runs dry Read returns silence
// rather than blocking the driver.
type Stream struct {
	ring *audio.Ring
	buf  [audio.FrameBytes]byte
	off  int // unread bytes start at buf[off:]; off == len(buf) means empty

	starved atomic.Uint64
}

// NewStream creates a stream buffering up to frames frames.
func NewStream(frames int) *Stream {
	s := &Stream{ring: audio.NewRing(frames)}
	s.off = len(s.buf)
	return s
}

// Push queues a frame. Returns pkg.ErrOverrun when playback lags.
func (s *Stream) Push(f audio.Frame) error {
	return s.ring.Push(f)
}

// Read fills p with PCM, padding with silence when no frame is queued.
func (s *Stream) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if s.off == len(s.buf) {
			var f audio.Frame
			if !s.ring.PopInto(&f) {
				clear(p[n:])
				s.starved.Add(1)
				return len(p), nil
			}
			f.MarshalTo(s.buf[:])
			s.off = 0
		}
		c := copy(p[n:], s.buf[s.off:])
		s.off += c
		n += c
	}
	return n, nil
}

// Starved returns how many reads were padded with silence.
func (s *Stream) Starved() uint64 {
	return s.starved.Load()
}
