package audio

import (
	"encoding/binary"

	"github.com/ardnew/soundbooster/pkg"
)

// Stream format. One frame covers one USB full-speed service interval.
const (
	SampleRate     = 48000 // Hz
	Channels       = 2     // interleaved L/R
	BytesPerSample = 2     // signed 16-bit little-endian PCM

	// FramePeriodMicros is the duration of one frame in microseconds.
	FramePeriodMicros = 1000

	// FrameSamples is the number of interleaved samples in one frame.
	FrameSamples = SampleRate / (1000000 / FramePeriodMicros) * Channels

	// FrameBytes is the wire size of one encoded frame.
	FrameBytes = FrameSamples * BytesPerSample
)

// Sample range limits.
const (
	SampleMax = 1<<15 - 1
	SampleMin = -1 << 15
)

// Frame is one fixed-length block of interleaved 16-bit PCM samples.
// Frames are values: copying a Frame hands the samples to the new holder.
type Frame [FrameSamples]int16

// Silence is the all-zero frame.
var Silence Frame

// IsSilent reports whether every sample in the frame is zero.
func (f *Frame) IsSilent() bool {
	for _, s := range f {
		if s != 0 {
			return false
		}
	}
	return true
}

// MarshalTo encodes the frame into buf as little-endian PCM.
// Returns the number of bytes written, or 0 if buf is too small.
func (f *Frame) MarshalTo(buf []byte) int {
	if len(buf) < FrameBytes {
		return 0
	}
	for i, s := range f {
		binary.LittleEndian.PutUint16(buf[i*BytesPerSample:], uint16(s))
	}
	return FrameBytes
}

// ParseFrame decodes one frame from the start of data.
// Returns false if data is shorter than FrameBytes.
func ParseFrame(data []byte, out *Frame) bool {
	if len(data) < FrameBytes {
		return false
	}
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*BytesPerSample:]))
	}
	return true
}

// FrameCount returns how many whole frames fit in n bytes, or
// pkg.ErrFrameSize if n is not a multiple of FrameBytes.
func FrameCount(n int) (int, error) {
	if n%FrameBytes != 0 {
		return n / FrameBytes, pkg.ErrFrameSize
	}
	return n / FrameBytes, nil
}
