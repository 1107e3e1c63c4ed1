// Package wavfile reads and writes booster frames as RIFF/WAVE files.
//
// Files are 16-bit PCM. The reader accepts mono or stereo input and expands
// mono to both channels; it does not resample, so the caller decides what
// to do with a file whose rate differs from audio.SampleRate.
package wavfile

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ardnew/soundbooster/audio"
	"github.com/ardnew/soundbooster/pkg"
)

// ErrUnsupported is returned for WAV files the booster cannot stream.
var ErrUnsupported = errors.New("unsupported wav format")

const pcmFormat = 1

// Reader decodes a WAV stream into frames.
type Reader struct {
	dec      *wav.Decoder
	buf      *goaudio.IntBuffer
	channels int
	rate     int
	frames   uint64
}

// NewReader validates the WAV header and prepares to decode frames.
func NewReader(r io.ReadSeeker) (*Reader, error) {
	dec := wav.NewDecoder(r)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav file", ErrUnsupported)
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("%w: %d-bit samples", ErrUnsupported, dec.BitDepth)
	}
	ch := int(dec.NumChans)
	if ch != 1 && ch != audio.Channels {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupported, ch)
	}
	if int(dec.SampleRate) != audio.SampleRate {
		pkg.LogWarn(pkg.ComponentSink, "wav sample rate differs from stream rate",
			"file", dec.SampleRate, "stream", audio.SampleRate)
	}

	// One frame's worth of samples per read.
	n := audio.FrameSamples / audio.Channels * ch
	return &Reader{
		dec: dec,
		buf: &goaudio.IntBuffer{
			Data:   make([]int, n),
			Format: &goaudio.Format{NumChannels: ch, SampleRate: int(dec.SampleRate)},
		},
		channels: ch,
		rate:     int(dec.SampleRate),
	}, nil
}

// SampleRate returns the file's sample rate.
func (r *Reader) SampleRate() int { return r.rate }

// Channels returns the file's channel count.
func (r *Reader) Channels() int { return r.channels }

// Frames returns how many frames have been read.
func (r *Reader) Frames() uint64 { return r.frames }

// ReadFrame decodes the next frame into f. A short final frame is padded
// with silence. Returns io.EOF once the data chunk is exhausted.
func (r *Reader) ReadFrame(f *audio.Frame) error {
	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode wav: %w", err)
	}
	if n == 0 {
		return io.EOF
	}

	*f = audio.Silence
	data := r.buf.Data[:n]
	if r.channels == 1 {
		for i, s := range data {
			v := clamp(s)
			f[2*i] = v
			f[2*i+1] = v
		}
	} else {
		for i, s := range data {
			f[i] = clamp(s)
		}
	}
	r.frames++
	return nil
}

func clamp(s int) int16 {
	switch {
	case s > audio.SampleMax:
		return audio.SampleMax
	case s < audio.SampleMin:
		return audio.SampleMin
	}
	return int16(s)
}

// Writer encodes frames as a 16-bit stereo WAV stream at audio.SampleRate.
// The header sizes are patched on Close, so the destination must seek.
type Writer struct {
	enc    *wav.Encoder
	buf    *goaudio.IntBuffer
	frames uint64
}

// NewWriter starts a WAV stream on w.
func NewWriter(w io.WriteSeeker) *Writer {
	return &Writer{
		enc: wav.NewEncoder(w, audio.SampleRate, 16, audio.Channels, pcmFormat),
		buf: &goaudio.IntBuffer{
			Data:           make([]int, audio.FrameSamples),
			Format:         &goaudio.Format{NumChannels: audio.Channels, SampleRate: audio.SampleRate},
			SourceBitDepth: 16,
		},
	}
}

// WriteFrame appends one frame.
func (w *Writer) WriteFrame(f audio.Frame) error {
	for i, s := range f {
		w.buf.Data[i] = int(s)
	}
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	w.frames++
	return nil
}

// Frames returns how many frames have been written.
func (w *Writer) Frames() uint64 { return w.frames }

// Close finalizes the WAV header. It does not close the underlying writer.
func (w *Writer) Close() error {
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}
