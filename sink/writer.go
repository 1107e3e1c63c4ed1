package sink

import (
	"fmt"
	"io"
	"os"

	"github.com/ardnew/soundbooster/audio"
	"github.com/ardnew/soundbooster/audio/wavfile"
)

// Raw writes frames as little-endian PCM to an io.Writer.
type Raw struct {
	w   io.Writer
	buf [audio.FrameBytes]byte
}

// NewRaw wraps w.
func NewRaw(w io.Writer) *Raw {
	return &Raw{w: w}
}

// WriteFrame implements FrameWriter.
func (r *Raw) WriteFrame(f audio.Frame) error {
	n := f.MarshalTo(r.buf[:])
	_, err := r.w.Write(r.buf[:n])
	return err
}

// WAVFile records frames to a WAV file on disk.
type WAVFile struct {
	f *os.File
	*wavfile.Writer
}

// CreateWAV creates (or truncates) path and starts a WAV stream in it.
func CreateWAV(path string) (*WAVFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav sink: %w", err)
	}
	return &WAVFile{f: f, Writer: wavfile.NewWriter(f)}, nil
}

// Close finalizes the header and closes the file.
func (w *WAVFile) Close() error {
	err := w.Writer.Close()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	return err
}
