package wavfile

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/soundbooster/audio"
)

func sweep(seed int) audio.Frame {
	var f audio.Frame
	for i := range f {
		f[i] = int16((i+seed)*331%60000 - 30000)
	}
	return f
}

func TestWriterReaderStereo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	out, err := os.Create(path)
	require.NoError(t, err)

	w := NewWriter(out)
	want := []audio.Frame{sweep(0), sweep(7), audio.Silence}
	for _, f := range want {
		require.NoError(t, w.WriteFrame(f))
	}
	require.NoError(t, w.Close())
	require.NoError(t, out.Close())
	assert.Equal(t, uint64(3), w.Frames())

	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()

	r, err := NewReader(in)
	require.NoError(t, err)
	assert.Equal(t, audio.SampleRate, r.SampleRate())
	assert.Equal(t, audio.Channels, r.Channels())

	for i, exp := range want {
		var got audio.Frame
		require.NoError(t, r.ReadFrame(&got), "frame %d", i)
		assert.Equal(t, exp, got, "frame %d", i)
	}
	var f audio.Frame
	assert.ErrorIs(t, r.ReadFrame(&f), io.EOF)
	assert.Equal(t, uint64(3), r.Frames())
}

func writeRaw(t *testing.T, channels, bits int, samples []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.wav")
	out, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(out, audio.SampleRate, bits, channels, pcmFormat)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Data:           samples,
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: audio.SampleRate},
		SourceBitDepth: bits,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, out.Close())
	return path
}

func TestMonoExpandsAndPads(t *testing.T) {
	// One and a half frames of mono input.
	perFrame := audio.FrameSamples / audio.Channels
	samples := make([]int, perFrame+perFrame/2)
	for i := range samples {
		samples[i] = i + 1
	}
	in, err := os.Open(writeRaw(t, 1, 16, samples))
	require.NoError(t, err)
	defer in.Close()

	r, err := NewReader(in)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Channels())

	var f audio.Frame
	require.NoError(t, r.ReadFrame(&f))
	assert.Equal(t, int16(1), f[0])
	assert.Equal(t, int16(1), f[1])
	assert.Equal(t, int16(perFrame), f[audio.FrameSamples-1])

	require.NoError(t, r.ReadFrame(&f))
	assert.Equal(t, int16(perFrame+1), f[0])
	assert.Zero(t, f[audio.FrameSamples-1], "short frame padded with silence")

	assert.ErrorIs(t, r.ReadFrame(&f), io.EOF)
}

func TestRejectsUnsupported(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		bits     int
	}{
		{"8-bit", 2, 8},
		{"quad", 4, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := os.Open(writeRaw(t, tt.channels, tt.bits, make([]int, 64)))
			require.NoError(t, err)
			defer in.Close()
			_, err = NewReader(in)
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}

	path := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a riff file at all"), 0o644))
	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()
	_, err = NewReader(in)
	assert.ErrorIs(t, err, ErrUnsupported)
}
