package dsp

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/soundbooster/audio"
	"github.com/ardnew/soundbooster/config"
	"github.com/ardnew/soundbooster/pkg"
)

func ramp() audio.Frame {
	var f audio.Frame
	for i := range f {
		f[i] = int16(i*600 - 28000)
	}
	return f
}

func newStage(t *testing.T, ringFrames int) (*Stage, *audio.Ring, *audio.Ring, *config.Shared) {
	t.Helper()
	in := audio.NewRing(ringFrames)
	out := audio.NewRing(ringFrames)
	cfg := config.NewShared()
	return NewStage(in, out, cfg, time.Millisecond), in, out, cfg
}

func TestApplySample(t *testing.T) {
	tests := []struct {
		name string
		in   int16
		gain audio.Gain
		want int16
	}{
		{"unity", 1234, audio.GainUnity, 1234},
		{"double", 1000, 2 * audio.GainUnity, 2000},
		{"half rounds", 3, audio.GainUnity / 2, 2},
		{"negative half", -3, audio.GainUnity / 2, -1},
		{"saturate high", 20000, 2 * audio.GainUnity, audio.SampleMax},
		{"saturate low", -20000, 2 * audio.GainUnity, audio.SampleMin},
		{"max gain extreme", audio.SampleMin, audio.GainMax, audio.SampleMin},
		{"zero gain", 32000, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplySample(tt.in, tt.gain))
		})
	}
}

// For any sample and any gain >= 1, output magnitude never exceeds the
// representable range and never flips sign.
func TestSaturationProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 100000; i++ {
		s := int16(rng.Intn(1<<16) - 1<<15)
		g := audio.GainUnity + audio.Gain(rng.Int63n(int64(audio.GainMax-audio.GainUnity)+1))
		v := ApplySample(s, g)
		require.GreaterOrEqual(t, int(v), audio.SampleMin)
		require.LessOrEqual(t, int(v), audio.SampleMax)
		if s > 0 {
			require.GreaterOrEqual(t, v, s, "s=%d g=%s", s, g)
		}
		if s < 0 {
			require.LessOrEqual(t, v, s, "s=%d g=%s", s, g)
		}
	}
}

func TestApplyCountsClipping(t *testing.T) {
	src := ramp()
	orig := src
	var dst audio.Frame
	clipped := Apply(&dst, &src, audio.GainMax)
	assert.Positive(t, clipped)
	assert.Equal(t, orig, src, "source untouched")

	assert.Zero(t, Apply(&dst, &src, audio.GainUnity))
	assert.Equal(t, src, dst)
}

func TestStepAppliesGain(t *testing.T) {
	s, in, out, cfg := newStage(t, 4)
	cfg.SetGain(2 * audio.GainUnity)

	var f audio.Frame
	for i := range f {
		f[i] = int16(i)
	}
	require.NoError(t, in.Push(f))

	s.Step()
	got, ok := out.Pop()
	require.True(t, ok)
	for i := range got {
		assert.Equal(t, int16(2*i), got[i])
	}
	assert.Zero(t, cfg.Snapshot().Underruns)
}

func TestMuteEmitsSilence(t *testing.T) {
	s, in, out, cfg := newStage(t, 8)
	cfg.SetMuted(true)
	cfg.SetGain(audio.GainMax)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 4; i++ {
		var f audio.Frame
		for j := range f {
			f[j] = int16(rng.Intn(1<<16) - 1<<15)
		}
		require.NoError(t, in.Push(f))
		s.Step()
		got, ok := out.Pop()
		require.True(t, ok)
		assert.True(t, got.IsSilent())
	}
	assert.Zero(t, in.Len(), "muted stage still consumes input")
	assert.Zero(t, cfg.Snapshot().Underruns)
}

func TestUnderrunAccounting(t *testing.T) {
	s, _, out, cfg := newStage(t, 4)

	before := cfg.Snapshot().Underruns
	s.Step()
	assert.Equal(t, before+1, cfg.Snapshot().Underruns)

	got, ok := out.Pop()
	require.True(t, ok, "underrun still produces output")
	assert.True(t, got.IsSilent())
	assert.Equal(t, uint64(1), s.Stats().Silent)
}

func TestOutputOverrunCounted(t *testing.T) {
	s, in, _, cfg := newStage(t, 2)
	for i := 0; i < 3; i++ {
		require.NoError(t, in.Push(ramp()))
		s.Step()
	}
	assert.Equal(t, uint32(1), cfg.Snapshot().Overruns)
	assert.Equal(t, uint64(1), s.Stats().OutFailed)
}

func TestPollRunsOncePerPeriod(t *testing.T) {
	s, _, out, cfg := newStage(t, 16)
	start := time.Unix(1000, 0)

	s.Poll(start)
	assert.Equal(t, uint64(1), s.Stats().Frames)

	s.Poll(start.Add(500 * time.Microsecond))
	assert.Equal(t, uint64(1), s.Stats().Frames, "no new quantum yet")

	s.Poll(start.Add(3 * time.Millisecond))
	assert.Equal(t, uint64(4), s.Stats().Frames, "catches up elapsed quanta")
	assert.Equal(t, 4, out.Len())
	assert.Equal(t, uint32(4), cfg.Snapshot().Underruns)
}

func TestPollBoundsCatchUp(t *testing.T) {
	s, _, _, _ := newStage(t, 64)
	start := time.Unix(1000, 0)
	s.Poll(start)
	s.Poll(start.Add(time.Second))

	stats := s.Stats()
	assert.Equal(t, uint64(1+MaxCatchUp), stats.Frames)
	assert.Positive(t, stats.Skipped)

	// Schedule resumes in the future rather than replaying the backlog.
	s.Poll(start.Add(time.Second))
	assert.Equal(t, uint64(1+MaxCatchUp), s.Stats().Frames)
}

type failingOutput struct{ err error }

func (f failingOutput) Push(audio.Frame) error { return f.err }

func TestSinkCountedApart(t *testing.T) {
	tests := []struct {
		name         string
		outFrames    int
		sink         Output
		wantOverruns uint32
		wantSinkFail uint64
		wantSinkLen  int
	}{
		{"full output, healthy sink", 2, audio.NewRing(8), 1, 0, 3},
		{"healthy output, full sink", 8, failingOutput{pkg.ErrOverrun}, 0, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, in, _, cfg := newStage(t, tt.outFrames)
			s.SetSink(tt.sink)
			for i := 0; i < 3; i++ {
				require.NoError(t, in.Push(ramp()))
				s.Step()
			}
			assert.Equal(t, tt.wantOverruns, cfg.Snapshot().Overruns)
			assert.Equal(t, tt.wantSinkFail, s.Stats().SinkFailed)
			if r, ok := tt.sink.(*audio.Ring); ok {
				assert.Equal(t, tt.wantSinkLen, r.Len(), "sink receives every frame")
			}
		})
	}
}

func TestTee(t *testing.T) {
	a := audio.NewRing(2)
	b := audio.NewRing(2)
	tee := Tee{a, b}
	require.NoError(t, tee.Push(ramp()))
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())

	tee = Tee{failingOutput{pkg.ErrOverrun}, a}
	assert.ErrorIs(t, tee.Push(ramp()), pkg.ErrOverrun)
	assert.Equal(t, 2, a.Len(), "later outputs still receive the frame")
}
