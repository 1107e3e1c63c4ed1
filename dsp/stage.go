package dsp

import (
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/ardnew/soundbooster/audio"
	"github.com/ardnew/soundbooster/config"
	"github.com/ardnew/soundbooster/pkg"
)

// MaxCatchUp bounds how many quanta one Poll may process after the executor
// fell behind. Anything older is skipped; the output ring cannot hold more.
const MaxCatchUp = audio.DefaultRingFrames

// Output receives processed frames. Push must not block.
type Output interface {
	Push(f audio.Frame) error
}

// Stats reports lifetime stage counters.
type Stats struct {
	Frames     uint64 // quanta processed
	Silent     uint64 // quanta that emitted silence (underrun or mute)
	Clipped    uint64 // samples that saturated
	Skipped    uint64 // quanta skipped after falling behind
	OutFailed  uint64 // frames rejected by the output
	SinkFailed uint64 // frames rejected by the playback sink
}

// Stage is the gain/boost DSP task.
//
// Each quantum pops one frame from the input ring, scales it by the current
// gain, and pushes the result downstream. An empty input emits silence and
// counts an underrun; while muted the input is consumed and silence is
// emitted. The stage never waits, so output cadence stays constant.
type Stage struct {
	in     *audio.Ring
	out    Output
	sink   Output
	cfg    *config.Shared
	period time.Duration

	next    time.Time
	scratch audio.Frame
	result  audio.Frame
	stats   Stats

	warn rate.Sometimes
}

// NewStage creates a DSP stage running one quantum per period.
func NewStage(in *audio.Ring, out Output, cfg *config.Shared, period time.Duration) *Stage {
	if period <= 0 {
		period = audio.FramePeriodMicros * time.Microsecond
	}
	return &Stage{
		in:     in,
		out:    out,
		cfg:    cfg,
		period: period,
		warn:   rate.Sometimes{Interval: time.Second},
	}
}

// SetSink adds a playback sink fed alongside the output. Sink rejections
// are counted apart from output overruns. Call before the first Poll.
func (s *Stage) SetSink(o Output) {
	s.sink = o
}

// Period returns the quantum length.
func (s *Stage) Period() time.Duration {
	return s.period
}

// Poll runs one Step per period elapsed since the last poll.
func (s *Stage) Poll(now time.Time) {
	if s.next.IsZero() {
		s.next = now
	}
	n := 0
	for !now.Before(s.next) {
		if n == MaxCatchUp {
			behind := now.Sub(s.next)/s.period + 1
			s.stats.Skipped += uint64(behind)
			s.next = s.next.Add(behind * s.period)
			s.warn.Do(func() {
				pkg.LogWarn(pkg.ComponentDSP, "stage fell behind", "skipped", int64(behind))
			})
			break
		}
		s.Step()
		s.next = s.next.Add(s.period)
		n++
	}
}

// Step processes exactly one quantum.
func (s *Stage) Step() {
	// Copy the parameters and release before touching audio.
	snap := s.cfg.Snapshot()
	s.stats.Frames++

	if !s.in.PopInto(&s.scratch) {
		s.cfg.AddUnderrun()
		s.stats.Silent++
		s.emit(&audio.Silence)
		s.warn.Do(func() {
			pkg.LogWarn(pkg.ComponentDSP, "input underrun", "underruns", snap.Underruns+1)
		})
		return
	}

	if snap.Muted {
		s.stats.Silent++
		s.emit(&audio.Silence)
		return
	}

	s.stats.Clipped += uint64(Apply(&s.result, &s.scratch, snap.Gain))
	s.emit(&s.result)
}

func (s *Stage) emit(f *audio.Frame) {
	if s.out != nil {
		if err := s.out.Push(*f); err != nil {
			s.stats.OutFailed++
			if errors.Is(err, pkg.ErrOverrun) {
				s.cfg.AddOverrun()
			}
		}
	}
	if s.sink != nil {
		if err := s.sink.Push(*f); err != nil {
			s.stats.SinkFailed++
		}
	}
}

// Tee fans one frame out to several outputs. Every output is attempted;
// the first error is returned.
type Tee []Output

// Push implements Output.
func (t Tee) Push(f audio.Frame) error {
	var first error
	for _, o := range t {
		if err := o.Push(f); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Stats returns the stage counters. Call from the executor goroutine.
func (s *Stage) Stats() Stats {
	return s.stats
}
