package config

import (
	"sync"

	"github.com/ardnew/soundbooster/audio"
	"github.com/ardnew/soundbooster/pkg"
)

// Configuration is the process-wide pipeline state: the DSP parameters
// written by the control plane and the telemetry counters written by the
// audio plane. Counters wrap at 2^32.
type Configuration struct {
	Gain      audio.Gain
	Muted     bool
	Underruns uint32
	Overruns  uint32
	Dropped   uint32
}

// Default returns the boot-time configuration: unity gain, unmuted,
// zeroed counters.
func Default() Configuration {
	return Configuration{Gain: audio.GainUnity}
}

// Shared owns the single Configuration instance.
//
// All access goes through a scoped acquisition of one mutex, so multi-field
// updates are never observed half-applied. Callers copy what they need and
// release before suspending; no callback passed to Update may block.
type Shared struct {
	mutex sync.Mutex
	state Configuration
}

// NewShared creates the shared state initialized to Default.
func NewShared() *Shared {
	return &Shared{state: Default()}
}

// Update runs fn with exclusive access to the configuration.
func (s *Shared) Update(fn func(*Configuration)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	fn(&s.state)
}

// Snapshot returns a consistent copy of the configuration.
func (s *Shared) Snapshot() Configuration {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Reset restores the configuration to Default.
func (s *Shared) Reset() {
	s.mutex.Lock()
	s.state = Default()
	s.mutex.Unlock()
	pkg.LogDebug(pkg.ComponentConfig, "configuration reset")
}

// SetGain sets the gain and returns the resulting configuration.
func (s *Shared) SetGain(g audio.Gain) Configuration {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.state.Gain = g
	return s.state
}

// SetMuted sets the mute flag and returns the resulting configuration.
func (s *Shared) SetMuted(muted bool) Configuration {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.state.Muted = muted
	return s.state
}

// ClearCounters zeroes the telemetry counters, keeping gain and mute.
func (s *Shared) ClearCounters() Configuration {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.state.Underruns = 0
	s.state.Overruns = 0
	s.state.Dropped = 0
	return s.state
}

// AddUnderrun records one consumer starvation.
func (s *Shared) AddUnderrun() {
	s.mutex.Lock()
	s.state.Underruns++
	s.mutex.Unlock()
}

// AddOverrun records one rejected push.
func (s *Shared) AddOverrun() {
	s.mutex.Lock()
	s.state.Overruns++
	s.mutex.Unlock()
}

// AddDropped records n frames lost on the USB path.
func (s *Shared) AddDropped(n uint32) {
	if n == 0 {
		return
	}
	s.mutex.Lock()
	s.state.Dropped += n
	s.mutex.Unlock()
}
