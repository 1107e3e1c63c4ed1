package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/soundbooster/audio"
)

func TestNewSharedDefaults(t *testing.T) {
	s := NewShared()
	snap := s.Snapshot()
	assert.Equal(t, audio.GainUnity, snap.Gain)
	assert.False(t, snap.Muted)
	assert.Zero(t, snap.Underruns)
	assert.Zero(t, snap.Overruns)
	assert.Zero(t, snap.Dropped)
}

func TestSetGainIdempotent(t *testing.T) {
	once := NewShared()
	once.SetGain(2 * audio.GainUnity)

	twice := NewShared()
	twice.SetGain(2 * audio.GainUnity)
	twice.SetGain(2 * audio.GainUnity)

	assert.Equal(t, once.Snapshot(), twice.Snapshot())
}

func TestCounters(t *testing.T) {
	s := NewShared()
	s.AddUnderrun()
	s.AddUnderrun()
	s.AddOverrun()
	s.AddDropped(3)
	s.AddDropped(0)

	snap := s.Snapshot()
	assert.Equal(t, uint32(2), snap.Underruns)
	assert.Equal(t, uint32(1), snap.Overruns)
	assert.Equal(t, uint32(3), snap.Dropped)

	s.SetMuted(true)
	cleared := s.ClearCounters()
	assert.Zero(t, cleared.Underruns)
	assert.Zero(t, cleared.Overruns)
	assert.Zero(t, cleared.Dropped)
	assert.True(t, cleared.Muted, "clearing counters keeps mute")
}

func TestReset(t *testing.T) {
	s := NewShared()
	s.Update(func(c *Configuration) {
		c.Gain = audio.GainMax
		c.Muted = true
		c.Overruns = 9
	})
	s.Reset()
	assert.Equal(t, Default(), s.Snapshot())
}

// Writers always set Gain and Muted together; a reader must never see one
// without the other.
func TestUpdateNeverTorn(t *testing.T) {
	s := NewShared()
	loud := Configuration{Gain: audio.GainMax, Muted: true}
	quiet := Configuration{Gain: audio.GainUnity, Muted: false}

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			next := quiet
			if i%2 == 0 {
				next = loud
			}
			s.Update(func(c *Configuration) {
				c.Gain = next.Gain
				c.Muted = next.Muted
			})
		}
	}()

	for i := 0; i < 20000; i++ {
		snap := s.Snapshot()
		require.Equal(t, snap.Gain == audio.GainMax, snap.Muted, "torn snapshot %+v", snap)
	}
	close(done)
	wg.Wait()
}
