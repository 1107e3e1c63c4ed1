//go:build oto

package otosink

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/ardnew/soundbooster/audio"
	"github.com/ardnew/soundbooster/pkg"
)

// bufferTime is the driver-side latency requested from oto.
const bufferTime = 20 * time.Millisecond

// Player plays boosted audio on the host's default output device.
type Player struct {
	*Stream

	ctx     *oto.Context
	player  *oto.Player
	started bool
	mutex   sync.Mutex
}

// New opens the audio device. Only one oto context may exist per process.
func New(frames int) (*Player, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   audio.SampleRate,
		ChannelCount: audio.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferTime,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	p := &Player{Stream: NewStream(frames), ctx: ctx}
	p.player = ctx.NewPlayer(p.Stream)
	return p, nil
}

// Start begins playback.
func (p *Player) Start() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.started {
		p.player.Play()
		p.started = true
		pkg.LogInfo(pkg.ComponentSink, "speaker playback started")
	}
}

// Close stops playback and releases the player.
func (p *Player) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.player == nil {
		return nil
	}
	err := p.player.Close()
	p.player = nil
	p.started = false
	pkg.LogInfo(pkg.ComponentSink, "speaker playback stopped", "starved", p.Starved())
	return err
}
