package booster

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/soundbooster/audio"
	"github.com/ardnew/soundbooster/config"
	"github.com/ardnew/soundbooster/netctl"
	"github.com/ardnew/soundbooster/pkg"
	"github.com/ardnew/soundbooster/usb/class/uac"
	"github.com/ardnew/soundbooster/usb/hal/memhal"
)

// loopback leases 127.0.0.1 and binds an ephemeral port.
type loopback struct{}

func (loopback) Lease(context.Context) (netip.Addr, error) {
	return netip.MustParseAddr("127.0.0.1"), nil
}

func (loopback) Listen(netip.AddrPort) (net.Listener, error) {
	return net.Listen("tcp", "127.0.0.1:0")
}

func (loopback) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
}

type frameRecorder struct {
	mutex sync.Mutex
	n     int
}

func (r *frameRecorder) Push(audio.Frame) error {
	r.mutex.Lock()
	r.n++
	r.mutex.Unlock()
	return nil
}

func (r *frameRecorder) count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.n
}

type rig struct {
	b   *Booster
	hal *memhal.HAL
	rec *frameRecorder
}

func startRig(t *testing.T) *rig {
	t.Helper()
	h := memhal.New(memhal.DefaultDepth)
	rec := &frameRecorder{}
	b, err := New(Options{
		Settings: config.DefaultSettings(),
		HAL:      h,
		Net:      loopback{},
		Sink:     rec,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(3 * time.Second):
			t.Error("booster did not stop")
		}
	})
	return &rig{b: b, hal: h, rec: rec}
}

func (r *rig) dial(t *testing.T) *netctl.Client {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.b.ControlState() == netctl.StateListening
	}, 2*time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := netctl.Dial(ctx, r.b.ControlAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func (r *rig) attach(t *testing.T) {
	t.Helper()
	r.hal.Attach()
	require.Eventually(t, func() bool {
		return r.b.StreamState() == uac.StateStreaming
	}, 2*time.Second, time.Millisecond)
}

func constant(v int16) []byte {
	var f audio.Frame
	for i := range f {
		f[i] = v
	}
	buf := make([]byte, audio.FrameBytes)
	f.MarshalTo(buf)
	return buf
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Options{Settings: config.DefaultSettings()})
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)

	bad := config.DefaultSettings()
	bad.Audio.RingFrames = 0
	_, err = New(Options{Settings: bad, HAL: memhal.New(1), Net: loopback{}})
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
}

func TestBoostEndToEnd(t *testing.T) {
	r := startRig(t)
	r.attach(t)
	c := r.dial(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := c.Do(ctx, netctl.Command{Kind: netctl.KindSetGain, Gain: 3 * audio.GainUnity})
	require.NoError(t, err)
	assert.Equal(t, 3*audio.GainUnity, cfg.Gain)

	// Feed the host side and look for boosted audio on the IN endpoint.
	go func() {
		for i := 0; i < 200 && ctx.Err() == nil; i++ {
			if r.hal.HostWrite(ctx, 0x01, constant(1000)) != nil {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	buf := make([]byte, audio.FrameBytes)
	found := false
	for i := 0; i < 500 && !found; i++ {
		n, err := r.hal.HostRead(ctx, 0x81, buf)
		require.NoError(t, err)
		var f audio.Frame
		require.True(t, audio.ParseFrame(buf[:n], &f))
		found = f[0] == 3000 && f[audio.FrameSamples-1] == 3000
	}
	assert.True(t, found, "boosted frame reached the host")
	assert.Positive(t, r.rec.count(), "sink saw processed frames")
}

func TestMuteAndStatus(t *testing.T) {
	r := startRig(t)
	r.attach(t)
	c := r.dial(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := c.Do(ctx, netctl.Command{Kind: netctl.KindSetMute, Mute: true})
	require.NoError(t, err)
	assert.True(t, cfg.Muted)

	// No host audio: the DSP stage has been underrunning.
	require.Eventually(t, func() bool {
		return r.b.Config().Snapshot().Underruns > 0
	}, 2*time.Second, time.Millisecond)

	cfg, err = c.Do(ctx, netctl.Command{Kind: netctl.KindResetCounters})
	require.NoError(t, err)
	assert.True(t, cfg.Muted, "reset keeps parameters")

	st := r.b.Status()
	assert.True(t, st.Muted)
	assert.Equal(t, "streaming", st.USB.State)
	assert.Equal(t, "connected", st.Network.State)
	assert.Equal(t, config.DefaultSettings().Audio.RingFrames, st.Rings.Capacity)
}

func TestReattachResetsConfiguration(t *testing.T) {
	r := startRig(t)
	r.attach(t)
	r.b.Config().SetGain(4 * audio.GainUnity)

	r.hal.Detach()
	require.Eventually(t, func() bool {
		return r.b.StreamState() == uac.StateIdle
	}, 2*time.Second, time.Millisecond)

	r.attach(t)
	assert.Equal(t, audio.GainUnity, r.b.Config().Snapshot().Gain)
}
