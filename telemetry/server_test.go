package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/soundbooster/audio"
	"github.com/ardnew/soundbooster/config"
	"github.com/ardnew/soundbooster/netctl"
	"github.com/ardnew/soundbooster/usb/class/uac"
)

func fixedSource(calls *atomic.Int32) Source {
	return func() Status {
		if calls != nil {
			calls.Add(1)
		}
		cfg := config.Configuration{Gain: 2 * audio.GainUnity, Underruns: 3, Overruns: 1, Dropped: 4}
		s := NewStatus(cfg,
			uac.Stats{State: uac.StateStreaming, PacketsOut: 10, FramesIn: 9, FramesOut: 8, Starved: 6, Sessions: 1},
			netctl.Stats{
				State:    netctl.StateConnected,
				Address:  netip.MustParseAddrPort("169.254.7.9:7000"),
				Sessions: 2, Commands: 5,
				LinkLocal: true,
			})
		s.Rings = RingStatus{Input: 2, Output: 3, Capacity: 16}
		return s
	}
}

func newTestServer(t *testing.T, src Source, opts ...Option) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(src, opts...).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestNewStatus(t *testing.T) {
	s := fixedSource(nil)()
	assert.InDelta(t, 2.0, s.Gain, 1e-9)
	assert.Equal(t, "streaming", s.USB.State)
	assert.Equal(t, "connected", s.Network.State)
	assert.Equal(t, "169.254.7.9:7000", s.Network.Address)

	empty := NewStatus(config.Default(), uac.Stats{}, netctl.Stats{})
	assert.Empty(t, empty.Network.Address)
	assert.Equal(t, "idle", empty.USB.State)
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, fixedSource(nil))

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, fixedSource(nil)(), got)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, fixedSource(nil))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	for _, want := range []string{
		"booster_dsp_gain_ratio 2",
		"booster_dsp_muted 0",
		"booster_audio_underruns_total 3",
		"booster_audio_dropped_total 4",
		"booster_usb_streaming 1",
		"booster_usb_starved_packets_total 6",
		`booster_usb_frames_total{direction="in"} 9`,
		`booster_control_state{state="connected"} 1`,
		"booster_control_commands_total 5",
		`booster_audio_ring_frames{ring="output"} 3`,
		"go_goroutines",
	} {
		assert.Contains(t, text, want)
	}
}

func TestWebsocketStreams(t *testing.T) {
	var calls atomic.Int32
	ts := newTestServer(t, fixedSource(&calls), WithInterval(10*time.Millisecond))

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		var got Status
		conn.SetReadDeadline(time.Now().Add(time.Second))
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, "connected", got.Network.State)
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, fixedSource(nil))
	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeStopsWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(fixedSource(nil)).Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/status")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
