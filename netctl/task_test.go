package netctl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/soundbooster/audio"
	"github.com/ardnew/soundbooster/config"
	"github.com/ardnew/soundbooster/sched"
)

var testMAC = net.HardwareAddr{0x02, 0x00, 0x5e, 0x10, 0x00, 0x01}

// fakeStack leases a fixed address (or fails) and binds every listener to
// loopback, recording the address the task asked for.
type fakeStack struct {
	lease      netip.Addr
	leaseErr   error
	leaseBlock bool
	leases     atomic.Int32
	listenFail func(netip.AddrPort) bool

	mutex    sync.Mutex
	listened []netip.AddrPort
}

func (f *fakeStack) Lease(ctx context.Context) (netip.Addr, error) {
	f.leases.Add(1)
	if f.leaseBlock {
		<-ctx.Done()
		return netip.Addr{}, ctx.Err()
	}
	if f.leaseErr != nil {
		return netip.Addr{}, f.leaseErr
	}
	return f.lease, nil
}

func (f *fakeStack) Listen(addr netip.AddrPort) (net.Listener, error) {
	f.mutex.Lock()
	f.listened = append(f.listened, addr)
	f.mutex.Unlock()
	if f.listenFail != nil && f.listenFail(addr) {
		return nil, fmt.Errorf("cannot assign %s", addr)
	}
	return net.Listen("tcp", "127.0.0.1:0")
}

func (f *fakeStack) HardwareAddr() net.HardwareAddr { return testMAC }

func testOptions() Options {
	return Options{
		Port:          0,
		DHCPTimeout:   50 * time.Millisecond,
		DHCPRetries:   2,
		DHCPBackoff:   time.Millisecond,
		AcceptRetries: 2,
	}
}

func runTask(t *testing.T, stack Stack) (*Task, *config.Shared) {
	t.Helper()
	cfg := config.NewShared()
	task := NewTask(stack, cfg, testOptions())

	ex := sched.New()
	w, err := ex.Spawn("net", task)
	require.NoError(t, err)
	task.Bind(w)

	ctx, cancel := context.WithCancel(context.Background())
	task.Start(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ex.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool { return task.State() == StateListening }, 2*time.Second, time.Millisecond)
	return task, cfg
}

func dial(t *testing.T, task *Task) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	addr := fmt.Sprintf("127.0.0.1:%d", task.Addr().Port())
	c, err := Dial(ctx, addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c *Client, line string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := c.Raw(ctx, line)
	require.NoError(t, err)
	return reply
}

func TestLeaseAndServe(t *testing.T) {
	stack := &fakeStack{lease: netip.MustParseAddr("10.0.0.5")}
	task, cfg := runTask(t, stack)

	assert.Equal(t, netip.MustParseAddr("10.0.0.5"), task.Addr().Addr())
	assert.False(t, task.Stats().LinkLocal)
	assert.Equal(t, int32(1), stack.leases.Load())

	c := dial(t, task)
	assert.Equal(t, "OK gain=2.000 mute=0 underruns=0 overruns=0 dropped=0", send(t, c, "GAIN 2.0"))
	assert.Equal(t, 2*audio.GainUnity, cfg.Snapshot().Gain)
	assert.Equal(t, StateConnected, task.State())

	assert.Equal(t, "OK gain=2.000 mute=1 underruns=0 overruns=0 dropped=0", send(t, c, "mute 1\r"))
	assert.True(t, cfg.Snapshot().Muted)

	cfg.AddUnderrun()
	assert.Equal(t, "OK gain=2.000 mute=1 underruns=1 overruns=0 dropped=0", send(t, c, "STATUS"))
	assert.Equal(t, "OK gain=2.000 mute=1 underruns=0 overruns=0 dropped=0", send(t, c, "RESET"))

	assert.Equal(t, "ERR invalid command", send(t, c, "PLAY"))
	assert.Equal(t, "ERR invalid gain", send(t, c, "GAIN 99"))
	assert.Equal(t, 2*audio.GainUnity, cfg.Snapshot().Gain, "rejected command changes nothing")

	stats := task.Stats()
	assert.Equal(t, uint64(4), stats.Commands)
	assert.Equal(t, uint64(2), stats.Errors)
}

func TestLongLineRejectedSessionSurvives(t *testing.T) {
	task, _ := runTask(t, &fakeStack{lease: netip.MustParseAddr("10.0.0.5")})
	c := dial(t, task)

	assert.Equal(t, "ERR line too long", send(t, c, "GAIN "+strings.Repeat("1", 2*MaxLineLength)))
	assert.True(t, strings.HasPrefix(send(t, c, "STATUS"), "OK "))
}

func TestLinkLocalFallback(t *testing.T) {
	stack := &fakeStack{leaseErr: errors.New("no offer")}
	task, _ := runTask(t, stack)

	assert.True(t, task.Stats().LinkLocal)
	assert.Equal(t, LinkLocal(testMAC), task.Addr().Addr())
	assert.Equal(t, int32(testOptions().DHCPRetries+1), stack.leases.Load())

	c := dial(t, task)
	assert.True(t, strings.HasPrefix(send(t, c, "STATUS"), "OK "), "fallback listener still serves")
}

func TestLeaseAttemptTimesOut(t *testing.T) {
	stack := &fakeStack{leaseBlock: true}
	start := time.Now()
	task, _ := runTask(t, stack)

	assert.True(t, task.Stats().LinkLocal)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int32(testOptions().DHCPRetries+1), stack.leases.Load())
}

func TestBindFallsBackToUnspecified(t *testing.T) {
	stack := &fakeStack{
		lease:      netip.MustParseAddr("10.0.0.5"),
		listenFail: func(a netip.AddrPort) bool { return !a.Addr().IsUnspecified() },
	}
	task, _ := runTask(t, stack)
	assert.True(t, task.Addr().Addr().IsUnspecified())

	stack.mutex.Lock()
	defer stack.mutex.Unlock()
	require.NotEmpty(t, stack.listened)
	assert.Equal(t, netip.MustParseAddr("10.0.0.5"), stack.listened[0].Addr())
}

func TestSecondClientBusy(t *testing.T) {
	task, _ := runTask(t, &fakeStack{lease: netip.MustParseAddr("10.0.0.5")})

	first := dial(t, task)
	send(t, first, "STATUS")

	second := dial(t, task)
	line, err := second.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "ERR busy", line)
	_, err = second.ReadLine()
	assert.Error(t, err, "refused client is disconnected")

	assert.True(t, strings.HasPrefix(send(t, first, "STATUS"), "OK "), "first client unaffected")
	assert.Equal(t, uint64(1), task.Stats().Refused)
}

func TestClientCloseReturnsToListening(t *testing.T) {
	task, _ := runTask(t, &fakeStack{lease: netip.MustParseAddr("10.0.0.5")})

	first := dial(t, task)
	send(t, first, "GAIN 3")
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return task.State() == StateListening }, time.Second, time.Millisecond)

	second := dial(t, task)
	reply, err := second.Do(context.Background(), Command{Kind: KindQueryStatus})
	require.NoError(t, err)
	assert.Equal(t, 3*audio.GainUnity, reply.Gain, "configuration outlives the session")
	assert.Equal(t, uint64(2), task.Stats().Sessions)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "unconfigured", StateUnconfigured.String())
	assert.Equal(t, "awaiting-lease", StateAwaitingLease.String())
	assert.Equal(t, "listening", StateListening.String())
	assert.Equal(t, "connected", StateConnected.String())
}
