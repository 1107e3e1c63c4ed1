// Package memhal implements hal.DeviceHAL over in-process channels.
//
// It stands in for a controller in tests and loopback runs: the device side
// is driven by the usb stack while the test (or a simulated host goroutine)
// plays the host through HostWrite and HostRead. Attach and Detach model
// cable events.
package memhal

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ardnew/soundbooster/pkg"
	"github.com/ardnew/soundbooster/usb/hal"
)

// MaxEndpoints is the number of data endpoint numbers (1-15).
const MaxEndpoints = 15

// DefaultDepth is the per-endpoint packet queue depth.
const DefaultDepth = 8

// HAL is a channel-backed device HAL.
type HAL struct {
	out [MaxEndpoints]chan []byte // host to device
	in  [MaxEndpoints]chan []byte // device to host

	connected atomic.Bool
	connectCh chan struct{}
	disconnCh chan struct{}

	mutex     sync.Mutex
	initDone  bool
	closeCh   chan struct{}
	closeOnce sync.Once
	endpoints []hal.EndpointConfig
}

// New creates a HAL whose endpoint queues hold depth packets each.
func New(depth int) *HAL {
	if depth <= 0 {
		depth = DefaultDepth
	}
	h := &HAL{
		connectCh: make(chan struct{}, 1),
		disconnCh: make(chan struct{}, 1),
		closeCh:   make(chan struct{}),
	}
	for i := range h.out {
		h.out[i] = make(chan []byte, depth)
		h.in[i] = make(chan []byte, depth)
	}
	return h
}

// Init implements hal.DeviceHAL.
func (h *HAL) Init(ctx context.Context) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.initDone {
		return pkg.ErrAlreadyRunning
	}
	h.initDone = true
	return ctx.Err()
}

// Start attaches the device.
func (h *HAL) Start() error {
	h.mutex.Lock()
	ok := h.initDone
	h.mutex.Unlock()
	if !ok {
		return pkg.ErrNotConfigured
	}
	h.Attach()
	return nil
}

// Stop detaches the device and unblocks all pending I/O.
func (h *HAL) Stop() error {
	h.Detach()
	h.closeOnce.Do(func() { close(h.closeCh) })
	return nil
}

// Attach simulates a host plugging in.
func (h *HAL) Attach() {
	h.connected.Store(true)
	select {
	case h.connectCh <- struct{}{}:
	default:
	}
}

// Detach simulates the cable being pulled.
func (h *HAL) Detach() {
	h.connected.Store(false)
	select {
	case h.disconnCh <- struct{}{}:
	default:
	}
}

// ConfigureEndpoints records the active endpoint set.
func (h *HAL) ConfigureEndpoints(endpoints []hal.EndpointConfig) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.endpoints = append(h.endpoints[:0], endpoints...)
	return nil
}

// Endpoints returns the active endpoint set.
func (h *HAL) Endpoints() []hal.EndpointConfig {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return append([]hal.EndpointConfig(nil), h.endpoints...)
}

func queueIndex(address uint8) (int, error) {
	num := address & 0x0F
	if num == 0 || num > MaxEndpoints {
		return 0, pkg.ErrInvalidEndpoint
	}
	return int(num - 1), nil
}

// Read waits for the next OUT packet.
func (h *HAL) Read(ctx context.Context, address uint8, buf []byte) (int, error) {
	idx, err := queueIndex(address)
	if err != nil {
		return 0, err
	}
	select {
	case p := <-h.out[idx]:
		if len(p) > len(buf) {
			return 0, pkg.ErrBufferTooSmall
		}
		return copy(buf, p), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-h.closeCh:
		return 0, pkg.ErrCancelled
	}
}

// Write queues one IN packet, waiting while the host is not reading.
func (h *HAL) Write(ctx context.Context, address uint8, data []byte) (int, error) {
	idx, err := queueIndex(address)
	if err != nil {
		return 0, err
	}
	p := append([]byte(nil), data...)
	select {
	case h.in[idx] <- p:
		return len(p), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-h.closeCh:
		return 0, pkg.ErrCancelled
	}
}

// HostWrite sends an OUT packet as the host.
func (h *HAL) HostWrite(ctx context.Context, address uint8, data []byte) error {
	idx, err := queueIndex(address)
	if err != nil {
		return err
	}
	p := append([]byte(nil), data...)
	select {
	case h.out[idx] <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HostRead receives an IN packet as the host.
func (h *HAL) HostRead(ctx context.Context, address uint8, buf []byte) (int, error) {
	idx, err := queueIndex(address)
	if err != nil {
		return 0, err
	}
	select {
	case p := <-h.in[idx]:
		return copy(buf, p), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// IsConnected implements hal.DeviceHAL.
func (h *HAL) IsConnected() bool {
	return h.connected.Load()
}

// GetSpeed implements hal.DeviceHAL.
func (h *HAL) GetSpeed() hal.Speed {
	if !h.IsConnected() {
		return hal.SpeedUnknown
	}
	return hal.SpeedFull
}

// WaitConnect implements hal.DeviceHAL.
func (h *HAL) WaitConnect(ctx context.Context) error {
	if h.IsConnected() {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.connectCh:
		return nil
	case <-h.closeCh:
		return pkg.ErrCancelled
	}
}

// WaitDisconnect implements hal.DeviceHAL.
func (h *HAL) WaitDisconnect(ctx context.Context) error {
	if !h.IsConnected() {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.disconnCh:
		return nil
	case <-h.closeCh:
		return pkg.ErrCancelled
	}
}

var _ hal.DeviceHAL = (*HAL)(nil)
