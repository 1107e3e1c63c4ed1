package fifo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ardnew/soundbooster/pkg"
	"github.com/ardnew/soundbooster/usb/hal"
)

// HAL implements hal.DeviceHAL using named pipes (FIFOs).
// Each device instance creates a unique subdirectory under the bus directory.
type HAL struct {
	busDir    string
	deviceDir string
	id        uuid.UUID

	connectionWrite *os.File

	// Data endpoint FIFOs (indexed by endpoint number 1-15)
	epInWrite [MaxEndpoints]*os.File
	epOutRead [MaxEndpoints]*os.File

	connected uint32

	endpoints     [MaxEndpoints * 2]hal.EndpointConfig
	endpointCount int

	mutex     sync.RWMutex
	initDone  bool
	connectCh chan struct{}
	disconnCh chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once

	// One scratch buffer per endpoint and direction; at most one transfer
	// per endpoint touches the pipe at a time.
	readMu   [MaxEndpoints]sync.Mutex
	writeMu  [MaxEndpoints]sync.Mutex
	readBuf  [MaxEndpoints][headerSize + MaxPacketSize]byte
	writeBuf [MaxEndpoints][headerSize + MaxPacketSize]byte
}

// New creates a FIFO-based device HAL rooted at busDir.
func New(busDir string) *HAL {
	return &HAL{
		busDir:    busDir,
		connectCh: make(chan struct{}, 1),
		disconnCh: make(chan struct{}, 1),
		closeCh:   make(chan struct{}),
	}
}

// Init creates busDir/device-<uuid>/ with the connection and endpoint pipes.
func (h *HAL) Init(ctx context.Context) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.initDone {
		return pkg.ErrAlreadyRunning
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("generate uuid: %w", err)
	}
	h.id = id
	h.deviceDir = filepath.Join(h.busDir, devicePrefix+id.String())

	if err := os.MkdirAll(h.deviceDir, 0o755); err != nil {
		return fmt.Errorf("create device dir: %w", err)
	}

	names := make([]string, 0, 1+2*MaxEndpoints)
	names = append(names, fifoConnection)
	for i := 1; i <= MaxEndpoints; i++ {
		names = append(names, epInName(i), epOutName(i))
	}
	for _, name := range names {
		if err := createFIFO(h.deviceDir, name); err != nil {
			h.cleanup()
			return err
		}
	}

	if h.connectionWrite, err = openFIFO(h.deviceDir, fifoConnection); err != nil {
		h.cleanup()
		return err
	}
	for i := 1; i <= MaxEndpoints; i++ {
		if h.epInWrite[i-1], err = openFIFO(h.deviceDir, epInName(i)); err != nil {
			h.cleanup()
			return err
		}
		if h.epOutRead[i-1], err = openFIFO(h.deviceDir, epOutName(i)); err != nil {
			h.cleanup()
			return err
		}
	}

	h.initDone = true
	pkg.LogInfo(pkg.ComponentHAL, "fifo device HAL initialized",
		"busDir", h.busDir,
		"deviceDir", h.deviceDir)
	return nil
}

// Start signals the host that the device is attached.
func (h *HAL) Start() error {
	h.mutex.RLock()
	ok := h.initDone
	conn := h.connectionWrite
	h.mutex.RUnlock()
	if !ok {
		return pkg.ErrNotConfigured
	}

	if _, err := conn.Write([]byte{sigConnect}); err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "failed to signal connection", "error", err)
	}
	atomic.StoreUint32(&h.connected, 1)
	select {
	case h.connectCh <- struct{}{}:
	default:
	}

	pkg.LogInfo(pkg.ComponentHAL, "fifo device HAL started")
	return nil
}

// Stop signals detach, closes every pipe and removes the device directory.
func (h *HAL) Stop() error {
	h.mutex.RLock()
	if h.connectionWrite != nil {
		_, _ = h.connectionWrite.Write([]byte{sigDisconnect})
	}
	h.mutex.RUnlock()

	atomic.StoreUint32(&h.connected, 0)
	select {
	case h.disconnCh <- struct{}{}:
	default:
	}
	h.closeOnce.Do(func() { close(h.closeCh) })

	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.cleanup()
	h.initDone = false
	pkg.LogInfo(pkg.ComponentHAL, "fifo device HAL stopped")
	return nil
}

func (h *HAL) cleanup() {
	if h.connectionWrite != nil {
		h.connectionWrite.Close()
		h.connectionWrite = nil
	}
	for i := 0; i < MaxEndpoints; i++ {
		if h.epInWrite[i] != nil {
			h.epInWrite[i].Close()
			h.epInWrite[i] = nil
		}
		if h.epOutRead[i] != nil {
			h.epOutRead[i].Close()
			h.epOutRead[i] = nil
		}
	}
	if h.deviceDir != "" {
		os.RemoveAll(h.deviceDir)
	}
}

// ConfigureEndpoints records which endpoints are active. The pipes
// themselves exist from Init onward.
func (h *HAL) ConfigureEndpoints(endpoints []hal.EndpointConfig) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.endpointCount = 0
	for _, ep := range endpoints {
		num := ep.Number()
		if num == 0 || num > MaxEndpoints {
			continue
		}
		if h.endpointCount >= len(h.endpoints) {
			break
		}
		h.endpoints[h.endpointCount] = ep
		h.endpointCount++
	}

	pkg.LogDebug(pkg.ComponentHAL, "endpoints configured", "count", h.endpointCount)
	return nil
}

// Read reads one DATA message from an OUT endpoint pipe.
func (h *HAL) Read(ctx context.Context, address uint8, buf []byte) (int, error) {
	num, err := endpointNumber(address)
	if err != nil {
		return 0, err
	}

	h.mutex.RLock()
	f := h.epOutRead[num-1]
	h.mutex.RUnlock()
	if f == nil {
		return 0, pkg.ErrNotConfigured
	}

	h.readMu[num-1].Lock()
	defer h.readMu[num-1].Unlock()
	return readMessage(ctx, h.closeCh, f, h.readBuf[num-1][:], buf)
}

// Write writes one DATA message to an IN endpoint pipe.
func (h *HAL) Write(ctx context.Context, address uint8, data []byte) (int, error) {
	num, err := endpointNumber(address)
	if err != nil {
		return 0, err
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-h.closeCh:
		return 0, pkg.ErrCancelled
	default:
	}

	h.mutex.RLock()
	f := h.epInWrite[num-1]
	h.mutex.RUnlock()
	if f == nil {
		return 0, pkg.ErrNotConfigured
	}

	h.writeMu[num-1].Lock()
	defer h.writeMu[num-1].Unlock()
	if err := writeMessage(ctx, h.closeCh, f, h.writeBuf[num-1][:], msgData, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

// IsConnected returns true if connected to a host.
func (h *HAL) IsConnected() bool {
	return atomic.LoadUint32(&h.connected) == 1
}

// GetSpeed returns full speed while connected.
func (h *HAL) GetSpeed() hal.Speed {
	if !h.IsConnected() {
		return hal.SpeedUnknown
	}
	return hal.SpeedFull
}

// WaitConnect blocks until connected or ctx is done.
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

// WaitDisconnect blocks until disconnected or ctx is done.
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

// DeviceDir returns the device subdirectory path.
func (h *HAL) DeviceDir() string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.deviceDir
}

// ID returns the device's unique identifier.
func (h *HAL) ID() uuid.UUID {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.id
}

var _ hal.DeviceHAL = (*HAL)(nil)
