package usb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ardnew/soundbooster/pkg"
	"github.com/ardnew/soundbooster/usb/hal"
)

// MaxEndpointAddresses is the number of possible endpoint addresses (0x00-0x0F IN and OUT).
const MaxEndpointAddresses = 32

// MaxPendingTransfersPerEndpoint bounds in-flight transfers per endpoint.
const MaxPendingTransfersPerEndpoint = 4

// Stack owns the device HAL and the in-flight transfers of the audio function.
//
// Link monitoring and transfer I/O run on their own goroutines. Callbacks
// registered with SetOnConnect, SetOnDisconnect and Transfer.Callback run
// there too and must only record events and wake the owning task.
type Stack struct {
	hal hal.DeviceHAL

	running    bool
	configured bool
	endpoints  [MaxEndpointAddresses]*Endpoint
	mutex      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Address 0x00-0x0F = indices 0-15, 0x80-0x8F = indices 16-31
	pendingTransfers      [MaxEndpointAddresses][MaxPendingTransfersPerEndpoint]*Transfer
	pendingTransferCounts [MaxEndpointAddresses]int
	transferMutex         sync.Mutex

	onConnect    func()
	onDisconnect func()
}

// endpointIndex converts an endpoint address to an array index.
func endpointIndex(addr uint8) int {
	if addr&0x80 != 0 {
		return int(addr&0x0F) + 16
	}
	return int(addr & 0x0F)
}

// NewStack creates a stack over the given HAL.
func NewStack(h hal.DeviceHAL) *Stack {
	return &Stack{hal: h}
}

// Start initializes the HAL, attaches to the bus and begins monitoring the
// link.
func (s *Stack) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return pkg.ErrAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mutex.Unlock()

	if err := s.hal.Init(s.ctx); err != nil {
		return fmt.Errorf("hal init: %w", err)
	}
	if err := s.hal.Start(); err != nil {
		return fmt.Errorf("hal start: %w", err)
	}

	s.mutex.Lock()
	s.running = true
	s.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentUSB, "stack started", "speed", s.hal.GetSpeed())

	go s.monitor()
	return nil
}

// Stop cancels all transfers and detaches from the bus.
func (s *Stack) Stop() error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil
	}
	s.running = false
	s.configured = false
	s.cancel()
	done := s.done
	s.mutex.Unlock()

	s.CancelAll()
	err := s.hal.Stop()
	<-done

	pkg.LogDebug(pkg.ComponentUSB, "stack stopped")
	return err
}

// IsRunning returns true if the stack is running.
func (s *Stack) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// IsConfigured returns true if endpoints are armed for the current link.
func (s *Stack) IsConfigured() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.configured
}

// monitor turns HAL link transitions into callbacks.
func (s *Stack) monitor() {
	defer close(s.done)
	for {
		if err := s.hal.WaitConnect(s.ctx); err != nil {
			return
		}
		if !s.hal.IsConnected() {
			// Stale wake from an earlier attach.
			continue
		}
		pkg.LogInfo(pkg.ComponentUSB, "host attached", "speed", s.hal.GetSpeed())
		s.callback(&s.onConnect)

		if err := s.hal.WaitDisconnect(s.ctx); err != nil {
			return
		}
		pkg.LogInfo(pkg.ComponentUSB, "host detached")
		s.unconfigure()
		s.callback(&s.onDisconnect)
	}
}

func (s *Stack) callback(slot *func()) {
	s.mutex.RLock()
	cb := *slot
	s.mutex.RUnlock()
	if cb != nil {
		cb()
	}
}

// Configure arms the given endpoints. Transfers may be submitted afterwards
// until the link drops.
func (s *Stack) Configure(eps ...*Endpoint) error {
	var cfgs [MaxEndpointAddresses]hal.EndpointConfig
	if len(eps) > len(cfgs) {
		return pkg.ErrNoResources
	}
	for i, ep := range eps {
		if err := ep.Validate(); err != nil {
			return err
		}
		cfgs[i] = ep.Config()
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.running {
		return pkg.ErrNotRunning
	}
	if err := s.hal.ConfigureEndpoints(cfgs[:len(eps)]); err != nil {
		return fmt.Errorf("configure endpoints: %w", err)
	}
	s.endpoints = [MaxEndpointAddresses]*Endpoint{}
	for _, ep := range eps {
		s.endpoints[endpointIndex(ep.Address)] = ep
	}
	s.configured = true
	pkg.LogDebug(pkg.ComponentUSB, "endpoints configured", "count", len(eps))
	return nil
}

// unconfigure drops the endpoint set and cancels everything in flight.
func (s *Stack) unconfigure() {
	s.mutex.Lock()
	s.configured = false
	s.endpoints = [MaxEndpointAddresses]*Endpoint{}
	s.mutex.Unlock()
	s.CancelAll()
	if err := s.hal.ConfigureEndpoints(nil); err != nil {
		pkg.LogDebug(pkg.ComponentUSB, "unconfigure endpoints", "error", err)
	}
}

// SubmitTransfer queues a transfer on its endpoint. The transfer runs on its
// own goroutine and reports through its callback.
func (s *Stack) SubmitTransfer(t *Transfer) error {
	if t.Endpoint == nil {
		return pkg.ErrInvalidEndpoint
	}

	s.mutex.RLock()
	running, configured := s.running, s.configured
	registered := s.endpoints[endpointIndex(t.Endpoint.Address)] != nil
	s.mutex.RUnlock()

	if !running || !configured {
		return pkg.ErrNotConfigured
	}
	if !registered {
		return pkg.ErrInvalidEndpoint
	}

	s.transferMutex.Lock()
	idx := endpointIndex(t.Endpoint.Address)
	count := s.pendingTransferCounts[idx]
	if count >= MaxPendingTransfersPerEndpoint {
		s.transferMutex.Unlock()
		return pkg.ErrNoResources
	}
	s.pendingTransfers[idx][count] = t
	s.pendingTransferCounts[idx] = count + 1
	s.transferMutex.Unlock()

	ctx := t.arm()
	go s.processTransfer(ctx, t)
	return nil
}

// processTransfer performs the blocking HAL call for one transfer.
func (s *Stack) processTransfer(ctx context.Context, t *Transfer) {
	if ctx.Err() != nil || t.IsCancelled() {
		s.removeTransfer(t)
		t.Complete(pkg.TransferStatusCancelled, 0, pkg.ErrCancelled)
		return
	}

	var n int
	var err error
	if t.IsIn() {
		n, err = s.hal.Write(ctx, t.Endpoint.Address, t.Buffer)
	} else {
		n, err = s.hal.Read(ctx, t.Endpoint.Address, t.Buffer)
	}

	s.removeTransfer(t)

	switch {
	case t.IsCancelled() || errors.Is(err, context.Canceled):
		t.Complete(pkg.TransferStatusCancelled, n, pkg.ErrCancelled)
	case err != nil:
		t.Complete(pkg.StatusOf(err), n, err)
	default:
		t.Complete(pkg.TransferStatusSuccess, n, nil)
	}
}

// removeTransfer removes a transfer from the pending list.
func (s *Stack) removeTransfer(t *Transfer) {
	s.transferMutex.Lock()
	defer s.transferMutex.Unlock()

	idx := endpointIndex(t.Endpoint.Address)
	count := s.pendingTransferCounts[idx]
	for i := 0; i < count; i++ {
		if s.pendingTransfers[idx][i] == t {
			copy(s.pendingTransfers[idx][i:count-1], s.pendingTransfers[idx][i+1:count])
			s.pendingTransfers[idx][count-1] = nil
			s.pendingTransferCounts[idx] = count - 1
			break
		}
	}
}

// Pending returns the number of in-flight transfers on an endpoint.
func (s *Stack) Pending(address uint8) int {
	s.transferMutex.Lock()
	defer s.transferMutex.Unlock()
	return s.pendingTransferCounts[endpointIndex(address)]
}

// CancelTransfers cancels all pending transfers for an endpoint.
func (s *Stack) CancelTransfers(address uint8) {
	s.transferMutex.Lock()
	idx := endpointIndex(address)
	count := s.pendingTransferCounts[idx]
	var toCancel [MaxPendingTransfersPerEndpoint]*Transfer
	copy(toCancel[:count], s.pendingTransfers[idx][:count])
	s.transferMutex.Unlock()

	// Transfers remove themselves once their HAL call returns.
	for i := 0; i < count; i++ {
		toCancel[i].Cancel()
	}
}

// CancelAll cancels the pending transfers of every endpoint.
func (s *Stack) CancelAll() {
	for idx := 0; idx < MaxEndpointAddresses; idx++ {
		addr := uint8(idx)
		if idx >= 16 {
			addr = uint8(idx-16) | EndpointDirectionIn
		}
		s.CancelTransfers(addr)
	}
}

// SetOnConnect sets the callback run when a host attaches.
func (s *Stack) SetOnConnect(cb func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.onConnect = cb
}

// SetOnDisconnect sets the callback run when the host detaches. Endpoints
// are already unconfigured when it runs.
func (s *Stack) SetOnDisconnect(cb func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.onDisconnect = cb
}

// Speed returns the negotiated USB connection speed.
func (s *Stack) Speed() hal.Speed {
	return s.hal.GetSpeed()
}

// IsConnected returns true if the device is connected to a host.
func (s *Stack) IsConnected() bool {
	return s.hal.IsConnected()
}
