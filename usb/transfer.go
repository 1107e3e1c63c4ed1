package usb

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardnew/soundbooster/pkg"
)

// MaxIsoPackets is the maximum number of isochronous packets per transfer.
const MaxIsoPackets = 8

// TransferCallback is called when a transfer completes. It runs on the
// transfer goroutine and must not block.
type TransferCallback func(t *Transfer)

// Transfer is one in-flight data transfer on an endpoint.
type Transfer struct {
	Endpoint *Endpoint

	Buffer []byte
	Length int // Actual bytes transferred

	Status      pkg.TransferStatus
	Error       error
	CompletedAt time.Time

	Callback TransferCallback

	ctx  context.Context
	stop context.CancelFunc

	cancelled uint32

	isoPackets    [MaxIsoPackets]IsoPacket
	NumIsoPackets int

	mutex     sync.Mutex
	completed bool
}

// IsoPacket describes a single isochronous packet within a transfer.
type IsoPacket struct {
	Offset       int
	Length       int
	ActualLength int
	Status       pkg.TransferStatus
}

// NewIsochronousTransfer creates an isochronous transfer split into
// numPackets uniform packets of the endpoint's max packet size.
func NewIsochronousTransfer(ep *Endpoint, data []byte, numPackets int) *Transfer {
	if numPackets > MaxIsoPackets {
		numPackets = MaxIsoPackets
	}
	if numPackets < 1 {
		numPackets = 1
	}
	t := &Transfer{
		Endpoint:      ep,
		Buffer:        data,
		NumIsoPackets: numPackets,
		ctx:           context.Background(),
	}
	t.SetupIsoPackets(int(ep.MaxPacketSize))
	return t
}

// WithContext sets the parent context for the transfer.
func (t *Transfer) WithContext(ctx context.Context) *Transfer {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.ctx = ctx
	return t
}

// WithCallback sets the completion callback.
func (t *Transfer) WithCallback(cb TransferCallback) *Transfer {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.Callback = cb
	return t
}

// arm derives the per-submission context used to abort blocking HAL I/O.
func (t *Transfer) arm() context.Context {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	parent := t.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := context.WithCancel(parent)
	t.stop = stop
	return ctx
}

// Cancel aborts the transfer. A blocked HAL call returns promptly and the
// transfer completes with TransferStatusCancelled.
func (t *Transfer) Cancel() {
	if !atomic.CompareAndSwapUint32(&t.cancelled, 0, 1) {
		return
	}
	t.mutex.Lock()
	stop := t.stop
	t.mutex.Unlock()
	if stop != nil {
		stop()
	}
}

// Complete marks the transfer as completed and invokes the callback once.
func (t *Transfer) Complete(status pkg.TransferStatus, length int, err error) {
	t.mutex.Lock()
	if t.completed {
		t.mutex.Unlock()
		return
	}
	t.completed = true
	t.Status = status
	t.Length = length
	t.Error = err
	t.CompletedAt = time.Now()
	t.fillIsoPackets(length, status)
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
	cb := t.Callback
	t.mutex.Unlock()

	if cb != nil {
		cb(t)
	}
}

// IsCancelled returns true if the transfer was cancelled.
func (t *Transfer) IsCancelled() bool {
	return atomic.LoadUint32(&t.cancelled) != 0
}

// IsSuccess returns true if the transfer completed successfully.
func (t *Transfer) IsSuccess() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.completed && t.Status == pkg.TransferStatusSuccess
}

// Reset prepares the transfer for resubmission. The callback, endpoint,
// buffer and parent context are kept.
func (t *Transfer) Reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.Status = pkg.TransferStatusSuccess
	t.Error = nil
	t.Length = 0
	t.completed = false
	t.CompletedAt = time.Time{}
	atomic.StoreUint32(&t.cancelled, 0)
	for i := 0; i < t.NumIsoPackets; i++ {
		t.isoPackets[i].ActualLength = 0
		t.isoPackets[i].Status = pkg.TransferStatusSuccess
	}
}

// IsIn returns true if this is an IN transfer (device to host).
func (t *Transfer) IsIn() bool {
	return t.Endpoint != nil && t.Endpoint.IsIn()
}

// SetupIsoPackets lays out uniform packet descriptors across the buffer.
func (t *Transfer) SetupIsoPackets(packetSize int) {
	offset := 0
	for i := 0; i < t.NumIsoPackets; i++ {
		t.isoPackets[i] = IsoPacket{Offset: offset, Length: packetSize}
		offset += packetSize
	}
}

// fillIsoPackets distributes the completed length over the packet
// descriptors in order.
func (t *Transfer) fillIsoPackets(length int, status pkg.TransferStatus) {
	remaining := length
	for i := 0; i < t.NumIsoPackets; i++ {
		p := &t.isoPackets[i]
		n := p.Length
		if remaining < n {
			n = remaining
		}
		p.ActualLength = n
		p.Status = status
		remaining -= n
	}
}

// IsoPacket returns the packet descriptor at index, or nil.
func (t *Transfer) IsoPacket(index int) *IsoPacket {
	if index < 0 || index >= t.NumIsoPackets {
		return nil
	}
	return &t.isoPackets[index]
}

// ActualIsoLength returns the total actual length of all isochronous packets.
func (t *Transfer) ActualIsoLength() int {
	total := 0
	for i := 0; i < t.NumIsoPackets; i++ {
		total += t.isoPackets[i].ActualLength
	}
	return total
}
