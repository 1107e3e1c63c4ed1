package uac

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"
	"golang.org/x/time/rate"

	"github.com/ardnew/soundbooster/audio"
	"github.com/ardnew/soundbooster/config"
	"github.com/ardnew/soundbooster/pkg"
	"github.com/ardnew/soundbooster/sched"
	"github.com/ardnew/soundbooster/usb"
)

// Streaming task tuning.
const (
	// OutTransfers is the number of OUT transfers kept armed (double buffering).
	OutTransfers = 2

	// MailboxDepth bounds packets waiting for the task. A full mailbox
	// drops the packet, the way a controller drops data nobody serviced.
	MailboxDepth = 8

	// ReassemblyFrames sizes the byte ring that realigns packets to frames.
	ReassemblyFrames = 4

	// maxFailStreak stops re-arming an endpoint whose transfers keep failing.
	maxFailStreak = 64
)

// State is the streaming function state.
type State uint32

// Streaming states.
const (
	StateIdle State = iota
	StateStreaming
)

// String returns the state name.
func (s State) String() string {
	if s == StateStreaming {
		return "streaming"
	}
	return "idle"
}

// Stats reports lifetime streaming counters.
type Stats struct {
	State      State
	PacketsOut uint64 // OUT packets received from the host
	FramesIn   uint64 // frames decoded into the input ring
	FramesOut  uint64 // frames sent to the host
	Dropped    uint64 // packets lost to a full mailbox, reassembly or failed transfers
	Starved    uint64 // IN packets sent as silence because the output ring was empty
	Sessions   uint64 // host attach count
}

type packet struct {
	n    int
	data [audio.FrameBytes]byte
}

// Streaming is the USB audio endpoint task.
//
// Transfer callbacks run in the stack's transfer goroutines and only post to
// the mailbox, touch atomics and wake the task. Poll, on the executor,
// handles link changes, turns received bytes into frames for the input
// ring, and feeds processed frames from the output ring to the IN endpoint
// once per service interval.
type Streaming struct {
	stack  *usb.Stack
	outEP  *usb.Endpoint
	inEP   *usb.Endpoint
	in     *audio.Ring
	out    *audio.Ring
	cfg    *config.Shared
	period time.Duration
	waker  sched.Waker

	// Shared with transfer goroutines.
	mailbox     chan packet
	linkChanged atomic.Bool
	inDone      atomic.Bool
	dropped     atomic.Uint32
	generation  atomic.Uint32
	armed       atomic.Bool
	failStreak  atomic.Int32
	state       atomic.Uint32

	packetsOut atomic.Uint64
	framesIn   atomic.Uint64
	framesOut  atomic.Uint64
	drops      atomic.Uint64
	starved    atomic.Uint64
	sessions   atomic.Uint64

	// Executor-only.
	reasm  *ringbuffer.RingBuffer
	chunk  [audio.FrameBytes]byte
	frame  audio.Frame
	inXfer *usb.Transfer
	inBuf  [audio.FrameBytes]byte
	inBusy bool
	nextIn time.Time

	endSession context.CancelFunc

	warn rate.Sometimes
}

// NewStreaming creates the task for the given OUT and IN endpoint addresses.
// Frames decoded from OUT go to in; frames for IN come from out.
func NewStreaming(stack *usb.Stack, in, out *audio.Ring, cfg *config.Shared, outAddr, inAddr uint8) *Streaming {
	return &Streaming{
		stack:   stack,
		outEP:   usb.NewAudioEndpoint(outAddr),
		inEP:    usb.NewAudioEndpoint(inAddr),
		in:      in,
		out:     out,
		cfg:     cfg,
		period:  audio.FramePeriodMicros * time.Microsecond,
		mailbox: make(chan packet, MailboxDepth),
		reasm:   ringbuffer.New(ReassemblyFrames * audio.FrameBytes),
		warn:    rate.Sometimes{Interval: time.Second},
	}
}

// Bind connects the task to its executor waker and subscribes to link
// events. Call once, after Spawn and before the stack starts delivering.
func (s *Streaming) Bind(w sched.Waker) {
	s.waker = w
	notify := func() {
		s.linkChanged.Store(true)
		s.waker.Wake()
	}
	s.stack.SetOnConnect(notify)
	s.stack.SetOnDisconnect(notify)
	// The link may already be up.
	s.linkChanged.Store(true)
}

// State returns the current state. Safe from any goroutine.
func (s *Streaming) State() State {
	return State(s.state.Load())
}

// Stats returns the lifetime counters. Safe from any goroutine.
func (s *Streaming) Stats() Stats {
	return Stats{
		State:      s.State(),
		PacketsOut: s.packetsOut.Load(),
		FramesIn:   s.framesIn.Load(),
		FramesOut:  s.framesOut.Load(),
		Dropped:    s.drops.Load(),
		Starved:    s.starved.Load(),
		Sessions:   s.sessions.Load(),
	}
}

// Poll implements sched.Task.
func (s *Streaming) Poll(now time.Time) {
	if s.linkChanged.Swap(false) {
		s.handleLink()
	}

	if s.State() != StateStreaming {
		s.discardMailbox()
		s.foldDropped()
		return
	}

	s.drainMailbox()
	s.foldDropped()

	if s.inDone.Swap(false) {
		s.inBusy = false
	}
	if !s.inBusy && !now.Before(s.nextIn) {
		s.submitIn()
		s.nextIn = now.Add(s.period)
	}
}

func (s *Streaming) handleLink() {
	connected := s.stack.IsConnected()
	switch {
	case s.State() == StateStreaming && connected && s.stack.IsConfigured():
		// Already serving this attach.
	case s.State() == StateStreaming:
		s.stop()
		if connected {
			s.start()
		}
	case connected:
		s.start()
	}
}

// start prepares a fresh session: empty rings, default configuration, armed
// endpoints.
func (s *Streaming) start() {
	s.in.Reset()
	s.out.Reset()
	s.cfg.Reset()
	s.reasm.Reset()
	s.discardMailbox()
	s.dropped.Store(0)

	if err := s.stack.Configure(s.outEP, s.inEP); err != nil {
		pkg.LogWarn(pkg.ComponentStreaming, "configure endpoints", "error", err)
		return
	}

	gen := s.generation.Add(1)
	s.armed.Store(true)
	s.failStreak.Store(0)

	// Transfers re-armed after stop still die with the session.
	session, end := context.WithCancel(context.Background())
	s.endSession = end

	for i := 0; i < OutTransfers; i++ {
		t := usb.NewIsochronousTransfer(s.outEP, make([]byte, s.outEP.MaxPacketSize), 1)
		t.WithContext(session).WithCallback(s.outCallback(gen))
		if err := s.stack.SubmitTransfer(t); err != nil {
			pkg.LogWarn(pkg.ComponentStreaming, "submit OUT transfer", "error", err)
		}
	}

	s.inXfer = usb.NewIsochronousTransfer(s.inEP, s.inBuf[:], 1)
	s.inXfer.WithContext(session).WithCallback(s.inCallback(gen))
	s.inBusy = false
	s.inDone.Store(false)
	s.nextIn = time.Time{}

	s.state.Store(uint32(StateStreaming))
	s.sessions.Add(1)
	pkg.LogInfo(pkg.ComponentStreaming, "streaming started",
		"out", s.outEP.String(),
		"in", s.inEP.String(),
		"speed", s.stack.Speed().String())
}

// stop abandons the session. In-flight transfers complete as cancelled and
// are not re-armed.
func (s *Streaming) stop() {
	s.armed.Store(false)
	if s.endSession != nil {
		s.endSession()
		s.endSession = nil
	}
	s.stack.CancelTransfers(s.outEP.Address)
	s.stack.CancelTransfers(s.inEP.Address)
	s.inXfer = nil
	s.inBusy = false
	s.state.Store(uint32(StateIdle))
	pkg.LogInfo(pkg.ComponentStreaming, "streaming stopped")
}

// outCallback runs on a transfer goroutine.
func (s *Streaming) outCallback(gen uint32) usb.TransferCallback {
	return func(t *usb.Transfer) {
		if t.Status == pkg.TransferStatusCancelled {
			return
		}
		if t.IsSuccess() {
			s.failStreak.Store(0)
			s.packetsOut.Add(1)
			var p packet
			p.n = copy(p.data[:], t.Buffer[:t.ActualIsoLength()])
			select {
			case s.mailbox <- p:
			default:
				s.dropped.Add(1)
			}
		} else {
			s.dropped.Add(1)
			if s.failStreak.Add(1) >= maxFailStreak {
				s.armed.Store(false)
				pkg.LogError(pkg.ComponentStreaming, "OUT endpoint keeps failing; disarmed", "error", t.Error)
			}
		}
		s.waker.Wake()

		// Re-arm like a controller refilling its buffer descriptor.
		if !s.armed.Load() || s.generation.Load() != gen {
			return
		}
		t.Reset()
		if err := s.stack.SubmitTransfer(t); err != nil {
			pkg.LogDebug(pkg.ComponentStreaming, "re-arm OUT transfer", "error", err)
		}
	}
}

// inCallback runs on a transfer goroutine.
func (s *Streaming) inCallback(gen uint32) usb.TransferCallback {
	return func(t *usb.Transfer) {
		if s.generation.Load() != gen {
			return
		}
		switch t.Status {
		case pkg.TransferStatusSuccess:
			s.framesOut.Add(1)
		case pkg.TransferStatusCancelled:
			return
		default:
			s.dropped.Add(1)
		}
		s.inDone.Store(true)
		s.waker.Wake()
	}
}

func (s *Streaming) drainMailbox() {
	for {
		select {
		case p := <-s.mailbox:
			s.ingest(p.data[:p.n])
		default:
			return
		}
	}
}

func (s *Streaming) discardMailbox() {
	for {
		select {
		case <-s.mailbox:
		default:
			return
		}
	}
}

// ingest appends packet bytes and pushes every whole frame to the input ring.
func (s *Streaming) ingest(data []byte) {
	if len(data) == 0 {
		return
	}
	if s.reasm.Free() < len(data) {
		s.dropped.Add(1)
		return
	}
	if _, err := s.reasm.Write(data); err != nil {
		s.dropped.Add(1)
		return
	}
	frames, _ := audio.FrameCount(s.reasm.Length())
	for ; frames > 0; frames-- {
		if _, err := s.reasm.Read(s.chunk[:]); err != nil {
			return
		}
		audio.ParseFrame(s.chunk[:], &s.frame)
		if err := s.in.Push(s.frame); err != nil {
			s.cfg.AddOverrun()
			s.warn.Do(func() {
				pkg.LogWarn(pkg.ComponentStreaming, "input ring overrun", "capacity", s.in.Cap())
			})
			continue
		}
		s.framesIn.Add(1)
	}
}

// submitIn sends the next processed frame, or silence when none is ready.
func (s *Streaming) submitIn() {
	if s.inXfer == nil {
		return
	}
	if !s.out.PopInto(&s.frame) {
		// Underruns belong to the DSP stage; IN starvation is tracked apart.
		s.frame = audio.Silence
		s.starved.Add(1)
	}
	s.frame.MarshalTo(s.inBuf[:])

	s.inXfer.Reset()
	if err := s.stack.SubmitTransfer(s.inXfer); err != nil {
		s.dropped.Add(1)
		pkg.LogDebug(pkg.ComponentStreaming, "submit IN transfer", "error", err)
		return
	}
	s.inBusy = true
}

func (s *Streaming) foldDropped() {
	if n := s.dropped.Swap(0); n > 0 {
		s.drops.Add(uint64(n))
		s.cfg.AddDropped(n)
	}
}

var _ sched.Task = (*Streaming)(nil)
