package netctl

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ardnew/soundbooster/config"
	"github.com/ardnew/soundbooster/pkg"
	"github.com/ardnew/soundbooster/sched"
)

// State is the control task state.
type State uint32

// Control task states.
const (
	StateUnconfigured State = iota
	StateAwaitingLease
	StateListening
	StateConnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAwaitingLease:
		return "awaiting-lease"
	case StateListening:
		return "listening"
	case StateConnected:
		return "connected"
	default:
		return "unconfigured"
	}
}

const (
	eventQueueDepth   = 32
	sessionQueueDepth = 8
	writeTimeout      = 2 * time.Second
)

// Options are the boot-time network parameters.
type Options struct {
	Port          uint16
	DHCPTimeout   time.Duration
	DHCPRetries   uint64
	DHCPBackoff   time.Duration
	AcceptRetries uint64
}

// OptionsFrom converts validated settings.
func OptionsFrom(s config.NetworkSettings) Options {
	return Options{
		Port:          s.Port,
		DHCPTimeout:   s.DHCPTimeout,
		DHCPRetries:   s.DHCPRetries,
		DHCPBackoff:   s.DHCPBackoff,
		AcceptRetries: s.AcceptRetries,
	}
}

func (o Options) backoff(retries uint64) retry.Backoff {
	return retry.WithMaxRetries(retries, retry.NewExponential(o.DHCPBackoff))
}

// Stats reports lifetime control-plane counters.
type Stats struct {
	State     State
	Address   netip.AddrPort
	LinkLocal bool
	Sessions  uint64
	Refused   uint64
	Commands  uint64
	Errors    uint64
}

type eventKind uint8

const (
	evLeasing eventKind = iota
	evBound
	evAcceptFailed
	evAccepted
	evLine
	evClosed
)

type event struct {
	kind     eventKind
	listener net.Listener
	addr     netip.AddrPort
	fallback bool
	conn     net.Conn
	sess     *session
	line     string
	err      error
}

type session struct {
	id   uint64
	conn net.Conn
	out  chan string
	once sync.Once
}

func (s *session) close() {
	s.once.Do(func() { close(s.out) })
}

// Task is the network control task.
//
// Address acquisition, accepting, and socket I/O run on their own
// goroutines and report through a bounded event queue. Poll, on the
// executor, owns the state machine, decodes commands, applies them to the
// shared configuration, and queues replies; it never touches a socket.
type Task struct {
	stack Stack
	cfg   *config.Shared
	opts  Options
	waker sched.Waker
	ctx   context.Context

	events chan event

	state     atomic.Uint32
	addr      atomic.Pointer[netip.AddrPort]
	linkLocal atomic.Bool
	sessions  atomic.Uint64
	refused   atomic.Uint64
	commands  atomic.Uint64
	errs      atomic.Uint64

	// Executor-only.
	listener net.Listener
	active   *session
}

// NewTask creates a control task over stack.
func NewTask(stack Stack, cfg *config.Shared, opts Options) *Task {
	return &Task{
		stack:  stack,
		cfg:    cfg,
		opts:   opts,
		ctx:    context.Background(),
		events: make(chan event, eventQueueDepth),
	}
}

// Bind attaches the executor waker. Call once, after Spawn.
func (t *Task) Bind(w sched.Waker) {
	t.waker = w
}

// Start begins address acquisition. Everything the task started stops
// when ctx is done.
func (t *Task) Start(ctx context.Context) {
	t.ctx = ctx
	go t.bringUp(ctx)
}

// State returns the current state. Safe from any goroutine.
func (t *Task) State() State {
	return State(t.state.Load())
}

// Addr returns the bound control address, or the zero value before bind.
func (t *Task) Addr() netip.AddrPort {
	if p := t.addr.Load(); p != nil {
		return *p
	}
	return netip.AddrPort{}
}

// Stats returns lifetime counters. Safe from any goroutine.
func (t *Task) Stats() Stats {
	return Stats{
		State:     t.State(),
		Address:   t.Addr(),
		LinkLocal: t.linkLocal.Load(),
		Sessions:  t.sessions.Load(),
		Refused:   t.refused.Load(),
		Commands:  t.commands.Load(),
		Errors:    t.errs.Load(),
	}
}

func (t *Task) setState(s State) {
	if State(t.state.Swap(uint32(s))) != s {
		pkg.LogDebug(pkg.ComponentNet, "state", "state", s.String())
	}
}

// post hands an event to the executor. It blocks only while the queue is
// full, which throttles the posting goroutine, never the executor.
func (t *Task) post(ctx context.Context, ev event) bool {
	select {
	case t.events <- ev:
		t.waker.Wake()
		return true
	case <-ctx.Done():
		return false
	}
}

// Poll implements sched.Task.
func (t *Task) Poll(time.Time) {
	for {
		select {
		case ev := <-t.events:
			t.handle(ev)
		default:
			return
		}
	}
}

func (t *Task) handle(ev event) {
	switch ev.kind {
	case evLeasing:
		t.setState(StateAwaitingLease)

	case evBound:
		t.listener = ev.listener
		addr := ev.addr
		t.addr.Store(&addr)
		t.linkLocal.Store(ev.fallback)
		if t.active == nil {
			t.setState(StateListening)
		}
		pkg.LogInfo(pkg.ComponentNet, "control listening", "addr", addr.String(), "linkLocal", ev.fallback)
		go t.acceptLoop(t.ctx, ev.listener)

	case evAcceptFailed:
		pkg.LogWarn(pkg.ComponentNet, "accept retries exhausted; restarting bring-up")
		if t.listener != nil {
			t.listener.Close()
			t.listener = nil
		}
		if t.active == nil {
			t.setState(StateUnconfigured)
		}
		go t.bringUp(t.ctx)

	case evAccepted:
		if t.active != nil {
			t.refused.Add(1)
			go refuse(ev.conn)
			return
		}
		t.active = &session{
			id:   t.sessions.Add(1),
			conn: ev.conn,
			out:  make(chan string, sessionQueueDepth),
		}
		t.setState(StateConnected)
		pkg.LogInfo(pkg.ComponentControl, "client connected",
			"session", t.active.id,
			"remote", ev.conn.RemoteAddr().String())
		go t.writeLoop(t.ctx, t.active)
		go t.readLoop(t.ctx, t.active)

	case evLine:
		if ev.sess != t.active {
			return
		}
		t.serve(ev.sess, ev.line, ev.err)

	case evClosed:
		if ev.sess == t.active {
			t.endSession(ev.sess)
		}
	}
}

// serve decodes and applies one line, then queues the reply.
func (t *Task) serve(s *session, line string, readErr error) {
	if readErr != nil {
		t.errs.Add(1)
		t.reply(s, FormatError(readErr))
		return
	}
	if strings.TrimSpace(line) == "" {
		return
	}
	cmd, err := ParseCommand(line)
	if err != nil {
		t.errs.Add(1)
		pkg.LogDebug(pkg.ComponentControl, "bad command", "session", s.id, "error", err)
		t.reply(s, FormatError(err))
		return
	}
	t.commands.Add(1)
	state := Apply(cmd, t.cfg)
	if cmd.Kind != KindQueryStatus {
		pkg.LogInfo(pkg.ComponentControl, "command applied",
			"session", s.id,
			"command", cmd.String())
	}
	t.reply(s, FormatStatus(state))
}

// reply queues a line for the session writer. A client that stops reading
// is disconnected rather than allowed to back up the executor.
func (t *Task) reply(s *session, msg string) {
	select {
	case s.out <- msg:
	default:
		pkg.LogWarn(pkg.ComponentControl, "client not reading; closing", "session", s.id)
		t.endSession(s)
	}
}

func (t *Task) endSession(s *session) {
	s.close()
	if t.active == s {
		t.active = nil
		if t.listener != nil {
			t.setState(StateListening)
		} else {
			t.setState(StateUnconfigured)
		}
		pkg.LogInfo(pkg.ComponentControl, "client disconnected", "session", s.id)
	}
}

// bringUp acquires an address and binds the listener, retrying with
// backoff until it succeeds or ctx is done.
func (t *Task) bringUp(ctx context.Context) {
	for ctx.Err() == nil {
		if !t.post(ctx, event{kind: evLeasing}) {
			return
		}
		ip, fallback := t.acquire(ctx)
		if ctx.Err() != nil {
			return
		}
		ln, addr, err := t.bind(ctx, ip)
		if err == nil {
			if !t.post(ctx, event{kind: evBound, listener: ln, addr: addr, fallback: fallback}) {
				ln.Close()
			}
			return
		}
		pkg.LogError(pkg.ComponentNet, "bind failed", "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(t.opts.DHCPBackoff):
		}
	}
}

// acquire runs DHCP with a per-attempt timeout and bounded exponential
// backoff, falling back to a link-local address.
func (t *Task) acquire(ctx context.Context) (netip.Addr, bool) {
	var leased netip.Addr
	err := retry.Do(ctx, t.opts.backoff(t.opts.DHCPRetries), func(ctx context.Context) error {
		attempt, cancel := context.WithTimeout(ctx, t.opts.DHCPTimeout)
		defer cancel()
		ip, err := t.stack.Lease(attempt)
		if err != nil {
			pkg.LogWarn(pkg.ComponentNet, "dhcp attempt failed", "error", err)
			return retry.RetryableError(err)
		}
		leased = ip
		return nil
	})
	if err == nil {
		pkg.LogInfo(pkg.ComponentNet, "lease acquired", "addr", leased.String())
		return leased, false
	}
	ll := LinkLocal(t.stack.HardwareAddr())
	if ctx.Err() == nil {
		pkg.LogWarn(pkg.ComponentNet, "lease unavailable; using link-local address",
			"addr", ll.String(),
			"error", errors.Join(pkg.ErrLeaseUnavailable, err))
	}
	return ll, true
}

// bind listens on ip, falling back to the unspecified address when ip
// cannot be bound.
func (t *Task) bind(ctx context.Context, ip netip.Addr) (net.Listener, netip.AddrPort, error) {
	want := netip.AddrPortFrom(ip, t.opts.Port)
	var ln net.Listener
	err := retry.Do(ctx, t.opts.backoff(t.opts.AcceptRetries), func(context.Context) error {
		l, err := t.stack.Listen(want)
		if err != nil {
			pkg.LogDebug(pkg.ComponentNet, "listen attempt failed", "addr", want.String(), "error", err)
			return retry.RetryableError(err)
		}
		ln = l
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, want, ctx.Err()
		}
		want = netip.AddrPortFrom(netip.IPv4Unspecified(), t.opts.Port)
		pkg.LogWarn(pkg.ComponentNet, "binding unspecified address", "addr", want.String(), "error", err)
		if ln, err = t.stack.Listen(want); err != nil {
			return nil, want, err
		}
	}
	return ln, boundAddr(ln, want), nil
}

func boundAddr(ln net.Listener, want netip.AddrPort) netip.AddrPort {
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		return netip.AddrPortFrom(want.Addr(), uint16(tcp.Port))
	}
	return want
}

// acceptLoop hands accepted connections to the executor. Failures back
// off; exhausting the retries asks the task to redo bring-up.
func (t *Task) acceptLoop(ctx context.Context, ln net.Listener) {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		err := retry.Do(ctx, t.opts.backoff(t.opts.AcceptRetries), func(ctx context.Context) error {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return err
				}
				pkg.LogWarn(pkg.ComponentNet, "accept failed", "error", err)
				return retry.RetryableError(err)
			}
			if !t.post(ctx, event{kind: evAccepted, conn: conn}) {
				conn.Close()
			}
			return nil
		})
		if err == nil {
			continue
		}
		if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
			t.post(ctx, event{kind: evAcceptFailed, err: err})
		}
		return
	}
}

// readLoop turns the byte stream into line events.
func (t *Task) readLoop(ctx context.Context, s *session) {
	r := bufio.NewReaderSize(s.conn, MaxLineLength)
	for {
		line, err := readLine(r)
		switch {
		case errors.Is(err, pkg.ErrLineTooLong):
			if !t.post(ctx, event{kind: evLine, sess: s, err: err}) {
				return
			}
		case err != nil:
			t.post(ctx, event{kind: evClosed, sess: s, err: err})
			return
		default:
			if !t.post(ctx, event{kind: evLine, sess: s, line: line}) {
				return
			}
		}
	}
}

// writeLoop sends queued replies until the session is closed.
func (t *Task) writeLoop(ctx context.Context, s *session) {
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()
	defer s.conn.Close()

	for msg := range s.out {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := io.WriteString(s.conn, msg+"\r\n"); err != nil {
			pkg.LogDebug(pkg.ComponentControl, "write failed", "session", s.id, "error", err)
			// Unblock the reader; it reports the close.
			s.conn.Close()
			for range s.out {
			}
			return
		}
	}
}

// readLine reads one line. Lines longer than the reader's buffer are
// consumed and reported as ErrLineTooLong.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = r.ReadSlice('\n')
		}
		if err != nil {
			return "", err
		}
		return "", pkg.ErrLineTooLong
	}
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return string(line), nil
		}
		return "", err
	}
	return string(line), nil
}

// refuse tells a second client the control plane is taken.
func refuse(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, _ = io.WriteString(conn, FormatError(pkg.ErrBusy)+"\r\n")
	pkg.LogInfo(pkg.ComponentControl, "refused second client", "remote", conn.RemoteAddr().String())
}

var _ sched.Task = (*Task)(nil)
