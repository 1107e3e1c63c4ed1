package csr8645

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ardnew/soundbooster/audio"
	"github.com/ardnew/soundbooster/pkg"
)

const (
	// DefaultTimeout bounds a command round trip when the context has no
	// deadline of its own.
	DefaultTimeout = time.Second

	// MaxResponseLength is the longest response line accepted.
	MaxResponseLength = 128

	// MaxScanResults caps the addresses returned by Scan.
	MaxScanResults = 16

	terminator = "\r\n"
)

// State is the module's link state as reported by AT+STATE?.
type State string

// Link states.
const (
	StateIdle         State = "IDLE"
	StateDiscoverable State = "DISCOVERABLE"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateStreaming    State = "STREAMING"
)

// deadliner is implemented by serial ports, pipes and net.Conn.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// Module drives a CSR8645 Bluetooth audio module over its UART.
//
// Commands are serialized; a Module is safe for concurrent use. Audio frames
// written with WriteFrame share the link with commands, so callers should
// not issue commands while streaming at full rate.
type Module struct {
	rw      io.ReadWriter
	r       *bufio.Reader
	timeout time.Duration
	mutex   sync.Mutex
	pcm     [audio.FrameBytes]byte
}

// Option configures a Module.
type Option func(*Module)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Module) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// New wraps an open serial link.
func New(rw io.ReadWriter, opts ...Option) *Module {
	m := &Module{
		rw:      rw,
		r:       bufio.NewReaderSize(rw, MaxResponseLength),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open opens a serial device node for reading and writing.
func Open(path string, opts ...Option) (*Module, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	return New(f, opts...), f, nil
}

// SetName sets the advertised device name.
func (m *Module) SetName(ctx context.Context, name string) error {
	if name == "" || strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("%w: name %q", pkg.ErrInvalidParameter, name)
	}
	return m.set(ctx, "NAME="+name)
}

// Name queries the advertised device name.
func (m *Module) Name(ctx context.Context) (string, error) {
	return m.query(ctx, "NAME")
}

// SetPIN sets the pairing PIN.
func (m *Module) SetPIN(ctx context.Context, pin string) error {
	if len(pin) < 4 || len(pin) > 16 || strings.Trim(pin, "0123456789") != "" {
		return fmt.Errorf("%w: pin must be 4-16 digits", pkg.ErrInvalidParameter)
	}
	return m.set(ctx, "PIN="+pin)
}

// PIN queries the pairing PIN.
func (m *Module) PIN(ctx context.Context) (string, error) {
	return m.query(ctx, "PIN")
}

// SetBaud changes the UART rate. The new rate takes effect after the
// module acknowledges; reopen the port at the new rate afterwards.
func (m *Module) SetBaud(ctx context.Context, baud uint32) error {
	if baud == 0 {
		return fmt.Errorf("%w: baud 0", pkg.ErrInvalidParameter)
	}
	return m.set(ctx, "BAUD="+strconv.FormatUint(uint64(baud), 10))
}

// Baud queries the UART rate.
func (m *Module) Baud(ctx context.Context) (uint32, error) {
	v, err := m.query(ctx, "BAUD")
	if err != nil {
		return 0, err
	}
	baud, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: baud %q", pkg.ErrInvalidResponse, v)
	}
	return uint32(baud), nil
}

// Connect pairs with the remote device at addr.
func (m *Module) Connect(ctx context.Context, addr string) error {
	if addr == "" || strings.ContainsAny(addr, "\r\n?") {
		return fmt.Errorf("%w: address %q", pkg.ErrInvalidParameter, addr)
	}
	return m.set(ctx, "CON"+addr)
}

// Connected reports whether a remote device is linked.
func (m *Module) Connected(ctx context.Context) (bool, error) {
	defer m.begin(ctx)()
	line, err := m.roundTrip(ctx, "CON?")
	if err != nil {
		return false, err
	}
	return strings.Contains(line, "OK+CON"), nil
}

// Disconnect drops the current link.
func (m *Module) Disconnect(ctx context.Context) error {
	return m.set(ctx, "DISCON")
}

// Scan lists the addresses of nearby devices. The module answers with one
// line per device followed by a bare OK.
func (m *Module) Scan(ctx context.Context) ([]string, error) {
	defer m.begin(ctx)()

	line, err := m.roundTrip(ctx, "DISC?")
	if err != nil {
		return nil, err
	}
	var addrs []string
	for line != "OK" {
		if len(addrs) == MaxScanResults {
			return addrs, fmt.Errorf("%w: more than %d scan results", pkg.ErrInvalidResponse, MaxScanResults)
		}
		addrs = append(addrs, value("DISC", line))
		if line, err = m.readLine(ctx); err != nil {
			return addrs, err
		}
	}
	return addrs, nil
}

// Status queries the link state.
func (m *Module) Status(ctx context.Context) (State, error) {
	v, err := m.query(ctx, "STATE")
	return State(strings.ToUpper(v)), err
}

// SetNotifications enables or disables unsolicited link notifications.
func (m *Module) SetNotifications(ctx context.Context, enable bool) error {
	if enable {
		return m.set(ctx, "NOTI1")
	}
	return m.set(ctx, "NOTI0")
}

// WriteFrame sends one frame of raw PCM to the module's audio input.
func (m *Module) WriteFrame(f audio.Frame) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	n := f.MarshalTo(m.pcm[:])
	if _, err := m.rw.Write(m.pcm[:n]); err != nil {
		return fmt.Errorf("write pcm: %w", err)
	}
	return nil
}

// set sends a command and expects an OK acknowledgement.
func (m *Module) set(ctx context.Context, cmd string) error {
	defer m.begin(ctx)()
	line, err := m.roundTrip(ctx, cmd)
	if err != nil {
		return err
	}
	if line != "OK" && !strings.HasPrefix(line, "OK+") {
		return fmt.Errorf("%w: AT+%s: %q", pkg.ErrInvalidResponse, cmd, line)
	}
	return nil
}

// query sends AT+<key>? and returns the value of the reply.
func (m *Module) query(ctx context.Context, key string) (string, error) {
	defer m.begin(ctx)()
	line, err := m.roundTrip(ctx, key+"?")
	if err != nil {
		return "", err
	}
	v := value(key, line)
	if v == "" {
		return "", fmt.Errorf("%w: AT+%s?: %q", pkg.ErrInvalidResponse, key, line)
	}
	return v, nil
}

// value strips the "OK+KEY:" or "+KEY:" prefix the module echoes.
func value(key, line string) string {
	for _, p := range []string{"OK+" + key + ":", "OK+" + key + "=", "+" + key + ":", "+" + key + "="} {
		if strings.HasPrefix(line, p) {
			return strings.TrimSpace(line[len(p):])
		}
	}
	return line
}

// begin locks the link and bounds the exchange by the context deadline,
// or DefaultTimeout when there is none. The returned func releases both.
func (m *Module) begin(ctx context.Context) func() {
	m.mutex.Lock()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(m.timeout)
	}
	d, ok := m.rw.(deadliner)
	if ok && d.SetDeadline(deadline) != nil {
		ok = false
	}
	return func() {
		if ok {
			d.SetDeadline(time.Time{})
		}
		m.mutex.Unlock()
	}
}

// roundTrip writes one command and reads the first response line.
// The caller holds the link.
func (m *Module) roundTrip(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	pkg.LogDebug(pkg.ComponentBluetooth, "command", "at", cmd)
	if _, err := io.WriteString(m.rw, "AT+"+cmd+terminator); err != nil {
		return "", m.wrap("write", err)
	}
	line, err := m.readLine(ctx)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(line, "ERR") || strings.HasPrefix(line, "FAIL") {
		return "", fmt.Errorf("%w: AT+%s: %s", pkg.ErrInvalidResponse, cmd, line)
	}
	return line, nil
}

// readLine returns the next non-empty response line without its terminator.
func (m *Module) readLine(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		raw, err := m.r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			// Resynchronize on the next terminator.
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = m.r.ReadSlice('\n')
			}
			if err == nil {
				err = pkg.ErrLineTooLong
			}
			return "", m.wrap("read", err)
		}
		if err != nil {
			return "", m.wrap("read", err)
		}
		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}
		pkg.LogDebug(pkg.ComponentBluetooth, "response", "line", line)
		return line, nil
	}
}

func (m *Module) wrap(op string, err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("csr8645 %s: %w", op, pkg.ErrTimeout)
	}
	return fmt.Errorf("csr8645 %s: %w", op, err)
}
