package fifo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ardnew/soundbooster/pkg"
)

// Host is the host-side end of a FIFO device directory. It plays audio into
// OUT endpoints and collects processed audio from IN endpoints.
type Host struct {
	dir  string
	conn *os.File
	in   [MaxEndpoints]*os.File // host reads IN data
	out  [MaxEndpoints]*os.File // host writes OUT data

	closeCh   chan struct{}
	closeOnce sync.Once

	readMu   [MaxEndpoints]sync.Mutex
	writeMu  [MaxEndpoints]sync.Mutex
	readBuf  [MaxEndpoints][headerSize + MaxPacketSize]byte
	writeBuf [MaxEndpoints][headerSize + MaxPacketSize]byte
}

// Discover lists device directories under busDir, oldest name first.
func Discover(busDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(busDir, devicePrefix+"*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// OpenHost opens the pipes of the device at deviceDir. An empty deviceDir
// selects the first device found under busDir.
func OpenHost(busDir, deviceDir string) (*Host, error) {
	if deviceDir == "" {
		devs, err := Discover(busDir)
		if err != nil {
			return nil, err
		}
		if len(devs) == 0 {
			return nil, fmt.Errorf("%w: no device under %s", pkg.ErrNoDevice, busDir)
		}
		deviceDir = devs[0]
	}

	h := &Host{dir: deviceDir, closeCh: make(chan struct{})}
	var err error
	if h.conn, err = openFIFO(deviceDir, fifoConnection); err != nil {
		return nil, errors.Join(pkg.ErrNoDevice, err)
	}
	for i := 1; i <= MaxEndpoints; i++ {
		if h.in[i-1], err = openFIFO(deviceDir, epInName(i)); err != nil {
			h.Close()
			return nil, err
		}
		if h.out[i-1], err = openFIFO(deviceDir, epOutName(i)); err != nil {
			h.Close()
			return nil, err
		}
	}
	pkg.LogDebug(pkg.ComponentHAL, "fifo host opened", "deviceDir", deviceDir)
	return h, nil
}

// Dir returns the device directory.
func (h *Host) Dir() string {
	return h.dir
}

// WaitAttached blocks until the device signals that it is attached.
func (h *Host) WaitAttached(ctx context.Context) error {
	var sig [1]byte
	for {
		if _, err := readFull(ctx, h.closeCh, h.conn, sig[:]); err != nil {
			return err
		}
		if sig[0] == sigConnect {
			return nil
		}
	}
}

// Send writes one OUT packet to the device.
func (h *Host) Send(ctx context.Context, address uint8, data []byte) error {
	num, err := endpointNumber(address)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	h.writeMu[num-1].Lock()
	defer h.writeMu[num-1].Unlock()
	return writeMessage(ctx, h.closeCh, h.out[num-1], h.writeBuf[num-1][:], msgData, data)
}

// Receive reads one IN packet from the device.
func (h *Host) Receive(ctx context.Context, address uint8, buf []byte) (int, error) {
	num, err := endpointNumber(address)
	if err != nil {
		return 0, err
	}
	h.readMu[num-1].Lock()
	defer h.readMu[num-1].Unlock()
	return readMessage(ctx, h.closeCh, h.in[num-1], h.readBuf[num-1][:], buf)
}

// Close releases the host's pipe handles. The device directory is left to
// its owner.
func (h *Host) Close() error {
	h.closeOnce.Do(func() { close(h.closeCh) })
	var errs []error
	closeFile := func(f **os.File) {
		if *f != nil {
			errs = append(errs, (*f).Close())
			*f = nil
		}
	}
	closeFile(&h.conn)
	for i := range h.in {
		closeFile(&h.in[i])
		closeFile(&h.out[i])
	}
	return errors.Join(errs...)
}
