package fifo

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ardnew/soundbooster/pkg"
)

// MaxEndpoints is the maximum number of data endpoints (1-15 IN and OUT).
const MaxEndpoints = 15

// MaxPacketSize is the maximum payload of one message.
const MaxPacketSize = 1023

// Message types shared by both ends of a pipe.
const (
	msgData = 0x02 // DATA packet
)

// Header size for messages: type (1) + length (2).
const headerSize = 3

// Connection signal bytes (device to host).
const (
	sigConnect    = 0x01
	sigDisconnect = 0x00
)

// FIFO file names.
const (
	fifoConnection = "connection"
	devicePrefix   = "device-"
)

// pollInterval bounds how long a blocked read or write waits before rechecking
// cancellation.
const pollInterval = 100 * time.Millisecond

func epInName(num int) string  { return fmt.Sprintf("ep%d_in", num) }
func epOutName(num int) string { return fmt.Sprintf("ep%d_out", num) }

func endpointNumber(address uint8) (int, error) {
	num := int(address & 0x0F)
	if num == 0 || num > MaxEndpoints {
		return 0, pkg.ErrInvalidEndpoint
	}
	return num, nil
}

// createFIFO creates a named pipe, replacing any stale file.
func createFIFO(dir, name string) error {
	path := filepath.Join(dir, name)
	_ = os.Remove(path)
	if err := unix.Mkfifo(path, 0o666); err != nil {
		return fmt.Errorf("mkfifo %s: %w", name, err)
	}
	return nil
}

// openFIFO opens a named pipe read-write and non-blocking so neither side
// waits for its peer to appear.
func openFIFO(dir, name string) (*os.File, error) {
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// readFull reads exactly len(buf) bytes, honoring ctx and closed.
func readFull(ctx context.Context, closed <-chan struct{}, f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-closed:
			return total, pkg.ErrCancelled
		default:
		}

		_ = f.SetReadDeadline(time.Now().Add(pollInterval))
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			return total, err
		}
	}
	return total, nil
}

// writeMessage sends [type, len_lo, len_hi, payload...] using scratch,
// which must hold headerSize+MaxPacketSize bytes. A full pipe is retried
// every pollInterval until ctx or closed ends the wait. Messages fit in
// PIPE_BUF, so a pipe write lands whole or not at all.
func writeMessage(ctx context.Context, closed <-chan struct{}, f *os.File, scratch []byte, msgType byte, data []byte) error {
	if len(data) > MaxPacketSize {
		return pkg.ErrBufferTooSmall
	}
	scratch[0] = msgType
	binary.LittleEndian.PutUint16(scratch[1:headerSize], uint16(len(data)))
	copy(scratch[headerSize:], data)
	total := headerSize + len(data)

	written := 0
	for written < total {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			return pkg.ErrCancelled
		default:
		}

		_ = f.SetWriteDeadline(time.Now().Add(pollInterval))
		m, err := f.Write(scratch[written:total])
		written += m
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			return err
		}
	}
	return nil
}

// readMessage reads one DATA message into buf and returns the payload
// length. A payload larger than buf is consumed and reported as
// ErrBufferTooSmall so the stream stays aligned.
func readMessage(ctx context.Context, closed <-chan struct{}, f *os.File, scratch, buf []byte) (int, error) {
	header := scratch[:headerSize]
	n, err := readFull(ctx, closed, f, header)
	if err != nil {
		return 0, err
	}
	if n < headerSize {
		return 0, io.ErrUnexpectedEOF
	}

	msgType := header[0]
	length := int(binary.LittleEndian.Uint16(header[1:headerSize]))
	if length > MaxPacketSize {
		return 0, pkg.ErrProtocol
	}

	payload := scratch[headerSize : headerSize+length]
	if _, err := readFull(ctx, closed, f, payload); err != nil {
		return 0, err
	}
	if msgType != msgData {
		return 0, pkg.ErrProtocol
	}
	if length > len(buf) {
		return 0, pkg.ErrBufferTooSmall
	}
	return copy(buf, payload), nil
}
