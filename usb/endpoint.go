package usb

import (
	"fmt"

	"github.com/ardnew/soundbooster/audio"
	"github.com/ardnew/soundbooster/pkg"
	"github.com/ardnew/soundbooster/usb/hal"
)

// Endpoint transfer types (USB 2.0 Table 9-13).
const (
	EndpointTypeControl     = 0x00
	EndpointTypeIsochronous = 0x01
	EndpointTypeBulk        = 0x02
	EndpointTypeInterrupt   = 0x03
)

// Endpoint directions.
const (
	EndpointDirectionOut = 0x00 // Host to device
	EndpointDirectionIn  = 0x80 // Device to host
)

// Isochronous synchronization types (bits 2-3 of Attributes).
const (
	IsoSyncNone     = 0x00
	IsoSyncAsync    = 0x04
	IsoSyncAdaptive = 0x08
	IsoSyncSync     = 0x0C
)

// Isochronous usage types (bits 4-5 of Attributes).
const (
	IsoUsageData     = 0x00
	IsoUsageFeedback = 0x10
	IsoUsageImplicit = 0x20
)

// Endpoint describes one data endpoint of the audio function.
type Endpoint struct {
	Address       uint8  // Endpoint address including direction
	Attributes    uint8  // Transfer type and sync/usage for isochronous
	MaxPacketSize uint16 // Maximum packet size
	Interval      uint8  // Service interval in frames
}

// NewAudioEndpoint returns an asynchronous isochronous data endpoint sized
// for one audio frame per service interval.
func NewAudioEndpoint(address uint8) *Endpoint {
	return &Endpoint{
		Address:       address,
		Attributes:    EndpointTypeIsochronous | IsoSyncAsync | IsoUsageData,
		MaxPacketSize: audio.FrameBytes,
		Interval:      1,
	}
}

// Number returns the endpoint number (0-15).
func (e *Endpoint) Number() uint8 {
	return e.Address & 0x0F
}

// Direction returns EndpointDirectionIn or EndpointDirectionOut.
func (e *Endpoint) Direction() uint8 {
	return e.Address & 0x80
}

// IsIn returns true if this is an IN endpoint (device to host).
func (e *Endpoint) IsIn() bool {
	return e.Direction() == EndpointDirectionIn
}

// IsOut returns true if this is an OUT endpoint (host to device).
func (e *Endpoint) IsOut() bool {
	return e.Direction() == EndpointDirectionOut
}

// TransferType returns the transfer type bits.
func (e *Endpoint) TransferType() uint8 {
	return e.Attributes & 0x03
}

// IsIsochronous returns true if this is an isochronous endpoint.
func (e *Endpoint) IsIsochronous() bool {
	return e.TransferType() == EndpointTypeIsochronous
}

// IsoSyncType returns the isochronous synchronization type.
func (e *Endpoint) IsoSyncType() uint8 {
	return e.Attributes & 0x0C
}

// Validate reports whether the endpoint can be armed.
func (e *Endpoint) Validate() error {
	if e.Number() == 0 {
		return fmt.Errorf("%w: 0x%02X is the control endpoint", pkg.ErrInvalidEndpoint, e.Address)
	}
	if e.MaxPacketSize == 0 {
		return fmt.Errorf("%w: 0x%02X has zero max packet size", pkg.ErrInvalidEndpoint, e.Address)
	}
	return nil
}

// Config returns the HAL representation of the endpoint.
func (e *Endpoint) Config() hal.EndpointConfig {
	return hal.EndpointConfig{
		Address:       e.Address,
		Attributes:    e.Attributes,
		MaxPacketSize: e.MaxPacketSize,
		Interval:      e.Interval,
	}
}

// String returns a short description such as "EP1 OUT iso/async 192B".
func (e *Endpoint) String() string {
	dir := "OUT"
	if e.IsIn() {
		dir = "IN"
	}
	kind := [...]string{"ctrl", "iso", "bulk", "intr"}[e.TransferType()]
	if e.IsIsochronous() {
		kind += "/" + [...]string{"none", "async", "adaptive", "sync"}[e.IsoSyncType()>>2]
	}
	return fmt.Sprintf("EP%d %s %s %dB", e.Number(), dir, kind, e.MaxPacketSize)
}
