package hal

import "context"

// Speed represents the USB connection speed.
type Speed uint8

// USB speed constants.
const (
	SpeedUnknown Speed = iota // Not connected or unknown
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed"
	case SpeedFull:
		return "Full Speed"
	case SpeedHigh:
		return "High Speed"
	default:
		return "Unknown"
	}
}

// EndpointConfig describes a data endpoint for the HAL.
type EndpointConfig struct {
	Address       uint8  // Endpoint address including direction bit
	Attributes    uint8  // Transfer type and sync/usage flags
	MaxPacketSize uint16 // Maximum packet size
	Interval      uint8  // Service interval in frames
}

// Number returns the endpoint number (0-15).
func (e *EndpointConfig) Number() uint8 {
	return e.Address & 0x0F
}

// IsIn returns true if this is an IN endpoint (device to host).
func (e *EndpointConfig) IsIn() bool {
	return e.Address&0x80 != 0
}

// TransferType returns the transfer type bits.
func (e *EndpointConfig) TransferType() uint8 {
	return e.Attributes & 0x03
}

// DeviceHAL is the hardware boundary of the USB device side.
//
// Read and Write block the calling goroutine; the stack only calls them from
// transfer goroutines, never from the executor.
type DeviceHAL interface {
	// Init prepares the controller. The context can cancel initialization.
	Init(ctx context.Context) error

	// Start attaches to the bus. After Start the host can see the device.
	Start() error

	// Stop detaches from the bus and releases controller resources.
	Stop() error

	// ConfigureEndpoints arms the data endpoints of the active configuration.
	// Nil or empty unconfigures all endpoints.
	ConfigureEndpoints(endpoints []EndpointConfig) error

	// Read receives one OUT packet into buf and returns its length.
	Read(ctx context.Context, address uint8, buf []byte) (int, error)

	// Write sends one IN packet.
	Write(ctx context.Context, address uint8, data []byte) (int, error)

	// IsConnected returns true if a host is attached.
	IsConnected() bool

	// GetSpeed returns the negotiated speed.
	GetSpeed() Speed

	// WaitConnect blocks until a host attaches or ctx is done.
	WaitConnect(ctx context.Context) error

	// WaitDisconnect blocks until the host detaches or ctx is done.
	WaitDisconnect(ctx context.Context) error
}
