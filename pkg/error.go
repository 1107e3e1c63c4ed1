package pkg

import "errors"

// Audio pipeline errors.
var (
	// ErrOverrun indicates a producer found its ring buffer full.
	ErrOverrun = errors.New("buffer overrun")

	// ErrUnderrun indicates a consumer found its ring buffer empty.
	ErrUnderrun = errors.New("buffer underrun")

	// ErrFrameSize indicates a byte payload is not a whole number of frames.
	ErrFrameSize = errors.New("invalid frame size")

	// ErrInvalidGain indicates a gain value outside the supported range.
	ErrInvalidGain = errors.New("invalid gain")
)

// USB transport errors.
var (
	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrTimeout indicates a transfer timeout.
	ErrTimeout = errors.New("transfer timeout")

	// ErrCancelled indicates a cancelled transfer.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrProtocol indicates a protocol error.
	ErrProtocol = errors.New("protocol error")

	// ErrNoDevice indicates the device is not present.
	ErrNoDevice = errors.New("device not present")

	// ErrNotConfigured indicates the device or stack is not configured.
	ErrNotConfigured = errors.New("not configured")

	// ErrInvalidEndpoint indicates an invalid endpoint address.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrNoResources indicates insufficient resources (e.g., pending transfer slots).
	ErrNoResources = errors.New("no resources available")
)

// Scheduler and lifecycle errors.
var (
	// ErrAlreadyRunning indicates the component is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the component is not running.
	ErrNotRunning = errors.New("not running")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Control plane errors.
var (
	// ErrInvalidCommand indicates a control line that does not decode.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrLineTooLong indicates a control line exceeded the maximum length.
	ErrLineTooLong = errors.New("line too long")

	// ErrLeaseUnavailable indicates no DHCP lease could be acquired.
	ErrLeaseUnavailable = errors.New("lease unavailable")

	// ErrBusy indicates the control plane is already serving a client.
	ErrBusy = errors.New("busy")

	// ErrInvalidResponse indicates a peripheral replied with unexpected data.
	ErrInvalidResponse = errors.New("invalid response")
)

// TransferStatus represents the completion status of an isochronous transfer.
type TransferStatus int

// Transfer status values.
const (
	TransferStatusSuccess   TransferStatus = iota // Transfer completed successfully
	TransferStatusError                           // Transfer failed with error
	TransferStatusStall                           // Endpoint stalled
	TransferStatusTimeout                         // Transfer timed out
	TransferStatusCancelled                       // Transfer was cancelled
	TransferStatusOverrun                         // Data overrun
	TransferStatusUnderrun                        // Data underrun
)

// String returns a string representation of the transfer status.
func (s TransferStatus) String() string {
	switch s {
	case TransferStatusSuccess:
		return "success"
	case TransferStatusError:
		return "error"
	case TransferStatusStall:
		return "stall"
	case TransferStatusTimeout:
		return "timeout"
	case TransferStatusCancelled:
		return "cancelled"
	case TransferStatusOverrun:
		return "overrun"
	case TransferStatusUnderrun:
		return "underrun"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the transfer status.
func (s TransferStatus) Error() error {
	switch s {
	case TransferStatusSuccess:
		return nil
	case TransferStatusStall:
		return ErrStall
	case TransferStatusTimeout:
		return ErrTimeout
	case TransferStatusCancelled:
		return ErrCancelled
	case TransferStatusOverrun:
		return ErrOverrun
	case TransferStatusUnderrun:
		return ErrUnderrun
	default:
		return ErrProtocol
	}
}

// StatusOf converts an error to a transfer status.
func StatusOf(err error) TransferStatus {
	switch {
	case err == nil:
		return TransferStatusSuccess
	case errors.Is(err, ErrStall):
		return TransferStatusStall
	case errors.Is(err, ErrTimeout):
		return TransferStatusTimeout
	case errors.Is(err, ErrCancelled):
		return TransferStatusCancelled
	case errors.Is(err, ErrOverrun):
		return TransferStatusOverrun
	case errors.Is(err, ErrUnderrun):
		return TransferStatusUnderrun
	default:
		return TransferStatusError
	}
}
