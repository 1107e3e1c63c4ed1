package pkg

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransferStatus_String(t *testing.T) {
	tests := []struct {
		status TransferStatus
		want   string
	}{
		{TransferStatusSuccess, "success"},
		{TransferStatusError, "error"},
		{TransferStatusStall, "stall"},
		{TransferStatusTimeout, "timeout"},
		{TransferStatusCancelled, "cancelled"},
		{TransferStatusOverrun, "overrun"},
		{TransferStatusUnderrun, "underrun"},
		{TransferStatus(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestStatusOfRoundTrip(t *testing.T) {
	for _, status := range []TransferStatus{
		TransferStatusSuccess,
		TransferStatusStall,
		TransferStatusTimeout,
		TransferStatusCancelled,
		TransferStatusOverrun,
		TransferStatusUnderrun,
	} {
		t.Run(status.String(), func(t *testing.T) {
			assert.Equal(t, status, StatusOf(status.Error()))
		})
	}
}

func TestStatusOfWrapped(t *testing.T) {
	err := fmt.Errorf("endpoint 0x81: %w", ErrCancelled)
	assert.Equal(t, TransferStatusCancelled, StatusOf(err))
	assert.Equal(t, TransferStatusError, StatusOf(errors.New("other")))
}

func TestSentinelErrorsDistinct(t *testing.T) {
	errs := []error{
		ErrOverrun, ErrUnderrun, ErrFrameSize, ErrInvalidGain,
		ErrStall, ErrTimeout, ErrCancelled, ErrProtocol, ErrNoDevice,
		ErrNotConfigured, ErrInvalidEndpoint, ErrBufferTooSmall, ErrNoResources,
		ErrAlreadyRunning, ErrNotRunning, ErrInvalidParameter,
		ErrInvalidCommand, ErrLineTooLong, ErrLeaseUnavailable, ErrBusy,
		ErrInvalidResponse,
	}
	for i := range errs {
		for j := i + 1; j < len(errs); j++ {
			assert.False(t, errors.Is(errs[i], errs[j]), "%v aliases %v", errs[i], errs[j])
		}
	}
}
