package usb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/soundbooster/pkg"
)

func TestIsoPacketLayout(t *testing.T) {
	ep := NewAudioEndpoint(0x01)
	buf := make([]byte, 3*int(ep.MaxPacketSize))
	tr := NewIsochronousTransfer(ep, buf, 3)

	require.Equal(t, 3, tr.NumIsoPackets)
	for i := 0; i < 3; i++ {
		p := tr.IsoPacket(i)
		require.NotNil(t, p)
		assert.Equal(t, i*192, p.Offset)
		assert.Equal(t, 192, p.Length)
	}
	assert.Nil(t, tr.IsoPacket(3))
	assert.Nil(t, tr.IsoPacket(-1))
}

func TestIsoPacketClamp(t *testing.T) {
	ep := NewAudioEndpoint(0x01)
	assert.Equal(t, MaxIsoPackets, NewIsochronousTransfer(ep, nil, 100).NumIsoPackets)
	assert.Equal(t, 1, NewIsochronousTransfer(ep, nil, 0).NumIsoPackets)
}

func TestCompleteFillsPacketsOnce(t *testing.T) {
	ep := NewAudioEndpoint(0x01)
	tr := NewIsochronousTransfer(ep, make([]byte, 384), 2)

	calls := 0
	tr.WithCallback(func(*Transfer) { calls++ })

	tr.Complete(pkg.TransferStatusSuccess, 200, nil)
	tr.Complete(pkg.TransferStatusError, 0, pkg.ErrProtocol)

	assert.Equal(t, 1, calls)
	assert.True(t, tr.IsSuccess())
	assert.False(t, tr.CompletedAt.IsZero())
	assert.Equal(t, 192, tr.IsoPacket(0).ActualLength)
	assert.Equal(t, 8, tr.IsoPacket(1).ActualLength)
	assert.Equal(t, 200, tr.ActualIsoLength())
}

func TestResetForResubmit(t *testing.T) {
	ep := NewAudioEndpoint(0x81)
	tr := NewIsochronousTransfer(ep, make([]byte, 192), 1)
	tr.Cancel()
	tr.Complete(pkg.TransferStatusCancelled, 0, pkg.ErrCancelled)
	require.True(t, tr.IsCancelled())

	tr.Reset()
	assert.False(t, tr.IsSuccess())
	assert.False(t, tr.IsCancelled())
	assert.NoError(t, tr.Error)
	assert.Zero(t, tr.ActualIsoLength())
	assert.True(t, tr.IsIn())
}
