package memhal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/soundbooster/pkg"
)

func TestLifecycle(t *testing.T) {
	h := New(2)
	assert.ErrorIs(t, h.Start(), pkg.ErrNotConfigured)
	require.NoError(t, h.Init(context.Background()))
	assert.ErrorIs(t, h.Init(context.Background()), pkg.ErrAlreadyRunning)

	require.NoError(t, h.Start())
	assert.True(t, h.IsConnected())
	require.NoError(t, h.WaitConnect(context.Background()))

	h.Detach()
	require.NoError(t, h.WaitDisconnect(context.Background()))
	assert.False(t, h.IsConnected())

	require.NoError(t, h.Stop())
	assert.ErrorIs(t, h.WaitConnect(context.Background()), pkg.ErrCancelled)
}

func TestPacketsKeepBoundaries(t *testing.T) {
	h := New(4)
	ctx := context.Background()
	require.NoError(t, h.HostWrite(ctx, 0x01, []byte{1, 2}))
	require.NoError(t, h.HostWrite(ctx, 0x01, []byte{3}))

	buf := make([]byte, 8)
	n, err := h.Read(ctx, 0x01, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, buf[:n])
	n, err = h.Read(ctx, 0x01, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, buf[:n])

	_, err = h.Write(ctx, 0x81, []byte{7})
	require.NoError(t, err)
	n, err = h.HostRead(ctx, 0x81, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, buf[:n])
}

func TestBlockedIOUnblocks(t *testing.T) {
	h := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.Read(ctx, 0x01, make([]byte, 4))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = h.Write(context.Background(), 0x81, []byte{1})
	require.NoError(t, err)
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = h.Stop()
	}()
	_, err = h.Write(context.Background(), 0x81, []byte{2})
	assert.ErrorIs(t, err, pkg.ErrCancelled, "queue full until stop")
}

func TestBufferTooSmallAndInvalidEndpoint(t *testing.T) {
	h := New(1)
	ctx := context.Background()
	require.NoError(t, h.HostWrite(ctx, 0x02, []byte{1, 2, 3}))
	_, err := h.Read(ctx, 0x02, make([]byte, 2))
	assert.ErrorIs(t, err, pkg.ErrBufferTooSmall)

	_, err = h.Read(ctx, 0x00, nil)
	assert.ErrorIs(t, err, pkg.ErrInvalidEndpoint)
}
