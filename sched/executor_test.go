package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/soundbooster/pkg"
)

func runExecutor(t *testing.T, e *Executor) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Error("executor did not stop")
		}
	})
	return cancel
}

func TestSpawnLimits(t *testing.T) {
	e := New()
	for i := 0; i < MaxTasks; i++ {
		_, err := e.Spawn("t", TaskFunc(func(time.Time) {}))
		require.NoError(t, err)
	}
	_, err := e.Spawn("overflow", TaskFunc(func(time.Time) {}))
	assert.ErrorIs(t, err, pkg.ErrNoResources)
}

func TestInitialPoll(t *testing.T) {
	e := New()
	var polled atomic.Int32
	_, err := e.Spawn("once", TaskFunc(func(time.Time) { polled.Add(1) }))
	require.NoError(t, err)

	runExecutor(t, e)
	require.Eventually(t, func() bool { return polled.Load() == 1 }, time.Second, time.Millisecond)
}

func TestWakeCoalesces(t *testing.T) {
	e := New()
	release := make(chan struct{})
	var polls atomic.Int32
	w, err := e.Spawn("slow", TaskFunc(func(time.Time) {
		if polls.Add(1) == 1 {
			<-release
		}
	}))
	require.NoError(t, err)

	runExecutor(t, e)
	require.Eventually(t, func() bool { return polls.Load() == 1 }, time.Second, time.Millisecond)

	// Task is mid-poll; many wakes must collapse into a single re-poll.
	for i := 0; i < 100; i++ {
		w.Wake()
	}
	close(release)

	require.Eventually(t, func() bool { return polls.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), polls.Load())
	assert.Equal(t, uint64(2), e.Polls("slow"))
}

func TestWakeFromOtherGoroutines(t *testing.T) {
	e := New()
	var polls atomic.Int32
	w, err := e.Spawn("irq", TaskFunc(func(time.Time) { polls.Add(1) }))
	require.NoError(t, err)
	runExecutor(t, e)

	for i := 0; i < 8; i++ {
		go w.Wake()
	}
	require.Eventually(t, func() bool { return polls.Load() >= 2 }, time.Second, time.Millisecond)
}

func TestEvery(t *testing.T) {
	e := New()
	var polls atomic.Int32
	w, err := e.Spawn("tick", TaskFunc(func(time.Time) { polls.Add(1) }))
	require.NoError(t, err)
	require.NoError(t, e.Every(2*time.Millisecond, w))

	assert.ErrorIs(t, e.Every(0, w), pkg.ErrInvalidParameter)
	assert.ErrorIs(t, e.Every(time.Millisecond, Waker{}), pkg.ErrInvalidParameter)

	runExecutor(t, e)
	require.Eventually(t, func() bool { return polls.Load() >= 5 }, 2*time.Second, time.Millisecond)
}

func TestSpawnWhileRunning(t *testing.T) {
	e := New()
	_, err := e.Spawn("a", TaskFunc(func(time.Time) {}))
	require.NoError(t, err)
	runExecutor(t, e)

	require.Eventually(t, func() bool {
		_, err := e.Spawn("late", TaskFunc(func(time.Time) {}))
		return err == pkg.ErrAlreadyRunning
	}, time.Second, time.Millisecond)
}

func TestZeroWakerNoop(t *testing.T) {
	var w Waker
	assert.False(t, w.Valid())
	assert.NotPanics(t, w.Wake)
}
