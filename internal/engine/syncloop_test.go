package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corkline/corkboard/internal/client"
	"github.com/corkline/corkboard/internal/domain"
)

// startLoop runs a SyncLoop against the fake clock and synchronizes on the
// loop timer being armed before returning.
func startLoop(t *testing.T, e *Engine, cfg SyncConfig) *SyncLoop {
	t.Helper()

	// Let the saver park its own timer so BlockUntil only ever sees the
	// loop timer.
	time.Sleep(20 * time.Millisecond)

	loop := NewSyncLoop(e, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop
}

func testSyncConfig() SyncConfig {
	return SyncConfig{
		MinDelay:     2500 * time.Millisecond,
		MidDelay:     5 * time.Second,
		MaxDelay:     10 * time.Second,
		ErrorCap:     15 * time.Second,
		QuietPeriod:  900 * time.Millisecond,
		KickDelay:    10 * time.Millisecond,
		UnchangedMid: 3,
		UnchangedMax: 8,
	}
}

func TestSyncLoop_ErrorBackoffDoublesUpToCap(t *testing.T) {
	api := &fakeAPI{t: t}
	api.getBoard = func(context.Context, string) (*client.BoardSnapshot, string, bool, error) {
		return nil, "", false, errors.New("connection refused")
	}
	e, clock := newTestEngine(t, api)
	startLoop(t, e, testSyncConfig())

	clock.BlockUntil(1)
	clock.Advance(2500 * time.Millisecond)
	clock.BlockUntil(1)
	assert.Equal(t, int32(1), api.getCalls.Load())

	// One failure doubles the delay to 5s: half of it passes silently.
	clock.Advance(2500 * time.Millisecond)
	assert.Equal(t, int32(1), api.getCalls.Load())
	clock.Advance(2500 * time.Millisecond)
	clock.BlockUntil(1)
	assert.Equal(t, int32(2), api.getCalls.Load())

	// Second failure: 10s.
	clock.Advance(10 * time.Second)
	clock.BlockUntil(1)
	assert.Equal(t, int32(3), api.getCalls.Load())

	// Third failure would be 20s but the cap holds it at 15s.
	clock.Advance(14 * time.Second)
	assert.Equal(t, int32(3), api.getCalls.Load())
	clock.Advance(time.Second)
	clock.BlockUntil(1)
	assert.Equal(t, int32(4), api.getCalls.Load())
}

func TestSyncLoop_KickBypassesBackoff(t *testing.T) {
	api := &fakeAPI{t: t}
	api.getBoard = func(context.Context, string) (*client.BoardSnapshot, string, bool, error) {
		return nil, "", false, errors.New("connection refused")
	}
	e, clock := newTestEngine(t, api)
	loop := startLoop(t, e, testSyncConfig())

	clock.BlockUntil(1)
	clock.Advance(2500 * time.Millisecond)
	clock.BlockUntil(1)
	assert.Equal(t, int32(1), api.getCalls.Load())

	// The loop now waits 5s, but a focus kick re-arms a near-immediate
	// tick.
	loop.Kick()
	time.Sleep(20 * time.Millisecond)
	clock.Advance(10 * time.Millisecond)
	clock.BlockUntil(1)
	assert.Equal(t, int32(2), api.getCalls.Load())
}

func TestSyncLoop_UnchangedStreakSlowsPolling(t *testing.T) {
	api := &fakeAPI{t: t}
	api.getBoard = func(_ context.Context, etag string) (*client.BoardSnapshot, string, bool, error) {
		return nil, etag, true, nil
	}
	e, clock := newTestEngine(t, api)
	startLoop(t, e, testSyncConfig())

	clock.BlockUntil(1)

	// Three base-delay ticks build the first streak threshold.
	for i := 1; i <= 3; i++ {
		clock.Advance(2500 * time.Millisecond)
		clock.BlockUntil(1)
		assert.Equal(t, int32(i), api.getCalls.Load())
	}

	// Streak >= 3: the delay is now 5s.
	clock.Advance(2500 * time.Millisecond)
	assert.Equal(t, int32(3), api.getCalls.Load())
	for i := 4; i <= 8; i++ {
		clock.Advance(5 * time.Second)
		clock.BlockUntil(1)
	}
	assert.Equal(t, int32(8), api.getCalls.Load())

	// Streak >= 8: the delay is now 10s.
	clock.Advance(5 * time.Second)
	assert.Equal(t, int32(8), api.getCalls.Load())
	clock.Advance(5 * time.Second)
	clock.BlockUntil(1)
	assert.Equal(t, int32(9), api.getCalls.Load())
}

func TestSyncLoop_ChangedTickResetsDelay(t *testing.T) {
	version := int64(0)
	api := &fakeAPI{t: t}
	api.getBoard = func(context.Context, string) (*client.BoardSnapshot, string, bool, error) {
		version++
		s := domain.NewBoardState()
		s.NextCardID = version + 1 // different content every poll
		return &client.BoardSnapshot{State: s, Version: version}, "", false, nil
	}
	e, clock := newTestEngine(t, api)
	startLoop(t, e, testSyncConfig())

	// Changed ticks arm the saver timer too, so BlockUntil cannot single
	// out the loop timer here; poll the call count instead.
	clock.BlockUntil(1)
	clock.Advance(2500 * time.Millisecond)
	require.Eventually(t, func() bool { return api.getCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	// A changed tick keeps the loop at the base delay.
	time.Sleep(20 * time.Millisecond)
	clock.Advance(2500 * time.Millisecond)
	require.Eventually(t, func() bool { return api.getCalls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), e.Version())
}

func TestSyncLoop_HiddenDefersUntilVisible(t *testing.T) {
	api := &fakeAPI{t: t}
	api.getBoard = func(_ context.Context, etag string) (*client.BoardSnapshot, string, bool, error) {
		return nil, etag, true, nil
	}
	e, clock := newTestEngine(t, api)
	loop := startLoop(t, e, testSyncConfig())

	loop.SetHidden(true)
	clock.BlockUntil(1)
	clock.Advance(2500 * time.Millisecond)

	// The tick fired but the loop parked without touching the network.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), api.getCalls.Load())

	// Becoming visible kicks a near-immediate tick.
	loop.SetHidden(false)
	time.Sleep(20 * time.Millisecond)
	clock.Advance(10 * time.Millisecond)
	clock.BlockUntil(1)
	assert.Equal(t, int32(1), api.getCalls.Load())
}
