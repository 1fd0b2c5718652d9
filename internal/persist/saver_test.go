package persist_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corkline/corkboard/internal/board"
	"github.com/corkline/corkboard/internal/domain"
	"github.com/corkline/corkboard/internal/persist"
)

func TestSaver_DebouncesToLatestSnapshot(t *testing.T) {
	t.Parallel()

	store, err := persist.NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	clock := clockwork.NewFakeClock()
	flushed := make(chan struct{}, 4)
	saver := persist.NewSaver(store, clock, 350*time.Millisecond, func() {
		flushed <- struct{}{}
	})
	defer saver.Close()

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s1 := domain.NewBoardState()
	s1 = board.Apply(s1, board.Create{Title: "first"}, now)
	s2 := board.Apply(s1, board.Create{Title: "second"}, now.Add(time.Second))

	// Two notifies inside one window collapse into a single write of the
	// latest snapshot.
	saver.Notify(s1)
	saver.Notify(s2)

	// Keep nudging the fake clock until the window elapses; the reset races
	// the first advance otherwise.
	require.Eventually(t, func() bool {
		clock.Advance(400 * time.Millisecond)
		select {
		case <-flushed:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "debounced write never fired")

	got, err := persist.LoadState(context.Background(), store)
	require.NoError(t, err)
	assert.Len(t, got.CardsByID, 2)

	// Nothing pending, so no second write.
	select {
	case <-flushed:
		t.Fatal("unexpected extra flush")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSaver_CloseFlushesPendingWrite(t *testing.T) {
	t.Parallel()

	store, err := persist.NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	clock := clockwork.NewFakeClock()
	hookRan := false
	saver := persist.NewSaver(store, clock, 350*time.Millisecond, func() {
		hookRan = true
	})

	state := sampleState(t)
	saver.Notify(state)

	// The window never elapses; Close must still write the snapshot, but it
	// must not run the hook and queue new work during teardown.
	require.NoError(t, saver.Close())
	assert.False(t, hookRan)

	got, err := persist.LoadState(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, state.NextCardID, got.NextCardID)
}

func TestSaver_CloseWithNothingPending(t *testing.T) {
	t.Parallel()

	store, err := persist.NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	saver := persist.NewSaver(store, clockwork.NewFakeClock(), 0, nil)
	require.NoError(t, saver.Close())

	_, err = persist.LoadState(context.Background(), store)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
