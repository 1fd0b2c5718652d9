package persist

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/corkline/corkboard/internal/domain"
)

// DefaultDebounce is the write-coalescing window.
const DefaultDebounce = 350 * time.Millisecond

// Saver debounces board writes: every Notify restarts the window and only
// the latest snapshot is ever written. Close flushes synchronously, so a
// teardown never loses the last edit. The optional onFlush hook fires
// after each write and is where the engine queues its remote save.
type Saver struct {
	store   BlobStore
	clock   clockwork.Clock
	delay   time.Duration
	onFlush func()

	mu      sync.Mutex
	pending *domain.BoardState

	kick   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSaver(store BlobStore, clock clockwork.Clock, delay time.Duration, onFlush func()) *Saver {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Saver{
		store:   store,
		clock:   clock,
		delay:   delay,
		onFlush: onFlush,
		kick:    make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// Notify records state as the latest snapshot and restarts the debounce
// window. The state must be an immutable published snapshot; Saver does
// not copy it.
func (s *Saver) Notify(state *domain.BoardState) {
	s.mu.Lock()
	s.pending = state
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Close stops the debounce loop and flushes any unwritten snapshot. The
// onFlush hook is not run: teardown must not queue new remote work.
func (s *Saver) Close() error {
	s.cancel()
	<-s.done
	return s.flush(context.Background(), false)
}

func (s *Saver) run(ctx context.Context) {
	defer close(s.done)

	timer := s.clock.NewTimer(s.delay)
	stopAndDrain(timer)

	for {
		select {
		case <-s.kick:
			stopAndDrain(timer)
			timer.Reset(s.delay)
		case <-timer.Chan():
			if err := s.flush(ctx, true); err != nil {
				log.Warn().Err(err).Msg("debounced board write failed")
			}
		case <-ctx.Done():
			stopAndDrain(timer)
			return
		}
	}
}

func (s *Saver) flush(ctx context.Context, runHook bool) error {
	s.mu.Lock()
	state := s.pending
	s.pending = nil
	s.mu.Unlock()

	if state == nil {
		return nil
	}

	err := SaveState(ctx, s.store, state)
	if runHook && s.onFlush != nil {
		s.onFlush()
	}
	return err
}

// stopAndDrain stops a timer and drains its channel so a stale fire can't
// leak into the next window.
func stopAndDrain(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
