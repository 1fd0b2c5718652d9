package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/corkline/corkboard/internal/board"
	"github.com/corkline/corkboard/internal/fingerprint"
)

// SyncConfig tunes the adaptive poll loop. Zero values take the defaults.
type SyncConfig struct {
	MinDelay time.Duration // base delay, and the reset point
	MidDelay time.Duration // after UnchangedMid consecutive unchanged ticks
	MaxDelay time.Duration // after UnchangedMax
	ErrorCap time.Duration // ceiling for error backoff
	// QuietPeriod is the minimum time since the last local edit before
	// the loop may overwrite local state with the server copy.
	QuietPeriod time.Duration
	// KickDelay re-arms the timer after a focus/visibility kick.
	KickDelay time.Duration

	UnchangedMid int
	UnchangedMax int
}

func (c *SyncConfig) defaults() {
	if c.MinDelay <= 0 {
		c.MinDelay = 2500 * time.Millisecond
	}
	if c.MidDelay <= 0 {
		c.MidDelay = 5 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.ErrorCap <= 0 {
		c.ErrorCap = 15 * time.Second
	}
	if c.QuietPeriod <= 0 {
		c.QuietPeriod = 900 * time.Millisecond
	}
	if c.KickDelay <= 0 {
		c.KickDelay = 10 * time.Millisecond
	}
	if c.UnchangedMid <= 0 {
		c.UnchangedMid = 3
	}
	if c.UnchangedMax <= 0 {
		c.UnchangedMax = 8
	}
}

type tickOutcome int

const (
	tickChanged tickOutcome = iota
	tickUnchanged
	tickErrored
	tickSkipped
)

// SyncLoop polls the server board with adaptive delay and replaces local
// state when the fingerprints diverge.
type SyncLoop struct {
	engine *Engine
	clock  clockwork.Clock
	cfg    SyncConfig

	kick   chan struct{}
	hidden atomic.Bool
}

func NewSyncLoop(e *Engine, cfg SyncConfig) *SyncLoop {
	cfg.defaults()
	return &SyncLoop{
		engine: e,
		clock:  e.clock,
		cfg:    cfg,
		kick:   make(chan struct{}, 1),
	}
}

// Kick re-arms a near-immediate tick, bypassing any backoff. Called on
// window focus or the tab becoming visible.
func (l *SyncLoop) Kick() {
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

// SetHidden defers all ticks while true; turning visible kicks the loop.
func (l *SyncLoop) SetHidden(hidden bool) {
	was := l.hidden.Swap(hidden)
	if was && !hidden {
		l.Kick()
	}
}

// Run polls until ctx is cancelled.
func (l *SyncLoop) Run(ctx context.Context) {
	var unchangedStreak, errorStreak int
	delay := l.cfg.MinDelay

	timer := l.clock.NewTimer(delay)
	defer stopAndDrain(timer)

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.kick:
			stopAndDrain(timer)
			timer.Reset(l.cfg.KickDelay)
			continue
		case <-timer.Chan():
		}

		if l.hidden.Load() {
			// No network while backgrounded; wait for visibility.
			select {
			case <-ctx.Done():
				return
			case <-l.kick:
				timer.Reset(l.cfg.KickDelay)
				continue
			}
		}

		switch l.engine.syncTick(ctx, l.cfg.QuietPeriod) {
		case tickChanged:
			unchangedStreak, errorStreak = 0, 0
			delay = l.cfg.MinDelay
		case tickUnchanged:
			errorStreak = 0
			unchangedStreak++
			switch {
			case unchangedStreak >= l.cfg.UnchangedMax:
				delay = l.cfg.MaxDelay
			case unchangedStreak >= l.cfg.UnchangedMid:
				delay = l.cfg.MidDelay
			default:
				delay = l.cfg.MinDelay
			}
		case tickErrored:
			errorStreak++
			delay = l.cfg.MinDelay << errorStreak
			if delay > l.cfg.ErrorCap || delay <= 0 {
				delay = l.cfg.ErrorCap
			}
		case tickSkipped:
			// A guard blocked the tick; resume promptly once it clears.
			unchangedStreak, errorStreak = 0, 0
			delay = l.cfg.MinDelay
		}

		timer.Reset(delay)
	}
}

// syncTick performs one conditional fetch-and-compare cycle.
func (e *Engine) syncTick(ctx context.Context, quiet time.Duration) tickOutcome {
	now := e.clock.Now()

	e.mu.Lock()
	switch {
	case e.saving:
		e.mu.Unlock()
		return tickSkipped
	case e.interacting.Load():
		e.mu.Unlock()
		return tickSkipped
	case !e.lastLocalEdit.IsZero() && now.Sub(e.lastLocalEdit) < quiet:
		e.mu.Unlock()
		return tickSkipped
	case e.dirty:
		// Unconfirmed local edits win; push them instead of pulling.
		e.mu.Unlock()
		e.saveNow(ctx)
		return tickSkipped
	}
	etag := e.boardETag
	e.mu.Unlock()

	snap, newETag, notModified, err := e.api.GetBoard(ctx, etag)
	if err != nil {
		log.Debug().Err(err).Msg("board poll failed")
		return tickErrored
	}
	if notModified {
		return tickUnchanged
	}

	serverFP := fingerprint.Sum(snap.State)

	e.mu.Lock()
	if serverFP == fingerprint.Sum(e.state) {
		e.boardETag = newETag
		e.version = snap.Version
		e.lastSyncedFP = serverFP
		e.dirty = false
		e.mu.Unlock()
		return tickUnchanged
	}
	// Re-check the edit guards; a mutation may have landed mid-fetch. The
	// version and etag are left alone so the next save still conflicts
	// against whatever the server holds now.
	if e.dirty || e.saving || e.interacting.Load() {
		e.mu.Unlock()
		return tickSkipped
	}
	e.boardETag = newETag
	e.version = snap.Version

	next := board.Apply(e.state, board.StateReplace{State: snap.State}, now)
	e.state = next
	e.lastSyncedFP = serverFP
	e.dirty = fingerprint.Sum(next) != serverFP
	e.mu.Unlock()

	// Persist the replacement locally. When normalization had to repair
	// the server payload the fingerprints differ and the save path pushes
	// the repaired copy back.
	e.saver.Notify(next)
	log.Info().Int64("version", snap.Version).Msg("replaced local board with server copy")
	return tickChanged
}

func stopAndDrain(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
