package engine

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/corkline/corkboard/internal/client"
	"github.com/corkline/corkboard/internal/fingerprint"
)

// queueSave is the Saver flush hook: it kicks a remote save without
// blocking the debounce loop.
func (e *Engine) queueSave() {
	go e.saveNow(context.Background())
}

// saveNow runs one cycle of the optimistic save protocol.
//
// At most one PUT is outstanding; a state change arriving mid-flight sets
// savePending and the fresh cycle reads the latest state, never a queued
// stale payload. A version conflict is resolved by a single forced
// overwrite without baseVersion. That assumes one active writer per
// account; a multi-writer deployment needs a real merge here.
func (e *Engine) saveNow(ctx context.Context) {
	e.mu.Lock()
	if e.saving {
		e.savePending = true
		e.mu.Unlock()
		return
	}
	fp := fingerprint.Sum(e.state)
	if fp == e.lastSyncedFP {
		// Already confirmed saved; skip the network call entirely.
		e.dirty = false
		e.mu.Unlock()
		return
	}
	snapshot := e.state // published states are immutable
	base := e.version
	e.saving = true
	e.mu.Unlock()

	version, err := e.api.PutBoard(ctx, snapshot, &base)
	if client.IsVersionConflict(err) {
		log.Warn().Int64("baseVersion", base).Msg("board version conflict; forcing overwrite")
		version, err = e.api.PutBoard(ctx, snapshot, nil)
	}

	e.mu.Lock()
	e.saving = false
	rerun := false
	switch {
	case err == nil:
		e.version = version
		e.lastSyncedFP = fp
		// The server copy changed under our old etag.
		e.boardETag = ""
		e.dirty = fingerprint.Sum(e.state) != fp
		rerun = e.savePending || e.dirty
		log.Debug().Int64("version", version).Msg("board saved")
	case client.IsRateLimited(err):
		// Surfaced, never silently retried; the payload stays queued for
		// the next debounce or sync tick.
		cooldown := e.onCooldown
		e.savePending = false
		e.mu.Unlock()
		log.Warn().Err(err).Msg("board save rate limited")
		if cooldown != nil {
			cooldown(err.Error())
		}
		return
	default:
		// Transient: keep dirty; the next scheduled tick retries with the
		// freshest state.
		e.savePending = false
		log.Warn().Err(err).Msg("board save failed; will retry with latest state")
	}
	e.savePending = false
	e.mu.Unlock()

	if rerun {
		e.saveNow(ctx)
	}
}

// SaveIfDirty triggers a save cycle when local changes have not been
// confirmed by the server. Used by the sync loop as the retry path for
// failed writes.
func (e *Engine) SaveIfDirty(ctx context.Context) bool {
	e.mu.Lock()
	dirty := e.dirty
	e.mu.Unlock()
	if dirty {
		e.saveNow(ctx)
	}
	return dirty
}
