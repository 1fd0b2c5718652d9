// Package engine ties the reducer to the outside world: it owns the
// current board state, debounces local persistence, runs the optimistic
// save protocol against the remote board API and serves cached paginated
// comment reads.
//
// The original design was single-threaded; here the state and the
// last-synced version/etag are guarded by an explicit mutex so the sync
// loop, the save path and callers can interleave safely.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/corkline/corkboard/internal/board"
	"github.com/corkline/corkboard/internal/cache"
	"github.com/corkline/corkboard/internal/client"
	"github.com/corkline/corkboard/internal/domain"
	"github.com/corkline/corkboard/internal/persist"
)

// API is the remote surface the engine consumes. *client.Client
// implements it; tests substitute fakes.
type API interface {
	GetBoard(ctx context.Context, etag string) (*client.BoardSnapshot, string, bool, error)
	PutBoard(ctx context.Context, state *domain.BoardState, baseVersion *int64) (int64, error)
	ListComments(ctx context.Context, cardID int64, q client.ListQuery, etag string) (*client.CommentsPage, string, bool, error)
	ListArchivedComments(ctx context.Context, cardID int64, q client.ListQuery, etag string) (*client.ArchivePage, string, bool, error)
	AddComment(ctx context.Context, cardID int64, comment domain.Comment) (*domain.Comment, error)
	UpdateComment(ctx context.Context, cardID int64, commentID uuid.UUID, text string, images []string) (*domain.Comment, error)
	DeleteComment(ctx context.Context, cardID int64, commentID uuid.UUID, reason string) error
	RestoreArchivedComment(ctx context.Context, archiveID uuid.UUID) (*client.RestoreResult, error)
}

// Options configures an Engine.
type Options struct {
	// Scope is the auth scope (account subject) used in cache keys.
	Scope string
	Clock clockwork.Clock
	// Debounce overrides the local-write coalescing window.
	Debounce time.Duration

	CommentsFreshTTL time.Duration
	ArchiveFreshTTL  time.Duration
	StaleTTL         time.Duration
	MaxCacheEntries  int

	// OnCooldown is invoked when the server rate-limits a write, so the
	// embedding UI can show a cooldown message. Never retried silently.
	OnCooldown func(message string)
}

type Engine struct {
	clock clockwork.Clock
	api   API
	store persist.BlobStore
	saver *persist.Saver
	scope string

	comments *cache.PageCache[*client.CommentsPage]
	archive  *cache.PageCache[*client.ArchivePage]

	onCooldown func(string)

	mu            sync.Mutex
	state         *domain.BoardState
	dirty         bool
	saving        bool
	savePending   bool
	version       int64
	boardETag     string
	lastSyncedFP  string
	lastLocalEdit time.Time

	interacting atomic.Bool
}

func New(api API, store persist.BlobStore, opts Options) *Engine {
	clk := opts.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	commentsTTL := opts.CommentsFreshTTL
	if commentsTTL <= 0 {
		commentsTTL = cache.DefaultFreshTTL
	}
	archiveTTL := opts.ArchiveFreshTTL
	if archiveTTL <= 0 {
		archiveTTL = 12 * time.Second
	}

	e := &Engine{
		clock:      clk,
		api:        api,
		store:      store,
		scope:      opts.Scope,
		onCooldown: opts.OnCooldown,
		state:      domain.NewBoardState(),
		comments:   cache.New(clk, commentsTTL, opts.StaleTTL, opts.MaxCacheEntries, cloneCommentsPage),
		archive:    cache.New(clk, archiveTTL, opts.StaleTTL, opts.MaxCacheEntries, cloneArchivePage),
	}
	e.saver = persist.NewSaver(store, clk, opts.Debounce, e.queueSave)
	return e
}

// Load restores the persisted board, or starts empty when none exists.
func (e *Engine) Load(ctx context.Context) error {
	s, err := persist.LoadState(ctx, e.store)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.state = s
	e.dirty = true
	e.mu.Unlock()
	return nil
}

// Close flushes pending local writes.
func (e *Engine) Close() error {
	return e.saver.Close()
}

// Dispatch applies an action. It returns false for a no-op: the reducer
// handed back the same state pointer, so nothing is persisted, no remote
// save is queued and no cache is invalidated.
func (e *Engine) Dispatch(a board.Action) bool {
	now := e.clock.Now()

	e.mu.Lock()
	next := board.Apply(e.state, a, now)
	if next == e.state {
		e.mu.Unlock()
		return false
	}
	e.state = next
	e.dirty = true
	e.lastLocalEdit = now
	e.mu.Unlock()

	e.saver.Notify(next)
	e.invalidateFor(a)
	return true
}

// Snapshot returns a deep copy of the current board.
func (e *Engine) Snapshot() *domain.BoardState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// History returns a copy of the placement history, newest first.
func (e *Engine) History() []domain.HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.HistoryEntry(nil), e.state.History...)
}

// Version returns the last known server board version.
func (e *Engine) Version() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// SetInteracting marks an active drag or modal; the sync loop will not
// replace local state while set.
func (e *Engine) SetInteracting(v bool) {
	e.interacting.Store(v)
}

// invalidateFor drops cached comment pages made stale by a mutation. A
// comment change can shift every page of both the live and the archive
// listing for that card, so all of them go.
func (e *Engine) invalidateFor(a board.Action) {
	var cardID int64
	switch act := a.(type) {
	case board.CommentAdd:
		cardID = act.CardID
	case board.CommentUpdate:
		cardID = act.CardID
	case board.CommentDelete:
		cardID = act.CardID
	case board.Delete:
		cardID = act.CardID
	case board.UndoRestore:
		if act.Snapshot.Card != nil {
			cardID = act.Snapshot.Card.ID
		}
	default:
		return
	}
	e.comments.InvalidateCard(cardID)
	e.archive.InvalidateCard(cardID)
}

func cloneCommentsPage(p *client.CommentsPage) *client.CommentsPage {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Comments = make([]domain.Comment, len(p.Comments))
	for i, c := range p.Comments {
		cp.Comments[i] = c
		cp.Comments[i].Images = append([]string(nil), c.Images...)
	}
	return &cp
}

func cloneArchivePage(p *client.ArchivePage) *client.ArchivePage {
	if p == nil {
		return nil
	}
	cp := *p
	cp.ArchivedComments = make([]client.ArchivedComment, len(p.ArchivedComments))
	for i, c := range p.ArchivedComments {
		cp.ArchivedComments[i] = c
		cp.ArchivedComments[i].Images = append([]string(nil), c.Images...)
	}
	return &cp
}
