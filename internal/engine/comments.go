package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/corkline/corkboard/internal/board"
	"github.com/corkline/corkboard/internal/cache"
	"github.com/corkline/corkboard/internal/client"
	"github.com/corkline/corkboard/internal/domain"
)

// Comments returns one page of a card's live comments through the request
// cache: fresh entries are served without a network call, concurrent
// readers share one fetch, and a 304 only refreshes the cache timestamp.
func (e *Engine) Comments(ctx context.Context, cardID int64, q client.ListQuery) (*client.CommentsPage, error) {
	key := cache.Key{Scope: e.scope, CardID: cardID, Params: q.Params()}
	return e.comments.Get(ctx, key, func(ctx context.Context, etag string) (*client.CommentsPage, string, bool, error) {
		return e.api.ListComments(ctx, cardID, q, etag)
	})
}

// ArchivedComments returns one page of a card's archived comments.
func (e *Engine) ArchivedComments(ctx context.Context, cardID int64, q client.ListQuery) (*client.ArchivePage, error) {
	key := cache.Key{Scope: e.scope, CardID: cardID, Params: q.Params()}
	return e.archive.Get(ctx, key, func(ctx context.Context, etag string) (*client.ArchivePage, string, bool, error) {
		return e.api.ListArchivedComments(ctx, cardID, q, etag)
	})
}

// AddComment applies the comment locally first, then mirrors it to the
// server. Ids are generated client-side so the optimistic copy needs no
// id reconciliation; a failed remote call keeps the local copy, which the
// board save path carries to the server eventually.
func (e *Engine) AddComment(ctx context.Context, cardID int64, text string, images []string) (*domain.Comment, error) {
	cm := domain.Comment{
		ID:        uuid.New(),
		Text:      text,
		Images:    images,
		CreatedAt: e.clock.Now(),
		UpdatedAt: e.clock.Now(),
	}
	if !e.Dispatch(board.CommentAdd{CardID: cardID, Comment: cm}) {
		return nil, domain.ErrValidation
	}

	stored, err := e.api.AddComment(ctx, cardID, cm)
	if err != nil {
		e.reportWriteError(err, "comment add")
		return &cm, err
	}
	return stored, nil
}

// UpdateComment edits a comment locally and remotely.
func (e *Engine) UpdateComment(ctx context.Context, cardID int64, commentID uuid.UUID, text string, images []string) error {
	if !e.Dispatch(board.CommentUpdate{CardID: cardID, CommentID: commentID, Text: text, Images: images}) {
		return domain.ErrValidation
	}

	if _, err := e.api.UpdateComment(ctx, cardID, commentID, text, images); err != nil {
		e.reportWriteError(err, "comment update")
		return err
	}
	return nil
}

// DeleteComment removes a comment locally and archives it remotely.
func (e *Engine) DeleteComment(ctx context.Context, cardID int64, commentID uuid.UUID, reason string) error {
	if !e.Dispatch(board.CommentDelete{CardID: cardID, CommentID: commentID}) {
		return domain.ErrValidation
	}

	if err := e.api.DeleteComment(ctx, cardID, commentID, reason); err != nil {
		e.reportWriteError(err, "comment delete")
		return err
	}
	return nil
}

// RestoreComment brings an archived comment back onto its card. The
// server owns the archive, so this is remote-first: only a confirmed
// restore is applied locally.
func (e *Engine) RestoreComment(ctx context.Context, archiveID uuid.UUID) (*client.RestoreResult, error) {
	res, err := e.api.RestoreArchivedComment(ctx, archiveID)
	if err != nil {
		e.reportWriteError(err, "comment restore")
		return nil, err
	}

	e.Dispatch(board.CommentAdd{CardID: res.CardID, Comment: res.Comment})
	// The archive listing changed even though no local comment action ran
	// for it.
	e.archive.InvalidateCard(res.CardID)
	return res, nil
}

func (e *Engine) reportWriteError(err error, op string) {
	if client.IsRateLimited(err) {
		log.Warn().Str("op", op).Err(err).Msg("rate limited")
		if e.onCooldown != nil {
			e.onCooldown(err.Error())
		}
		return
	}
	log.Warn().Str("op", op).Err(err).Msg("remote write failed; keeping optimistic state")
}
