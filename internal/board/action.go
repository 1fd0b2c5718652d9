package board

import (
	"github.com/google/uuid"

	"github.com/corkline/corkboard/internal/domain"
)

// Action is the closed set of board mutations. Apply switches over every
// variant; adding a variant without a case is a compile-time-visible bug,
// not a silently ignored string.
type Action interface {
	isAction()
}

// Create inserts a new card at the head of queue.
type Create struct {
	Title       string
	Description string
	Images      []string
}

// Update replaces a card's title, description and images. No placement or
// timer effect.
type Update struct {
	CardID      int64
	Title       string
	Description string
	Images      []string
}

// ChecklistSet replaces the full checklist of a card.
type ChecklistSet struct {
	CardID int64
	Items  []domain.ChecklistItem
}

// ToggleFavorite flips the favorite flag.
type ToggleFavorite struct {
	CardID int64
}

// CommentAdd appends a comment. Rejected when the comment has no content,
// the id already exists on the card, or the card is at the comment cap.
type CommentAdd struct {
	CardID  int64
	Comment domain.Comment
}

// CommentUpdate replaces the text/images of an existing comment.
type CommentUpdate struct {
	CardID    int64
	CommentID uuid.UUID
	Text      string
	Images    []string
}

// CommentDelete removes a comment from a card.
type CommentDelete struct {
	CardID    int64
	CommentID uuid.UUID
}

// Move repositions a card that currently sits in a column. Cross-column
// moves run the doing-timer transition and record history; same-column
// moves only reorder.
type Move struct {
	CardID int64
	To     domain.Column
	Index  int
}

// Dock attaches a card into a column at the requested index, detaching it
// from the floating map and/or its current column first.
type Dock struct {
	CardID int64
	To     domain.Column
	Index  int
}

// Float detaches a card into free placement.
type Float struct {
	CardID int64
	Pos    domain.FloatingPos
}

// Delete removes a card permanently. Capture an UndoSnapshot first if the
// deletion should be reversible.
type Delete struct {
	CardID int64
}

// UndoRestore reinserts a previously captured card at its original
// placement.
type UndoRestore struct {
	Snapshot UndoSnapshot
}

// HistoryClear empties the history log only.
type HistoryClear struct{}

// StateReplace substitutes the whole board, normalizing the incoming
// payload. Used by the sync loop when the server copy diverges.
type StateReplace struct {
	State *domain.BoardState
}

func (Create) isAction()         {}
func (Update) isAction()         {}
func (ChecklistSet) isAction()   {}
func (ToggleFavorite) isAction() {}
func (CommentAdd) isAction()     {}
func (CommentUpdate) isAction()  {}
func (CommentDelete) isAction()  {}
func (Move) isAction()           {}
func (Dock) isAction()           {}
func (Float) isAction()          {}
func (Delete) isAction()         {}
func (UndoRestore) isAction()    {}
func (HistoryClear) isAction()   {}
func (StateReplace) isAction()   {}

// UndoSnapshot captures everything needed to restore a deleted card.
type UndoSnapshot struct {
	Card     *domain.Card
	Column   domain.Column
	Index    int
	Floating *domain.FloatingPos
}

// CaptureForUndo records a card's content and placement ahead of a Delete.
func CaptureForUndo(s *domain.BoardState, cardID int64) (UndoSnapshot, bool) {
	c, ok := s.CardsByID[cardID]
	if !ok {
		return UndoSnapshot{}, false
	}
	snap := UndoSnapshot{Card: c.Clone()}
	if col, idx, inCol := s.ColumnOf(cardID); inCol {
		snap.Column = col
		snap.Index = idx
	} else if pos, floating := s.FloatingByID[cardID]; floating {
		p := pos
		snap.Floating = &p
	}
	return snap, true
}
