// Package board implements the pure board state machine: card placement,
// doing-timer accounting and the bounded placement history.
//
// Apply is a pure function over immutable states. Postcondition relied on
// by callers: when an action is invalid or would change nothing, Apply
// returns the *same pointer* it was given, so callers can use pointer
// equality to skip persistence and remote saves.
package board

import (
	"sort"
	"strings"
	"time"

	"github.com/corkline/corkboard/internal/domain"
)

// Apply computes the next state for an action. The input state is never
// mutated; a changed result is always a fresh deep copy.
func Apply(s *domain.BoardState, a Action, now time.Time) *domain.BoardState {
	switch act := a.(type) {
	case Create:
		return applyCreate(s, act, now)
	case Update:
		return applyUpdate(s, act, now)
	case ChecklistSet:
		return applyChecklistSet(s, act, now)
	case ToggleFavorite:
		return applyToggleFavorite(s, act, now)
	case CommentAdd:
		return applyCommentAdd(s, act, now)
	case CommentUpdate:
		return applyCommentUpdate(s, act, now)
	case CommentDelete:
		return applyCommentDelete(s, act, now)
	case Move:
		return applyMove(s, act, now)
	case Dock:
		return applyDock(s, act, now)
	case Float:
		return applyFloat(s, act, now)
	case Delete:
		return applyDelete(s, act, now)
	case UndoRestore:
		return applyUndoRestore(s, act, now)
	case HistoryClear:
		if len(s.History) == 0 {
			return s
		}
		next := s.Clone()
		next.History = nil
		return next
	case StateReplace:
		if act.State == nil {
			return s
		}
		next := act.State.Clone()
		next.Normalize()
		return next
	}
	return s
}

func applyCreate(s *domain.BoardState, a Create, now time.Time) *domain.BoardState {
	title := strings.TrimSpace(a.Title)
	if title == "" {
		return s
	}

	next := s.Clone()
	id := next.NextCardID
	next.NextCardID++

	c := &domain.Card{
		ID:          id,
		Title:       title,
		Description: a.Description,
		Status:      domain.StatusQueue,
		Images:      capStrings(a.Images, domain.MaxImages),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	next.CardsByID[id] = c
	next.Columns[domain.ColumnQueue] = insertAt(next.Columns[domain.ColumnQueue], id, 0)

	pushHistory(next, domain.HistoryEntry{
		Kind:   domain.HistoryCreate,
		CardID: id,
		Title:  title,
		To:     domain.ColumnQueue,
		At:     now,
	})
	return next
}

func applyUpdate(s *domain.BoardState, a Update, now time.Time) *domain.BoardState {
	c, ok := s.CardsByID[a.CardID]
	if !ok {
		return s
	}
	title := strings.TrimSpace(a.Title)
	if title == "" {
		return s
	}
	images := capStrings(a.Images, domain.MaxImages)
	if c.Title == title && c.Description == a.Description && stringsEqual(c.Images, images) {
		return s
	}

	next := s.Clone()
	nc := next.CardsByID[a.CardID]
	nc.Title = title
	nc.Description = a.Description
	nc.Images = images
	nc.UpdatedAt = now
	return next
}

func applyChecklistSet(s *domain.BoardState, a ChecklistSet, now time.Time) *domain.BoardState {
	c, ok := s.CardsByID[a.CardID]
	if !ok {
		return s
	}
	items := a.Items
	if len(items) > domain.MaxChecklistItems {
		items = items[:domain.MaxChecklistItems]
	}
	if checklistEqual(c.Checklist, items) {
		return s
	}

	next := s.Clone()
	nc := next.CardsByID[a.CardID]
	nc.Checklist = append([]domain.ChecklistItem(nil), items...)
	nc.UpdatedAt = now
	return next
}

func applyToggleFavorite(s *domain.BoardState, a ToggleFavorite, now time.Time) *domain.BoardState {
	if _, ok := s.CardsByID[a.CardID]; !ok {
		return s
	}
	next := s.Clone()
	nc := next.CardsByID[a.CardID]
	nc.Favorite = !nc.Favorite
	nc.UpdatedAt = now
	return next
}

func applyCommentAdd(s *domain.BoardState, a CommentAdd, now time.Time) *domain.BoardState {
	c, ok := s.CardsByID[a.CardID]
	if !ok || !a.Comment.Valid() || len(c.Comments) >= domain.MaxComments {
		return s
	}
	for _, existing := range c.Comments {
		if existing.ID == a.Comment.ID {
			return s
		}
	}

	next := s.Clone()
	nc := next.CardsByID[a.CardID]
	cm := a.Comment
	if cm.CreatedAt.IsZero() {
		cm.CreatedAt = now
	}
	if cm.UpdatedAt.IsZero() {
		cm.UpdatedAt = cm.CreatedAt
	}
	cm.Images = capStrings(cm.Images, domain.MaxImages)
	nc.Comments = insertCommentSorted(nc.Comments, cm)
	nc.UpdatedAt = now
	return next
}

// insertCommentSorted keeps the (createdAt, id) ordering so a restored
// comment carrying its original timestamp lands back in its old slot.
func insertCommentSorted(comments []domain.Comment, cm domain.Comment) []domain.Comment {
	at := sort.Search(len(comments), func(i int) bool {
		o := comments[i]
		if !o.CreatedAt.Equal(cm.CreatedAt) {
			return o.CreatedAt.After(cm.CreatedAt)
		}
		return o.ID.String() > cm.ID.String()
	})
	comments = append(comments, domain.Comment{})
	copy(comments[at+1:], comments[at:])
	comments[at] = cm
	return comments
}

func applyCommentUpdate(s *domain.BoardState, a CommentUpdate, now time.Time) *domain.BoardState {
	c, ok := s.CardsByID[a.CardID]
	if !ok {
		return s
	}
	replacement := domain.Comment{Text: a.Text, Images: a.Images}
	if !replacement.Valid() {
		return s
	}
	at := -1
	for i, cm := range c.Comments {
		if cm.ID == a.CommentID {
			at = i
			break
		}
	}
	if at < 0 {
		return s
	}
	images := capStrings(a.Images, domain.MaxImages)
	if c.Comments[at].Text == a.Text && stringsEqual(c.Comments[at].Images, images) {
		return s
	}

	next := s.Clone()
	nc := next.CardsByID[a.CardID]
	nc.Comments[at].Text = a.Text
	nc.Comments[at].Images = images
	nc.Comments[at].UpdatedAt = now
	nc.UpdatedAt = now
	return next
}

func applyCommentDelete(s *domain.BoardState, a CommentDelete, now time.Time) *domain.BoardState {
	c, ok := s.CardsByID[a.CardID]
	if !ok {
		return s
	}
	at := -1
	for i, cm := range c.Comments {
		if cm.ID == a.CommentID {
			at = i
			break
		}
	}
	if at < 0 {
		return s
	}

	next := s.Clone()
	nc := next.CardsByID[a.CardID]
	nc.Comments = append(nc.Comments[:at], nc.Comments[at+1:]...)
	nc.UpdatedAt = now
	return next
}

func applyMove(s *domain.BoardState, a Move, now time.Time) *domain.BoardState {
	if !domain.ValidColumn(a.To) {
		return s
	}
	from, fromIdx, ok := s.ColumnOf(a.CardID)
	if !ok {
		// Not currently placed in a column; Move fails silently.
		return s
	}

	if from == a.To {
		target := clampIndex(a.Index, len(s.Columns[from])-1)
		if target == fromIdx {
			return s
		}
		next := s.Clone()
		ids, _ := removeID(next.Columns[from], a.CardID)
		next.Columns[from] = insertAt(ids, a.CardID, target)
		return next
	}

	next := s.Clone()
	ids, _ := removeID(next.Columns[from], a.CardID)
	next.Columns[from] = ids
	idx := clampIndex(a.Index, len(next.Columns[a.To]))
	next.Columns[a.To] = insertAt(next.Columns[a.To], a.CardID, idx)

	nc := next.CardsByID[a.CardID]
	delta := doingTransition(nc, from, a.To, now)
	nc.Status = domain.CardStatus(a.To)
	nc.UpdatedAt = now

	pushHistory(next, domain.HistoryEntry{
		Kind:         domain.HistoryMove,
		CardID:       a.CardID,
		Title:        nc.Title,
		From:         from,
		To:           a.To,
		Index:        idx,
		DoingDeltaMs: delta,
		At:           now,
	})
	return next
}

func applyDock(s *domain.BoardState, a Dock, now time.Time) *domain.BoardState {
	if !domain.ValidColumn(a.To) {
		return s
	}
	if _, known := s.CardsByID[a.CardID]; !known {
		return s
	}
	from, _, hadColumn := s.ColumnOf(a.CardID)
	_, wasFloating := s.FloatingByID[a.CardID]
	if !hadColumn && !wasFloating {
		return s
	}

	next := s.Clone()
	delete(next.FloatingByID, a.CardID)
	if hadColumn {
		ids, _ := removeID(next.Columns[from], a.CardID)
		next.Columns[from] = ids
	}
	idx := clampIndex(a.Index, len(next.Columns[a.To]))
	next.Columns[a.To] = insertAt(next.Columns[a.To], a.CardID, idx)

	nc := next.CardsByID[a.CardID]
	delta := doingTransition(nc, from, a.To, now)
	nc.Status = domain.CardStatus(a.To)
	nc.UpdatedAt = now

	// A purely floating card docking in leaves no history trace.
	if hadColumn {
		pushHistory(next, domain.HistoryEntry{
			Kind:         domain.HistoryMove,
			CardID:       a.CardID,
			Title:        nc.Title,
			From:         from,
			To:           a.To,
			Index:        idx,
			DoingDeltaMs: delta,
			At:           now,
		})
	}
	return next
}

func applyFloat(s *domain.BoardState, a Float, now time.Time) *domain.BoardState {
	if _, known := s.CardsByID[a.CardID]; !known {
		return s
	}
	from, _, hadColumn := s.ColumnOf(a.CardID)
	if !hadColumn {
		pos, wasFloating := s.FloatingByID[a.CardID]
		if !wasFloating || pos == a.Pos {
			// Repositioning to the identical spot is a no-op; an unplaced
			// id is a Normalize concern, not a Float one.
			return s
		}
		next := s.Clone()
		next.FloatingByID[a.CardID] = a.Pos
		return next
	}

	next := s.Clone()
	ids, _ := removeID(next.Columns[from], a.CardID)
	next.Columns[from] = ids
	next.FloatingByID[a.CardID] = a.Pos

	nc := next.CardsByID[a.CardID]
	doingTransition(nc, from, "", now)
	nc.Status = domain.StatusFloating
	nc.UpdatedAt = now
	return next
}

func applyDelete(s *domain.BoardState, a Delete, now time.Time) *domain.BoardState {
	c, ok := s.CardsByID[a.CardID]
	if !ok {
		return s
	}
	from, _, hadColumn := s.ColumnOf(a.CardID)

	next := s.Clone()
	nc := next.CardsByID[a.CardID]
	var delta int64
	if hadColumn && from == domain.ColumnDoing {
		delta = doingTransition(nc, from, "", now)
	}

	if hadColumn {
		ids, _ := removeID(next.Columns[from], a.CardID)
		next.Columns[from] = ids
	}
	delete(next.FloatingByID, a.CardID)
	delete(next.CardsByID, a.CardID)

	pushHistory(next, domain.HistoryEntry{
		Kind:         domain.HistoryDelete,
		CardID:       a.CardID,
		Title:        c.Title,
		From:         from,
		DoingDeltaMs: delta,
		At:           now,
	})
	return next
}

func applyUndoRestore(s *domain.BoardState, a UndoRestore, now time.Time) *domain.BoardState {
	snap := a.Snapshot
	if snap.Card == nil {
		return s
	}
	if _, exists := s.CardsByID[snap.Card.ID]; exists {
		return s
	}

	next := s.Clone()
	c := snap.Card.Clone()
	c.DoingStartedAt = nil
	next.CardsByID[c.ID] = c
	if c.ID >= next.NextCardID {
		next.NextCardID = c.ID + 1
	}

	if snap.Floating != nil {
		next.FloatingByID[c.ID] = *snap.Floating
		c.Status = domain.StatusFloating
		return next
	}

	col := snap.Column
	if !domain.ValidColumn(col) {
		col = domain.ColumnQueue
	}
	idx := clampIndex(snap.Index, len(next.Columns[col]))
	next.Columns[col] = insertAt(next.Columns[col], c.ID, idx)
	c.Status = domain.CardStatus(col)
	if col == domain.ColumnDoing {
		t := now
		c.DoingStartedAt = &t
	}

	pushHistory(next, domain.HistoryEntry{
		Kind:   domain.HistoryRestore,
		CardID: c.ID,
		Title:  c.Title,
		To:     col,
		Index:  idx,
		At:     now,
	})
	return next
}

// doingTransition implements the shared timer rule for Move/Dock/Float/
// Delete. An empty column stands for "no column" (floating or removed).
// Returns the accrued dwell delta in ms when the card left doing.
func doingTransition(c *domain.Card, from, to domain.Column, now time.Time) int64 {
	if from == domain.ColumnDoing && to != domain.ColumnDoing {
		var delta int64
		if c.DoingStartedAt != nil {
			delta = now.Sub(*c.DoingStartedAt).Milliseconds()
			if delta < 0 {
				delta = 0
			}
		}
		c.DoingTotalMs += delta
		c.DoingStartedAt = nil
		return delta
	}
	if from != domain.ColumnDoing && to == domain.ColumnDoing {
		t := now
		c.DoingStartedAt = &t
	}
	return 0
}

func pushHistory(s *domain.BoardState, e domain.HistoryEntry) {
	s.History = append([]domain.HistoryEntry{e}, s.History...)
	if len(s.History) > domain.MaxHistory {
		s.History = s.History[:domain.MaxHistory]
	}
}

func insertAt(ids []int64, id int64, idx int) []int64 {
	if idx < 0 {
		idx = 0
	}
	if idx > len(ids) {
		idx = len(ids)
	}
	out := make([]int64, 0, len(ids)+1)
	out = append(out, ids[:idx]...)
	out = append(out, id)
	out = append(out, ids[idx:]...)
	return out
}

func removeID(ids []int64, id int64) ([]int64, bool) {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...), true
		}
	}
	return ids, false
}

func clampIndex(idx, max int) int {
	if idx < 0 {
		return 0
	}
	if idx > max {
		return max
	}
	return idx
}

func capStrings(v []string, n int) []string {
	out := append([]string(nil), v...)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func checklistEqual(a, b []domain.ChecklistItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
