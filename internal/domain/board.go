package domain

import "sort"

// Column identifies one of the four fixed board columns.
type Column string

const (
	ColumnQueue  Column = "queue"
	ColumnDoing  Column = "doing"
	ColumnReview Column = "review"
	ColumnDone   Column = "done"
)

// Columns returns the fixed column order.
func Columns() []Column {
	return []Column{ColumnQueue, ColumnDoing, ColumnReview, ColumnDone}
}

// ValidColumn reports whether c names one of the four board columns.
func ValidColumn(c Column) bool {
	switch c {
	case ColumnQueue, ColumnDoing, ColumnReview, ColumnDone:
		return true
	}
	return false
}

// BoardState is the complete board content. A card id belongs to exactly
// one of {a column sequence, FloatingByID}: never both, never neither.
// The reducer is the only writer; everything else treats a state as
// immutable once published.
type BoardState struct {
	CardsByID    map[int64]*Card       `json:"cardsById"`
	Columns      map[Column][]int64    `json:"columns"`
	FloatingByID map[int64]FloatingPos `json:"floatingById"`
	History      []HistoryEntry        `json:"history,omitempty"`
	NextCardID   int64                 `json:"nextCardId"`
}

// NewBoardState returns an empty board with all four columns present.
func NewBoardState() *BoardState {
	s := &BoardState{
		CardsByID:    make(map[int64]*Card),
		Columns:      make(map[Column][]int64, 4),
		FloatingByID: make(map[int64]FloatingPos),
		NextCardID:   1,
	}
	for _, col := range Columns() {
		s.Columns[col] = nil
	}
	return s
}

// Clone returns a deep copy of the state.
func (s *BoardState) Clone() *BoardState {
	cp := &BoardState{
		CardsByID:    make(map[int64]*Card, len(s.CardsByID)),
		Columns:      make(map[Column][]int64, len(s.Columns)),
		FloatingByID: make(map[int64]FloatingPos, len(s.FloatingByID)),
		History:      append([]HistoryEntry(nil), s.History...),
		NextCardID:   s.NextCardID,
	}
	for id, c := range s.CardsByID {
		cp.CardsByID[id] = c.Clone()
	}
	for col, ids := range s.Columns {
		cp.Columns[col] = append([]int64(nil), ids...)
	}
	for id, pos := range s.FloatingByID {
		cp.FloatingByID[id] = pos
	}
	return cp
}

// ColumnOf returns the column holding id and the index within it.
func (s *BoardState) ColumnOf(id int64) (Column, int, bool) {
	for _, col := range Columns() {
		for i, cid := range s.Columns[col] {
			if cid == id {
				return col, i, true
			}
		}
	}
	return "", 0, false
}

// StatusOf derives the placement status for id. The second return is false
// when the card has no placement at all (an invariant violation fixed by
// Normalize).
func (s *BoardState) StatusOf(id int64) (CardStatus, bool) {
	if col, _, ok := s.ColumnOf(id); ok {
		return CardStatus(col), true
	}
	if _, ok := s.FloatingByID[id]; ok {
		return StatusFloating, true
	}
	return "", false
}

// DeriveStatus recomputes every card's Status from its placement.
func (s *BoardState) DeriveStatus() {
	for id, c := range s.CardsByID {
		if st, ok := s.StatusOf(id); ok {
			c.Status = st
		}
	}
}

// Normalize repairs a state received from an untrusted source so that
// every invariant holds: unknown ids are removed from columns and the
// floating map, unplaced cards are re-queued at the tail, duplicate
// placements keep their first occurrence, sub-lists are capped and
// sorted, the history bound is enforced, and statuses are re-derived.
func (s *BoardState) Normalize() {
	if s.CardsByID == nil {
		s.CardsByID = make(map[int64]*Card)
	}
	if s.Columns == nil {
		s.Columns = make(map[Column][]int64, 4)
	}
	if s.FloatingByID == nil {
		s.FloatingByID = make(map[int64]FloatingPos)
	}

	seen := make(map[int64]bool, len(s.CardsByID))
	for _, col := range Columns() {
		kept := s.Columns[col][:0]
		for _, id := range s.Columns[col] {
			if _, known := s.CardsByID[id]; !known || seen[id] {
				continue
			}
			seen[id] = true
			kept = append(kept, id)
		}
		s.Columns[col] = kept
	}
	for id := range s.FloatingByID {
		if _, known := s.CardsByID[id]; !known || seen[id] {
			delete(s.FloatingByID, id)
			continue
		}
		seen[id] = true
	}

	// Unplaced but known cards go to the tail of queue.
	var orphans []int64
	for id := range s.CardsByID {
		if !seen[id] {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) > 0 {
		sort.Slice(orphans, func(i, j int) bool { return orphans[i] < orphans[j] })
		s.Columns[ColumnQueue] = append(s.Columns[ColumnQueue], orphans...)
	}

	for id, c := range s.CardsByID {
		c.ID = id
		c.normalizeSublists()
		// A running timer is only meaningful inside doing.
		if col, _, ok := s.ColumnOf(id); !ok || col != ColumnDoing {
			c.DoingStartedAt = nil
		}
	}

	if len(s.History) > MaxHistory {
		s.History = s.History[:MaxHistory]
	}

	for id := range s.CardsByID {
		if id >= s.NextCardID {
			s.NextCardID = id + 1
		}
	}
	if s.NextCardID < 1 {
		s.NextCardID = 1
	}

	s.DeriveStatus()
}
