package domain

import "time"

// MaxHistory bounds the history log; oldest entries drop first.
const MaxHistory = 40

type HistoryKind string

const (
	HistoryCreate  HistoryKind = "create"
	HistoryMove    HistoryKind = "move"
	HistoryDelete  HistoryKind = "delete"
	HistoryRestore HistoryKind = "restore"
)

// HistoryEntry records one placement event. History tracks placement only;
// field edits, favorites, checklists and comments never appear here.
type HistoryEntry struct {
	Kind   HistoryKind `json:"kind"`
	CardID int64       `json:"cardId"`
	Title  string      `json:"title"`
	From   Column      `json:"from,omitempty"`
	To     Column      `json:"to,omitempty"`
	Index  int         `json:"index"`
	// DoingDeltaMs is the dwell time accrued when this event took the card
	// out of doing; zero otherwise. The UI renders it as "+12m in Doing".
	DoingDeltaMs int64     `json:"doingDeltaMs,omitempty"`
	At           time.Time `json:"at"`
}
