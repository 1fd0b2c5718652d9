package server

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corkline/corkboard/internal/domain"
)

// archivedComment is a comment moved off a card by a delete, kept for
// restore.
type archivedComment struct {
	ArchiveID  uuid.UUID `json:"archiveId"`
	CommentID  uuid.UUID `json:"commentId"`
	CardID     int64     `json:"cardId"`
	Text       string    `json:"text,omitempty"`
	Images     []string  `json:"images,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ArchivedAt time.Time `json:"archivedAt"`
}

type account struct {
	state   *domain.BoardState
	version int64
	archive []archivedComment
}

// memoryStore holds one versioned board plus a comment archive per
// account scope.
type memoryStore struct {
	mu       sync.Mutex
	accounts map[string]*account
}

func newMemoryStore() *memoryStore {
	return &memoryStore{accounts: make(map[string]*account)}
}

// withAccount runs fn with the scope's account under the store lock,
// creating an empty board on first touch.
func (m *memoryStore) withAccount(scope string, fn func(a *account)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[scope]
	if !ok {
		a = &account{state: domain.NewBoardState(), version: 1}
		m.accounts[scope] = a
	}
	fn(a)
}

// sortComments orders by (createdAt, id); desc reverses.
func sortComments(comments []domain.Comment, order string) {
	sort.SliceStable(comments, func(i, j int) bool {
		a, b := comments[i], comments[j]
		less := a.CreatedAt.Before(b.CreatedAt) ||
			(a.CreatedAt.Equal(b.CreatedAt) && a.ID.String() < b.ID.String())
		if order == "desc" {
			return !less && !(a.CreatedAt.Equal(b.CreatedAt) && a.ID == b.ID)
		}
		return less
	})
}

func sortArchived(items []archivedComment, order string) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		less := a.ArchivedAt.Before(b.ArchivedAt) ||
			(a.ArchivedAt.Equal(b.ArchivedAt) && a.ArchiveID.String() < b.ArchiveID.String())
		if order == "desc" {
			return !less && !(a.ArchivedAt.Equal(b.ArchivedAt) && a.ArchiveID == b.ArchiveID)
		}
		return less
	})
}

// paginate slices [offset, offset+limit) out of total and reports the
// pagination envelope.
func paginate(total, limit, offset int) (start, end int, p pagination) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	start = offset
	if start > total {
		start = total
	}
	end = start + limit
	if end > total {
		end = total
	}
	p = pagination{
		Limit:      limit,
		Offset:     offset,
		Returned:   end - start,
		HasMore:    end < total,
		NextOffset: end,
	}
	return start, end, p
}
