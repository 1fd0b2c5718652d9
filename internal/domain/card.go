package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CardStatus is derived from placement and must never be trusted from an
// external payload; DeriveStatus recomputes it after every transition.
type CardStatus string

const (
	StatusQueue    CardStatus = "queue"
	StatusDoing    CardStatus = "doing"
	StatusReview   CardStatus = "review"
	StatusDone     CardStatus = "done"
	StatusFloating CardStatus = "floating"
)

// Per-card sub-list caps. Anything beyond the cap is dropped oldest-last
// during normalization.
const (
	MaxComments       = 200
	MaxChecklistItems = 120
	MaxImages         = 8
)

type Card struct {
	ID             int64           `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Status         CardStatus      `json:"status"`
	Favorite       bool            `json:"favorite,omitempty"`
	Images         []string        `json:"images,omitempty"`
	Checklist      []ChecklistItem `json:"checklist,omitempty"`
	Comments       []Comment       `json:"comments,omitempty"`
	DoingStartedAt *time.Time      `json:"doingStartedAt,omitempty"`
	DoingTotalMs   int64           `json:"doingTotalMs,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type ChecklistItem struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
	Done bool      `json:"done,omitempty"`
}

type Comment struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text,omitempty"`
	Images    []string  `json:"images,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Valid reports whether a comment carries any content. A comment must have
// non-blank text or at least one image.
func (c Comment) Valid() bool {
	return strings.TrimSpace(c.Text) != "" || len(c.Images) > 0
}

// FloatingPos is a free placement outside any column. Sway is the idle
// animation offset the presentation layer assigned when the card was
// detached; it travels with the position so re-floating looks stable.
type FloatingPos struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Sway float64 `json:"swayOffset"`
}

// Clone returns a deep copy of the card.
func (c *Card) Clone() *Card {
	cp := *c
	if c.DoingStartedAt != nil {
		t := *c.DoingStartedAt
		cp.DoingStartedAt = &t
	}
	cp.Images = append([]string(nil), c.Images...)
	cp.Checklist = append([]ChecklistItem(nil), c.Checklist...)
	if c.Comments != nil {
		cp.Comments = make([]Comment, len(c.Comments))
		for i, cm := range c.Comments {
			cp.Comments[i] = cm
			cp.Comments[i].Images = append([]string(nil), cm.Images...)
		}
	}
	return &cp
}

// normalizeSublists enforces the per-card caps and the stable
// (createdAt, id) ordering of comments.
func (c *Card) normalizeSublists() {
	sort.SliceStable(c.Comments, func(i, j int) bool {
		a, b := c.Comments[i], c.Comments[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	if len(c.Comments) > MaxComments {
		c.Comments = c.Comments[:MaxComments]
	}
	if len(c.Checklist) > MaxChecklistItems {
		c.Checklist = c.Checklist[:MaxChecklistItems]
	}
	if len(c.Images) > MaxImages {
		c.Images = c.Images[:MaxImages]
	}
}
