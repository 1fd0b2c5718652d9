package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/corkline/corkboard/internal/domain"
)

// Error codes mirrored by the client's typed failure mapping.
const (
	codeUnauthorized    = "UNAUTHORIZED"
	codeNotFound        = "NOT_FOUND"
	codeValidation      = "VALIDATION"
	codeVersionConflict = "BOARD_VERSION_CONFLICT"
	codeRateLimited     = "RATE_LIMITED"
)

type pagination struct {
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
	Returned   int    `json:"returned"`
	HasMore    bool   `json:"hasMore"`
	NextOffset int    `json:"nextOffset"`
	Order      string `json:"order"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// contentETag is a strong ETag over the serialized payload.
func contentETag(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}

// serveConditional writes v with an ETag, answering 304 when the client's
// If-None-Match matches.
func serveConditional(w http.ResponseWriter, r *http.Request, v any) {
	etag := contentETag(v)
	if etag != "" {
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	scope, _ := ScopeFromContext(r.Context())

	var body struct {
		State   *domain.BoardState `json:"state"`
		Version int64              `json:"version"`
	}
	s.store.withAccount(scope, func(a *account) {
		body.State = a.state.Clone()
		body.Version = a.version
	})
	serveConditional(w, r, body)
}

func (s *Server) handlePutBoard(w http.ResponseWriter, r *http.Request) {
	scope, _ := ScopeFromContext(r.Context())

	var req struct {
		State       *domain.BoardState `json:"state"`
		BaseVersion *int64             `json:"baseVersion"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.State == nil {
		writeError(w, http.StatusBadRequest, codeValidation, "malformed board payload")
		return
	}

	var (
		conflict bool
		version  int64
	)
	s.store.withAccount(scope, func(a *account) {
		if req.BaseVersion != nil && *req.BaseVersion != a.version {
			conflict = true
			version = a.version
			return
		}
		req.State.Normalize()
		a.state = req.State
		a.version++
		version = a.version
	})

	if conflict {
		writeError(w, http.StatusConflict, codeVersionConflict, "board version mismatch; fetch and retry")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": version})
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	scope, _ := ScopeFromContext(r.Context())
	cardID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "bad card id")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	order := r.URL.Query().Get("order")
	if order != "asc" {
		order = "desc"
	}

	var (
		page     []domain.Comment
		count    int
		pg       pagination
		notFound bool
	)
	s.store.withAccount(scope, func(a *account) {
		card, ok := a.state.CardsByID[cardID]
		if !ok {
			notFound = true
			return
		}
		comments := make([]domain.Comment, len(card.Comments))
		copy(comments, card.Comments)
		sortComments(comments, order)

		count = len(comments)
		start, end, p := paginate(count, limit, offset)
		p.Order = order
		pg = p
		page = comments[start:end]
	})
	if notFound {
		writeError(w, http.StatusNotFound, codeNotFound, "card not found")
		return
	}

	serveConditional(w, r, map[string]any{
		"comments":      page,
		"commentsCount": count,
		"pagination":    pg,
	})
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	scope, _ := ScopeFromContext(r.Context())
	cardID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "bad card id")
		return
	}

	var cm domain.Comment
	if err := json.NewDecoder(r.Body).Decode(&cm); err != nil || !cm.Valid() {
		writeError(w, http.StatusBadRequest, codeValidation, "comment needs text or images")
		return
	}
	if cm.ID == uuid.Nil {
		cm.ID = uuid.New()
	}
	now := time.Now().UTC()
	if cm.CreatedAt.IsZero() {
		cm.CreatedAt = now
	}
	if cm.UpdatedAt.IsZero() {
		cm.UpdatedAt = cm.CreatedAt
	}

	var (
		notFound  bool
		duplicate bool
		capped    bool
	)
	s.store.withAccount(scope, func(a *account) {
		card, ok := a.state.CardsByID[cardID]
		if !ok {
			notFound = true
			return
		}
		for _, existing := range card.Comments {
			if existing.ID == cm.ID {
				duplicate = true
				return
			}
		}
		if len(card.Comments) >= domain.MaxComments {
			capped = true
			return
		}
		card.Comments = append(card.Comments, cm)
		a.version++
	})

	switch {
	case notFound:
		writeError(w, http.StatusNotFound, codeNotFound, "card not found")
	case duplicate:
		writeError(w, http.StatusBadRequest, codeValidation, "duplicate comment id")
	case capped:
		writeError(w, http.StatusBadRequest, codeValidation, "comment limit reached")
	default:
		writeJSON(w, http.StatusCreated, cm)
	}
}

func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	scope, _ := ScopeFromContext(r.Context())
	cardID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "bad card id")
		return
	}
	commentID, err := uuid.Parse(chi.URLParam(r, "commentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "bad comment id")
		return
	}

	var req struct {
		Text   string   `json:"text"`
		Images []string `json:"images"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "malformed payload")
		return
	}
	if !(domain.Comment{Text: req.Text, Images: req.Images}).Valid() {
		writeError(w, http.StatusBadRequest, codeValidation, "comment needs text or images")
		return
	}

	var (
		notFound bool
		updated  domain.Comment
	)
	s.store.withAccount(scope, func(a *account) {
		card, ok := a.state.CardsByID[cardID]
		if !ok {
			notFound = true
			return
		}
		notFound = true
		for i := range card.Comments {
			if card.Comments[i].ID == commentID {
				card.Comments[i].Text = req.Text
				card.Comments[i].Images = req.Images
				card.Comments[i].UpdatedAt = time.Now().UTC()
				updated = card.Comments[i]
				notFound = false
				a.version++
				return
			}
		}
	})
	if notFound {
		writeError(w, http.StatusNotFound, codeNotFound, "comment not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	scope, _ := ScopeFromContext(r.Context())
	cardID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "bad card id")
		return
	}
	commentID, err := uuid.Parse(chi.URLParam(r, "commentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "bad comment id")
		return
	}
	reason := r.URL.Query().Get("reason")

	var notFound bool
	s.store.withAccount(scope, func(a *account) {
		card, ok := a.state.CardsByID[cardID]
		if !ok {
			notFound = true
			return
		}
		notFound = true
		for i, cm := range card.Comments {
			if cm.ID == commentID {
				card.Comments = append(card.Comments[:i], card.Comments[i+1:]...)
				a.archive = append(a.archive, archivedComment{
					ArchiveID:  uuid.New(),
					CommentID:  cm.ID,
					CardID:     cardID,
					Text:       cm.Text,
					Images:     cm.Images,
					Reason:     reason,
					CreatedAt:  cm.CreatedAt,
					ArchivedAt: time.Now().UTC(),
				})
				a.version++
				notFound = false
				return
			}
		}
	})
	if notFound {
		writeError(w, http.StatusNotFound, codeNotFound, "comment not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	scope, _ := ScopeFromContext(r.Context())
	cardID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "bad card id")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	order := r.URL.Query().Get("order")
	if order != "asc" {
		order = "desc"
	}
	reason := r.URL.Query().Get("reason")

	var (
		page  []archivedComment
		count int
		pg    pagination
	)
	s.store.withAccount(scope, func(a *account) {
		items := make([]archivedComment, 0, len(a.archive))
		for _, ac := range a.archive {
			if ac.CardID != cardID {
				continue
			}
			if reason != "" && ac.Reason != reason {
				continue
			}
			items = append(items, ac)
		}
		sortArchived(items, order)

		count = len(items)
		start, end, p := paginate(count, limit, offset)
		p.Order = order
		pg = p
		page = items[start:end]
	})

	serveConditional(w, r, map[string]any{
		"archivedComments": page,
		"archivedCount":    count,
		"pagination":       pg,
	})
}

func (s *Server) handleRestoreArchived(w http.ResponseWriter, r *http.Request) {
	scope, _ := ScopeFromContext(r.Context())
	archiveID, err := uuid.Parse(chi.URLParam(r, "archiveID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "bad archive id")
		return
	}

	var (
		notFound bool
		cardGone bool
		restored domain.Comment
		cardID   int64
	)
	s.store.withAccount(scope, func(a *account) {
		notFound = true
		for i, ac := range a.archive {
			if ac.ArchiveID != archiveID {
				continue
			}
			notFound = false
			card, ok := a.state.CardsByID[ac.CardID]
			if !ok {
				cardGone = true
				return
			}
			restored = domain.Comment{
				ID:        ac.CommentID,
				Text:      ac.Text,
				Images:    ac.Images,
				CreatedAt: ac.CreatedAt,
				UpdatedAt: time.Now().UTC(),
			}
			cardID = ac.CardID
			card.Comments = append(card.Comments, restored)
			a.archive = append(a.archive[:i], a.archive[i+1:]...)
			a.version++
			return
		}
	})

	switch {
	case notFound:
		writeError(w, http.StatusNotFound, codeNotFound, "archived comment not found")
	case cardGone:
		writeError(w, http.StatusNotFound, codeNotFound, "card no longer exists")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"cardId": cardID, "comment": restored})
	}
}
