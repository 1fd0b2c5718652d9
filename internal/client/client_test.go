package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corkline/corkboard/internal/client"
	"github.com/corkline/corkboard/internal/domain"
)

func TestGetBoard_SendsAuthAndConditionalHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))

		if r.Header.Get("If-None-Match") == `"abc"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		_ = json.NewEncoder(w).Encode(client.BoardSnapshot{State: domain.NewBoardState(), Version: 3})
	}))
	defer srv.Close()

	c := client.New(srv.URL, "tok-123", nil)
	ctx := context.Background()

	snap, etag, notModified, err := c.GetBoard(ctx, "")
	require.NoError(t, err)
	require.False(t, notModified)
	assert.Equal(t, `"abc"`, etag)
	assert.Equal(t, int64(3), snap.Version)
	require.NotNil(t, snap.State)

	snap, etag, notModified, err = c.GetBoard(ctx, `"abc"`)
	require.NoError(t, err)
	assert.True(t, notModified)
	assert.Nil(t, snap)
	assert.Equal(t, `"abc"`, etag)
}

func TestPutBoard_VersionConflict(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BaseVersion *int64 `json:"baseVersion"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.BaseVersion != nil && *req.BaseVersion != 5 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"BOARD_VERSION_CONFLICT","message":"stale base version"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "version": 6})
	}))
	defer srv.Close()

	c := client.New(srv.URL, "tok", nil)
	ctx := context.Background()
	state := domain.NewBoardState()

	stale := int64(4)
	_, err := c.PutBoard(ctx, state, &stale)
	require.Error(t, err)
	assert.True(t, client.IsVersionConflict(err))
	assert.False(t, client.IsRateLimited(err))
	assert.False(t, client.IsTransient(err))

	current := int64(5)
	version, err := c.PutBoard(ctx, state, &current)
	require.NoError(t, err)
	assert.Equal(t, int64(6), version)

	// nil baseVersion is the forced overwrite and always lands.
	version, err = c.PutBoard(ctx, state, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(6), version)
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	status := make(chan int, 1)
	body := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(<-status)
		_, _ = w.Write([]byte(<-body))
	}))
	defer srv.Close()

	c := client.New(srv.URL, "tok", nil)
	ctx := context.Background()

	status <- http.StatusTooManyRequests
	body <- `{"error":"RATE_LIMITED","message":"slow down"}`
	_, err := c.PutBoard(ctx, domain.NewBoardState(), nil)
	assert.True(t, client.IsRateLimited(err))
	assert.False(t, client.IsTransient(err))

	status <- http.StatusInternalServerError
	body <- `not even json`
	_, err = c.PutBoard(ctx, domain.NewBoardState(), nil)
	assert.True(t, client.IsTransient(err))
	assert.False(t, client.IsRateLimited(err))

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
}

func TestIsTransient_NetworkError(t *testing.T) {
	t.Parallel()

	// Nothing listens here; the dial fails outright.
	c := client.New("http://127.0.0.1:1", "tok", &http.Client{Timeout: time.Second})
	_, _, _, err := c.GetBoard(context.Background(), "")
	require.Error(t, err)
	assert.True(t, client.IsTransient(err))
	assert.False(t, client.IsVersionConflict(err))
}

func TestListComments_QueryAndPagination(t *testing.T) {
	t.Parallel()

	commentID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cards/7/comments", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		assert.Equal(t, "asc", r.URL.Query().Get("order"))

		w.Header().Set("ETag", `"p1"`)
		_ = json.NewEncoder(w).Encode(client.CommentsPage{
			Comments:      []domain.Comment{{ID: commentID, Text: "hi"}},
			CommentsCount: 31,
			Pagination: client.Pagination{
				Limit: 10, Offset: 20, Returned: 1,
				HasMore: true, NextOffset: 30, Order: "asc",
			},
		})
	}))
	defer srv.Close()

	c := client.New(srv.URL, "tok", nil)
	page, etag, notModified, err := c.ListComments(context.Background(), 7, client.ListQuery{Limit: 10, Offset: 20, Order: "asc"}, "")
	require.NoError(t, err)
	require.False(t, notModified)
	assert.Equal(t, `"p1"`, etag)
	require.Len(t, page.Comments, 1)
	assert.Equal(t, commentID, page.Comments[0].ID)
	assert.Equal(t, 31, page.CommentsCount)
	assert.True(t, page.Pagination.HasMore)
	assert.Equal(t, 30, page.Pagination.NextOffset)
}

func TestListArchivedComments_ReasonFilter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cards/7/comments/archive", r.URL.Path)
		assert.Equal(t, "obsolete", r.URL.Query().Get("reason"))
		_ = json.NewEncoder(w).Encode(client.ArchivePage{ArchivedCount: 0})
	}))
	defer srv.Close()

	c := client.New(srv.URL, "tok", nil)
	page, _, _, err := c.ListArchivedComments(context.Background(), 7, client.ListQuery{Reason: "obsolete"}, "")
	require.NoError(t, err)
	assert.Empty(t, page.ArchivedComments)
}

func TestCommentMutations(t *testing.T) {
	t.Parallel()

	commentID := uuid.New()
	archiveID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /cards/7/comments":
			var in domain.Comment
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			in.CreatedAt = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(in)
		case "PATCH /cards/7/comments/" + commentID.String():
			_ = json.NewEncoder(w).Encode(domain.Comment{ID: commentID, Text: "edited"})
		case "DELETE /cards/7/comments/" + commentID.String():
			assert.Equal(t, "typo fix", r.URL.Query().Get("reason"))
			w.WriteHeader(http.StatusNoContent)
		case "POST /comments/archive/" + archiveID.String() + "/restore":
			_ = json.NewEncoder(w).Encode(client.RestoreResult{
				CardID:  7,
				Comment: domain.Comment{ID: commentID, Text: "back"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := client.New(srv.URL, "tok", nil)
	ctx := context.Background()

	added, err := c.AddComment(ctx, 7, domain.Comment{ID: commentID, Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, commentID, added.ID)
	assert.False(t, added.CreatedAt.IsZero())

	updated, err := c.UpdateComment(ctx, 7, commentID, "edited", nil)
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Text)

	require.NoError(t, c.DeleteComment(ctx, 7, commentID, "typo fix"))

	restored, err := c.RestoreArchivedComment(ctx, archiveID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), restored.CardID)
	assert.Equal(t, "back", restored.Comment.Text)
}
