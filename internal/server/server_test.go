package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corkline/corkboard/internal/board"
	"github.com/corkline/corkboard/internal/client"
	"github.com/corkline/corkboard/internal/domain"
	"github.com/corkline/corkboard/internal/server"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestServer(t *testing.T, cfg server.Config) *httptest.Server {
	t.Helper()
	cfg.JWTSecret = testSecret
	srv := httptest.NewServer(server.New(cfg).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func newScopedClient(t *testing.T, srv *httptest.Server, scope string) *client.Client {
	t.Helper()
	token, err := server.IssueToken(testSecret, scope, time.Hour)
	require.NoError(t, err)
	return client.New(srv.URL, token, nil)
}

// boardWithCard builds a one-card board to upload.
func boardWithCard(title string) *domain.BoardState {
	s := domain.NewBoardState()
	return board.Apply(s, board.Create{Title: title}, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
}

func TestAuth_RejectsMissingAndBadTokens(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{})

	resp, err := http.Get(srv.URL + "/board")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/board", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A token signed with the wrong secret fails too.
	forged, err := server.IssueToken("another-secret-another-secret-xx", "alice", time.Hour)
	require.NoError(t, err)
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/board", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBoard_GetPutAndConditionalFetch(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{})
	c := newScopedClient(t, srv, "alice")
	ctx := context.Background()

	// A fresh scope starts with an empty board at version 1.
	snap, etag, notModified, err := c.GetBoard(ctx, "")
	require.NoError(t, err)
	require.False(t, notModified)
	require.NotEmpty(t, etag)
	assert.Equal(t, int64(1), snap.Version)
	assert.Empty(t, snap.State.CardsByID)

	// Same content revalidates to a 304.
	_, _, notModified, err = c.GetBoard(ctx, etag)
	require.NoError(t, err)
	assert.True(t, notModified)

	base := snap.Version
	version, err := c.PutBoard(ctx, boardWithCard("uploaded"), &base)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	// The old etag no longer matches.
	snap, newETag, notModified, err := c.GetBoard(ctx, etag)
	require.NoError(t, err)
	require.False(t, notModified)
	assert.NotEqual(t, etag, newETag)
	assert.Equal(t, "uploaded", snap.State.CardsByID[1].Title)
}

func TestBoard_VersionConflictAndForcedOverwrite(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{})
	c := newScopedClient(t, srv, "alice")
	ctx := context.Background()

	stale := int64(41)
	_, err := c.PutBoard(ctx, boardWithCard("loser"), &stale)
	require.Error(t, err)
	assert.True(t, client.IsVersionConflict(err))

	// The forced overwrite (nil baseVersion) always lands.
	version, err := c.PutBoard(ctx, boardWithCard("winner"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	snap, _, _, err := c.GetBoard(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "winner", snap.State.CardsByID[1].Title)
}

func TestBoard_PutNormalizesPayload(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{})
	c := newScopedClient(t, srv, "alice")
	ctx := context.Background()

	malformed := domain.NewBoardState()
	malformed.CardsByID[9] = &domain.Card{ID: 9, Title: "stray"}
	malformed.Columns[domain.ColumnDoing] = []int64{9, 404}

	_, err := c.PutBoard(ctx, malformed, nil)
	require.NoError(t, err)

	snap, _, _, err := c.GetBoard(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, snap.State.Columns[domain.ColumnDoing])
	assert.Equal(t, int64(10), snap.State.NextCardID)
}

func TestBoard_ScopesAreIsolated(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{})
	alice := newScopedClient(t, srv, "alice")
	bob := newScopedClient(t, srv, "bob")
	ctx := context.Background()

	_, err := alice.PutBoard(ctx, boardWithCard("private"), nil)
	require.NoError(t, err)

	snap, _, _, err := bob.GetBoard(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, snap.State.CardsByID)
	assert.Equal(t, int64(1), snap.Version)
}

func TestComments_FullLifecycle(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{})
	c := newScopedClient(t, srv, "alice")
	ctx := context.Background()

	_, err := c.PutBoard(ctx, boardWithCard("card"), nil)
	require.NoError(t, err)

	// Three comments with explicit creation times for a stable order.
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		_, err := c.AddComment(ctx, 1, domain.Comment{
			ID:        ids[i],
			Text:      "comment",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	// Default order is newest first.
	page, etag, _, err := c.ListComments(ctx, 1, client.ListQuery{}, "")
	require.NoError(t, err)
	require.Len(t, page.Comments, 3)
	assert.Equal(t, ids[2], page.Comments[0].ID)
	assert.Equal(t, 3, page.CommentsCount)
	require.NotEmpty(t, etag)

	// The listing revalidates to a 304 until something changes.
	_, _, notModified, err := c.ListComments(ctx, 1, client.ListQuery{}, etag)
	require.NoError(t, err)
	assert.True(t, notModified)

	// Ascending pagination walks oldest first.
	page, _, _, err = c.ListComments(ctx, 1, client.ListQuery{Limit: 2, Order: "asc"}, "")
	require.NoError(t, err)
	require.Len(t, page.Comments, 2)
	assert.Equal(t, ids[0], page.Comments[0].ID)
	assert.True(t, page.Pagination.HasMore)
	assert.Equal(t, 2, page.Pagination.NextOffset)

	page, _, _, err = c.ListComments(ctx, 1, client.ListQuery{Limit: 2, Offset: 2, Order: "asc"}, "")
	require.NoError(t, err)
	require.Len(t, page.Comments, 1)
	assert.Equal(t, ids[2], page.Comments[0].ID)
	assert.False(t, page.Pagination.HasMore)

	// Edit, then archive one with a reason.
	updated, err := c.UpdateComment(ctx, 1, ids[1], "edited", nil)
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Text)

	require.NoError(t, c.DeleteComment(ctx, 1, ids[0], "obsolete"))

	page, _, _, err = c.ListComments(ctx, 1, client.ListQuery{}, "")
	require.NoError(t, err)
	assert.Len(t, page.Comments, 2)

	archive, _, _, err := c.ListArchivedComments(ctx, 1, client.ListQuery{}, "")
	require.NoError(t, err)
	require.Len(t, archive.ArchivedComments, 1)
	entry := archive.ArchivedComments[0]
	assert.Equal(t, ids[0], entry.CommentID)
	assert.Equal(t, "obsolete", entry.Reason)

	// The reason filter matches exactly.
	filtered, _, _, err := c.ListArchivedComments(ctx, 1, client.ListQuery{Reason: "typo"}, "")
	require.NoError(t, err)
	assert.Empty(t, filtered.ArchivedComments)

	// Restore brings the comment back and empties the archive.
	res, err := c.RestoreArchivedComment(ctx, entry.ArchiveID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.CardID)
	assert.Equal(t, ids[0], res.Comment.ID)

	page, _, _, err = c.ListComments(ctx, 1, client.ListQuery{}, "")
	require.NoError(t, err)
	assert.Len(t, page.Comments, 3)

	archive, _, _, err = c.ListArchivedComments(ctx, 1, client.ListQuery{}, "")
	require.NoError(t, err)
	assert.Empty(t, archive.ArchivedComments)
}

func TestComments_ValidationAndNotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{})
	c := newScopedClient(t, srv, "alice")
	ctx := context.Background()

	_, err := c.PutBoard(ctx, boardWithCard("card"), nil)
	require.NoError(t, err)

	// Contentless comment.
	_, err = c.AddComment(ctx, 1, domain.Comment{ID: uuid.New(), Text: "   "})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, client.CodeValidation, apiErr.Code)

	// Unknown card.
	_, err = c.AddComment(ctx, 404, domain.Comment{ID: uuid.New(), Text: "hi"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, client.CodeNotFound, apiErr.Code)

	// Duplicate comment id.
	dup := uuid.New()
	_, err = c.AddComment(ctx, 1, domain.Comment{ID: dup, Text: "first"})
	require.NoError(t, err)
	_, err = c.AddComment(ctx, 1, domain.Comment{ID: dup, Text: "again"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, client.CodeValidation, apiErr.Code)

	// Unknown archive id on restore.
	_, err = c.RestoreArchivedComment(ctx, uuid.New())
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, client.CodeNotFound, apiErr.Code)
}

func TestMutations_RateLimitedPerScope(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{WritesPerSecond: 0.001, WriteBurst: 1})
	alice := newScopedClient(t, srv, "alice")
	bob := newScopedClient(t, srv, "bob")
	ctx := context.Background()

	_, err := alice.PutBoard(ctx, boardWithCard("one"), nil)
	require.NoError(t, err)

	_, err = alice.PutBoard(ctx, boardWithCard("two"), nil)
	require.Error(t, err)
	assert.True(t, client.IsRateLimited(err))

	// Reads stay unlimited, and other scopes keep their own budget.
	_, _, _, err = alice.GetBoard(ctx, "")
	require.NoError(t, err)
	_, err = bob.PutBoard(ctx, boardWithCard("three"), nil)
	require.NoError(t, err)
}
