package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/corkline/corkboard/internal/domain"
)

// ListQuery selects a page of comments. Zero values fall back to server
// defaults (limit 50, order desc).
type ListQuery struct {
	Limit  int
	Offset int
	Order  string
	Reason string // archive listings only
}

// Params returns the normalized query parameters, the same normalization
// the page cache keys on.
func (q ListQuery) Params() map[string]string {
	p := make(map[string]string, 4)
	if q.Limit > 0 {
		p["limit"] = strconv.Itoa(q.Limit)
	}
	if q.Offset > 0 {
		p["offset"] = strconv.Itoa(q.Offset)
	}
	if q.Order != "" {
		p["order"] = q.Order
	}
	if q.Reason != "" {
		p["reason"] = q.Reason
	}
	return p
}

func (q ListQuery) encode() string {
	v := url.Values{}
	for k, val := range q.Params() {
		v.Set(k, val)
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

type Pagination struct {
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
	Returned   int    `json:"returned"`
	HasMore    bool   `json:"hasMore"`
	NextOffset int    `json:"nextOffset"`
	Order      string `json:"order"`
}

type CommentsPage struct {
	Comments      []domain.Comment `json:"comments"`
	CommentsCount int              `json:"commentsCount"`
	Pagination    Pagination       `json:"pagination"`
}

type ArchivedComment struct {
	ArchiveID  uuid.UUID `json:"archiveId"`
	CommentID  uuid.UUID `json:"commentId"`
	CardID     int64     `json:"cardId"`
	Text       string    `json:"text,omitempty"`
	Images     []string  `json:"images,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ArchivedAt time.Time `json:"archivedAt"`
}

type ArchivePage struct {
	ArchivedComments []ArchivedComment `json:"archivedComments"`
	ArchivedCount    int               `json:"archivedCount"`
	Pagination       Pagination        `json:"pagination"`
}

// ListComments fetches one page of a card's live comments, conditionally
// when etag is non-empty.
func (c *Client) ListComments(ctx context.Context, cardID int64, q ListQuery, etag string) (page *CommentsPage, newETag string, notModified bool, err error) {
	path := fmt.Sprintf("/cards/%d/comments%s", cardID, q.encode())
	resp, err := c.do(ctx, http.MethodGet, path, nil, etag)
	if err != nil {
		return nil, "", false, err
	}

	switch resp.StatusCode {
	case http.StatusNotModified:
		resp.Body.Close()
		return nil, etag, true, nil
	case http.StatusOK:
		var out CommentsPage
		if err := decodeInto(resp, &out); err != nil {
			return nil, "", false, err
		}
		return &out, resp.Header.Get("ETag"), false, nil
	default:
		return nil, "", false, responseError(resp)
	}
}

// ListArchivedComments fetches one page of a card's archived comments.
func (c *Client) ListArchivedComments(ctx context.Context, cardID int64, q ListQuery, etag string) (page *ArchivePage, newETag string, notModified bool, err error) {
	path := fmt.Sprintf("/cards/%d/comments/archive%s", cardID, q.encode())
	resp, err := c.do(ctx, http.MethodGet, path, nil, etag)
	if err != nil {
		return nil, "", false, err
	}

	switch resp.StatusCode {
	case http.StatusNotModified:
		resp.Body.Close()
		return nil, etag, true, nil
	case http.StatusOK:
		var out ArchivePage
		if err := decodeInto(resp, &out); err != nil {
			return nil, "", false, err
		}
		return &out, resp.Header.Get("ETag"), false, nil
	default:
		return nil, "", false, responseError(resp)
	}
}

// AddComment stores a comment and returns the server's copy, which
// carries the authoritative createdAt.
func (c *Client) AddComment(ctx context.Context, cardID int64, comment domain.Comment) (*domain.Comment, error) {
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/cards/%d/comments", cardID), comment, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, responseError(resp)
	}

	var out domain.Comment
	if err := decodeInto(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type updateCommentRequest struct {
	Text   string   `json:"text,omitempty"`
	Images []string `json:"images,omitempty"`
}

// UpdateComment replaces a comment's content.
func (c *Client) UpdateComment(ctx context.Context, cardID int64, commentID uuid.UUID, text string, images []string) (*domain.Comment, error) {
	path := fmt.Sprintf("/cards/%d/comments/%s", cardID, commentID)
	resp, err := c.do(ctx, http.MethodPatch, path, updateCommentRequest{Text: text, Images: images}, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var out domain.Comment
	if err := decodeInto(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteComment archives a comment with an optional reason.
func (c *Client) DeleteComment(ctx context.Context, cardID int64, commentID uuid.UUID, reason string) error {
	path := fmt.Sprintf("/cards/%d/comments/%s", cardID, commentID)
	if reason != "" {
		path += "?reason=" + url.QueryEscape(reason)
	}
	resp, err := c.do(ctx, http.MethodDelete, path, nil, "")
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return responseError(resp)
	}
	resp.Body.Close()
	return nil
}

// RestoreResult identifies where a restored comment landed.
type RestoreResult struct {
	CardID  int64          `json:"cardId"`
	Comment domain.Comment `json:"comment"`
}

// RestoreArchivedComment moves an archived comment back onto its card.
func (c *Client) RestoreArchivedComment(ctx context.Context, archiveID uuid.UUID) (*RestoreResult, error) {
	path := "/comments/archive/" + archiveID.String() + "/restore"
	resp, err := c.do(ctx, http.MethodPost, path, nil, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var out RestoreResult
	if err := decodeInto(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
