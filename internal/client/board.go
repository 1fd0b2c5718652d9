package client

import (
	"context"
	"net/http"

	"github.com/corkline/corkboard/internal/domain"
)

// BoardSnapshot is the server's versioned copy of the board.
type BoardSnapshot struct {
	State   *domain.BoardState `json:"state"`
	Version int64              `json:"version"`
}

// GetBoard fetches the server board conditionally. With a matching etag
// the server answers 304 and notModified is true with a nil snapshot.
func (c *Client) GetBoard(ctx context.Context, etag string) (snap *BoardSnapshot, newETag string, notModified bool, err error) {
	resp, err := c.do(ctx, http.MethodGet, "/board", nil, etag)
	if err != nil {
		return nil, "", false, err
	}

	switch resp.StatusCode {
	case http.StatusNotModified:
		resp.Body.Close()
		return nil, etag, true, nil
	case http.StatusOK:
		var out BoardSnapshot
		if err := decodeInto(resp, &out); err != nil {
			return nil, "", false, err
		}
		return &out, resp.Header.Get("ETag"), false, nil
	default:
		return nil, "", false, responseError(resp)
	}
}

type putBoardRequest struct {
	State       *domain.BoardState `json:"state"`
	BaseVersion *int64             `json:"baseVersion,omitempty"`
}

type putBoardResponse struct {
	OK      bool  `json:"ok"`
	Version int64 `json:"version"`
}

// PutBoard uploads the full board. baseVersion nil means force-overwrite;
// a mismatched non-nil baseVersion yields an APIError with code
// BOARD_VERSION_CONFLICT.
func (c *Client) PutBoard(ctx context.Context, state *domain.BoardState, baseVersion *int64) (int64, error) {
	resp, err := c.do(ctx, http.MethodPut, "/board", putBoardRequest{State: state, BaseVersion: baseVersion}, "")
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, responseError(resp)
	}

	var out putBoardResponse
	if err := decodeInto(resp, &out); err != nil {
		return 0, err
	}
	return out.Version, nil
}
