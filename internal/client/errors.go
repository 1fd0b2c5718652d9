package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Error codes returned in the {error, message} JSON body.
const (
	CodeVersionConflict = "BOARD_VERSION_CONFLICT"
	CodeRateLimited     = "RATE_LIMITED"
	CodeValidation      = "VALIDATION"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
)

// APIError is a non-2xx response mapped to a typed failure.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: %s (%d): %s", e.Code, e.Status, e.Message)
}

// IsVersionConflict reports whether err is the optimistic-concurrency
// conflict the save protocol resolves with a forced retry.
func IsVersionConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeVersionConflict
}

// IsRateLimited reports whether err must be surfaced as a cooldown rather
// than silently retried.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeRateLimited
}

// IsTransient reports whether err should be swallowed and resolved by the
// next scheduled tick: network failures and 5xx responses.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return err != nil
}

// responseError drains a non-2xx response into an APIError. The body is
// closed. Unparseable bodies keep the HTTP status with a generic code.
func responseError(resp *http.Response) error {
	defer resp.Body.Close()

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
		body.Message = string(data)
	}
	return &APIError{Status: resp.StatusCode, Code: body.Error, Message: body.Message}
}
