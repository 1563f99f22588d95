package platform

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the client. Callers distinguish these with
// errors.Is; everything else is a transient failure.
var (
	// ErrRateLimited indicates the upstream throttled the request. The
	// client never retries these itself; backoff is owned by the caller.
	ErrRateLimited = errors.New("platform: rate limited")

	// ErrNotFound indicates the requested entity does not exist, including
	// a member who has left the group.
	ErrNotFound = errors.New("platform: not found")

	// ErrAlreadyClosed indicates a close-instance call targeted an instance
	// that is no longer open. Callers treat this as success.
	ErrAlreadyClosed = errors.New("platform: instance already closed")
)

// APIError carries the HTTP status of a failed platform call.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
}
