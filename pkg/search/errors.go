package search

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexExists is returned by Index.Create when the index is already
	// provisioned. Provisioning treats it as success.
	ErrIndexExists = errors.New("search index already exists")

	// ErrUnavailable is returned by every search once provisioning failed
	// for both the primary and the fallback index.
	ErrUnavailable = errors.New("search functionality not available")

	// ErrQueryFailed is returned when a query fails on every index.
	ErrQueryFailed = errors.New("search query failed")
)

// Error records the operation and index that failed.
type Error struct {
	Op  string // Operation that failed (e.g., "Create", "Query")
	Err error  // Underlying error
	Msg string // Optional context
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
