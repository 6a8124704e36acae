package domain

import "errors"

var (
	// ErrPermissionDenied is returned when an action is blocked by the
	// permission resolver. It is never retried.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrFetch marks a transient read failure against the store or bus.
	// Callers keep their last-known-good state rather than clearing it.
	ErrFetch = errors.New("fetch failed")

	// ErrMutation marks a write that failed after its permission check
	// passed. For deletes this triggers reversal of the optimistic
	// pending-deletion state.
	ErrMutation = errors.New("mutation failed")

	// ErrNotFound marks a missing row. A not-found on a concurrent
	// delete of the same row is treated as success, not as ErrMutation.
	ErrNotFound = errors.New("not found")
)
