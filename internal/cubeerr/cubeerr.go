// Package cubeerr holds the sentinel errors every HTTP-facing component
// wraps its failures in (ErrNotFound, ErrConflict, ...) rather than a
// generic "app error" framework. Callers wrap a sentinel with fmt.Errorf's
// %w; the HTTP layer recovers the kind with errors.Is at the transport
// boundary only.
package cubeerr

import "errors"

var (
	// ErrInvalidConfiguration marks a cube descriptor, CLI flag, or other
	// caller-supplied configuration that failed validation.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrNotFound marks a reference to a cube, chunk, or file that does
	// not exist (or no longer exists).
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a request that collided with existing state,
	// such as a file upload whose size disagrees with what's on disk.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState marks an operation requested against a chunk or
	// cube in a state that doesn't support it.
	ErrInvalidState = errors.New("invalid state")
)
