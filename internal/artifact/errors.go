package artifact

import "errors"

// Sentinel errors for store operations. Callers check with errors.Is.
var (
	// ErrNotFound indicates no artifact with the given id exists in
	// the conversation's collection.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidID indicates a missing or malformed artifact id.
	ErrInvalidID = errors.New("invalid artifact id")
)
