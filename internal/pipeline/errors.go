package pipeline

import "errors"

var (
	// ErrInvalidParameter wraps stack validation failures. The offending
	// submit is rejected before any stage runs.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNotReady means save/export was requested before any submission
	// reached the Ready state.
	ErrNotReady = errors.New("no resolved edit available")

	// ErrSessionClosed means the session was discarded.
	ErrSessionClosed = errors.New("session closed")

	// ErrSessionNotFound reports an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrBatchFull means the manager's concurrent session cap is reached.
	ErrBatchFull = errors.New("session batch full")
)
