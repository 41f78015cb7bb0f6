package session

import "errors"

var (
	// ErrNotFound indicates the session id is not in the registry.
	ErrNotFound = errors.New("session not found")

	// ErrExists indicates a create or restore collided with an existing id.
	ErrExists = errors.New("session already exists")

	// ErrAlreadyLive indicates an operation that only applies before backend
	// registration was attempted on a live session.
	ErrAlreadyLive = errors.New("session already registered with backend")

	// ErrSessionFailed indicates the session is in the absorbing error state
	// and accepts no further prompts.
	ErrSessionFailed = errors.New("session is in the error state")
)
