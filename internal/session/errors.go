package session

import "errors"

var (
	// ErrPersistence marks a failed write to the session or track point store.
	// It always moves the tracker into the terminal Error state.
	ErrPersistence = errors.New("persistence failure")

	ErrNotStarted     = errors.New("session not started")
	ErrAlreadyStarted = errors.New("session already started")
	ErrUnknownSession = errors.New("unknown session id")
)
