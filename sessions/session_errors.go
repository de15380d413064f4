package sessions

import "errors"

var (
	ErrNotFound    = errors.New("session not found")
	ErrEmptyID     = errors.New("session id is required")
	ErrSaveSession = errors.New("failed to save session")
)
