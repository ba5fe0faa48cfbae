package session

import "errors"

// Sentinel kinds for session store errors.
var (
	ErrClosed = errors.New("session store closed")
)
