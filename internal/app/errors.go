package service

import "errors"

// Sentinel errors returned by the Service. Callers match them with errors.Is.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrInvalidSurface = errors.New("invalid surface")
	ErrPathTooLong    = errors.New("path too long")
)
