// Package session provides the key-value state store scoped to one browsing
// session.
package session

import "context"

// Store keeps small opaque values per session id. Sessions expire after a
// period without access.
type Store interface {
	// Get returns the value stored under key for sid. Reading refreshes the
	// session.
	Get(ctx context.Context, sid, key string) ([]byte, bool)

	// Put stores value under key for sid, creating the session if needed.
	Put(ctx context.Context, sid, key string, value []byte) error

	// Touch creates the session if needed and refreshes it without storing
	// anything.
	Touch(ctx context.Context, sid string) error

	// Delete drops the session and everything stored in it.
	Delete(ctx context.Context, sid string)

	// Count returns the number of live sessions.
	Count(ctx context.Context) int

	Close() error
}
