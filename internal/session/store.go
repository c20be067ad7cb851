package session

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Load when no record exists for a session id.
var ErrNotFound = errors.New("session not found")

// CorruptError is returned by Load when stored bytes are not a valid
// record or a required field is missing.
type CorruptError struct {
	SessionID string
	Reason    string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("session %q corrupt: %s", e.SessionID, e.Reason)
}

// Store is the interface for session context persistence.
//
// Implementations provide no locking: at most one writer per session id
// is assumed, and concurrent writers race with last-write-wins.
type Store interface {
	// Load reads the record for the given session id. Returns
	// ErrNotFound if no record exists and *CorruptError if the stored
	// bytes cannot be decoded into a valid record.
	Load(sessionID string) (*Context, error)

	// Save serializes the full record and overwrites whatever was
	// stored under record.SessionID.
	Save(record *Context) error
}
