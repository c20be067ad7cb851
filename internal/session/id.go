package session

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
)

// idPattern accepts generated ids and conservative caller-supplied
// ones: letters, digits, underscore and hyphen. Separators and dots
// are rejected so an id can never name a path outside the store.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateID checks that id is safe to use as a store file key.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("empty session id")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}

// NewID generates a session id. IDs are prefixed with "sess_" and use a
// ULID for the random component, so ids sort by creation time.
func NewID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		panic(fmt.Sprintf("ulid generation failed: %v", err))
	}
	return "sess_" + id.String()
}
