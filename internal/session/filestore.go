package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// requiredFields are the top-level keys a stored record must carry to
// be considered valid on load.
var requiredFields = []string{"session_id", "task", "step", "image_analysis", "instruction"}

// FileStore implements Store using one JSON file per session id under Dir.
//
// Writes are whole-file overwrites; a crash mid-write can leave a
// truncated file. This is an accepted limitation of the flat-file
// persistence model.
type FileStore struct {
	Dir string
}

// NewFileStore creates a file-backed session store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.Dir, sessionID+".json")
}

// Load reads and validates the record for the given session id.
func (s *FileStore) Load(sessionID string) (*Context, error) {
	if err := ValidateID(sessionID); err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read session %q: %w", sessionID, err)
	}

	// Decode twice: once loosely to check field presence, once into the
	// typed record. A field that decodes to its zero value is still
	// present; a missing required field marks the record corrupt.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &CorruptError{SessionID: sessionID, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	for _, field := range requiredFields {
		if _, ok := raw[field]; !ok {
			return nil, &CorruptError{SessionID: sessionID, Reason: fmt.Sprintf("missing required field %q", field)}
		}
	}

	var record Context
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &CorruptError{SessionID: sessionID, Reason: fmt.Sprintf("invalid record: %v", err)}
	}

	// The record must agree with the file key it was loaded from.
	if record.SessionID != sessionID {
		return nil, &CorruptError{
			SessionID: sessionID,
			Reason:    fmt.Sprintf("record session_id %q does not match file key", record.SessionID),
		}
	}

	return &record, nil
}

// Save writes the full record, creating the containing directory if absent.
func (s *FileStore) Save(record *Context) error {
	if err := ValidateID(record.SessionID); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("create context dir: %w", err)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session %q: %w", record.SessionID, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(s.path(record.SessionID), data, 0644); err != nil {
		return fmt.Errorf("write session %q: %w", record.SessionID, err)
	}
	return nil
}
