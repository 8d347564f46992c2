// Package feedback records how users act on speech suggestions. Events are
// stored as append-only JSON lines in a local file, ready for later prompt
// tuning without a database dependency.
package feedback

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/kaigi-app/kaigi/pkg/types"
)

// Action is what the user did with a suggestion.
type Action string

const (
	ActionSaved    Action = "saved"
	ActionRejected Action = "rejected"
)

// Event is a single feedback entry written to the store.
type Event struct {
	Timestamp    time.Time            `json:"timestamp"`
	SessionID    string               `json:"session_id"`
	SuggestionID string               `json:"suggestion_id"`
	Kind         types.SuggestionKind `json:"kind"`
	Text         string               `json:"text"`
	Action       Action               `json:"action"`
}

// Recorder accepts feedback events. The suggestion engine only depends on
// this interface so tests can capture events in memory.
type Recorder interface {
	Record(event Event) error
}

// Compile-time interface check.
var _ Recorder = (*FileStore)(nil)

// FileStore persists events as JSON lines in a local file.
// Safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore that writes to the given path.
// The file is created if it does not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Record appends an event to the file. The timestamp is filled in when the
// event carries none.
func (fs *FileStore) Record(event Event) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("feedback: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("feedback: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("feedback: write: %w", err)
	}
	return nil
}
