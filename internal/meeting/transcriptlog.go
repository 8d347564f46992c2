package meeting

import (
	"sync"

	"github.com/kaigi-app/kaigi/pkg/types"
)

// TranscriptLog is the append-only, ordered transcript of a session.
// It is safe for concurrent use: recorders append while the summary
// scheduler and suggestion engine take snapshots.
type TranscriptLog struct {
	mu      sync.RWMutex
	entries []types.TranscriptEntry
}

// NewTranscriptLog creates an empty transcript log.
func NewTranscriptLog() *TranscriptLog {
	return &TranscriptLog{}
}

// Append adds an entry to the end of the log.
func (l *TranscriptLog) Append(entry types.TranscriptEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Snapshot returns a copy of all entries in append order.
func (l *TranscriptLog) Snapshot() []types.TranscriptEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.TranscriptEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries in the log.
func (l *TranscriptLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
