// Package store defines the persistence interface for finished meeting
// sessions.
//
// A session is written once, when the meeting stops, and read back for
// listing and review. The interface is deliberately small; richer querying
// belongs in whatever frontend sits on top of the store.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kaigi-app/kaigi/pkg/types"
)

// ErrNotFound is returned by Get when no session has the requested ID.
var ErrNotFound = errors.New("store: session not found")

// Record is one persisted meeting session.
type Record struct {
	// ID uniquely identifies the session (UUID).
	ID string

	// Title is the meeting title, from the meeting context or a default.
	Title string

	// Status is "completed" for sessions saved by a normal stop and
	// "aborted" for sessions ended by a fatal capture error.
	Status string

	// StartedAt and EndedAt bound the recording period.
	StartedAt time.Time
	EndedAt   time.Time

	// Duration is total recorded time, excluding pauses.
	Duration time.Duration

	// ParticipantCount is the number of participants named in the meeting
	// context. Zero when no context was set.
	ParticipantCount int

	// HasSummary and HasMaterials are denormalised listing flags.
	HasSummary   bool
	HasMaterials bool

	// Transcriptions is the full ordered transcript log.
	Transcriptions []types.TranscriptEntry

	// Summary is the final rolling summary, nil when none was produced.
	Summary *types.Summary

	// Context is the meeting context the session ran with, nil when unset.
	Context *types.MeetingContext

	// Decisions and ActionItems come from post-meeting extraction.
	Decisions   []types.Decision
	ActionItems []types.ActionItem
}

// ListEntry is the lightweight listing projection of a Record.
type ListEntry struct {
	ID                 string
	Title              string
	Status             string
	StartedAt          time.Time
	Duration           time.Duration
	TranscriptionCount int
	HasSummary         bool
	HasMaterials       bool
}

// Store persists finished sessions.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Save writes rec. Saving an existing ID replaces the stored session.
	Save(ctx context.Context, rec Record) error

	// Get returns the full session with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// List returns listing entries for all sessions, newest first.
	List(ctx context.Context) ([]ListEntry, error)
}
