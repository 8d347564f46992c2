// Package mock provides an in-memory implementation of store.Store for
// testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kaigi-app/kaigi/pkg/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store keeps records in a map. Set SaveErr to force Save failures.
type Store struct {
	mu      sync.Mutex
	records map[string]store.Record

	// SaveErr, when set, is returned by every Save call.
	SaveErr error
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string]store.Record)}
}

// Save implements store.Store.
func (s *Store) Save(ctx context.Context, rec store.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.records[rec.ID] = rec
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return store.Record{}, fmt.Errorf("mock: get %s: %w", id, store.ErrNotFound)
	}
	return rec, nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context) ([]store.ListEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]store.ListEntry, 0, len(s.records))
	for _, rec := range s.records {
		entries = append(entries, store.ListEntry{
			ID:                 rec.ID,
			Title:              rec.Title,
			Status:             rec.Status,
			StartedAt:          rec.StartedAt,
			Duration:           rec.Duration,
			TranscriptionCount: len(rec.Transcriptions),
			HasSummary:         rec.Summary != nil,
			HasMaterials:       rec.HasMaterials,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartedAt.After(entries[j].StartedAt)
	})
	return entries, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
