package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

// KeywordStore provides an in-memory implementation for development/testing.
type KeywordStore struct {
	mu       sync.RWMutex
	keywords map[string]tracker.KeywordRecord
}

var _ tracker.KeywordStore = (*KeywordStore)(nil)

// NewKeywordStore constructs a KeywordStore seeded with the given records.
func NewKeywordStore(records ...tracker.KeywordRecord) *KeywordStore {
	s := &KeywordStore{keywords: make(map[string]tracker.KeywordRecord, len(records))}
	for _, r := range records {
		s.keywords[r.ID] = r.Clone()
	}
	return s
}

// Put inserts or replaces a keyword.
func (s *KeywordStore) Put(record tracker.KeywordRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords[record.ID] = record.Clone()
}

// Get returns a copy of one keyword.
func (s *KeywordStore) Get(id string) (tracker.KeywordRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.keywords[id]
	if !ok {
		return tracker.KeywordRecord{}, false
	}
	return r.Clone(), true
}

// Load returns the requested keywords in request order; unknown ids are skipped.
func (s *KeywordStore) Load(_ context.Context, ids []string) ([]tracker.KeywordRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tracker.KeywordRecord, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.keywords[id]; ok {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// ListIDs returns every keyword id in lexical order.
func (s *KeywordStore) ListIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.keywords))
	for id := range s.keywords {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Update writes the merged refresh fields for one keyword.
func (s *KeywordStore) Update(_ context.Context, id string, update tracker.KeywordUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.keywords[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, tracker.ErrNotFound)
	}
	r.Position = update.Position
	r.URL = update.URL
	r.History = update.History
	r.LastResult = update.LastResult
	r.LastUpdated = update.LastUpdated
	r.LastUpdateError = update.LastUpdateError
	r.Updating = update.Updating
	s.keywords[id] = r.Clone()
	return nil
}

// SetUpdating flags the given keywords; unknown ids are ignored.
func (s *KeywordStore) SetUpdating(_ context.Context, ids []string, updating bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if r, ok := s.keywords[id]; ok {
			r.Updating = updating
			s.keywords[id] = r
		}
	}
	return nil
}
