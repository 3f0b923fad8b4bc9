// Package memory provides an in-process retry queue for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

// Queue is a mutex-guarded set of retry entries.
type Queue struct {
	mu      sync.RWMutex
	entries map[string]tracker.RetryEntry
}

var _ tracker.RetryQueue = (*Queue)(nil)

// New constructs an empty Queue.
func New() *Queue {
	return &Queue{entries: make(map[string]tracker.RetryEntry)}
}

// Add inserts the entry unless its keyword id is already queued.
func (q *Queue) Add(_ context.Context, entry tracker.RetryEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.entries[entry.KeywordID]; !exists {
		q.entries[entry.KeywordID] = entry
	}
	return nil
}

// Remove deletes the keyword id if present.
func (q *Queue) Remove(_ context.Context, keywordID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, keywordID)
	return nil
}

// List returns the queued entries ordered by enqueue time, then id.
func (q *Queue) List(_ context.Context) ([]tracker.RetryEntry, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]tracker.RetryEntry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e)
	}
	tracker.SortRetryEntries(out)
	return out, nil
}

// Clear empties the queue.
func (q *Queue) Clear(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = make(map[string]tracker.RetryEntry)
	return nil
}
