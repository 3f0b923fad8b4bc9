// Package file persists the retry queue as a JSON document on local disk. A sibling
// lock file serializes read-modify-write cycles across processes sharing the path.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

const lockRetryDelay = 25 * time.Millisecond

// Queue is a file-backed tracker.RetryQueue.
type Queue struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

var _ tracker.RetryQueue = (*Queue)(nil)

// New returns a queue stored at path. The parent directory is created if needed.
func New(path string) (*Queue, error) {
	if path == "" {
		return nil, errors.New("retry queue path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create retry queue dir: %w", err)
	}
	return &Queue{path: path, lock: flock.New(path + ".lock")}, nil
}

// Add inserts the entry unless its keyword id is already queued.
func (q *Queue) Add(ctx context.Context, entry tracker.RetryEntry) error {
	return q.update(ctx, func(entries []tracker.RetryEntry) ([]tracker.RetryEntry, bool) {
		for _, e := range entries {
			if e.KeywordID == entry.KeywordID {
				return entries, false
			}
		}
		return append(entries, entry), true
	})
}

// Remove deletes the keyword id if present.
func (q *Queue) Remove(ctx context.Context, keywordID string) error {
	return q.update(ctx, func(entries []tracker.RetryEntry) ([]tracker.RetryEntry, bool) {
		out := entries[:0]
		for _, e := range entries {
			if e.KeywordID != keywordID {
				out = append(out, e)
			}
		}
		return out, len(out) != len(entries)
	})
}

// List returns the queued entries ordered by enqueue time, then id.
func (q *Queue) List(ctx context.Context) ([]tracker.RetryEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.acquire(ctx); err != nil {
		return nil, err
	}
	defer q.release()

	entries, err := q.read()
	if err != nil {
		return nil, err
	}
	tracker.SortRetryEntries(entries)
	return entries, nil
}

// Clear empties the queue.
func (q *Queue) Clear(ctx context.Context) error {
	return q.update(ctx, func([]tracker.RetryEntry) ([]tracker.RetryEntry, bool) {
		return []tracker.RetryEntry{}, true
	})
}

func (q *Queue) update(ctx context.Context, fn func([]tracker.RetryEntry) ([]tracker.RetryEntry, bool)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.acquire(ctx); err != nil {
		return err
	}
	defer q.release()

	entries, err := q.read()
	if err != nil {
		return err
	}
	next, changed := fn(entries)
	if !changed {
		return nil
	}
	return q.write(next)
}

func (q *Queue) acquire(ctx context.Context) error {
	locked, err := q.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock retry queue: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock retry queue: %s busy", q.path)
	}
	return nil
}

func (q *Queue) release() {
	_ = q.lock.Unlock()
}

func (q *Queue) read() ([]tracker.RetryEntry, error) {
	data, err := os.ReadFile(q.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []tracker.RetryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read retry queue: %w", err)
	}
	return decode(data)
}

// decode accepts a list of entry objects or a bare list of ids (string or numeric).
func decode(data []byte) ([]tracker.RetryEntry, error) {
	if len(data) == 0 {
		return []tracker.RetryEntry{}, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode retry queue: %w", err)
	}
	entries := make([]tracker.RetryEntry, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		entry, err := decodeEntry(item)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[entry.KeywordID]; dup || entry.KeywordID == "" {
			continue
		}
		seen[entry.KeywordID] = struct{}{}
		entries = append(entries, entry)
	}
	return entries, nil
}

func decodeEntry(item json.RawMessage) (tracker.RetryEntry, error) {
	var entry tracker.RetryEntry
	if err := json.Unmarshal(item, &entry); err == nil {
		return entry, nil
	}
	var id string
	if err := json.Unmarshal(item, &id); err == nil {
		return tracker.RetryEntry{KeywordID: id}, nil
	}
	var num json.Number
	if err := json.Unmarshal(item, &num); err == nil {
		if n, convErr := strconv.ParseInt(num.String(), 10, 64); convErr == nil {
			return tracker.RetryEntry{KeywordID: strconv.FormatInt(n, 10)}, nil
		}
	}
	return tracker.RetryEntry{}, fmt.Errorf("decode retry queue: unsupported entry %s", string(item))
}

func (q *Queue) write(entries []tracker.RetryEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode retry queue: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(q.path), filepath.Base(q.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write retry queue: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write retry queue: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write retry queue: %w", err)
	}
	if err := os.Rename(tmp.Name(), q.path); err != nil {
		return fmt.Errorf("replace retry queue: %w", err)
	}
	return nil
}
