package redisqueue

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

// fakeHash mimics the subset of Redis hash commands the queue issues.
type fakeHash struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	err    error
}

func newFakeHash() *fakeHash {
	return &fakeHash{hashes: make(map[string]map[string]string)}
}

func (f *fakeHash) HSetNX(_ context.Context, key, field string, value any) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	if _, exists := h[field]; exists {
		return redis.NewBoolResult(false, nil)
	}
	switch v := value.(type) {
	case []byte:
		h[field] = string(v)
	case string:
		h[field] = v
	}
	return redis.NewBoolResult(true, nil)
}

func (f *fakeHash) HDel(_ context.Context, key string, fields ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, field := range fields {
		if _, ok := f.hashes[key][field]; ok {
			delete(f.hashes[key], field)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeHash) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewMapStringStringResult(nil, f.err)
	}
	out := make(map[string]string, len(f.hashes[key]))
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func (f *fakeHash) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.hashes[k]; ok {
			delete(f.hashes, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeHash) Close() error { return nil }

func TestQueueSetSemantics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := newFakeHash()
	q := NewWithClient(fake, "")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, q.Add(ctx, tracker.RetryEntry{KeywordID: "k2", Reason: "timeout", EnqueuedAt: now.Add(time.Minute)}))
	require.NoError(t, q.Add(ctx, tracker.RetryEntry{KeywordID: "k1", Reason: "quota", EnqueuedAt: now}))
	require.NoError(t, q.Add(ctx, tracker.RetryEntry{KeywordID: "k1", Reason: "overwrite", EnqueuedAt: now.Add(time.Hour)}))
	require.Len(t, fake.hashes[DefaultKey], 2)

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"k1", "k2"}, tracker.RetryIDs(entries))
	require.Equal(t, "quota", entries[0].Reason)
	require.True(t, entries[0].EnqueuedAt.Equal(now))

	require.NoError(t, q.Remove(ctx, "k1"))
	require.NoError(t, q.Remove(ctx, "k1"))
	entries, err = q.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"k2"}, tracker.RetryIDs(entries))

	require.NoError(t, q.Clear(ctx))
	entries, err = q.List(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestQueueToleratesForeignValues(t *testing.T) {
	t.Parallel()

	fake := newFakeHash()
	fake.hashes["custom"] = map[string]string{"42": "1"}
	q := NewWithClient(fake, "custom")

	entries, err := q.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []tracker.RetryEntry{{KeywordID: "42"}}, entries)
}

func TestQueueWrapsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("READONLY")
	fake := newFakeHash()
	fake.err = boom
	q := NewWithClient(fake, "")

	require.ErrorIs(t, q.Add(context.Background(), tracker.RetryEntry{KeywordID: "k1"}), boom)
	require.ErrorIs(t, q.Remove(context.Background(), "k1"), boom)
	_, err := q.List(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestNewRequiresAddress(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.ErrorIs(t, err, ErrEmptyAddress)
}

// TestQueueAgainstServer runs only when SERPTRACKER_TEST_REDIS_ADDR points at a live Redis.
func TestQueueAgainstServer(t *testing.T) {
	addr := os.Getenv("SERPTRACKER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SERPTRACKER_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	q, err := New(ctx, Config{Address: addr, Key: "serptracker:test:" + t.Name()})
	require.NoError(t, err)
	defer func() { require.NoError(t, q.Close()) }()
	require.NoError(t, q.Clear(ctx))

	require.NoError(t, q.Add(ctx, tracker.RetryEntry{KeywordID: "k1", EnqueuedAt: time.Now().UTC()}))
	require.NoError(t, q.Add(ctx, tracker.RetryEntry{KeywordID: "k1", EnqueuedAt: time.Now().UTC()}))
	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, q.Clear(ctx))
}
