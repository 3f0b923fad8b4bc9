// Package redisqueue provides a Redis-backed retry queue. Entries live in a single hash
// keyed by keyword id so set semantics are enforced server side with HSETNX.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

// DefaultKey is the hash holding queued entries.
const DefaultKey = "serptracker:retry_queue"

const connectionTimeout = 5 * time.Second

// ErrEmptyAddress is returned when the Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// Config holds Redis connection configuration.
type Config struct {
	Address  string
	Password string
	DB       int
	Key      string
}

type hashClient interface {
	HSetNX(ctx context.Context, key, field string, value any) *redis.BoolCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Queue is a Redis-backed tracker.RetryQueue.
type Queue struct {
	client hashClient
	key    string
}

var _ tracker.RetryQueue = (*Queue)(nil)

type storedEntry struct {
	Reason     string    `json:"reason"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// New dials Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Queue, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewWithClient(client, cfg.Key), nil
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(client hashClient, key string) *Queue {
	if key == "" {
		key = DefaultKey
	}
	return &Queue{client: client, key: key}
}

// Close releases the client connection pool.
func (q *Queue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

// Add inserts the entry unless its keyword id is already queued.
func (q *Queue) Add(ctx context.Context, entry tracker.RetryEntry) error {
	payload, err := json.Marshal(storedEntry{Reason: entry.Reason, EnqueuedAt: entry.EnqueuedAt})
	if err != nil {
		return fmt.Errorf("encode retry entry: %w", err)
	}
	if err := q.client.HSetNX(ctx, q.key, entry.KeywordID, payload).Err(); err != nil {
		return fmt.Errorf("enqueue retry %s: %w", entry.KeywordID, err)
	}
	return nil
}

// Remove deletes the keyword id if present.
func (q *Queue) Remove(ctx context.Context, keywordID string) error {
	if err := q.client.HDel(ctx, q.key, keywordID).Err(); err != nil {
		return fmt.Errorf("dequeue retry %s: %w", keywordID, err)
	}
	return nil
}

// List returns the queued entries ordered by enqueue time, then id.
func (q *Queue) List(ctx context.Context) ([]tracker.RetryEntry, error) {
	fields, err := q.client.HGetAll(ctx, q.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list retry queue: %w", err)
	}
	entries := make([]tracker.RetryEntry, 0, len(fields))
	for id, raw := range fields {
		entry := tracker.RetryEntry{KeywordID: id}
		var stored storedEntry
		// Values written by other tools may be bare markers; keep the id regardless.
		if json.Unmarshal([]byte(raw), &stored) == nil {
			entry.Reason = stored.Reason
			entry.EnqueuedAt = stored.EnqueuedAt
		}
		entries = append(entries, entry)
	}
	tracker.SortRetryEntries(entries)
	return entries, nil
}

// Clear empties the queue.
func (q *Queue) Clear(ctx context.Context) error {
	if err := q.client.Del(ctx, q.key).Err(); err != nil {
		return fmt.Errorf("clear retry queue: %w", err)
	}
	return nil
}
