package tracker

import (
	"context"
	"time"
)

// KeywordStore is the narrow persistence contract the orchestrator relies on.
type KeywordStore interface {
	Load(ctx context.Context, ids []string) ([]KeywordRecord, error)
	ListIDs(ctx context.Context) ([]string, error)
	Update(ctx context.Context, id string, update KeywordUpdate) error
	SetUpdating(ctx context.Context, ids []string, updating bool) error
}

// RetryQueue is a set of keyword ids pending re-attempt. Implementations must be safe
// for concurrent use; Add of a present id and Remove of an absent id are no-ops.
type RetryQueue interface {
	Add(ctx context.Context, entry RetryEntry) error
	Remove(ctx context.Context, keywordID string) error
	List(ctx context.Context) ([]RetryEntry, error)
	Clear(ctx context.Context) error
}

// Transport performs a provider request and returns the raw response body.
type Transport interface {
	Do(ctx context.Context, req Request) ([]byte, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper pauses between paced requests and returns early when ctx ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces batch identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
