// Package postgres provides a Postgres-backed retry queue.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "retry_queue"

// Config controls the Postgres connection pool used by the queue.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Queue stores retry entries in a table keyed by keyword id:
//
//	CREATE TABLE retry_queue (
//		keyword_id  TEXT PRIMARY KEY,
//		reason      TEXT NOT NULL DEFAULT '',
//		enqueued_at TIMESTAMPTZ NOT NULL
//	);
type Queue struct {
	pool  pool
	table string
}

var _ tracker.RetryQueue = (*Queue)(nil)

// New connects to Postgres using the provided config.
func New(ctx context.Context, cfg Config) (*Queue, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("retry_queue.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	q, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return q, nil
}

// NewWithPool constructs a queue from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Queue, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Queue{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (q *Queue) Close() {
	if q == nil || q.pool == nil {
		return
	}
	q.pool.Close()
}

// Add inserts the entry; an already queued id is left untouched.
func (q *Queue) Add(ctx context.Context, entry tracker.RetryEntry) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (keyword_id, reason, enqueued_at) VALUES ($1, $2, $3) ON CONFLICT (keyword_id) DO NOTHING`,
		q.table,
	)
	if _, err := q.pool.Exec(ctx, query, entry.KeywordID, entry.Reason, entry.EnqueuedAt); err != nil {
		return fmt.Errorf("enqueue retry %s: %w", entry.KeywordID, err)
	}
	return nil
}

// Remove deletes the keyword id if present.
func (q *Queue) Remove(ctx context.Context, keywordID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE keyword_id = $1`, q.table)
	if _, err := q.pool.Exec(ctx, query, keywordID); err != nil {
		return fmt.Errorf("dequeue retry %s: %w", keywordID, err)
	}
	return nil
}

// List returns the queued entries ordered by enqueue time, then id.
func (q *Queue) List(ctx context.Context) ([]tracker.RetryEntry, error) {
	query := fmt.Sprintf(
		`SELECT keyword_id, reason, enqueued_at FROM %s ORDER BY enqueued_at, keyword_id`,
		q.table,
	)
	rows, err := q.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list retry queue: %w", err)
	}
	defer rows.Close()

	entries := []tracker.RetryEntry{}
	for rows.Next() {
		var e tracker.RetryEntry
		if err := rows.Scan(&e.KeywordID, &e.Reason, &e.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("scan retry entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list retry queue: %w", err)
	}
	return entries, nil
}

// Clear empties the queue.
func (q *Queue) Clear(ctx context.Context) error {
	if _, err := q.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, q.table)); err != nil {
		return fmt.Errorf("clear retry queue: %w", err)
	}
	return nil
}
