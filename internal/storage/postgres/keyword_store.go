// Package postgres provides the Postgres-backed keyword store.
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

const defaultTable = "keywords"

// Config controls the Postgres connection pool used for keyword rows.
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

// KeywordStore reads and writes keyword rows. History and last_result are JSON text
// columns; last_update_error holds a JSON object or the literal string false.
type KeywordStore struct {
	pool  pool
	table string
}

var _ tracker.KeywordStore = (*KeywordStore)(nil)

// NewKeywordStore creates a Postgres-backed KeywordStore using the provided config.
func NewKeywordStore(ctx context.Context, cfg Config) (*KeywordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
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
	s, err := NewKeywordStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewKeywordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewKeywordStoreWithPool(p pool, table string) (*KeywordStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &KeywordStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *KeywordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *KeywordStore) selectColumns() string {
	return `id, keyword, domain, country, COALESCE(city, ''), COALESCE(engine, ''), COALESCE(device, 'desktop'),
	position, COALESCE(url, ''), COALESCE(history, '{}'), COALESCE(last_result, '[]'),
	last_updated, COALESCE(last_update_error, 'false'), updating`
}

// Load returns the requested keywords in request order; unknown ids are skipped.
func (s *KeywordStore) Load(ctx context.Context, ids []string) ([]tracker.KeywordRecord, error) {
	if len(ids) == 0 {
		return []tracker.KeywordRecord{}, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ANY($1)`, s.selectColumns(), s.table)
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("load keywords: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]tracker.KeywordRecord, len(ids))
	for rows.Next() {
		rec, err := scanKeyword(rows)
		if err != nil {
			return nil, err
		}
		byID[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load keywords: %w", err)
	}

	out := make([]tracker.KeywordRecord, 0, len(byID))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
			delete(byID, id)
		}
	}
	return out, nil
}

func scanKeyword(rows pgx.Rows) (tracker.KeywordRecord, error) {
	var (
		rec         tracker.KeywordRecord
		device      string
		history     string
		lastResult  string
		lastUpdated *time.Time
		updateErr   string
	)
	if err := rows.Scan(
		&rec.ID,
		&rec.Keyword,
		&rec.Domain,
		&rec.Country,
		&rec.City,
		&rec.Engine,
		&device,
		&rec.Position,
		&rec.URL,
		&history,
		&lastResult,
		&lastUpdated,
		&updateErr,
		&rec.Updating,
	); err != nil {
		return tracker.KeywordRecord{}, fmt.Errorf("scan keyword: %w", err)
	}
	rec.Device = tracker.Device(device)
	rec.History = decodeHistory(history)
	rec.LastResult = decodeResults(lastResult)
	if lastUpdated != nil {
		rec.LastUpdated = lastUpdated.UTC()
	}
	rec.LastUpdateError = decodeUpdateError(updateErr)
	return rec, nil
}

// ListIDs returns every keyword id in lexical order.
func (s *KeywordStore) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT id FROM %s ORDER BY id`, s.table))
	if err != nil {
		return nil, fmt.Errorf("list keyword ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan keyword id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list keyword ids: %w", err)
	}
	return ids, nil
}

// Update writes the merged refresh fields for one keyword.
func (s *KeywordStore) Update(ctx context.Context, id string, update tracker.KeywordUpdate) error {
	history, err := encodeHistory(update.History)
	if err != nil {
		return err
	}
	lastResult, err := encodeResults(update.LastResult)
	if err != nil {
		return err
	}
	updateErr, err := encodeUpdateError(update.LastUpdateError)
	if err != nil {
		return err
	}
	var lastUpdated *time.Time
	if !update.LastUpdated.IsZero() {
		t := update.LastUpdated.UTC()
		lastUpdated = &t
	}

	query := fmt.Sprintf(`
UPDATE %s SET
	position = $2,
	url = $3,
	history = $4,
	last_result = $5,
	last_updated = $6,
	last_update_error = $7,
	updating = $8
WHERE id = $1`, s.table)

	tag, err := s.pool.Exec(ctx, query,
		id,
		update.Position,
		update.URL,
		history,
		lastResult,
		lastUpdated,
		updateErr,
		update.Updating,
	)
	if err != nil {
		return fmt.Errorf("update keyword %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update keyword %s: %w", id, tracker.ErrNotFound)
	}
	return nil
}

// SetUpdating flags the given keywords; unknown ids are ignored.
func (s *KeywordStore) SetUpdating(ctx context.Context, ids []string, updating bool) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE %s SET updating = $2 WHERE id = ANY($1)`, s.table)
	if _, err := s.pool.Exec(ctx, query, ids, updating); err != nil {
		return fmt.Errorf("set updating: %w", err)
	}
	return nil
}
