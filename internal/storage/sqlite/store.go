// Package sqlite persists finalized events durably and serves
// offset-based pagination over the full history, including events long
// evicted from the in-memory feeds.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sclog/sclog-go/pkg/sclog/event"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	kind        TEXT NOT NULL,
	ts          INTEGER NOT NULL,
	subjects    TEXT NOT NULL DEFAULT '[]',
	objects     TEXT NOT NULL DEFAULT '[]',
	attrs       TEXT NOT NULL DEFAULT '{}',
	enrichment  TEXT NOT NULL DEFAULT '{}',
	category    TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS events_ts ON events (ts);
`

// Store persists finalized events in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (or creates) the event store at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Insert persists one event. Inserting an event whose ID already exists
// is a no-op, which makes silent replay and redelivery idempotent.
func (s *Store) Insert(ctx context.Context, ev event.Finalized) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subjects, err := json.Marshal(orEmptyList(ev.Subjects))
	if err != nil {
		return fmt.Errorf("encode subjects: %w", err)
	}
	objects, err := json.Marshal(orEmptyList(ev.Objects))
	if err != nil {
		return fmt.Errorf("encode objects: %w", err)
	}
	attrs, err := json.Marshal(orEmptyMap(ev.Attrs))
	if err != nil {
		return fmt.Errorf("encode attrs: %w", err)
	}
	enrichment, err := json.Marshal(orEmptyMap(ev.Enrichment))
	if err != nil {
		return fmt.Errorf("encode enrichment: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT OR IGNORE INTO events
			(id, kind, ts, subjects, objects, attrs, enrichment, category, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Kind), ev.Timestamp.UTC().UnixMilli(),
		string(subjects), string(objects), string(attrs), string(enrichment),
		ev.Category, ev.Description,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// List returns up to limit events ordered newest-first, skipping offset
// events, and reports whether more remain beyond the returned page.
func (s *Store) List(ctx context.Context, limit, offset int) ([]event.Finalized, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if limit <= 0 {
		return nil, false, nil
	}
	if offset < 0 {
		offset = 0
	}

	// Fetch one extra row to learn whether a further page exists.
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, kind, ts, subjects, objects, attrs, enrichment, category, description
		FROM events ORDER BY seq DESC LIMIT ? OFFSET ?`,
		limit+1, offset,
	)
	if err != nil {
		return nil, false, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []event.Finalized
	for rows.Next() {
		var (
			ev         event.Finalized
			kind       string
			tsMillis   int64
			subjects   string
			objects    string
			attrs      string
			enrichment string
		)
		if err := rows.Scan(&ev.ID, &kind, &tsMillis, &subjects, &objects,
			&attrs, &enrichment, &ev.Category, &ev.Description); err != nil {
			return nil, false, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = event.Kind(kind)
		ev.Timestamp = time.UnixMilli(tsMillis).UTC()
		if err := json.Unmarshal([]byte(subjects), &ev.Subjects); err != nil {
			return nil, false, fmt.Errorf("decode subjects: %w", err)
		}
		if err := json.Unmarshal([]byte(objects), &ev.Objects); err != nil {
			return nil, false, fmt.Errorf("decode objects: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &ev.Attrs); err != nil {
			return nil, false, fmt.Errorf("decode attrs: %w", err)
		}
		if err := json.Unmarshal([]byte(enrichment), &ev.Enrichment); err != nil {
			return nil, false, fmt.Errorf("decode enrichment: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("list events: %w", err)
	}

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, nil
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// SetCategory records server-supplied category metadata for an
// already-stored event.
func (s *Store) SetCategory(ctx context.Context, id, category string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE events SET category = ? WHERE id = ?`, category, id)
	if err != nil {
		return fmt.Errorf("set category: %w", err)
	}
	return nil
}

func orEmptyList(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
