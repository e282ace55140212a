// Package index records every capture event in SQLite so the archive can
// be audited (gaps, failure reasons, fallback usage) without walking the
// directory tree.
package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yihou/highway-crawler/dbopen"
	"github.com/yihou/highway-crawler/livecam/event"
)

// Schema for the captures table.
const Schema = `
CREATE TABLE IF NOT EXISTS captures (
	id          TEXT PRIMARY KEY,
	seq         INTEGER NOT NULL,
	outcome     TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	path        TEXT NOT NULL DEFAULT '',
	bytes       INTEGER NOT NULL DEFAULT 0,
	stage       TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	captured_at INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_captures_time ON captures(captured_at);
`

// Store is a capture index. It implements sink.Sink.
type Store struct {
	db   *sql.DB
	owns bool
}

// Open opens (or creates) the index database at path.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	return &Store{db: db, owns: true}, nil
}

// NewStore wraps an existing database that already has Schema applied.
// Close leaves db open.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Send inserts one event.
func (s *Store) Send(ctx context.Context, ev event.Capture) error {
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO captures (id, seq, outcome, source, url, path, bytes,
		                      stage, error, captured_at, duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		ev.ID, ev.Seq, string(ev.Outcome), string(ev.Source), ev.URL, ev.Path,
		ev.Bytes, string(ev.Stage), ev.Error, ev.Timestamp, ev.DurationMs)
	if err != nil {
		return fmt.Errorf("index: insert %s: %w", ev.ID, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]event.Capture, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, outcome, source, url, path, bytes, stage, error,
		       captured_at, duration_ms
		FROM captures
		ORDER BY captured_at DESC, seq DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("index: recent: %w", err)
	}
	defer rows.Close()

	var out []event.Capture
	for rows.Next() {
		var ev event.Capture
		var outcome, source, stage string
		if err := rows.Scan(&ev.ID, &ev.Seq, &outcome, &source, &ev.URL, &ev.Path,
			&ev.Bytes, &stage, &ev.Error, &ev.Timestamp, &ev.DurationMs); err != nil {
			return nil, fmt.Errorf("index: scan: %w", err)
		}
		ev.Outcome = event.Outcome(outcome)
		ev.Source = event.Source(source)
		ev.Stage = event.Stage(stage)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Stats summarises the index.
type Stats struct {
	Total    int   `json:"total"`
	OK       int   `json:"ok"`
	Failed   int   `json:"failed"`
	Fallback int   `json:"fallback"`
	Bytes    int64 `json:"bytes"`
	LastOKMs int64 `json:"last_ok_ms,omitempty"`
}

// Stats aggregates all recorded events.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(outcome = 'ok'), 0),
		       COALESCE(SUM(outcome = 'failed'), 0),
		       COALESCE(SUM(source = 'fallback'), 0),
		       COALESCE(SUM(bytes), 0),
		       COALESCE(MAX(CASE WHEN outcome = 'ok' THEN captured_at END), 0)
		FROM captures`).Scan(&st.Total, &st.OK, &st.Failed, &st.Fallback, &st.Bytes, &st.LastOKMs)
	if err != nil {
		return Stats{}, fmt.Errorf("index: stats: %w", err)
	}
	return st, nil
}

// Close closes the database if Open created it.
func (s *Store) Close() error {
	if s.owns {
		return s.db.Close()
	}
	return nil
}
