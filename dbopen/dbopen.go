// Package dbopen opens the SQLite capture index for an unattended writer.
//
// Pragmas travel in the DSN as modernc.org/sqlite _pragma parameters, so
// every connection the pool opens gets them, not only the first one.
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("state/captures.db", dbopen.WithMkdirAll(), dbopen.WithSchema(index.Schema))
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type options struct {
	driver      string
	busyTimeout int
	synchronous string
	journal     string
	maxOpen     int
	mkdirAll    bool
	schemas     []string
}

// Option customises Open.
type Option func(*options)

// WithDriver sets the database/sql driver name. Default: "sqlite".
func WithDriver(name string) Option { return func(o *options) { o.driver = name } }

// WithBusyTimeout sets busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(o *options) { o.busyTimeout = ms } }

// WithSynchronous sets the synchronous pragma. Default: "NORMAL".
func WithSynchronous(mode string) Option { return func(o *options) { o.synchronous = mode } }

// WithMaxOpenConns caps the pool. 0 leaves database/sql's default.
func WithMaxOpenConns(n int) Option { return func(o *options) { o.maxOpen = n } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(o *options) { o.mkdirAll = true } }

// WithSchema queues DDL executed once the database is reachable.
func WithSchema(s string) Option { return func(o *options) { o.schemas = append(o.schemas, s) } }

func newOptions(opts []Option) options {
	o := options{
		driver:      "sqlite",
		busyTimeout: 10_000,
		synchronous: "NORMAL",
		journal:     "WAL",
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// DSN returns path with the configured pragmas appended as query parameters.
func DSN(path string, opts ...Option) string {
	return newOptions(opts).dsn(path)
}

func (o options) dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", o.busyTimeout))
	q.Add("_pragma", fmt.Sprintf("journal_mode(%s)", o.journal))
	q.Add("_pragma", fmt.Sprintf("synchronous(%s)", o.synchronous))
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

// Open opens the database at path, checks it is reachable and applies any
// queued schema.
func Open(path string, opts ...Option) (*sql.DB, error) {
	o := newOptions(opts)

	if o.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir %s: %w", filepath.Dir(path), err)
		}
	}

	db, err := sql.Open(o.driver, o.dsn(path))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if o.maxOpen > 0 {
		db.SetMaxOpenConns(o.maxOpen)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping %s: %w", path, err)
	}
	for _, s := range o.schemas {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: schema: %w", err)
		}
	}
	return db, nil
}

// OpenMemory opens a private in-memory database for tests. The pool holds a
// single connection since each ":memory:" connection is its own database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", append(opts, WithMaxOpenConns(1))...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
