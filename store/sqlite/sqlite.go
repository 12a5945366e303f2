// Package sqlite implements the rowcache store boundary over a SQLite
// database, using the pure-Go modernc.org/sqlite driver.
//
// The fetcher serves windows of an ordered selection with LIMIT/OFFSET and
// answers Count with a COUNT over the same selection, which is exactly the
// access pattern the cache's coalescer produces. Filter or sort changes are
// expressed by building a new Store (or calling SetSelection) and resetting
// the cache that consumes it.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/rowcache/store"
)

// Config describes the selection a Store serves.
type Config struct {
	// Table is the table or view to read from. Required.
	Table string

	// Columns are the display columns, in view order. Required.
	Columns []string

	// IDColumn is the primary-key column. Defaults to "rowid".
	IDColumn string

	// OrderBy is the body of the ORDER BY clause. Defaults to the id column,
	// keeping positions stable between windows.
	OrderBy string

	// Where is an optional filter clause body; Args are its placeholders.
	Where string
	Args  []any
}

// Store is a store.Fetcher reading windows from a SQLite selection.
type Store struct {
	db    *sql.DB
	owned bool

	mu  sync.Mutex
	cfg Config
}

var _ store.Fetcher = (*Store)(nil)

// Open opens the database at path and builds a Store over cfg.
func Open(path string, cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	s, err := New(db, cfg)
	if err != nil {
		_ = db.Close() // safe to ignore
		return nil, err
	}
	s.owned = true

	return s, nil
}

// New builds a Store over an existing database handle. The handle is not
// closed by Close.
func New(db *sql.DB, cfg Config) (*Store, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("sqlite: table is required")
	}
	if len(cfg.Columns) == 0 {
		return nil, fmt.Errorf("sqlite: at least one column is required")
	}
	if cfg.IDColumn == "" {
		cfg.IDColumn = "rowid"
	}
	if cfg.OrderBy == "" {
		cfg.OrderBy = quoteIdent(cfg.IDColumn)
	}

	return &Store{db: db, cfg: cfg}, nil
}

// Columns implements store.Fetcher.
func (s *Store) Columns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Columns
}

// FetchWindow implements store.Fetcher.
func (s *Store) FetchWindow(ctx context.Context, w store.Window) ([]store.Record, error) {
	if w.Count <= 0 {
		return nil, nil
	}

	query, args := s.windowQuery(w)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query window [%d, %d): %w", w.Start, w.End(), err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	s.mu.Lock()
	ncols := len(s.cfg.Columns)
	s.mu.Unlock()

	var out []store.Record
	for rows.Next() {
		var id int64
		vals := make([]sql.NullString, ncols)

		dest := make([]any, 0, ncols+1)
		dest = append(dest, &id)
		for i := range vals {
			dest = append(dest, &vals[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rec := store.Record{
			ID:     store.Identity(id),
			Values: make([]string, ncols),
		}
		for i, v := range vals {
			if v.Valid {
				rec.Values[i] = v.String
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}

// Count implements store.Fetcher.
func (s *Store) Count(ctx context.Context) (int, error) {
	query, args := s.countQuery()

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}

	return count, nil
}

// SetSelection swaps the filter and ordering of the selection. The consuming
// cache must be Reset afterwards, since row positions are redefined.
func (s *Store) SetSelection(where string, args []any, orderBy string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg.Where = where
	s.cfg.Args = args
	if orderBy != "" {
		s.cfg.OrderBy = orderBy
	}
}

// Close closes the database handle if this Store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *Store) windowQuery(w store.Window) (string, []any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(quoteIdent(s.cfg.IDColumn))
	for _, col := range s.cfg.Columns {
		b.WriteString(", CAST(")
		b.WriteString(quoteIdent(col))
		b.WriteString(" AS TEXT)")
	}
	b.WriteString(" FROM ")
	b.WriteString(quoteIdent(s.cfg.Table))
	if s.cfg.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(s.cfg.Where)
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(s.cfg.OrderBy)
	b.WriteString(" LIMIT ? OFFSET ?")

	args := make([]any, 0, len(s.cfg.Args)+2)
	args = append(args, s.cfg.Args...)
	args = append(args, w.Count, w.Start)

	return b.String(), args
}

func (s *Store) countQuery() (string, []any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(quoteIdent(s.cfg.Table))
	if s.cfg.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(s.cfg.Where)
	}

	return b.String(), s.cfg.Args
}

// quoteIdent quotes an identifier for SQLite.
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
