// Package store defines the backing-store boundary consumed by the row cache.
//
// The cache never interprets the query that produces the rows; it only asks a
// Fetcher for contiguous windows of an ordered result set and for the total
// size of that result set. Implementations decide what "all rows" means
// (table, view, filtered selection) and must keep the ordering stable between
// calls, otherwise positional caching is meaningless.
package store

import "context"

// Identity is the primary-key value of a record in the backing store.
//
// A zero Identity is reserved for rows that have not been loaded; stores must
// only return records with non-zero identities.
type Identity int64

// Record is one row of the backing store's result set: its primary key and
// the display values for each column, aligned with Fetcher.Columns().
type Record struct {
	ID     Identity
	Values []string
}

// Window is a contiguous half-open range [Start, Start+Count) of positions in
// the ordered result set.
type Window struct {
	Start int
	Count int
}

// End returns the exclusive upper bound of the window.
func (w Window) End() int { return w.Start + w.Count }

// Contains reports whether pos falls inside the window.
func (w Window) Contains(pos int) bool { return pos >= w.Start && pos < w.End() }

// Fetcher is the backing-store query executor.
//
// FetchWindow returns the records at positions [w.Start, w.Start+w.Count) of
// the ordered result set. It may return fewer records than requested when the
// result set ends inside the window. Count returns the total size of the
// result set.
//
// Both methods are called from the cache's single worker goroutine, never
// concurrently with each other for the same cache.
type Fetcher interface {
	// Columns returns the column names, in display order. Record.Values of
	// every returned record is aligned with this slice.
	Columns() []string

	// FetchWindow returns the records inside w, ordered by position.
	FetchWindow(ctx context.Context, w Window) ([]Record, error)

	// Count returns the total number of records in the result set.
	Count(ctx context.Context) (int, error)
}
