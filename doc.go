// Package rowcache provides a windowed record-loading cache for virtualized
// table and tree views.
//
// A Cache lets a UI display millions of database rows without loading them
// all. It tracks which row ranges are known or unknown, trims and merges
// overlapping fetch requests before they reach the backing store, dispatches
// the surviving requests to a single background worker goroutine, and
// reconciles out-of-order, possibly-cancelled results back into a consistent
// row state machine.
//
// # Quick Start
//
//	fetcher, _ := sqlite.Open("app.db", sqlite.Config{
//	    Table:   "invoices",
//	    Columns: []string{"number", "customer", "total"},
//	    OrderBy: "number",
//	})
//	defer fetcher.Close()
//
//	cache, _ := rowcache.New(fetcher,
//	    rowcache.WithOnRowsChanged(view.RepaintRows),
//	    rowcache.WithOnTotalCount(view.SetRowCount),
//	)
//	defer cache.Close()
//
//	// Owner event loop: visibility in, completions out.
//	for {
//	    select {
//	    case r := <-view.VisibleRanges():
//	        cache.EnsureVisible(r.Start, r.Count)
//	    case comp := <-cache.Completions():
//	        cache.Apply(comp)
//	    }
//	}
//
// # Ownership Model
//
// A Cache is owned by exactly one goroutine, typically the UI event loop.
// EnsureVisible, Apply, Reset and the accessors are not synchronized; the
// worker goroutine communicates exclusively through the item and completion
// channels. EnsureVisible never blocks on the worker.
//
// # Request Coalescing
//
// New demand is trimmed against ranges that are already pending or in
// flight, and small adjacent pending requests are merged, so scrolling does
// not turn into a request storm against the store. Dispatched requests are
// range-immutable but still absorb priority bumps from overlapping re-asks.
// See the coalesce package for the interval algebra.
//
// # Resets and Epochs
//
// Reset invalidates everything when the definition of "all rows" changes
// (filter, sort, reload). In-flight work is cancelled advisorily and the
// cache's epoch counter is bumped; completions tagged with an older epoch
// are dropped silently, so a slow query from a previous selection can never
// overwrite fresh rows.
package rowcache
