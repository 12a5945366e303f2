package rowcache

import (
	"context"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/rowcache/coalesce"
	"github.com/hupe1980/rowcache/store"
	"github.com/hupe1980/rowcache/worker"
)

// Cache is the coordinator of the windowed record-loading pipeline.
//
// It holds the sparse row array, the total count, the request coalescer and
// the handle to the worker channel. From a visible range it decides which
// fetch requests to create, dispatches them, and reconciles completions back
// into row state.
//
// Cache is deliberately not synchronized: it is owned by a single goroutine
// (typically the UI event loop), which calls EnsureVisible/Reset/Row and
// drains Completions() into Apply. The worker goroutine never touches the
// cache's state; the item and completion channels are the only cross-
// goroutine hops.
type Cache struct {
	opts options

	ch  *worker.Channel
	set *coalesce.Set

	rows   map[int]*Row
	loaded *roaring.Bitmap

	// inflight maps a dispatched request id to its window. The window is
	// kept here because the request object itself may be merged away before
	// the completion arrives.
	inflight map[uint64]store.Window
	items    map[uint64]*worker.Item

	epoch uint64
	total int

	countSeq     uint64
	countPending bool
	countItem    *worker.Item

	closed bool
}

// New creates a Cache over the given fetcher and immediately requests the
// total count through the worker channel.
//
// The caller owns the returned cache from a single goroutine and must drain
// Completions() into Apply for anything to make progress.
func New(fetcher store.Fetcher, optFns ...Option) (*Cache, error) {
	if fetcher == nil {
		return nil, ErrNilFetcher
	}

	opts := applyOptions(optFns)

	ch := worker.NewChannel(fetcher, func(wo *worker.Options) {
		wo.QueueDepth = opts.queueDepth
		wo.Controller = opts.controller
	})

	c := &Cache{
		opts:     opts,
		ch:       ch,
		set:      coalesce.NewSet(opts.mergeLimit),
		rows:     make(map[int]*Row),
		loaded:   roaring.New(),
		inflight: make(map[uint64]store.Window),
		items:    make(map[uint64]*worker.Item),
		total:    -1,
	}

	if err := c.RequestTotalCount(); err != nil {
		ch.Close()
		return nil, err
	}

	return c, nil
}

// EnsureVisible records that rows [start, start+count) are visible and
// dispatches fetches for the sub-ranges not already loaded or in flight.
//
// It is synchronous and non-blocking: it returns immediately after
// bookkeeping, results arrive later through Completions(). Until the first
// total count has been applied the call is a no-op, because the cache cannot
// clamp demand against an unknown result set.
//
// Rows in the error state count as demand again, subject to the optional
// retry limiter.
func (c *Cache) EnsureVisible(start, count int) error {
	if c.closed {
		return ErrClosed
	}
	if start < 0 || count < 0 {
		return ErrInvalidRange
	}
	if c.total < 0 {
		return nil
	}
	if start >= c.total {
		return nil
	}
	if start+count > c.total {
		count = c.total - start
	}
	if count == 0 {
		return nil
	}

	// One retry decision per call, so a range full of error rows consumes a
	// single limiter token instead of one per row.
	retryDecided := false
	retryAllowed := false
	allowRetry := func() bool {
		if !retryDecided {
			retryDecided = true
			retryAllowed = c.opts.retryLimiter == nil || c.opts.retryLimiter.Allow()
		}
		return retryAllowed
	}

	// Collect maximal contiguous demand runs.
	submitted := 0
	runStart := -1
	flush := func(end int) {
		if runStart < 0 {
			return
		}
		c.set.Submit(runStart, end-runStart)
		submitted++
		runStart = -1
	}

	for pos := start; pos < start+count; pos++ {
		demand := false
		switch row := c.rows[pos]; {
		case row == nil || row.State == RowStub:
			demand = true
		case row.State == RowError:
			demand = allowRetry()
		}
		if demand {
			if runStart < 0 {
				runStart = pos
			}
		} else {
			flush(pos)
		}
	}
	flush(start + count)

	dispatched, err := c.dispatchPending()
	c.opts.metricsCollector.RecordCoalesce(submitted, dispatched)

	return err
}

// dispatchPending turns every surviving pending request into loading rows
// and a worker item, highest priority first. This is the only path that
// creates fetch items.
func (c *Cache) dispatchPending() (int, error) {
	pending := c.set.Pending()

	for _, req := range pending {
		for pos := req.Start; pos < req.End(); pos++ {
			row := c.ensureRow(pos)
			row.State = RowLoading
			row.Identity = 0
			row.Fields = nil
			row.Err = nil
		}

		c.set.MarkDispatched(req.ID)

		item := &worker.Item{
			RequestID: req.ID,
			Epoch:     c.epoch,
			Kind:      worker.KindFetch,
			Window:    store.Window{Start: req.Start, Count: req.Count},
			Priority:  req.Priority,
		}
		c.inflight[req.ID] = item.Window
		c.items[req.ID] = item

		if err := c.ch.Submit(context.Background(), item); err != nil {
			return 0, translateError(err)
		}

		c.opts.logger.LogDispatch(req.ID, item.Window, req.Priority, len(c.inflight))
	}

	return len(pending), nil
}

// Apply reconciles one completion into row state. It must be called from the
// owner goroutine, normally while draining Completions().
//
// Completions from a previous epoch are dropped silently; they belong to a
// selection that no longer exists.
func (c *Cache) Apply(comp worker.Completion) {
	if c.closed {
		return
	}

	if comp.Epoch != c.epoch {
		c.opts.metricsCollector.RecordStaleDrop()
		c.opts.logger.LogStaleDrop(comp.RequestID, comp.Epoch, c.epoch)
		return
	}

	switch comp.Kind {
	case worker.KindCount:
		c.applyCount(comp)
	default:
		c.applyFetch(comp)
	}
}

func (c *Cache) applyCount(comp worker.Completion) {
	c.countPending = false
	c.countItem = nil

	c.opts.metricsCollector.RecordCount(comp.Duration, comp.Err)
	c.opts.logger.LogTotalCount(comp.Total, comp.Err)

	if comp.Err != nil || comp.Cancelled {
		return
	}

	c.setTotal(comp.Total)
}

func (c *Cache) setTotal(total int) {
	if total == c.total {
		return
	}

	wasEmpty := c.loaded.IsEmpty()
	c.total = total

	// Positions beyond the new total no longer exist.
	for pos := range c.rows {
		if pos >= total {
			delete(c.rows, pos)
		}
	}
	c.loaded.RemoveRange(uint64(total), math.MaxUint32+1)

	if c.opts.onTotalCount != nil {
		c.opts.onTotalCount(total)
	}

	// First count on an empty cache: warm the top of the view.
	if wasEmpty && total > 0 && c.opts.prefetch != 0 {
		prefetch := c.opts.prefetch
		if prefetch < 0 {
			prefetch = DefaultPrefetch
		}
		_ = c.EnsureVisible(0, min(prefetch, total))
	}
}

func (c *Cache) applyFetch(comp worker.Completion) {
	w, ok := c.inflight[comp.RequestID]
	if !ok {
		// Unknown id: bookkeeping for it was already torn down.
		c.opts.logger.Debug("completion for unknown request", "request_id", comp.RequestID)
		return
	}

	delete(c.inflight, comp.RequestID)
	delete(c.items, comp.RequestID)
	c.set.Remove(comp.RequestID)

	if comp.Cancelled {
		// Not an error: the rows keep whatever state they had until a later
		// request supersedes them.
		c.opts.metricsCollector.RecordCancellation()
		return
	}

	c.opts.metricsCollector.RecordFetch(len(comp.Records), comp.Duration, comp.Err)
	c.opts.logger.LogCompletion(comp.RequestID, w, len(comp.Records), comp.Err)

	if comp.Err != nil {
		ferr := &FetchError{Window: w, cause: comp.Err}
		for pos := w.Start; pos < w.End(); pos++ {
			row := c.ensureRow(pos)
			row.State = RowError
			row.Identity = 0
			row.Fields = nil
			row.Err = ferr
		}
		c.notifyRows(w.Start, w.Count)
		return
	}

	// The store may legitimately return fewer rows than asked for when the
	// result set ends (or shrank) inside the window.
	available := min(len(comp.Records), w.Count)
	if c.total >= 0 {
		available = min(available, max(0, c.total-w.Start))
	}

	before := c.loaded.GetCardinality()
	for i := 0; i < available; i++ {
		pos := w.Start + i
		rec := comp.Records[i]
		row := c.ensureRow(pos)
		row.State = RowLoaded
		row.Identity = rec.ID
		row.Fields = rec.Values
		row.Err = nil
		c.loaded.Add(uint32(pos))
	}

	// Whatever the store did not deliver goes back to stub so a later
	// visibility pass can re-ask.
	for pos := w.Start + available; pos < w.End(); pos++ {
		delete(c.rows, pos)
	}

	if c.loaded.GetCardinality() != before && c.opts.onLoadedCount != nil {
		c.opts.onLoadedCount(c.LoadedCount())
	}

	c.notifyRows(w.Start, available)
}

// Reset invalidates the whole cache: every row reverts to stub, all pending
// and in-flight work is cancelled (fire-and-forget) and a fresh total count
// is requested. Call it whenever the definition of "all rows" changes
// (filter, sort, underlying data invalidated).
func (c *Cache) Reset() error {
	if c.closed {
		return ErrClosed
	}

	cancelled := 0
	for _, item := range c.items {
		item.Cancel()
		cancelled++
	}
	if c.countItem != nil {
		c.countItem.Cancel()
		cancelled++
	}

	c.items = make(map[uint64]*worker.Item)
	c.inflight = make(map[uint64]store.Window)
	c.set.Clear()
	c.rows = make(map[int]*Row)
	c.loaded = roaring.New()
	c.total = -1
	c.countPending = false
	c.countItem = nil
	c.epoch++

	c.opts.logger.LogReset(c.epoch, cancelled)

	return c.RequestTotalCount()
}

// RequestTotalCount dispatches an asynchronous count of the full result set
// through the worker channel, unless one is already in flight. The result is
// cached until Reset.
func (c *Cache) RequestTotalCount() error {
	if c.closed {
		return ErrClosed
	}
	if c.countPending {
		return nil
	}

	c.countSeq++
	item := &worker.Item{
		RequestID: c.countSeq,
		Epoch:     c.epoch,
		Kind:      worker.KindCount,
	}

	if err := c.ch.Submit(context.Background(), item); err != nil {
		return translateError(err)
	}

	c.countPending = true
	c.countItem = item

	return nil
}

// Completions returns the channel carrying worker results. The owner
// goroutine selects on it and feeds each value to Apply; this is the single
// worker-to-owner hop.
func (c *Cache) Completions() <-chan worker.Completion {
	return c.ch.Completions()
}

// Row returns a copy of the row at pos. Positions never touched come back as
// stubs.
func (c *Cache) Row(pos int) Row {
	if row, ok := c.rows[pos]; ok {
		return *row
	}
	return Row{Position: pos, State: RowStub}
}

// TotalCount returns the cached total, or -1 while it is unknown.
func (c *Cache) TotalCount() int { return c.total }

// LoadedCount returns the number of rows currently in the loaded state.
func (c *Cache) LoadedCount() int { return int(c.loaded.GetCardinality()) }

// Stats returns a snapshot of the cache's bookkeeping, mainly for tests and
// debugging UIs.
func (c *Cache) Stats() Stats {
	pending := 0
	for _, req := range c.set.All() {
		if !req.Dispatched {
			pending++
		}
	}
	return Stats{
		Total:        c.total,
		Loaded:       c.LoadedCount(),
		Pending:      pending,
		InFlight:     len(c.inflight),
		Epoch:        c.epoch,
		CountPending: c.countPending,
	}
}

// Stats is a snapshot of cache bookkeeping.
type Stats struct {
	Total        int
	Loaded       int
	Pending      int
	InFlight     int
	Epoch        uint64
	CountPending bool
}

// Close cancels outstanding work and stops the worker goroutine. The cache
// must not be used afterwards.
func (c *Cache) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	for _, item := range c.items {
		item.Cancel()
	}
	if c.countItem != nil {
		c.countItem.Cancel()
	}

	c.ch.Close()

	return nil
}

func (c *Cache) ensureRow(pos int) *Row {
	row, ok := c.rows[pos]
	if !ok {
		row = &Row{Position: pos}
		c.rows[pos] = row
	}
	return row
}

func (c *Cache) notifyRows(start, count int) {
	if c.opts.onRowsChanged != nil && count > 0 {
		c.opts.onRowsChanged(start, count)
	}
}
