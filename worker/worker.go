// Package worker executes backing-store operations for a row cache on a
// single dedicated goroutine.
//
// The owner goroutine submits Items and receives Completions; the Item
// channel and the Completion channel are the only synchronized objects
// between the two sides. Exactly one Completion is emitted per submitted
// Item, including cancelled ones, so owner-side bookkeeping stays uniform.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/rowcache/resource"
	"github.com/hupe1980/rowcache/store"
)

// ErrChannelClosed is returned by Submit after the channel has been closed.
var ErrChannelClosed = errors.New("worker: channel closed")

// Kind distinguishes the two backing-store operations a cache issues.
type Kind uint8

const (
	// KindFetch loads a window of records.
	KindFetch Kind = iota
	// KindCount computes the total size of the result set.
	KindCount
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindFetch:
		return "fetch"
	case KindCount:
		return "count"
	default:
		return "unknown"
	}
}

// Item is one unit of dispatched work: a query description plus the
// bookkeeping the owner needs to reconcile the result.
//
// The cancelled flag is set by the owner and polled by the worker before
// execution. Cancellation is advisory: it saves work when observed in time
// but a Completion is emitted either way.
type Item struct {
	RequestID uint64
	Epoch     uint64
	Kind      Kind
	Window    store.Window
	Priority  int

	cancelled atomic.Bool
}

// Cancel marks the item as cancelled. Fire-and-forget; safe to call from the
// owner goroutine while the worker runs.
func (it *Item) Cancel() { it.cancelled.Store(true) }

// Cancelled reports whether the item has been cancelled.
func (it *Item) Cancelled() bool { return it.cancelled.Load() }

// Completion carries the outcome of one Item back to the owner goroutine.
// Exactly one of Records/Total/Err/Cancelled is meaningful, depending on
// Kind and outcome.
type Completion struct {
	RequestID uint64
	Epoch     uint64
	Kind      Kind
	Window    store.Window
	Records   []store.Record
	Total     int
	Duration  time.Duration
	Err       error
	Cancelled bool
}

// Options configures a Channel.
type Options struct {
	// QueueDepth is the capacity of the item and completion channels.
	QueueDepth int

	// Controller optionally bounds concurrent store operations and their
	// rate across channels sharing it. Nil means unbounded.
	Controller *resource.Controller
}

// Channel owns the single worker goroutine for one cache.
type Channel struct {
	fetcher store.Fetcher
	ctrl    *resource.Controller

	workCh chan *Item
	out    chan Completion
	stopCh chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc

	wg       sync.WaitGroup
	closed   atomic.Bool
	submitMu sync.RWMutex
}

// NewChannel starts a worker goroutine executing items against fetcher.
func NewChannel(fetcher store.Fetcher, optFns ...func(*Options)) *Channel {
	opts := Options{
		QueueDepth: 128,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&opts)
		}
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 128
	}

	ctx, cancel := context.WithCancel(context.Background())

	ch := &Channel{
		fetcher:    fetcher,
		ctrl:       opts.Controller,
		workCh:     make(chan *Item, opts.QueueDepth),
		out:        make(chan Completion, opts.QueueDepth),
		stopCh:     make(chan struct{}),
		baseCtx:    ctx,
		baseCancel: cancel,
	}

	ch.wg.Add(1)
	go ch.worker()

	return ch
}

// Submit enqueues an item for execution. It returns immediately after
// enqueueing.
//
// Error conditions:
//   - Returns ErrChannelClosed if the channel is closed
//   - Returns the context error if ctx is cancelled before enqueueing
func (ch *Channel) Submit(ctx context.Context, item *Item) error {
	ch.submitMu.RLock()
	defer ch.submitMu.RUnlock()

	if ch.closed.Load() {
		return ErrChannelClosed
	}

	select {
	case ch.workCh <- item:
		return nil
	case <-ch.stopCh:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Completions returns the channel on which results are delivered. The owner
// goroutine is the sole consumer.
func (ch *Channel) Completions() <-chan Completion {
	return ch.out
}

// Close stops the worker. The in-flight store operation, if any, has its
// context cancelled so the worker exits within a bounded time; queued items
// are drained without side effects.
func (ch *Channel) Close() {
	if !ch.closed.CompareAndSwap(false, true) {
		return
	}

	ch.submitMu.Lock()
	close(ch.stopCh)
	close(ch.workCh)
	ch.submitMu.Unlock()

	ch.baseCancel()
	ch.wg.Wait()
}

// worker pulls items from the work channel until stopped.
func (ch *Channel) worker() {
	defer ch.wg.Done()

	for {
		select {
		case <-ch.stopCh:
			// Drain whatever is still queued; nothing is executed or
			// reported after shutdown.
			for range ch.workCh { //nolint:revive // intentional drain
			}
			return
		case item, ok := <-ch.workCh:
			if !ok {
				return
			}
			ch.execute(item)
		}
	}
}

// execute runs one item against the backing store and emits its completion.
func (ch *Channel) execute(item *Item) {
	comp := Completion{
		RequestID: item.RequestID,
		Epoch:     item.Epoch,
		Kind:      item.Kind,
		Window:    item.Window,
	}

	if item.Cancelled() {
		comp.Cancelled = true
		ch.emit(comp)
		return
	}

	if err := ch.ctrl.AcquireQuery(ch.baseCtx); err != nil {
		comp.Err = err
		ch.emit(comp)
		return
	}
	defer ch.ctrl.ReleaseQuery()

	started := time.Now()

	switch item.Kind {
	case KindCount:
		comp.Total, comp.Err = ch.fetcher.Count(ch.baseCtx)
	default:
		comp.Records, comp.Err = ch.fetcher.FetchWindow(ch.baseCtx, item.Window)
	}

	comp.Duration = time.Since(started)

	ch.emit(comp)
}

// emit hands a completion to the owner, giving up if the channel is shutting
// down so the worker can never block forever on a departed consumer.
func (ch *Channel) emit(comp Completion) {
	select {
	case ch.out <- comp:
	case <-ch.stopCh:
	}
}
