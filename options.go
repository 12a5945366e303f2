package rowcache

import (
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/hupe1980/rowcache/coalesce"
	"github.com/hupe1980/rowcache/resource"
)

// DefaultPrefetch is the number of rows requested eagerly once the first
// total count arrives on an empty cache, so a freshly opened view has data
// before the UI asks for anything.
const DefaultPrefetch = 192

type options struct {
	mergeLimit       int
	queueDepth       int
	prefetch         int
	controller       *resource.Controller
	retryLimiter     *rate.Limiter
	logger           *Logger
	metricsCollector MetricsCollector
	onRowsChanged    func(start, count int)
	onTotalCount     func(total int)
	onLoadedCount    func(loaded int)
}

// Option configures Cache constructor behavior.
type Option func(*options)

// WithMergeLimit sets the largest pending request an adjacent submission is
// merged into. Values <= 0 select coalesce.DefaultMergeLimit.
func WithMergeLimit(limit int) Option {
	return func(o *options) {
		o.mergeLimit = limit
	}
}

// WithQueueDepth sets the capacity of the worker item and completion
// channels.
func WithQueueDepth(depth int) Option {
	return func(o *options) {
		o.queueDepth = depth
	}
}

// WithPrefetch sets how many rows are requested eagerly when the first total
// count arrives on an empty cache. Zero disables the initial prefetch; a
// negative value selects DefaultPrefetch.
func WithPrefetch(rows int) Option {
	return func(o *options) {
		o.prefetch = rows
	}
}

// WithController shares a resource.Controller with the cache's worker,
// bounding concurrent backing-store queries across caches.
func WithController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithRetryLimiter rate-limits the re-submission of rows stuck in the error
// state. Without a limiter every EnsureVisible over error rows issues a fresh
// request; with one, re-asks beyond the limit leave the rows in error until
// the limiter admits another attempt. This keeps a failing store from being
// hammered by repaint loops.
func WithRetryLimiter(l *rate.Limiter) Option {
	return func(o *options) {
		o.retryLimiter = l
	}
}

// WithOnRowsChanged registers the row-changed notifier: it is invoked on the
// owner goroutine whenever rows transition out of the loading state, with the
// affected position range.
func WithOnRowsChanged(fn func(start, count int)) Option {
	return func(o *options) {
		o.onRowsChanged = fn
	}
}

// WithOnTotalCount registers a callback invoked on the owner goroutine when
// the total count changes.
func WithOnTotalCount(fn func(total int)) Option {
	return func(o *options) {
		o.onTotalCount = fn
	}
}

// WithOnLoadedCount registers a callback invoked on the owner goroutine when
// the number of loaded rows changes.
func WithOnLoadedCount(fn func(loaded int)) Option {
	return func(o *options) {
		o.onLoadedCount = fn
	}
}

// WithLogger configures structured logging for cache operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		mergeLimit:       coalesce.DefaultMergeLimit,
		prefetch:         DefaultPrefetch,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
