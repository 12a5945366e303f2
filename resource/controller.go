// Package resource bounds the backing-store pressure generated by row
// caches.
//
// Every cache runs its own worker goroutine, so an application with many
// open table views can issue that many concurrent queries. A shared
// Controller caps the number of simultaneous store operations and,
// optionally, the rate at which they are started.
package resource

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds backing-store limits.
type Config struct {
	// MaxConcurrentQueries is the maximum number of store operations running
	// at the same time across all workers sharing this controller.
	// If 0, defaults to 1.
	MaxConcurrentQueries int64

	// QueriesPerSec is the maximum rate at which store operations may be
	// started. If 0, unlimited.
	QueriesPerSec float64
}

// Controller manages shared backing-store resources.
type Controller struct {
	cfg Config

	querySem     *semaphore.Weighted
	queryLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentQueries <= 0 {
		cfg.MaxConcurrentQueries = 1
	}

	c := &Controller{
		cfg:      cfg,
		querySem: semaphore.NewWeighted(cfg.MaxConcurrentQueries),
	}

	if cfg.QueriesPerSec > 0 {
		c.queryLimiter = rate.NewLimiter(rate.Limit(cfg.QueriesPerSec), 1)
	}

	return c
}

// AcquireQuery reserves a query slot, blocking until one is available, the
// rate limiter admits the operation, or ctx is canceled. A nil Controller
// admits everything.
func (c *Controller) AcquireQuery(ctx context.Context) error {
	if c == nil {
		return nil
	}

	if err := c.querySem.Acquire(ctx, 1); err != nil {
		return err
	}

	if c.queryLimiter != nil {
		if err := c.queryLimiter.Wait(ctx); err != nil {
			c.querySem.Release(1)
			return err
		}
	}

	return nil
}

// TryAcquireQuery reserves a query slot without blocking.
func (c *Controller) TryAcquireQuery() bool {
	if c == nil {
		return true
	}
	if !c.querySem.TryAcquire(1) {
		return false
	}
	if c.queryLimiter != nil && !c.queryLimiter.Allow() {
		c.querySem.Release(1)
		return false
	}
	return true
}

// ReleaseQuery releases a reserved query slot.
func (c *Controller) ReleaseQuery() {
	if c == nil {
		return
	}
	c.querySem.Release(1)
}
