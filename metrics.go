package rowcache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordFetch is called after each fetch completion is applied.
	// rows is the number of rows written, duration is unused by cancelled
	// completions, err is nil on success.
	RecordFetch(rows int, duration time.Duration, err error)

	// RecordCount is called after each total-count completion is applied.
	RecordCount(duration time.Duration, err error)

	// RecordCoalesce is called after each EnsureVisible pass with the number
	// of demand ranges submitted and the number of requests that survived
	// trimming and merging.
	RecordCoalesce(submitted, dispatched int)

	// RecordStaleDrop is called when a completion is discarded because it
	// belongs to a previous epoch.
	RecordStaleDrop()

	// RecordCancellation is called when a cancelled completion is applied.
	RecordCancellation()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordFetch(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordCount(time.Duration, error)      {}
func (NoopMetricsCollector) RecordCoalesce(int, int)               {}
func (NoopMetricsCollector) RecordStaleDrop()                      {}
func (NoopMetricsCollector) RecordCancellation()                   {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	FetchCount      atomic.Int64
	FetchErrors     atomic.Int64
	FetchRows       atomic.Int64
	FetchTotalNanos atomic.Int64
	CountCount      atomic.Int64
	CountErrors     atomic.Int64
	SubmittedRanges atomic.Int64
	DispatchedReqs  atomic.Int64
	StaleDrops      atomic.Int64
	Cancellations   atomic.Int64
}

// RecordFetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFetch(rows int, duration time.Duration, err error) {
	b.FetchCount.Add(1)
	b.FetchRows.Add(int64(rows))
	b.FetchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FetchErrors.Add(1)
	}
}

// RecordCount implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCount(duration time.Duration, err error) {
	b.CountCount.Add(1)
	if err != nil {
		b.CountErrors.Add(1)
	}
}

// RecordCoalesce implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCoalesce(submitted, dispatched int) {
	b.SubmittedRanges.Add(int64(submitted))
	b.DispatchedReqs.Add(int64(dispatched))
}

// RecordStaleDrop implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStaleDrop() {
	b.StaleDrops.Add(1)
}

// RecordCancellation implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCancellation() {
	b.Cancellations.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		FetchCount:      b.FetchCount.Load(),
		FetchErrors:     b.FetchErrors.Load(),
		FetchRows:       b.FetchRows.Load(),
		FetchAvgNanos:   b.getAvgFetchNanos(),
		CountCount:      b.CountCount.Load(),
		CountErrors:     b.CountErrors.Load(),
		SubmittedRanges: b.SubmittedRanges.Load(),
		DispatchedReqs:  b.DispatchedReqs.Load(),
		StaleDrops:      b.StaleDrops.Load(),
		Cancellations:   b.Cancellations.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgFetchNanos() int64 {
	count := b.FetchCount.Load()
	if count == 0 {
		return 0
	}
	return b.FetchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	FetchCount      int64
	FetchErrors     int64
	FetchRows       int64
	FetchAvgNanos   int64
	CountCount      int64
	CountErrors     int64
	SubmittedRanges int64
	DispatchedReqs  int64
	StaleDrops      int64
	Cancellations   int64
}

// AvgFetchLatency returns the mean fetch duration as a time.Duration.
func (s BasicMetricsStats) AvgFetchLatency() time.Duration {
	return time.Duration(s.FetchAvgNanos)
}
