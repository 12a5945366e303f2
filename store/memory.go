package store

import (
	"context"
	"sync"
	"sync/atomic"
)

// Memory is an in-memory Fetcher backed by a slice of records.
//
// It is intended for tests and examples. Beyond plain fetching it supports
// failure injection (FailNext) and an optional gate channel that blocks
// FetchWindow until released, so tests can hold a fetch "in flight" while the
// owner side resets or cancels.
type Memory struct {
	mu      sync.Mutex
	columns []string
	records []Record
	nextErr error
	gate    chan struct{}

	fetchCalls atomic.Int64
	countCalls atomic.Int64
}

// NewMemory creates a Memory fetcher over the given records.
func NewMemory(columns []string, records []Record) *Memory {
	return &Memory{
		columns: columns,
		records: records,
	}
}

// Columns implements Fetcher.
func (m *Memory) Columns() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.columns
}

// FetchWindow implements Fetcher.
func (m *Memory) FetchWindow(ctx context.Context, w Window) ([]Record, error) {
	m.fetchCalls.Add(1)

	m.mu.Lock()
	gate := m.gate
	err := m.nextErr
	m.nextErr = nil
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if w.Start >= len(m.records) || w.Count <= 0 {
		return nil, nil
	}
	end := w.End()
	if end > len(m.records) {
		end = len(m.records)
	}

	out := make([]Record, end-w.Start)
	copy(out, m.records[w.Start:end])

	return out, nil
}

// Count implements Fetcher.
func (m *Memory) Count(ctx context.Context) (int, error) {
	m.countCalls.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nextErr != nil {
		err := m.nextErr
		m.nextErr = nil
		return 0, err
	}

	return len(m.records), nil
}

// SetRecords swaps the backing records, simulating the underlying data
// changing behind an already counted selection.
func (m *Memory) SetRecords(records []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = records
}

// FailNext makes the next FetchWindow or Count call return err.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextErr = err
}

// Gate installs a channel that FetchWindow blocks on until it is closed.
// Pass nil to remove the gate.
func (m *Memory) Gate(gate chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = gate
}

// FetchCalls returns how many times FetchWindow has been called.
func (m *Memory) FetchCalls() int64 { return m.fetchCalls.Load() }

// CountCalls returns how many times Count has been called.
func (m *Memory) CountCalls() int64 { return m.countCalls.Load() }
