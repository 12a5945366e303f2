package rowcache

import (
	"github.com/hupe1980/rowcache/store"
)

// RowState is the lifecycle state of one position in the virtual row array.
type RowState uint8

const (
	// RowStub marks a position that is known to exist but has never been
	// covered by a dispatched request.
	RowStub RowState = iota
	// RowLoading marks a position covered by an in-flight request.
	RowLoading
	// RowLoaded marks a position whose record has arrived.
	RowLoaded
	// RowError marks a position whose covering request failed.
	RowError
)

// String implements fmt.Stringer.
func (s RowState) String() string {
	switch s {
	case RowStub:
		return "stub"
	case RowLoading:
		return "loading"
	case RowLoaded:
		return "loaded"
	case RowError:
		return "error"
	default:
		return "unknown"
	}
}

// Row is one position in the virtual list.
//
// Invariants:
//   - Identity is valid only when State is RowLoaded, and is then non-zero.
//   - Fields is empty unless State is RowLoaded; it is aligned with the
//     fetcher's Columns().
//   - Err is non-nil only when State is RowError.
//
// Rows are owned exclusively by the Cache that created them and revert to
// stubs only through a full Reset, never individually.
type Row struct {
	Position int
	State    RowState
	Identity store.Identity
	Fields   []string
	Err      error
}

// Loaded reports whether the row holds record data.
func (r Row) Loaded() bool { return r.State == RowLoaded }
