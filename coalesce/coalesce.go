// Package coalesce maintains the set of outstanding row-fetch requests for
// one cache and trims or merges new demand against it.
//
// A naive cache would dispatch one fetch per visible-range change, causing
// request storms while scrolling. The Set instead trims new requests against
// ranges that are already pending or in flight, and merges small adjacent
// pending requests so each round trip to the backing store carries a useful
// amount of work.
//
// Requests live in an arena keyed by id; a request that is merged away is
// removed from the arena rather than left dangling. The Set never talks to
// the backing store and cannot fail: the only invariant violation it knows,
// a negative range, is a programming error and panics.
package coalesce

import "sort"

// DefaultMergeLimit is the largest pending request an adjacent submission is
// still merged into. Larger neighbors are left alone so coalescing cannot
// grow round trips without bound.
const DefaultMergeLimit = 50

// Request describes a contiguous range [Start, Start+Count) of row positions
// that the cache wants populated.
//
// Count shrinks as the request is trimmed against overlapping siblings.
// Priority defaults to the id, so untouched requests dispatch in FIFO order,
// and is raised to the maximum of any request trimmed or merged into this
// one. Once Dispatched is set the range is immutable; only the priority may
// still be bumped.
type Request struct {
	Start      int
	Count      int
	ID         uint64
	Priority   int
	Dispatched bool
}

// End returns the exclusive upper bound of the request's range.
func (r *Request) End() int { return r.Start + r.Count }

// overlaps reports whether the half-open ranges of r and o intersect.
func (r *Request) overlaps(o *Request) bool {
	return r.Start < o.End() && o.Start < r.End()
}

// contains reports whether r's range fully covers o's range.
func (r *Request) contains(o *Request) bool {
	return r.Start <= o.Start && r.End() >= o.End()
}

// Set owns the outstanding requests of one cache: pending (not yet
// dispatched) and in-flight (dispatched, awaiting completion).
//
// Set is not safe for concurrent use; it is owned by the cache's owner
// goroutine.
type Set struct {
	requests   map[uint64]*Request
	nextID     uint64
	mergeLimit int
}

// NewSet creates an empty Set. A mergeLimit <= 0 selects DefaultMergeLimit.
func NewSet(mergeLimit int) *Set {
	if mergeLimit <= 0 {
		mergeLimit = DefaultMergeLimit
	}
	return &Set{
		requests:   make(map[uint64]*Request),
		mergeLimit: mergeLimit,
	}
}

// Submit creates a request for [start, start+count), trims it against every
// outstanding request and merges it with small adjacent pending ones.
//
// The returned request is owned by the Set and is non-nil only if demand
// survived: nil means the range was already covered, absorbed into a
// neighbor, or empty to begin with. Overlapped outstanding requests absorb
// the new request's priority even when nothing survives, so urgent re-asks
// escalate existing work instead of duplicating it.
//
// start or count below zero is a programming error and panics.
func (s *Set) Submit(start, count int) *Request {
	if start < 0 || count < 0 {
		panic("coalesce: negative request range")
	}

	req := &Request{
		Start:    start,
		Count:    count,
		ID:       s.nextID,
		Priority: int(s.nextID),
	}
	s.nextID++

	if req.Count == 0 {
		return nil
	}

	for _, other := range s.ordered() {
		if !req.overlaps(other) {
			continue
		}

		switch {
		case other.contains(req):
			// Fully covered by outstanding work.
			other.Priority = max(other.Priority, req.Priority)
			req.Count = 0

		case other.Start <= req.Start:
			// Overlap on the left edge: start after the covered range.
			other.Priority = max(other.Priority, req.Priority)
			trimmed := other.End() - req.Start
			req.Start = other.End()
			req.Count -= trimmed

		case req.contains(other):
			if other.Dispatched {
				// In-flight work is range-immutable; keep only the part
				// in front of it.
				other.Priority = max(other.Priority, req.Priority)
				req.Count = other.Start - req.Start
			} else {
				// The pending sibling is subsumed: merge it away and let
				// the wider request carry its urgency.
				req.Priority = max(req.Priority, other.Priority)
				delete(s.requests, other.ID)
			}

		default:
			// Overlap on the right edge: stop where the covered range starts.
			other.Priority = max(other.Priority, req.Priority)
			req.Count = other.Start - req.Start
		}

		if req.Count < 0 {
			panic("coalesce: negative request count after trim")
		}
		if req.Count == 0 {
			return nil
		}
	}

	// Absorb into a small adjacent pending request instead of paying another
	// round trip.
	for _, other := range s.ordered() {
		if other.Dispatched || other.Count > s.mergeLimit {
			continue
		}
		switch {
		case other.Start == req.End():
			other.Start = req.Start
			other.Count += req.Count
			other.Priority = max(other.Priority, req.Priority)
			return nil
		case req.Start == other.End():
			other.Count += req.Count
			other.Priority = max(other.Priority, req.Priority)
			return nil
		}
	}

	s.requests[req.ID] = req

	return req
}

// Get returns the outstanding request with the given id, or nil.
func (s *Set) Get(id uint64) *Request {
	return s.requests[id]
}

// MarkDispatched marks the request as dispatched, freezing its range.
// It reports whether the request exists.
func (s *Set) MarkDispatched(id uint64) bool {
	req, ok := s.requests[id]
	if !ok {
		return false
	}
	req.Dispatched = true
	return true
}

// Remove deletes the request from the set, returning it (or nil).
func (s *Set) Remove(id uint64) *Request {
	req, ok := s.requests[id]
	if !ok {
		return nil
	}
	delete(s.requests, id)
	return req
}

// Pending returns the not-yet-dispatched requests, highest priority first.
func (s *Set) Pending() []*Request {
	var out []*Request
	for _, req := range s.requests {
		if !req.Dispatched {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// All returns every outstanding request in id order.
func (s *Set) All() []*Request {
	return s.ordered()
}

// Len returns the number of outstanding requests.
func (s *Set) Len() int { return len(s.requests) }

// Clear drops every outstanding request. The id sequence is not reset, so
// ids stay unique across the lifetime of the Set.
func (s *Set) Clear() {
	s.requests = make(map[uint64]*Request)
}

// ordered returns the outstanding requests in ascending id order, so that
// trimming is deterministic.
func (s *Set) ordered() []*Request {
	out := make([]*Request, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
