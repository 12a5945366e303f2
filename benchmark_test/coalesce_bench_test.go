package benchmark_test

import (
	"math/rand"
	"testing"

	"github.com/hupe1980/rowcache/coalesce"
)

func BenchmarkSubmit_Disjoint(b *testing.B) {
	b.ReportAllocs()

	s := coalesce.NewSet(0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := s.Submit(i*100, 50)
		if req != nil {
			s.MarkDispatched(req.ID)
			s.Remove(req.ID)
		}
	}
}

func BenchmarkSubmit_Overlapping(b *testing.B) {
	b.ReportAllocs()

	rng := rand.New(rand.NewSource(1))
	s := coalesce.NewSet(0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Submit(rng.Intn(10_000), 64)

		// Keep the set from growing without bound, like a cache applying
		// completions would.
		if s.Len() > 64 {
			for _, req := range s.Pending() {
				s.MarkDispatched(req.ID)
				s.Remove(req.ID)
				break
			}
		}
	}
}

func BenchmarkSubmit_ScrollPattern(b *testing.B) {
	b.ReportAllocs()

	s := coalesce.NewSet(0)

	// A view scrolling down one row at a time re-asks an almost identical
	// window on every step; nearly all of it trims away.
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Submit(i, 40)
		if s.Len() > 8 {
			for _, req := range s.Pending() {
				s.MarkDispatched(req.ID)
				s.Remove(req.ID)
			}
		}
	}
}
