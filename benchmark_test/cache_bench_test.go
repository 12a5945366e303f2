package benchmark_test

import (
	"fmt"
	"testing"

	"github.com/hupe1980/rowcache"
	"github.com/hupe1980/rowcache/store"
)

func benchRecords(n int) []store.Record {
	out := make([]store.Record, n)
	for i := range out {
		out[i] = store.Record{
			ID:     store.Identity(i + 1),
			Values: []string{fmt.Sprintf("name-%d", i), "x"},
		}
	}
	return out
}

func drainBench(b *testing.B, c *rowcache.Cache) {
	b.Helper()
	for {
		st := c.Stats()
		if st.InFlight == 0 && !st.CountPending {
			return
		}
		c.Apply(<-c.Completions())
	}
}

func BenchmarkScroll(b *testing.B) {
	b.ReportAllocs()

	mem := store.NewMemory([]string{"name", "misc"}, benchRecords(1_000_000))
	c, err := rowcache.New(mem, rowcache.WithPrefetch(0))
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()
	drainBench(b, c)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		start := (i * 7) % 999_000
		if err := c.EnsureVisible(start, 40); err != nil {
			b.Fatal(err)
		}
		drainBench(b, c)
	}
}

func BenchmarkEnsureVisible_AllLoaded(b *testing.B) {
	b.ReportAllocs()

	mem := store.NewMemory([]string{"name", "misc"}, benchRecords(10_000))
	c, err := rowcache.New(mem, rowcache.WithPrefetch(0))
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()
	drainBench(b, c)

	if err := c.EnsureVisible(0, 10_000); err != nil {
		b.Fatal(err)
	}
	drainBench(b, c)

	// The steady state of a still view: every visible row is loaded and the
	// pass must recognize that without creating work.
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.EnsureVisible(4000, 100); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRow(b *testing.B) {
	b.ReportAllocs()

	mem := store.NewMemory([]string{"name", "misc"}, benchRecords(10_000))
	c, err := rowcache.New(mem, rowcache.WithPrefetch(0))
	if err != nil {
		b.Fatal(err)
	}
	defer c.Close()
	drainBench(b, c)

	if err := c.EnsureVisible(0, 1000); err != nil {
		b.Fatal(err)
	}
	drainBench(b, c)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Row(i % 1000)
	}
}
