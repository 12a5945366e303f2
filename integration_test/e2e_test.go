package integration_test

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rowcache"
	"github.com/hupe1980/rowcache/store"
	"github.com/hupe1980/rowcache/store/sqlite"
)

func seedDB(t *testing.T, n int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "e2e.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, label TEXT, bucket INTEGER)`)
	require.NoError(t, err)

	tx, err := db.Begin()
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		_, err = tx.Exec(`INSERT INTO items (id, label, bucket) VALUES (?, ?, ?)`,
			i, fmt.Sprintf("item-%05d", i), i%10)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	return path
}

func drain(t *testing.T, c *rowcache.Cache) {
	t.Helper()
	for {
		st := c.Stats()
		if st.InFlight == 0 && !st.CountPending {
			return
		}
		select {
		case comp := <-c.Completions():
			c.Apply(comp)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out draining completions: %+v", st)
		}
	}
}

func TestE2E_BrowseAndFilter(t *testing.T) {
	path := seedDB(t, 5000)

	fetcher, err := sqlite.Open(path, sqlite.Config{
		Table:    "items",
		Columns:  []string{"label", "bucket"},
		IDColumn: "id",
	})
	require.NoError(t, err)
	defer func() { _ = fetcher.Close() }()

	c, err := rowcache.New(fetcher)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	// 1. Initial count and prefetch
	drain(t, c)
	require.Equal(t, 5000, c.TotalCount())
	require.Equal(t, rowcache.DefaultPrefetch, c.LoadedCount())

	// 2. Scroll deep into the table
	require.NoError(t, c.EnsureVisible(4500, 60))
	drain(t, c)

	row := c.Row(4500)
	require.Equal(t, rowcache.RowLoaded, row.State)
	assert.Equal(t, store.Identity(4501), row.Identity)
	assert.Equal(t, "item-04501", row.Fields[0])

	// 3. Apply a filter: new selection, cache reset
	fetcher.SetSelection("bucket = ?", []any{3}, "")
	require.NoError(t, c.Reset())
	drain(t, c)

	require.Equal(t, 500, c.TotalCount())

	require.NoError(t, c.EnsureVisible(0, 10))
	drain(t, c)

	row = c.Row(0)
	require.Equal(t, rowcache.RowLoaded, row.State)
	assert.Equal(t, "3", row.Fields[1], "every filtered row is in bucket 3")

	// 4. Drop the filter again
	fetcher.SetSelection("", nil, "")
	require.NoError(t, c.Reset())
	drain(t, c)
	assert.Equal(t, 5000, c.TotalCount())
}

func TestE2E_StoreErrorSurfacesPerRow(t *testing.T) {
	path := seedDB(t, 100)

	fetcher, err := sqlite.Open(path, sqlite.Config{
		Table:    "items",
		Columns:  []string{"label"},
		IDColumn: "id",
	})
	require.NoError(t, err)
	defer func() { _ = fetcher.Close() }()

	c, err := rowcache.New(fetcher, rowcache.WithPrefetch(0))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	drain(t, c)
	require.Equal(t, 100, c.TotalCount())

	// Break the selection after counting; the fetch fails and the rows
	// carry the error instead of the cache dying.
	fetcher.SetSelection("no_such_column = 1", nil, "")

	require.NoError(t, c.EnsureVisible(0, 20))
	drain(t, c)

	row := c.Row(0)
	require.Equal(t, rowcache.RowError, row.State)
	require.Error(t, row.Err)

	var ferr *rowcache.FetchError
	assert.ErrorAs(t, row.Err, &ferr)

	// Fix the selection; error rows become demand again on the next pass.
	fetcher.SetSelection("", nil, "")
	require.NoError(t, c.EnsureVisible(0, 20))
	drain(t, c)
	assert.Equal(t, rowcache.RowLoaded, c.Row(0).State)
}
