package rowcache

import (
	"errors"
	"fmt"

	"github.com/hupe1980/rowcache/store"
	"github.com/hupe1980/rowcache/worker"
)

var (
	// ErrClosed is returned when an operation is attempted on a closed cache.
	ErrClosed = errors.New("rowcache: closed")

	// ErrInvalidRange is returned when a visible range has a negative start
	// or count.
	ErrInvalidRange = errors.New("rowcache: invalid range")

	// ErrNilFetcher is returned by New when no fetcher is supplied.
	ErrNilFetcher = errors.New("rowcache: fetcher is nil")
)

// FetchError indicates that the backing store failed while loading a window
// of rows. Every row in the window carries the same FetchError.
//
// The original store error can be accessed via errors.Unwrap.
type FetchError struct {
	Window store.Window
	cause  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch rows [%d, %d): %v", e.Window.Start, e.Window.End(), e.cause)
}

func (e *FetchError) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, worker.ErrChannelClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return err
}
