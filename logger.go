package rowcache

import (
	"log/slog"
	"os"

	"github.com/hupe1980/rowcache/store"
)

// Logger wraps slog.Logger with rowcache-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// With returns a Logger that includes the given attributes in every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// WithRequestID adds a request id field to the logger.
func (l *Logger) WithRequestID(id uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("request_id", id),
	}
}

// WithEpoch adds an epoch field to the logger.
func (l *Logger) WithEpoch(epoch uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("epoch", epoch),
	}
}

// LogDispatch logs the dispatch of a fetch request.
func (l *Logger) LogDispatch(id uint64, w store.Window, priority int, inFlight int) {
	l.Debug("request dispatched",
		"request_id", id,
		"start", w.Start,
		"count", w.Count,
		"priority", priority,
		"in_flight", inFlight,
	)
}

// LogCompletion logs the outcome of a fetch request.
func (l *Logger) LogCompletion(id uint64, w store.Window, rows int, err error) {
	if err != nil {
		l.Error("request failed",
			"request_id", id,
			"start", w.Start,
			"count", w.Count,
			"error", err,
		)
	} else {
		l.Debug("request completed",
			"request_id", id,
			"start", w.Start,
			"count", w.Count,
			"rows", rows,
		)
	}
}

// LogStaleDrop logs a completion discarded because it belongs to a previous
// epoch.
func (l *Logger) LogStaleDrop(id uint64, compEpoch, cacheEpoch uint64) {
	l.Debug("stale completion dropped",
		"request_id", id,
		"completion_epoch", compEpoch,
		"cache_epoch", cacheEpoch,
	)
}

// LogReset logs a cache reset.
func (l *Logger) LogReset(epoch uint64, cancelled int) {
	l.Info("cache reset",
		"epoch", epoch,
		"cancelled", cancelled,
	)
}

// LogTotalCount logs a total-count update.
func (l *Logger) LogTotalCount(total int, err error) {
	if err != nil {
		l.Error("count failed",
			"error", err,
		)
	} else {
		l.Debug("total count updated",
			"total", total,
		)
	}
}
