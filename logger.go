package tilemap

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/tilemap/internal/gpu"
	"github.com/gogpu/tilemap/internal/painter"
	"github.com/gogpu/tilemap/placement"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for tilemap and all its sub-packages.
// By default, tilemap produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore the silent
// default.
//
// Log levels used by tilemap:
//   - [slog.LevelDebug]: per-frame internals (stencil clears, placement progress)
//   - [slog.LevelInfo]: lifecycle events (context reset, style rebuild)
//   - [slog.LevelWarn]: sticky program failures and style fallbacks
//
// Example:
//
//	tilemap.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	gpu.SetLogger(l)
	painter.SetLogger(l)
	placement.SetLogger(l)
}

// Logger returns the current logger used by tilemap.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
