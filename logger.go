package gridframe

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gridframe/config"
	"github.com/gogpu/gridframe/frame"
	"github.com/gogpu/gridframe/internal/halgpu"
	"github.com/gogpu/gridframe/internal/softgpu"
	"github.com/gogpu/gridframe/plan"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// propagate lists the sub-package setters SetLogger forwards to.
var propagate = []func(*slog.Logger){
	plan.SetLogger,
	config.SetLogger,
	frame.SetLogger,
	softgpu.SetLogger,
	halgpu.SetLogger,
}

// SetLogger configures the logger for gridframe and all its sub-packages.
// By default, gridframe produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to disable logging.
//
// Log levels used by gridframe:
//   - [slog.LevelDebug]: per-frame timings, plan dumps, resource sizes
//   - [slog.LevelInfo]: lifecycle events (device opened, graph installed)
//   - [slog.LevelWarn]: cycle fallback, surface recreation, watcher errors
//
// Example:
//
//	gridframe.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	for _, set := range propagate {
		set(l)
	}
}

// Logger returns the current logger used by gridframe.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
