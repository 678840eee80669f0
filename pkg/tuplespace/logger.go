package tuplespace

import "log"

// Logger is the minimal logging seam used for lifecycle events (bootstrap,
// close, unlink). Operations on the hot path (Put/Get/Read) do not log,
// to avoid dominating their cost - see SPEC_FULL.md §5.
//
// A nil Logger in [Options] is replaced with a no-op.
type Logger interface {
	Debugf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}

// StdLogger adapts the standard library's *log.Logger to [Logger], for
// callers who want bootstrap/close/unlink events on stderr without
// pulling in a structured logging library.
func StdLogger(l *log.Logger) Logger {
	return stdLoggerAdapter{l: l}
}

type stdLoggerAdapter struct {
	l *log.Logger
}

func (a stdLoggerAdapter) Debugf(format string, args ...any) {
	a.l.Printf(format, args...)
}
