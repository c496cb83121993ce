package txstore

import "log"

// Logger is the narrow logging seam txstore writes its occasional
// warnings through, the same shape as the teacher's own use of the
// standard library logger (pkg/resource/memory/paged_rows.go's
// log.Printf("[WARN] ...")) rather than a structured logging library,
// since the teacher carries no third-party logger anywhere in its tree.
type Logger interface {
	Printf(format string, args ...any)
}

// stdLogger adapts *log.Logger to Logger.
type stdLogger struct{ l *log.Logger }

func (s stdLogger) Printf(format string, args ...any) { s.l.Printf(format, args...) }

// defaultLogger wraps log.Default(), txstore's logger when a caller
// does not supply one via Options.
func defaultLogger() Logger { return stdLogger{l: log.Default()} }

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}
