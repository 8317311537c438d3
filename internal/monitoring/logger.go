package monitoring

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"
)

// Logf is the package-level diagnostic logger used by the control loop and
// its transports. It defaults to log.Printf; SetLogger redirects or mutes it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// ParseLevel maps a config level name to a slog.Level. Unknown names fall
// back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewSlogLogger builds a text slog.Logger writing to w at the given level.
func NewSlogLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// UseSlog routes Logf through l at info level.
func UseSlog(l *slog.Logger) {
	if l == nil {
		SetLogger(nil)
		return
	}
	SetLogger(func(format string, v ...interface{}) {
		l.Info(fmt.Sprintf(format, v...))
	})
}
