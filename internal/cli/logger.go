package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Logger provides leveled logging for the command line tools. Messages
// go through a slog handler so the compiler and the simulator can share
// it as a structured logger.
type Logger struct {
	Verbose   bool
	DebugMode bool

	log *slog.Logger
}

// NewLogger logs to stderr, as text on a terminal and as JSON otherwise.
func NewLogger(verbose, debug bool) *Logger {
	return NewLoggerTo(os.Stderr, verbose, debug, !term.IsTerminal(int(os.Stderr.Fd())))
}

// NewLoggerTo logs to w.
func NewLoggerTo(w io.Writer, verbose, debug, jsonOutput bool) *Logger {
	level := slog.LevelWarn

	switch {
	case debug:
		level = slog.LevelDebug
	case verbose:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if jsonOutput {
		h = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Verbose: verbose, DebugMode: debug, log: slog.New(h)}
}

// Slog returns the underlying structured logger.
func (l *Logger) Slog() *slog.Logger { return l.log }

// Enabled reports whether messages at level are written.
func (l *Logger) Enabled(level slog.Level) bool {
	return l.log.Enabled(context.Background(), level)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log.Info(fmt.Sprintf(format, args...))
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}
