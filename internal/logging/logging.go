// Package logging configures the structured logger shared by repo-guardian.
//
// Records go to a daily log file and, depending on verbosity, to stderr.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Options configures New.
type Options struct {
	// Dir is where the daily log file is written. Empty disables file logging.
	Dir string

	// Level is the file log level name: debug, info, warn or error.
	Level string

	// Verbose mirrors info-level records to Console. Without it only
	// warnings and errors reach the console.
	Verbose bool

	// Quiet suppresses everything but errors on the console.
	Quiet bool

	// Console receives console records. Defaults to os.Stderr.
	Console io.Writer

	// Now overrides the clock used for the file name.
	Now func() time.Time
}

// Logger wraps a *slog.Logger together with the file it writes to.
type Logger struct {
	*slog.Logger
	file *os.File
	path string
}

// New builds a Logger. A log file that cannot be opened degrades to
// console-only logging and is reported through the returned logger.
func New(opts Options) *Logger {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	consoleLevel := slog.LevelWarn
	switch {
	case opts.Quiet:
		consoleLevel = slog.LevelError
	case opts.Verbose:
		consoleLevel = slog.LevelDebug
	}
	handlers := []slog.Handler{slog.NewTextHandler(console, &slog.HandlerOptions{Level: consoleLevel})}

	l := &Logger{}
	var openErr error
	if opts.Dir != "" {
		l.path = FileName(opts.Dir, now())
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			openErr = fmt.Errorf("creating log directory: %w", err)
		} else if f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err != nil {
			openErr = fmt.Errorf("opening log file: %w", err)
		} else {
			l.file = f
			handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: ParseLevel(opts.Level)}))
		}
	}

	l.Logger = slog.New(fanout(handlers))
	if openErr != nil {
		l.path = ""
		l.Warn("file logging disabled", "err", openErr)
	}
	return l
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// FileName returns the daily log file path inside dir.
func FileName(dir string, t time.Time) string {
	return filepath.Join(dir, "repo-guardian_"+t.Format("20060102")+".log")
}

// Path returns the log file in use, or "" when logging only to the console.
func (l *Logger) Path() string {
	return l.path
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// multiHandler dispatches each record to every handler that accepts its level.
type multiHandler []slog.Handler

func fanout(hs []slog.Handler) slog.Handler {
	if len(hs) == 1 {
		return hs[0]
	}
	return multiHandler(hs)
}

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}
	return out
}
