// Package logging provides the structured logger used across pyseed.
// Records always go to a dated file under <appdata>/<name>/logs/. When
// --debug is passed they are mirrored to stderr, as text on a terminal and
// as JSON when stderr is piped.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

const filePrefix = "pyseed_"

var (
	mu      sync.RWMutex
	logger  = slog.New(slog.NewTextHandler(io.Discard, nil))
	logFile *os.File
	path    string

	// now and isTerminal are overridden in tests.
	now        = time.Now
	isTerminal = func(f *os.File) bool { return term.IsTerminal(int(f.Fd())) }
)

// Options configures Init.
type Options struct {
	// Dir receives pyseed_YYYY-MM-DD.log. Empty disables file logging.
	Dir string
	// Debug mirrors records to Stderr at debug level.
	Debug bool
	// Stderr defaults to os.Stderr.
	Stderr *os.File
}

// FileName returns the log file name for the day of t.
func FileName(t time.Time) string {
	return filePrefix + t.Format("2006-01-02") + ".log"
}

// Init opens the dated log file in append mode and installs the logger as
// the slog default. Calling Init again replaces the previous configuration.
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if opts.Dir != "" {
		//nolint:gosec // G301: per-user data directory
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		p := filepath.Join(opts.Dir, FileName(now()))
		//nolint:gosec // G304: log path is derived from the application data root
		f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logFile = f
		path = p
		handlers = append(handlers, slog.NewTextHandler(f, handlerOpts))
	}
	if opts.Debug {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		if isTerminal(stderr) {
			handlers = append(handlers, slog.NewTextHandler(stderr, handlerOpts))
		} else {
			handlers = append(handlers, slog.NewJSONHandler(stderr, handlerOpts))
		}
	}

	switch len(handlers) {
	case 0:
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	case 1:
		logger = slog.New(handlers[0])
	default:
		logger = slog.New(fanout(handlers))
	}
	slog.SetDefault(logger)
	logger.Info("pyseed started", "pid", os.Getpid(), "args", os.Args[1:])
	return nil
}

// L returns the configured logger. Before Init it discards everything.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Path returns the current log file path, or "" when file logging is off.
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return path
}

// Close flushes and closes the log file. Safe to call when Init was never called.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

func closeLocked() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	path = ""
}

// Clean strips terminal escape sequences from tool output so it can be
// logged and shown in error messages verbatim.
func Clean(s string) string {
	return ansi.Strip(s)
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
