// Package log configures the process-wide slog logger: a text or JSON
// handler on stderr, plus an optional rotating JSON file.
package log

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/inovacc/chatdb/internal/application"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Formats accepted in Options.Format.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options controls logger construction. Zero value: INFO level, text on
// stderr, no file.
type Options struct {
	Level     string
	Format    string
	AddSource bool
	// File enables a rotating JSON log at this path.
	File string
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *slog.Logger
	fileSink      io.Closer
)

// L returns the process logger, initialising it with default options on
// first use.
func L() *slog.Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()

	if l != nil {
		return l
	}

	Init(Options{})

	defaultMu.RLock()
	defer defaultMu.RUnlock()

	return defaultLogger
}

// Init replaces the process logger and slog.Default. A file sink opened by
// a previous Init is closed.
func Init(opts Options) {
	logger, closer := New(opts, os.Stderr)

	defaultMu.Lock()
	prev := fileSink
	defaultLogger = logger
	fileSink = closer
	defaultMu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}

	slog.SetDefault(logger)
}

// Close flushes and closes the file sink, if any.
func Close() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if fileSink == nil {
		return nil
	}

	err := fileSink.Close()
	fileSink = nil

	return err
}

// New builds a logger writing to w and, when opts.File is set, to a
// rotating file. The returned closer is nil without a file sink.
func New(opts Options, w io.Writer) (*slog.Logger, io.Closer) {
	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level), AddSource: opts.AddSource}

	var console slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), FormatJSON) {
		console = slog.NewJSONHandler(w, hopts)
	} else {
		console = slog.NewTextHandler(w, hopts)
	}

	handlers := []slog.Handler{console}

	var closer io.Closer

	if file := strings.TrimSpace(opts.File); file != "" {
		rot := &lj.Logger{Filename: file, MaxSize: 10, MaxBackups: 3, MaxAge: 28, Compress: true}
		handlers = append(handlers, slog.NewJSONHandler(rot, hopts))
		closer = rot
	}

	var h slog.Handler
	if len(handlers) == 1 {
		h = handlers[0]
	} else {
		h = &multi{hs: handlers}
	}

	return slog.New(h).With(slog.String("app", application.AppName)), closer
}

// Discard returns a logger that drops every record. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// WithComponent returns the process logger with the component attribute set.
func WithComponent(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}

// ParseLevel converts a level name to slog.Level. Unknown names are INFO.
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

// multi fans out records to several handlers.
type multi struct{ hs []slog.Handler }

func (m *multi) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (m *multi) Handle(ctx context.Context, r slog.Record) error {
	var errs []error

	for _, h := range m.hs {
		if !h.Enabled(ctx, r.Level) {
			continue
		}

		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (m *multi) WithAttrs(attrs []slog.Attr) slog.Handler {
	res := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		res[i] = h.WithAttrs(attrs)
	}

	return &multi{hs: res}
}

func (m *multi) WithGroup(name string) slog.Handler {
	res := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		res[i] = h.WithGroup(name)
	}

	return &multi{hs: res}
}
