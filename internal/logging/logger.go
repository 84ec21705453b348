// Package logging builds the structured loggers used by every component.
//
// Output always goes to stderr (text or JSON). A log file and an in-memory
// Recorder can be added; the Recorder backs the HTTP /logs endpoint and lets
// tests assert on what was logged.
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

// Config configures the logger. The zero value logs Info and above to stderr as text.
type Config struct {
	Level   string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON    bool   `yaml:"json"`
	LogDir  string `yaml:"dir"`
	Service string `yaml:"-"`
	Quiet   bool   `yaml:"quiet"`

	// RecorderSize is the number of recent records kept in memory. 0 disables it.
	RecorderSize int `yaml:"recorder_size" validate:"min=0,max=100000"`

	// Writer overrides stderr. Used by tests.
	Writer io.Writer `yaml:"-"`
}

// Logger wraps a slog.Logger together with the resources it owns.
type Logger struct {
	*slog.Logger
	file     *os.File
	recorder *Recorder
}

// ParseLevel maps a level name to slog. Unknown names map to Info.
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

// New creates a logger. A log file that cannot be opened is reported on
// stderr and skipped.
func New(cfg Config) *Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	l := &Logger{}

	var handlers []slog.Handler
	if !cfg.Quiet {
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		if cfg.JSON {
			handlers = append(handlers, slog.NewJSONHandler(w, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(w, opts))
		}
	}

	if cfg.LogDir != "" {
		if err := l.openFile(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "[!] file logging disabled: %v\n", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(l.file, opts))
		}
	}

	if cfg.RecorderSize > 0 {
		l.recorder = NewRecorder(cfg.RecorderSize, opts.Level.Level())
		handlers = append(handlers, l.recorder)
	}

	var h slog.Handler
	switch len(handlers) {
	case 0:
		h = discardHandler{}
	case 1:
		h = handlers[0]
	default:
		h = &multiHandler{handlers: handlers}
	}
	if cfg.Service != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}

	l.Logger = slog.New(h)
	return l
}

func (l *Logger) openFile(cfg Config) error {
	if err := os.MkdirAll(cfg.LogDir, 0o750); err != nil {
		return err
	}
	name := cfg.Service
	if name == "" {
		name = "cheatwatch"
	}
	path := filepath.Join(cfg.LogDir, fmt.Sprintf("%s_%s.log", name, time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// Recorder returns the in-memory recorder, or nil when disabled.
func (l *Logger) Recorder() *Recorder {
	return l.recorder
}

// Close closes the log file if one is open.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: hs}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: hs}
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
