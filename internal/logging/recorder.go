package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is one recorded log line.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

type ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// Recorder is a slog.Handler keeping the most recent records in a bounded ring.
type Recorder struct {
	store *ring
	level slog.Level
	attrs []slog.Attr
	group string
}

func NewRecorder(size int, level slog.Level) *Recorder {
	if size <= 0 {
		size = 1
	}
	return &Recorder{
		store: &ring{entries: make([]Entry, size)},
		level: level,
	}
}

func (r *Recorder) Enabled(_ context.Context, level slog.Level) bool {
	return level >= r.level
}

func (r *Recorder) Handle(_ context.Context, rec slog.Record) error {
	attrs := make(map[string]any, rec.NumAttrs()+len(r.attrs))
	for _, a := range r.attrs {
		attrs[a.Key] = a.Value.Resolve().Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if r.group != "" {
			key = r.group + "." + key
		}
		attrs[key] = a.Value.Resolve().Any()
		return true
	})

	e := Entry{Time: rec.Time, Level: rec.Level.String(), Message: rec.Message, Attrs: attrs}

	s := r.store
	s.mu.Lock()
	s.entries[s.next] = e
	s.next = (s.next + 1) % len(s.entries)
	if s.next == 0 {
		s.full = true
	}
	s.mu.Unlock()
	return nil
}

func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *r
	c.attrs = append(append([]slog.Attr(nil), r.attrs...), attrs...)
	return &c
}

func (r *Recorder) WithGroup(name string) slog.Handler {
	c := *r
	if c.group != "" {
		name = c.group + "." + name
	}
	c.group = name
	return &c
}

// Entries returns recorded entries, oldest first.
func (r *Recorder) Entries() []Entry {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.full {
		return append([]Entry(nil), s.entries[:s.next]...)
	}
	out := make([]Entry, 0, len(s.entries))
	out = append(out, s.entries[s.next:]...)
	return append(out, s.entries[:s.next]...)
}

// AtLeast returns entries at or above level.
func (r *Recorder) AtLeast(level slog.Level) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		var l slog.Level
		if err := l.UnmarshalText([]byte(e.Level)); err == nil && l >= level {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops all entries.
func (r *Recorder) Reset() {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		s.entries[i] = Entry{}
	}
	s.next = 0
	s.full = false
}
