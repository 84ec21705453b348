package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Category identifies which evidence source produced an event.
type Category string

const (
	CategoryHash    Category = "hash"
	CategoryBrowser Category = "browser"
	CategoryChat    Category = "chat"
)

// Categories lists every category in phase order.
var Categories = []Category{CategoryHash, CategoryBrowser, CategoryChat}

func (c Category) String() string {
	return string(c)
}

// Kind describes how an indicator was matched.
type Kind string

const (
	KindExactHash   Kind = "exact_hash"
	KindKeyword     Kind = "keyword"
	KindBlacklist   Kind = "blacklist"
	KindAuthPattern Kind = "auth_pattern"
)

func (k Kind) String() string {
	return string(k)
}

// Event is one detection. It is never modified after creation.
type Event struct {
	ID           string    `json:"id"`
	Category     Category  `json:"category"`
	Kind         Kind      `json:"kind"`
	SubKind      string    `json:"sub_kind,omitempty"` // presentation only
	Source       string    `json:"source"`
	MatchedValue string    `json:"matched_value"`
	Context      string    `json:"context,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	Weight       int       `json:"weight"` // 0-100
	Timestamp    time.Time `json:"timestamp"`
}

// NewEvent stamps an event with an ID and time and clamps its weight.
func NewEvent(cat Category, kind Kind, source, matched string, weight int) Event {
	return Event{
		ID:           uuid.NewString(),
		Category:     cat,
		Kind:         kind,
		Source:       source,
		MatchedValue: matched,
		Weight:       ClampWeight(weight),
		Timestamp:    time.Now().UTC(),
	}
}

// ClampWeight bounds a weight to [0,100].
func ClampWeight(w int) int {
	if w < 0 {
		return 0
	}
	if w > 100 {
		return 100
	}
	return w
}

// Emitter receives events as scanners produce them.
type Emitter interface {
	Emit(ev Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ev Event)

func (f EmitterFunc) Emit(ev Event) { f(ev) }

// Fanout sends every event to each emitter in order. Nil emitters are skipped.
func Fanout(emitters ...Emitter) Emitter {
	list := make([]Emitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			list = append(list, e)
		}
	}
	return EmitterFunc(func(ev Event) {
		for _, e := range list {
			e.Emit(ev)
		}
	})
}

// Scanner is the interface that all evidence sources implement.
// Run returns only context errors; per-item failures are logged and skipped.
type Scanner interface {
	Name() string
	Category() Category
	Run(ctx context.Context, out Emitter, progress ProgressFunc) (Stats, error)
}

// Stats summarizes one scanner run.
type Stats struct {
	Discovered int `json:"discovered"`
	Processed  int `json:"processed"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`
	Matches    int `json:"matches"`
}
