package core

import (
	"errors"
	"sync"
)

// ErrEmptyMatch is returned when an event has no matched value.
var ErrEmptyMatch = errors.New("event has empty matched value")

// EventSink is the append-only log scanners write to while readers take snapshots.
// Clear must only be called between scans.
type EventSink struct {
	mu     sync.RWMutex
	events []Event
	counts map[Category]int
}

func NewEventSink() *EventSink {
	return &EventSink{counts: make(map[Category]int)}
}

// Validate reports whether ev may enter the evidence stream.
func Validate(ev Event) error {
	if ev.MatchedValue == "" {
		return ErrEmptyMatch
	}
	return nil
}

// Append adds an event. Events failing Validate are rejected.
func (s *EventSink) Append(ev Event) error {
	if err := Validate(ev); err != nil {
		return err
	}
	ev.Weight = ClampWeight(ev.Weight)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	s.counts[ev.Category]++
	return nil
}

// Emit implements Emitter. Invalid events are dropped.
func (s *EventSink) Emit(ev Event) {
	_ = s.Append(ev)
}

// Snapshot returns a copy of the events, optionally filtered by category.
func (s *EventSink) Snapshot(categories ...Category) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(categories) == 0 {
		out := make([]Event, len(s.events))
		copy(out, s.events)
		return out
	}

	want := make(map[Category]bool, len(categories))
	for _, c := range categories {
		want[c] = true
	}
	out := make([]Event, 0)
	for _, ev := range s.events {
		if want[ev.Category] {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of events recorded.
func (s *EventSink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Count returns the number of events in a category.
func (s *EventSink) Count(c Category) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[c]
}

// Clear removes all events.
func (s *EventSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.counts = make(map[Category]int)
}
