package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Sentinel errors for snapshot operations.
var (
	// ErrSnapshotExists indicates a snapshot name is already taken.
	ErrSnapshotExists = errors.New("snapshot name already exists")

	// ErrSnapshotNotFound indicates the named snapshot does not exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// UpdateFunc computes a new value for an entity. current is nil when the
// entity does not exist (exists reports which). The function runs inside
// the entity's critical section and must not call back into the store.
type UpdateFunc func(current any, exists bool) (any, error)

// entry holds one entity's value behind its own lock.
type entry struct {
	mu    sync.Mutex
	value any
}

// Store is the process-wide entity store shared across tool invocations.
//
// The outer lock guards the entry and snapshot maps; each entry's inner
// lock serializes writers of that key. Lock order is always outer before
// inner, so store-wide operations can safely visit every entry.
type Store struct {
	log       *slog.Logger
	mu        sync.RWMutex
	entries   map[string]*entry
	snapshots map[string]*Snapshot
}

// NewStore creates an empty store.
func NewStore(log *slog.Logger) *Store {
	return &Store{
		log:       log.With("component", "state"),
		entries:   make(map[string]*entry, 16),
		snapshots: make(map[string]*Snapshot, 4),
	}
}

// entryFor returns the entry for id, creating it when create is set.
func (s *Store) entryFor(id string, create bool) (*entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()

	if ok || !create {
		return e, ok
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok {
		return e, true
	}

	e = &entry{}
	s.entries[id] = e

	return e, true
}

// Get returns a copy of the entity's value. A JSON null value is
// indistinguishable from an absent entity.
func (s *Store) Get(id string) (any, bool) {
	e, ok := s.entryFor(id, false)
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.value == nil {
		return nil, false
	}

	return clone(e.value), true
}

// Set replaces the entity's value, creating the entity if absent.
func (s *Store) Set(id string, value any) {
	e, _ := s.entryFor(id, true)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.value = clone(value)
}

// Delete removes the entity and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[id]
	delete(s.entries, id)

	return ok
}

// Update applies fn inside the entity's critical section and stores the
// returned value. Other keys stay readable and writable while fn runs.
// fn's error is propagated and leaves the entity unchanged.
func (s *Store) Update(id string, fn UpdateFunc) (any, error) {
	e, _ := s.entryFor(id, true)

	e.mu.Lock()
	defer e.mu.Unlock()

	existed := e.value != nil

	next, err := fn(clone(e.value), existed)
	if err != nil {
		return nil, fmt.Errorf("update %q: %w", id, err)
	}

	e.value = clone(next)

	return clone(next), nil
}

// Query returns owned copies of every entity matching the filter. A nil or
// empty filter matches everything; otherwise entities whose value is an
// object with every filter field equal (by JSON equality) match.
func (s *Store) Query(filter map[string]any) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]any, len(s.entries))

	for id, e := range s.entries {
		e.mu.Lock()
		value := clone(e.value)
		e.mu.Unlock()

		if value == nil || !matches(value, filter) {
			continue
		}

		result[id] = value
	}

	return result
}

// Len returns the number of live entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0

	for _, e := range s.entries {
		e.mu.Lock()

		if e.value != nil {
			n++
		}

		e.mu.Unlock()
	}

	return n
}

// matches reports whether value satisfies the equality filter.
func matches(value any, filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return false
	}

	for field, want := range filter {
		got, ok := obj[field]
		if !ok || !jsonEqual(got, want) {
			return false
		}
	}

	return true
}

// jsonEqual compares two JSON-shaped values structurally.
func jsonEqual(a, b any) bool {
	da, err := json.Marshal(a)
	if err != nil {
		return false
	}

	db, err := json.Marshal(b)
	if err != nil {
		return false
	}

	return string(da) == string(db)
}

// clone deep-copies a JSON-shaped value. Values enter the store from
// decoded JSON, so the round-trip is lossless.
func clone(v any) any {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		// JSON-shaped by contract; a violation is a programming error.
		panic(fmt.Sprintf("state: unmarshalable value: %v", err))
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("state: clone round-trip failed: %v", err))
	}

	return out
}
