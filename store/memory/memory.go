// Package memory provides in-process stores with lazily emulated expiry.
//
// Map keeps entries in a map owned by the store and clears it in place on
// flush. Object behaves like a plain object handle: flush swaps in a fresh
// map, so a map obtained earlier through API keeps its old contents.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/unkn0wn-root/kvcache/store"
)

type table struct {
	mu  sync.Mutex
	m   map[string]store.Entry
	now store.Clock
}

func (t *table) get(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.m[key]
	if !ok {
		return nil, false
	}
	if e.Expired(t.now.Now()) {
		delete(t.m, key) // read repair
		return nil, false
	}
	return e.Value, true
}

func (t *table) put(e store.Entry) {
	e.Value = append([]byte(nil), e.Value...)
	t.mu.Lock()
	t.m[e.Key] = e
	t.mu.Unlock()
}

func (t *table) remove(key string) {
	t.mu.Lock()
	delete(t.m, key)
	t.mu.Unlock()
}

func (t *table) removePrefix(prefix string) {
	t.mu.Lock()
	for k := range t.m {
		if strings.HasPrefix(k, prefix) {
			delete(t.m, k)
		}
	}
	t.mu.Unlock()
}

func (t *table) prune(prefix string) int {
	now := t.now.Now()
	removed := 0
	t.mu.Lock()
	for k, e := range t.m {
		if strings.HasPrefix(k, prefix) && e.Expired(now) {
			delete(t.m, k)
			removed++
		}
	}
	t.mu.Unlock()
	return removed
}

// Map is an in-memory store over map[string]store.Entry.
type Map struct {
	t table
}

var (
	_ store.Store  = (*Map)(nil)
	_ store.Pruner = (*Map)(nil)
)

// Option configures Map and Object.
type Option func(*table)

// WithClock overrides time.Now for expiry checks.
func WithClock(c store.Clock) Option {
	return func(t *table) { t.now = c }
}

// NewMap returns a Map over m; a nil m starts empty. The store takes
// ownership of m.
func NewMap(m map[string]store.Entry, opts ...Option) *Map {
	if m == nil {
		m = make(map[string]store.Entry)
	}
	s := &Map{t: table{m: m}}
	for _, opt := range opts {
		opt(&s.t)
	}
	return s
}

// API returns the backing map. Callers must not use it concurrently with
// the store.
func (s *Map) API() map[string]store.Entry { return s.t.m }

func (s *Map) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := s.t.get(key)
	return b, ok, nil
}

func (s *Map) Put(_ context.Context, e store.Entry) error {
	s.t.put(e)
	return nil
}

func (s *Map) Remove(_ context.Context, key string) error {
	s.t.remove(key)
	return nil
}

func (s *Map) Flush(_ context.Context, prefix string) error {
	if prefix != "" {
		s.t.removePrefix(prefix)
		return nil
	}
	s.t.mu.Lock()
	clear(s.t.m)
	s.t.mu.Unlock()
	return nil
}

func (s *Map) Prune(_ context.Context, prefix string) (int, error) {
	return s.t.prune(prefix), nil
}

// Object is the plain-object flavour: Flush without a prefix replaces the
// backing map instead of clearing it.
type Object struct {
	t table
}

var (
	_ store.Store   = (*Object)(nil)
	_ store.Exister = (*Object)(nil)
	_ store.Pruner  = (*Object)(nil)
)

func NewObject(m map[string]store.Entry, opts ...Option) *Object {
	if m == nil {
		m = make(map[string]store.Entry)
	}
	s := &Object{t: table{m: m}}
	for _, opt := range opts {
		opt(&s.t)
	}
	return s
}

// API returns the current backing map.
func (s *Object) API() map[string]store.Entry {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	return s.t.m
}

func (s *Object) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := s.t.get(key)
	return b, ok, nil
}

// Exists checks presence and expiry without copying the value out.
func (s *Object) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.t.get(key)
	return ok, nil
}

func (s *Object) Put(_ context.Context, e store.Entry) error {
	s.t.put(e)
	return nil
}

func (s *Object) Remove(_ context.Context, key string) error {
	s.t.remove(key)
	return nil
}

func (s *Object) Flush(_ context.Context, prefix string) error {
	if prefix != "" {
		s.t.removePrefix(prefix)
		return nil
	}
	s.t.mu.Lock()
	s.t.m = make(map[string]store.Entry)
	s.t.mu.Unlock()
	return nil
}

func (s *Object) Prune(_ context.Context, prefix string) (int, error) {
	return s.t.prune(prefix), nil
}
