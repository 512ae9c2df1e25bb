// Package storage stores entries as JSON documents in a Web-Storage-like
// string medium. The medium only holds strings, so the expiry travels inside
// the document as epoch millis.
package storage

import (
	"context"
	"sort"
	"strings"

	"github.com/unkn0wn-root/kvcache/internal/wire"
	"github.com/unkn0wn-root/kvcache/store"
)

// Medium is a string-keyed string store with Web Storage semantics.
// GetItem reports false for absent keys.
type Medium interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
}

type Store struct {
	m   Medium
	now store.Clock
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Pruner = (*Store)(nil)
	_ store.Closer = (*Store)(nil)
)

type Option func(*Store)

func WithClock(c store.Clock) Option { return func(s *Store) { s.now = c } }

func New(m Medium, opts ...Option) (*Store, error) {
	if m == nil {
		return nil, store.ErrNilClient
	}
	s := &Store{m: m}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// API returns the medium.
func (s *Store) API() Medium { return s.m }

// Get treats unparsable documents as misses.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	doc, ok, err := s.load(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if doc.Expired(s.now.Now()) {
		return nil, false, s.m.RemoveItem(ctx, key)
	}
	payload, err := doc.Payload()
	if err != nil {
		return nil, false, nil
	}
	return payload, true, nil
}

func (s *Store) Put(ctx context.Context, e store.Entry) error {
	return s.m.SetItem(ctx, e.Key, wire.NewDocument(e.RawKey, e.Expires, e.Value).String())
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.m.RemoveItem(ctx, key)
}

// Flush clears the whole medium without a prefix.
func (s *Store) Flush(ctx context.Context, prefix string) error {
	if prefix == "" {
		return s.m.Clear(ctx)
	}
	keys, err := s.m.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if err := s.m.RemoveItem(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Prune evicts every expired entry under prefix.
func (s *Store) Prune(ctx context.Context, prefix string) (int, error) {
	expired, err := s.expired(ctx, prefix)
	if err != nil {
		return 0, err
	}
	return s.evict(ctx, expired)
}

// PopByPrefix evicts up to count expired entries under prefix, earliest
// expiry first, and returns how many were evicted.
func (s *Store) PopByPrefix(ctx context.Context, prefix string, count int) (int, error) {
	if count <= 0 {
		return 0, nil
	}
	expired, err := s.expired(ctx, prefix)
	if err != nil {
		return 0, err
	}
	sort.SliceStable(expired, func(i, j int) bool { return expired[i].at < expired[j].at })
	if len(expired) > count {
		expired = expired[:count]
	}
	return s.evict(ctx, expired)
}

// Close closes the medium when it holds resources of its own.
func (s *Store) Close(context.Context) error {
	if c, ok := s.m.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

type stale struct {
	key string
	at  int64
}

func (s *Store) expired(ctx context.Context, prefix string) ([]stale, error) {
	keys, err := s.m.Keys(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now.Now()
	var out []stale
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		doc, ok, err := s.load(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok && doc.Expired(now) {
			out = append(out, stale{key: k, at: *doc.Expires})
		}
	}
	return out, nil
}

func (s *Store) evict(ctx context.Context, entries []stale) (int, error) {
	n := 0
	for _, e := range entries {
		if err := s.m.RemoveItem(ctx, e.key); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// load reports ok=false for absent keys and for values that are not
// documents.
func (s *Store) load(ctx context.Context, key string) (wire.Document, bool, error) {
	raw, ok, err := s.m.GetItem(ctx, key)
	if err != nil || !ok {
		return wire.Document{}, false, err
	}
	doc, err := wire.ParseDocument(raw)
	if err != nil {
		return wire.Document{}, false, nil
	}
	return doc, true, nil
}
