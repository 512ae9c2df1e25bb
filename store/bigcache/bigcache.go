// Package bigcache stores entries in an allegro/bigcache instance.
//
// bigcache has no per-entry TTL, so each value is framed in a binary
// envelope carrying its own expiry, checked lazily on read. The global life
// window is pushed far out so bigcache itself never drops live entries.
package bigcache

import (
	"context"
	"errors"
	"strings"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/kvcache/internal/wire"
	"github.com/unkn0wn-root/kvcache/store"
)

const lifeWindow = 100 * 365 * 24 * time.Hour

type Store struct {
	c   *bc.BigCache
	now store.Clock
}

var (
	_ store.Store   = (*Store)(nil)
	_ store.Exister = (*Store)(nil)
	_ store.Pruner  = (*Store)(nil)
	_ store.Closer  = (*Store)(nil)
)

type Config struct {
	Shards             int // power of two; default 64
	MaxEntriesInWindow int // sizing hint for the initial allocation; default 1024
	MaxEntrySize       int // sizing hint in bytes; default 256
	Clock              store.Clock
}

func New(cfg Config) (*Store, error) {
	conf := bc.DefaultConfig(lifeWindow)
	conf.CleanWindow = 0
	conf.HardMaxCacheSize = 0
	conf.Verbose = false
	conf.Shards = 64
	conf.MaxEntriesInWindow = 1024
	conf.MaxEntrySize = 256
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Store{c: c, now: cfg.Clock}, nil
}

// API returns the bigcache instance. Values in it are framed envelopes.
func (s *Store) API() *bc.BigCache { return s.c }

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := s.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	_, exp, payload, err := wire.DecodeEntry(b)
	if err != nil {
		// not an envelope; written around the store through API()
		_ = s.del(key)
		return nil, false, nil
	}
	if (store.Entry{Expires: exp}).Expired(s.now.Now()) {
		_ = s.del(key)
		return nil, false, nil
	}
	return payload, true, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *Store) Put(_ context.Context, e store.Entry) error {
	b, err := wire.EncodeEntry(e.RawKey, e.Expires, e.Value)
	if err != nil {
		return err
	}
	return s.c.Set(e.Key, b)
}

func (s *Store) Remove(_ context.Context, key string) error {
	return s.del(key)
}

// Flush resets the cache without a prefix, otherwise deletes every key
// starting with prefix.
func (s *Store) Flush(_ context.Context, prefix string) error {
	if prefix == "" {
		return s.c.Reset()
	}
	keys, err := s.collect(func(key string, _ time.Time) bool {
		return strings.HasPrefix(key, prefix)
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.del(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Prune(_ context.Context, prefix string) (int, error) {
	now := s.now.Now()
	keys, err := s.collect(func(key string, exp time.Time) bool {
		return strings.HasPrefix(key, prefix) && (store.Entry{Expires: exp}).Expired(now)
	})
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := s.del(k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

func (s *Store) Close(_ context.Context) error {
	return s.c.Close()
}

// collect walks a snapshot of the cache and returns the keys match accepts.
// Entries that are not envelopes are skipped.
func (s *Store) collect(match func(key string, exp time.Time) bool) ([]string, error) {
	var keys []string
	it := s.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if errors.Is(err, bc.ErrInvalidIteratorState) || errors.Is(err, bc.ErrCannotRetrieveEntry) {
			continue // concurrently removed
		}
		if err != nil {
			return nil, err
		}
		_, exp, _, derr := wire.DecodeEntry(info.Value())
		if derr != nil {
			continue
		}
		if match(info.Key(), exp) {
			keys = append(keys, info.Key())
		}
	}
	return keys, nil
}

func (s *Store) del(key string) error {
	if err := s.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}
