// Package file stores every entry in a single JSON file. Each operation
// reads the whole file, mutates it and writes it back. Safe for concurrent
// use within one process only.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/unkn0wn-root/kvcache/internal/wire"
	"github.com/unkn0wn-root/kvcache/store"
)

const filePerm = 0o644

type Store struct {
	fs   afero.Fs
	path string
	now  store.Clock

	mu sync.Mutex
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Pruner = (*Store)(nil)
)

type Config struct {
	Path  string
	Fs    afero.Fs // nil => the OS filesystem
	Clock store.Clock
}

// New creates the file as "{}" when it does not exist yet.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("file store: path is required")
	}
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	s := &Store{fs: fs, path: cfg.Path, now: cfg.Clock}

	ok, err := afero.Exists(fs, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("file store: stat %s: %w", cfg.Path, err)
	}
	if !ok {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := fs.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("file store: create dir %s: %w", dir, err)
			}
		}
		if err := s.write(map[string]wire.Document{}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// API returns the filesystem and path backing the store.
func (s *Store) API() (afero.Fs, string) { return s.fs, s.path }

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.read()
	if err != nil {
		return nil, false, err
	}
	doc, ok := docs[key]
	if !ok {
		return nil, false, nil
	}
	if doc.Expired(s.now.Now()) {
		delete(docs, key)
		return nil, false, s.write(docs)
	}
	payload, err := doc.Payload()
	if err != nil {
		return nil, false, nil
	}
	return payload, true, nil
}

func (s *Store) Put(_ context.Context, e store.Entry) error {
	return s.update(func(docs map[string]wire.Document) (bool, error) {
		docs[e.Key] = wire.NewDocument(e.RawKey, e.Expires, e.Value)
		return true, nil
	})
}

func (s *Store) Remove(_ context.Context, key string) error {
	return s.update(func(docs map[string]wire.Document) (bool, error) {
		if _, ok := docs[key]; !ok {
			return false, nil
		}
		delete(docs, key)
		return true, nil
	})
}

func (s *Store) Flush(_ context.Context, prefix string) error {
	if prefix == "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.write(map[string]wire.Document{})
	}
	return s.update(func(docs map[string]wire.Document) (bool, error) {
		changed := false
		for k := range docs {
			if strings.HasPrefix(k, prefix) {
				delete(docs, k)
				changed = true
			}
		}
		return changed, nil
	})
}

func (s *Store) Prune(_ context.Context, prefix string) (int, error) {
	n := 0
	now := s.now.Now()
	err := s.update(func(docs map[string]wire.Document) (bool, error) {
		for k, doc := range docs {
			if strings.HasPrefix(k, prefix) && doc.Expired(now) {
				delete(docs, k)
				n++
			}
		}
		return n > 0, nil
	})
	return n, err
}

// update runs fn on the decoded file and writes it back when fn reports a
// change.
func (s *Store) update(fn func(docs map[string]wire.Document) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.read()
	if err != nil {
		return err
	}
	changed, err := fn(docs)
	if err != nil || !changed {
		return err
	}
	return s.write(docs)
}

// read treats a missing or empty file as an empty cache.
func (s *Store) read() (map[string]wire.Document, error) {
	b, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]wire.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file store: read %s: %w", s.path, err)
	}
	docs := map[string]wire.Document{}
	if len(strings.TrimSpace(string(b))) == 0 {
		return docs, nil
	}
	if err := json.Unmarshal(b, &docs); err != nil {
		return nil, fmt.Errorf("file store: parse %s: %w", s.path, err)
	}
	return docs, nil
}

func (s *Store) write(docs map[string]wire.Document) error {
	b, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("file store: encode: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path, b, filePerm); err != nil {
		return fmt.Errorf("file store: write %s: %w", s.path, err)
	}
	return nil
}
