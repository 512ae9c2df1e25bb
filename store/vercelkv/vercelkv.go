// Package vercelkv stores entries in Vercel KV over its REST API.
//
// Reads are a single GET with no EXISTS round trip, and an empty string
// counts as a miss. There is no native counter, so increments go through
// the driver's read-modify-write path.
package vercelkv

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/unkn0wn-root/kvcache/internal/restkv"
	"github.com/unkn0wn-root/kvcache/store"
)

type Config struct {
	URL        string // default $KV_REST_API_URL
	Token      string // default $KV_REST_API_TOKEN
	HTTPClient *http.Client
}

type Store struct {
	c *restkv.Client
}

var (
	_ store.Store   = (*Store)(nil)
	_ store.Exister = (*Store)(nil)
)

func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		cfg.URL = os.Getenv("KV_REST_API_URL")
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("KV_REST_API_TOKEN")
	}
	c, err := restkv.New(restkv.Config{URL: cfg.URL, Token: cfg.Token, HTTPClient: cfg.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("vercelkv: %w", err)
	}
	return &Store{c: c}, nil
}

// API returns the REST client.
func (s *Store) API() *restkv.Client { return s.c }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := s.c.String(ctx, "GET", key)
	if err != nil || !ok || v == "" {
		return nil, false, err
	}
	return []byte(v), true, nil
}

func (s *Store) Put(ctx context.Context, e store.Entry) error {
	return s.c.Set(ctx, e.Key, e.Value, e.Expires)
}

func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.c.Do(ctx, "DEL", key)
	return err
}

func (s *Store) Flush(ctx context.Context, prefix string) error {
	return s.c.Flush(ctx, prefix)
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.c.Int(ctx, "EXISTS", key)
	return n > 0, err
}
