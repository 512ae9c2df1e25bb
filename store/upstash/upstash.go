// Package upstash stores entries in Upstash Redis over its REST API.
// Expiry is native (SET ... PXAT). The protocol carries values as JSON
// strings, so payloads must be UTF-8 text, which JSON codec output always is.
package upstash

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/unkn0wn-root/kvcache/internal/restkv"
	"github.com/unkn0wn-root/kvcache/store"
)

type Config struct {
	URL        string // default $UPSTASH_REDIS_REST_URL
	Token      string // default $UPSTASH_REDIS_REST_TOKEN
	HTTPClient *http.Client
}

type Store struct {
	c *restkv.Client
}

var (
	_ store.Store       = (*Store)(nil)
	_ store.Exister     = (*Store)(nil)
	_ store.Counter     = (*Store)(nil)
	_ store.MultiGetter = (*Store)(nil)
)

func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		cfg.URL = os.Getenv("UPSTASH_REDIS_REST_URL")
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("UPSTASH_REDIS_REST_TOKEN")
	}
	c, err := restkv.New(restkv.Config{URL: cfg.URL, Token: cfg.Token, HTTPClient: cfg.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("upstash: %w", err)
	}
	return &Store{c: c}, nil
}

// API returns the REST client.
func (s *Store) API() *restkv.Client { return s.c }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := s.c.String(ctx, "GET", key)
	if err != nil || !ok {
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

// IncrBy uses INCR/DECR for unit steps and INCRBY/DECRBY otherwise.
func (s *Store) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	switch {
	case delta == 1:
		return s.c.Int(ctx, "INCR", key)
	case delta == -1:
		return s.c.Int(ctx, "DECR", key)
	case delta < 0:
		return s.c.Int(ctx, "DECRBY", key, -delta)
	default:
		return s.c.Int(ctx, "INCRBY", key, delta)
	}
}

func (s *Store) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(keys)+1)
	args = append(args, "MGET")
	for _, k := range keys {
		args = append(args, k)
	}
	vals, err := s.c.Strings(ctx, args...)
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if v != nil && i < len(out) {
			out[i] = []byte(*v)
		}
	}
	return out, nil
}
