// Package cookie stores entries as HTTP cookies on one request/response
// pair. Values are the JSON entry document, base64url encoded; the expiry is
// kept in the document and mirrored into the cookie's Expires attribute.
//
// Cookies are client controlled. Nothing is signed or encrypted, so treat
// anything read back as untrusted input.
package cookie

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/kvcache/internal/wire"
	"github.com/unkn0wn-root/kvcache/store"
)

// DefaultPrefix is the key prefix conventionally used for cache cookies.
const DefaultPrefix = "hs"

// farFuture is the Expires attribute of cookies whose entry never expires.
var farFuture = time.Date(2099, 12, 31, 23, 59, 59, 0, time.UTC)

type Options struct {
	Path     string // default "/"
	Domain   string
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite // default http.SameSiteStrictMode
	Clock    store.Clock
}

type Store struct {
	r    *http.Request
	w    http.ResponseWriter
	opts Options

	mu sync.Mutex
	// cookies written during this request; "" marks a deletion
	pending map[string]string
}

var (
	_ store.Store   = (*Store)(nil)
	_ store.Exister = (*Store)(nil)
)

func New(w http.ResponseWriter, r *http.Request, opts Options) (*Store, error) {
	if w == nil || r == nil {
		return nil, store.ErrNilClient
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteStrictMode
	}
	return &Store{r: r, w: w, opts: opts, pending: make(map[string]string)}, nil
}

// API returns the request and response the store is bound to.
func (s *Store) API() (*http.Request, http.ResponseWriter) { return s.r, s.w }

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.lookup(key)
	if !ok {
		return nil, false, nil
	}
	doc, err := decode(raw)
	if err != nil {
		return nil, false, nil
	}
	if doc.Expired(s.opts.Clock.Now()) {
		s.expire(key)
		return nil, false, nil
	}
	payload, err := doc.Payload()
	if err != nil {
		return nil, false, nil
	}
	return payload, true, nil
}

// Exists checks the expiry kept in the document like Get, expiring the
// cookie when it has passed.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *Store) Put(_ context.Context, e store.Entry) error {
	doc := wire.NewDocument(e.RawKey, e.Expires, e.Value)
	value := base64.RawURLEncoding.EncodeToString([]byte(doc.String()))

	c := s.cookie(e.Key, value)
	c.Expires = farFuture
	if !e.Expires.IsZero() {
		c.Expires = e.Expires.UTC()
	}
	if err := c.Valid(); err != nil {
		return fmt.Errorf("cookie store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	http.SetCookie(s.w, c)
	s.pending[e.Key] = value
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire(key)
	return nil
}

// Flush deletes every visible cookie whose name starts with prefix.
func (s *Store) Flush(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range s.names() {
		if strings.HasPrefix(name, prefix) {
			s.expire(name)
		}
	}
	return nil
}

// lookup sees writes made earlier in the same request before the incoming
// cookies.
func (s *Store) lookup(key string) (string, bool) {
	if v, ok := s.pending[key]; ok {
		return v, v != ""
	}
	c, err := s.r.Cookie(key)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (s *Store) names() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range s.r.Cookies() {
		if _, ok := seen[c.Name]; !ok {
			seen[c.Name] = struct{}{}
			out = append(out, c.Name)
		}
	}
	for name, v := range s.pending {
		if _, ok := seen[name]; !ok && v != "" {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

func (s *Store) expire(key string) {
	c := s.cookie(key, "")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0).UTC()
	http.SetCookie(s.w, c)
	s.pending[key] = ""
}

func (s *Store) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     s.opts.Path,
		Domain:   s.opts.Domain,
		Secure:   s.opts.Secure,
		HttpOnly: s.opts.HttpOnly,
		SameSite: s.opts.SameSite,
	}
}

func decode(v string) (wire.Document, error) {
	b, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return wire.Document{}, err
	}
	return wire.ParseDocument(string(b))
}
