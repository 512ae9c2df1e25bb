// Package store defines the backend abstraction used by kvcache.
//
// A Store persists opaque value bytes under storage keys. Keys arrive already
// prefixed and string-coerced by the driver; a store never rewrites them.
// Get must return exactly the bytes previously passed to Put for a key.
//
// Stores with native expiry (Redis family) delegate to the server. Every other
// store keeps the expiry next to the value and checks it lazily on read,
// deleting the entry the moment it is found expired (read repair). Nothing
// sweeps in the background; such stores implement Pruner for explicit sweeps.
//
// Derived operations (has, increment, remember, bulk get) are built by the
// driver on top of the four primitives. A store overrides them by also
// implementing Exister, Counter, MultiGetter or Runner.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNilClient is returned by constructors that require a client handle.
var ErrNilClient = errors.New("store: nil client")

// Entry is the unit persisted by a store.
type Entry struct {
	// Key is the storage key (prefixed, string-coerced).
	Key string
	// RawKey is the caller's key in string form, kept by media that record it.
	RawKey string
	Value  []byte
	// Expires is the absolute expiry; the zero time means never.
	Expires time.Time
}

// Expired reports whether e is no longer visible at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.Expires.IsZero() && !e.Expires.After(now)
}

// Store is the minimal primitive set every backend implements.
type Store interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss or
	// expiry. Transport errors return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores e, replacing any previous entry under e.Key.
	Put(ctx context.Context, e Entry) error

	// Remove deletes key. Absent keys are not an error.
	Remove(ctx context.Context, key string) error

	// Flush removes every key starting with prefix; an empty prefix removes
	// everything the store can reach.
	Flush(ctx context.Context, prefix string) error
}

// Exister answers has() without reading the value. Implementations must
// honour expiry exactly like Get.
type Exister interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// Counter adjusts a decimal integer value atomically on the server.
// A missing key counts as 0.
type Counter interface {
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
}

// MultiGetter fetches many keys in one round trip. The result is aligned
// with keys; misses are nil.
type MultiGetter interface {
	GetMany(ctx context.Context, keys []string) ([][]byte, error)
}

// Runner executes fn with the store's connection pinned open across every
// operation fn issues. The connection is released when fn returns, whether
// or not fn failed.
type Runner interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// Pruner evicts every expired entry under prefix and reports how many were
// removed. Only lazily expiring stores implement it.
type Pruner interface {
	Prune(ctx context.Context, prefix string) (int, error)
}

// Closer releases resources held by a store.
type Closer interface {
	Close(ctx context.Context) error
}

// Clock returns the current time. Lazily expiring stores accept one so tests
// can move time.
type Clock func() time.Time

// Now returns c(), or time.Now when c is nil.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
