package kvcache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/kvcache/codec"
	"github.com/unkn0wn-root/kvcache/internal/util"
	st "github.com/unkn0wn-root/kvcache/store"
)

// Key is any caller key type: strings and integer kinds. Integers are stored
// under their decimal form.
type Key = util.Key

// KeyOf returns the string form of k.
func KeyOf[K Key](k K) string { return util.KeyString(k) }

// Driver is the backend-agnostic cache contract. Missing and expired keys are
// never errors: reads report ok=false and typed helpers resolve fallbacks.
// Typed access lives in the package-level generic functions (Get, GetOr, Put,
// Remember, GetMany) which delegate here.
type Driver interface {
	// API returns the underlying store (escape hatch). Each store exposes its
	// own API() for the library-owned handle.
	API() st.Store
	// Key returns the storage key for raw.
	Key(raw string) string

	Get(ctx context.Context, key string, dst any) (ok bool, err error)
	Put(ctx context.Context, key string, value any, exp Expiry) error
	Remove(ctx context.Context, key string) error
	// Flush removes every entry under the driver's prefix (everything the
	// store reaches when no prefix is set).
	Flush(ctx context.Context) error

	Has(ctx context.Context, key string) (bool, error)
	// Increment adds count to the numeric value under key, treating a
	// missing value as 0. Go has no omitted argument, so a count of 0 stands
	// for the default step of 1; there is no way to add zero.
	Increment(ctx context.Context, key string, count int64) (int64, error)
	// Decrement subtracts count (0 means 1).
	Decrement(ctx context.Context, key string, count int64) (int64, error)
	// Remember decodes the cached value into dst, or calls produce once,
	// stores its result with exp and decodes that into dst. No single-flight:
	// concurrent misses may each produce and write.
	Remember(ctx context.Context, key string, dst any, produce func(ctx context.Context) (any, error), exp Expiry) error
	// GetMany reads keys in one call where the store supports it. dst(i)
	// returns the decode destination for keys[i]; found[i] reports a hit.
	GetMany(ctx context.Context, keys []string, dst func(i int) any) (found []bool, err error)

	// Run executes fn with the store's connection pinned (networked stores);
	// other stores just call fn.
	Run(ctx context.Context, fn func(ctx context.Context) error) error
	// Prune evicts expired entries under the prefix on lazily expiring
	// stores and returns how many were removed.
	Prune(ctx context.Context) (int, error)
	Close(ctx context.Context) error
}

// Options configure a Driver. Only Store is required.
type Options struct {
	Store  st.Store
	Prefix string // namespace; "ns" stores "k" as "ns.k", "ns:" as "ns:k"

	// Default expiry for Put without an explicit Expiry. TTLFunc wins over
	// TTL; neither set means entries never expire by default.
	TTL     time.Duration
	TTLFunc func() time.Time
	// AdjustExpiry transforms every resolved expiry (explicit or default),
	// e.g. to clamp it. Identity when nil.
	AdjustExpiry func(time.Time) time.Time

	Codec  c.Codec // nil => codec.JSON
	Logger Logger  // nil => NopLogger
	Hooks  Hooks   // nil => NopHooks
	Now    func() time.Time
}

func New(opts Options) (Driver, error) {
	return newDriver(opts)
}
