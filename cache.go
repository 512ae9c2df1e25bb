package kvcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	c "github.com/unkn0wn-root/kvcache/codec"
	"github.com/unkn0wn-root/kvcache/internal/util"
	st "github.com/unkn0wn-root/kvcache/store"
)

var nullJSON = []byte("null")

type driver struct {
	store  st.Store
	prefix string
	scope  string // storage-key prefix shared by all keys; "" when unscoped
	codec  c.Codec
	log    Logger
	hooks  Hooks

	ttl          time.Duration
	ttlFunc      func() time.Time
	adjustExpiry func(time.Time) time.Time
	now          func() time.Time

	// JSON stores integers as decimal text, which is what native counters
	// (INCRBY) read and write. Other codecs use read-modify-write.
	textual bool
}

var _ Driver = (*driver)(nil)

func newDriver(opts Options) (*driver, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("kvcache: store is required")
	}
	if opts.TTL < 0 {
		return nil, fmt.Errorf("kvcache: negative TTL %s", opts.TTL)
	}

	d := &driver{
		store:   opts.Store,
		prefix:  opts.Prefix,
		scope:   util.ScopePrefix(opts.Prefix),
		ttl:     opts.TTL,
		ttlFunc: opts.TTLFunc,
	}

	// defaults
	d.codec = coalesce[c.Codec](opts.Codec, c.JSON{})
	d.log = coalesce[Logger](opts.Logger, NopLogger{})
	d.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	d.now = opts.Now
	if d.now == nil {
		d.now = time.Now
	}
	d.adjustExpiry = opts.AdjustExpiry
	if d.adjustExpiry == nil {
		d.adjustExpiry = func(t time.Time) time.Time { return t }
	}
	d.textual = isJSON(d.codec)

	return d, nil
}

func (d *driver) API() st.Store { return d.store }

func (d *driver) Key(raw string) string { return util.StorageKey(d.prefix, raw) }

func (d *driver) Get(ctx context.Context, key string, dst any) (bool, error) {
	k := d.Key(key)
	raw, ok, err := d.store.Get(ctx, k)
	if err != nil {
		d.hooks.StoreError("get", k, err)
		return false, err
	}
	if !ok || d.isNull(raw) {
		return false, nil
	}
	return d.decode(k, raw, dst), nil
}

func (d *driver) Put(ctx context.Context, key string, value any, exp Expiry) error {
	k := d.Key(key)
	payload, err := d.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("kvcache: encode %q: %w", key, err)
	}
	at := d.resolveExpiry(exp)
	if !at.IsZero() && !at.After(d.now()) {
		d.hooks.ExpiredOnWrite(k)
	}
	err = d.store.Put(ctx, st.Entry{Key: k, RawKey: key, Value: payload, Expires: at})
	if err != nil {
		d.hooks.StoreError("put", k, err)
		return err
	}
	return nil
}

func (d *driver) Remove(ctx context.Context, key string) error {
	k := d.Key(key)
	if err := d.store.Remove(ctx, k); err != nil {
		d.hooks.StoreError("remove", k, err)
		return err
	}
	return nil
}

func (d *driver) Flush(ctx context.Context) error {
	if err := d.store.Flush(ctx, d.scope); err != nil {
		d.hooks.StoreError("flush", d.scope, err)
		return err
	}
	d.log.Debug("flushed", Fields{"prefix": d.prefix})
	return nil
}

func (d *driver) Has(ctx context.Context, key string) (bool, error) {
	k := d.Key(key)
	if ex, ok := d.store.(st.Exister); ok {
		found, err := ex.Exists(ctx, k)
		if err != nil {
			d.hooks.StoreError("has", k, err)
		}
		return found, err
	}
	raw, ok, err := d.store.Get(ctx, k)
	if err != nil {
		d.hooks.StoreError("has", k, err)
		return false, err
	}
	return ok && !d.isNull(raw), nil
}

func (d *driver) Increment(ctx context.Context, key string, count int64) (int64, error) {
	if count == 0 {
		count = 1
	}
	return d.add(ctx, key, count)
}

func (d *driver) Decrement(ctx context.Context, key string, count int64) (int64, error) {
	if count == 0 {
		count = 1
	}
	return d.add(ctx, key, -count)
}

func (d *driver) add(ctx context.Context, key string, delta int64) (int64, error) {
	k := d.Key(key)
	if ctr, ok := d.store.(st.Counter); ok && d.textual {
		n, err := ctr.IncrBy(ctx, k, delta)
		if err != nil {
			d.hooks.StoreError("incrby", k, err)
			return 0, err
		}
		return n, nil
	}

	// read-modify-write; not atomic across concurrent callers
	var cur int64
	raw, ok, err := d.store.Get(ctx, k)
	if err != nil {
		d.hooks.StoreError("get", k, err)
		return 0, err
	}
	if ok && !d.isNull(raw) {
		if err := d.codec.Decode(raw, &cur); err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, key)
		}
	}
	next := cur + delta
	if err := d.Put(ctx, key, next, Default); err != nil {
		return 0, err
	}
	return next, nil
}

func (d *driver) Remember(ctx context.Context, key string, dst any, produce func(ctx context.Context) (any, error), exp Expiry) error {
	if produce == nil {
		return errors.New("kvcache: remember requires a producer")
	}
	return d.Run(ctx, func(ctx context.Context) error {
		ok, err := d.Get(ctx, key, dst)
		if err != nil || ok {
			return err
		}

		k := d.Key(key)
		d.hooks.RememberMiss(k)
		v, err := produce(ctx)
		if err != nil {
			return err
		}
		if err := d.Put(ctx, key, v, exp); err != nil {
			return err
		}
		return assign(dst, v, d.codec)
	})
}

func (d *driver) GetMany(ctx context.Context, keys []string, dst func(i int) any) ([]bool, error) {
	found := make([]bool, len(keys))
	if len(keys) == 0 {
		return found, nil
	}
	storage := make([]string, len(keys))
	for i, k := range keys {
		storage[i] = d.Key(k)
	}

	if mg, ok := d.store.(st.MultiGetter); ok {
		raws, err := mg.GetMany(ctx, storage)
		if err != nil {
			d.hooks.StoreError("getmany", d.scope, err)
			return nil, err
		}
		for i, raw := range raws {
			if raw == nil || d.isNull(raw) {
				continue
			}
			found[i] = d.decode(storage[i], raw, dst(i))
		}
		return found, nil
	}

	// Fallback: one read per key
	for i, k := range storage {
		raw, ok, err := d.store.Get(ctx, k)
		if err != nil {
			d.hooks.StoreError("get", k, err)
			return nil, err
		}
		if ok && !d.isNull(raw) {
			found[i] = d.decode(k, raw, dst(i))
		}
	}
	return found, nil
}

func (d *driver) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if r, ok := d.store.(st.Runner); ok {
		return r.Run(ctx, fn)
	}
	return fn(ctx)
}

func (d *driver) Prune(ctx context.Context) (int, error) {
	p, ok := d.store.(st.Pruner)
	if !ok {
		return 0, nil
	}
	n, err := p.Prune(ctx, d.scope)
	if err != nil {
		d.hooks.StoreError("prune", d.scope, err)
		return n, err
	}
	if n > 0 {
		d.log.Debug("pruned expired entries", Fields{"prefix": d.prefix, "removed": n})
	}
	return n, nil
}

func (d *driver) Close(ctx context.Context) error {
	if cl, ok := d.store.(st.Closer); ok {
		return cl.Close(ctx)
	}
	return nil
}

// isJSON reports whether cd writes JSON text, looking through Limit.
func isJSON(cd c.Codec) bool {
	for {
		switch v := cd.(type) {
		case c.JSON, *c.JSON:
			return true
		case c.Limit:
			cd = v.Inner
		case *c.Limit:
			if v == nil {
				return false
			}
			cd = v.Inner
		default:
			return false
		}
	}
}

// decode reports whether dst holds a usable value. Undecodable bytes are
// returned verbatim to *string destinations; anything else is a miss.
func (d *driver) decode(storageKey string, raw []byte, dst any) bool {
	err := d.codec.Decode(raw, dst)
	if err == nil {
		return true
	}
	d.hooks.DecodeFailed(storageKey, err)
	if s, ok := dst.(*string); ok {
		*s = string(raw)
		return true
	}
	d.log.Warn("stored value not decodable; treated as miss", Fields{"key": storageKey, "err": err})
	return false
}

func (d *driver) isNull(raw []byte) bool {
	return d.textual && bytes.Equal(bytes.TrimSpace(raw), nullJSON)
}

// assign copies a freshly produced value into dst. Same-type values are set
// directly; otherwise the value round-trips through the codec so dst gets
// exactly what a later Get would return.
func assign(dst, v any, codec c.Codec) error {
	if setDirect(dst, v) {
		return nil
	}
	b, err := codec.Encode(v)
	if err != nil {
		return err
	}
	return codec.Decode(b, dst)
}
