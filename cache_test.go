package kvcache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	c "github.com/unkn0wn-root/kvcache/codec"
	st "github.com/unkn0wn-root/kvcache/store"
)

type memStore struct {
	mu  sync.Mutex
	m   map[string]st.Entry
	now func() time.Time

	runs int
}

var _ st.Store = (*memStore)(nil)

func newMemStore(now func() time.Time) *memStore {
	return &memStore{m: make(map[string]st.Entry), now: now}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	if e.Expired(s.now()) {
		delete(s.m, key)
		return nil, false, nil
	}
	return e.Value, true, nil
}

func (s *memStore) Put(_ context.Context, e st.Entry) error {
	s.mu.Lock()
	s.m[e.Key] = e
	s.mu.Unlock()
	return nil
}

func (s *memStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

func (s *memStore) Flush(_ context.Context, prefix string) error {
	s.mu.Lock()
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			delete(s.m, k)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *memStore) Run(ctx context.Context, fn func(context.Context) error) error {
	s.runs++
	return fn(ctx)
}

func (s *memStore) entry(key string) (st.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	return e, ok
}

// failStore fails every primitive.
type failStore struct{ err error }

func (f failStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, f.err }
func (f failStore) Put(context.Context, st.Entry) error              { return f.err }
func (f failStore) Remove(context.Context, string) error             { return f.err }
func (f failStore) Flush(context.Context, string) error              { return f.err }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recHooks struct {
	NopHooks
	mu            sync.Mutex
	decodeFailed  []string
	rememberMiss  []string
	expiredOnPut  []string
	storeErrorOps []string
}

func (h *recHooks) DecodeFailed(k string, _ error) {
	h.mu.Lock()
	h.decodeFailed = append(h.decodeFailed, k)
	h.mu.Unlock()
}

func (h *recHooks) RememberMiss(k string) {
	h.mu.Lock()
	h.rememberMiss = append(h.rememberMiss, k)
	h.mu.Unlock()
}

func (h *recHooks) ExpiredOnWrite(k string) {
	h.mu.Lock()
	h.expiredOnPut = append(h.expiredOnPut, k)
	h.mu.Unlock()
}

func (h *recHooks) StoreError(op, _ string, _ error) {
	h.mu.Lock()
	h.storeErrorOps = append(h.storeErrorOps, op)
	h.mu.Unlock()
}

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestDriver(t *testing.T, s st.Store, clk *fakeClock, mod func(*Options)) Driver {
	t.Helper()
	opts := Options{Store: s, Now: clk.Now}
	if mod != nil {
		mod(&opts)
	}
	d, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

// ==============================
// Basic read/write
// ==============================

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	d := newTestDriver(t, newMemStore(clk.Now), clk, nil)

	u := user{ID: "1", Name: "Ada"}
	if _, err := Put(ctx, d, "u:1", u, Default); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := Get[user](ctx, d, "u:1")
	if err != nil || !ok || got != u {
		t.Fatalf("Get: ok=%v err=%v got=%+v", ok, err, got)
	}

	if _, ok, _ := Get[user](ctx, d, "u:2"); ok {
		t.Fatalf("expected miss for unknown key")
	}
}

func TestGetOrFallback(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	d := newTestDriver(t, newMemStore(clk.Now), clk, nil)

	v, err := GetOr(ctx, d, "missing", Value("fallback"))
	if err != nil || v != "fallback" {
		t.Fatalf("literal fallback: v=%q err=%v", v, err)
	}

	calls := 0
	n, err := GetOr(ctx, d, "missing", func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if err != nil || n != 42 || calls != 1 {
		t.Fatalf("producer fallback: n=%d err=%v calls=%d", n, err, calls)
	}

	// producer is not invoked on a hit
	if _, err := Put(ctx, d, "present", 7, Default); err != nil {
		t.Fatalf("Put: %v", err)
	}
	n, err = GetOr(ctx, d, "present", func(context.Context) (int, error) {
		calls++
		return 0, nil
	})
	if err != nil || n != 7 || calls != 1 {
		t.Fatalf("hit: n=%d err=%v calls=%d", n, err, calls)
	}

	z, err := GetOr[int](ctx, d, "missing", nil)
	if err != nil || z != 0 {
		t.Fatalf("nil fallback: z=%d err=%v", z, err)
	}
}

func TestIntegerKeysAreStoredAsDecimal(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	s := newMemStore(clk.Now)
	d := newTestDriver(t, s, clk, func(o *Options) { o.Prefix = "ns" })

	if _, err := Put(ctx, d, 42, "x", Default); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := s.entry("ns.42"); !ok {
		t.Fatalf("expected storage key ns.42")
	}
	v, ok, err := Get[string](ctx, d, "42")
	if err != nil || !ok || v != "x" {
		t.Fatalf("string key read of integer write: ok=%v err=%v v=%q", ok, err, v)
	}
}

func TestRemoveAndHas(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	d := newTestDriver(t, newMemStore(clk.Now), clk, nil)

	if _, err := Put(ctx, d, "k", "v", Default); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, err := d.Has(ctx, "k"); err != nil || !ok {
		t.Fatalf("Has before remove: ok=%v err=%v", ok, err)
	}
	if err := d.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ok, _ := d.Has(ctx, "k"); ok {
		t.Fatalf("Has after remove should be false")
	}
	// removing an absent key is fine
	if err := d.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}
}

func TestNullValueIsAMiss(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	d := newTestDriver(t, newMemStore(clk.Now), clk, nil)

	if err := d.Put(ctx, "n", nil, Default); err != nil {
		t.Fatalf("Put nil: %v", err)
	}
	if ok, _ := d.Has(ctx, "n"); ok {
		t.Fatalf("Has on stored null should be false")
	}
	v, err := GetOr(ctx, d, "n", Value("fb"))
	if err != nil || v != "fb" {
		t.Fatalf("null should resolve fallback: v=%q err=%v", v, err)
	}
}

// ==============================
// Expiry
// ==============================

func TestExpiryPastAndFuture(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	h := &recHooks{}
	d := newTestDriver(t, newMemStore(clk.Now), clk, func(o *Options) { o.Hooks = h })

	if err := d.Put(ctx, "past", "v", At(clk.Now().Add(-time.Second))); err != nil {
		t.Fatalf("Put past: %v", err)
	}
	if ok, _ := d.Has(ctx, "past"); ok {
		t.Fatalf("entry with past expiry must not be visible")
	}
	if len(h.expiredOnPut) != 1 {
		t.Fatalf("ExpiredOnWrite hook calls=%d", len(h.expiredOnPut))
	}

	if err := d.Put(ctx, "future", "v", In(10*time.Second)); err != nil {
		t.Fatalf("Put future: %v", err)
	}
	if ok, _ := d.Has(ctx, "future"); !ok {
		t.Fatalf("entry should be visible before expiry")
	}
	clk.Advance(10 * time.Second)
	if ok, _ := d.Has(ctx, "future"); ok {
		t.Fatalf("entry should expire exactly at its expiry time")
	}
}

func TestDefaultTTLAndNever(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	s := newMemStore(clk.Now)
	d := newTestDriver(t, s, clk, func(o *Options) { o.TTL = time.Minute })

	if err := d.Put(ctx, "ttl", 1, Default); err != nil {
		t.Fatalf("Put: %v", err)
	}
	e, _ := s.entry("ttl")
	if want := clk.Now().Add(time.Minute); !e.Expires.Equal(want) {
		t.Fatalf("default TTL: expires=%v want %v", e.Expires, want)
	}

	if err := d.Put(ctx, "forever", 1, Never); err != nil {
		t.Fatalf("Put: %v", err)
	}
	e, _ = s.entry("forever")
	if !e.Expires.IsZero() {
		t.Fatalf("Never should store without expiry, got %v", e.Expires)
	}
	if At(time.Time{}) != Never {
		t.Fatalf("At(zero) should be Never")
	}
}

func TestTTLFuncWinsAndAdjustExpiry(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	s := newMemStore(clk.Now)
	fixed := clk.Now().Add(5 * time.Second)
	limit := clk.Now().Add(time.Hour)
	d := newTestDriver(t, s, clk, func(o *Options) {
		o.TTL = time.Minute
		o.TTLFunc = func() time.Time { return fixed }
		o.AdjustExpiry = func(t time.Time) time.Time {
			if t.After(limit) {
				return limit
			}
			return t
		}
	})

	if err := d.Put(ctx, "a", 1, Default); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if e, _ := s.entry("a"); !e.Expires.Equal(fixed) {
		t.Fatalf("TTLFunc should win over TTL: %v", e.Expires)
	}

	if err := d.Put(ctx, "b", 1, In(48*time.Hour)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if e, _ := s.entry("b"); !e.Expires.Equal(limit) {
		t.Fatalf("AdjustExpiry should clamp explicit expiry: %v", e.Expires)
	}
}

func TestNegativeTTLRejected(t *testing.T) {
	if _, err := New(Options{Store: newMemStore(time.Now), TTL: -time.Second}); err == nil {
		t.Fatalf("expected error for negative TTL")
	}
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error for missing store")
	}
}

// ==============================
// Counters
// ==============================

func TestIncrementDecrement(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	d := newTestDriver(t, newMemStore(clk.Now), clk, nil)

	n, err := d.Increment(ctx, "c", 0)
	if err != nil || n != 1 {
		t.Fatalf("Increment missing: n=%d err=%v", n, err)
	}
	n, _ = d.Increment(ctx, "c", 4)
	if n != 5 {
		t.Fatalf("Increment by 4: n=%d", n)
	}
	n, _ = d.Decrement(ctx, "c", 0)
	if n != 4 {
		t.Fatalf("Decrement default step: n=%d", n)
	}
	n, _ = d.Decrement(ctx, "fresh", 3)
	if n != -3 {
		t.Fatalf("Decrement missing: n=%d", n)
	}

	v, ok, err := Get[int](ctx, d, "c")
	if err != nil || !ok || v != 4 {
		t.Fatalf("counter read back: ok=%v err=%v v=%d", ok, err, v)
	}
}

func TestIncrementAfterPut(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	d := newTestDriver(t, newMemStore(clk.Now), clk, nil)

	if _, err := Put(ctx, d, "a", 1, Default); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n, err := d.Increment(ctx, "a", 4); err != nil || n != 5 {
		t.Fatalf("Increment: n=%d err=%v", n, err)
	}
}

func TestIncrementNonNumeric(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	d := newTestDriver(t, newMemStore(clk.Now), clk, nil)

	if _, err := Put(ctx, d, "s", "abc", Default); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := d.Increment(ctx, "s", 1); !errors.Is(err, ErrNotNumeric) {
		t.Fatalf("expected ErrNotNumeric, got %v", err)
	}
}

// ==============================
// Remember
// ==============================

func TestRememberProducesOnce(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	s := newMemStore(clk.Now)
	h := &recHooks{}
	d := newTestDriver(t, s, clk, func(o *Options) { o.Hooks = h })

	calls := 0
	produce := func(context.Context) (user, error) {
		calls++
		return user{ID: "7", Name: "Grace"}, nil
	}
	for i := 0; i < 3; i++ {
		u, err := Remember(ctx, d, "u:7", produce, In(time.Minute))
		if err != nil || u.Name != "Grace" {
			t.Fatalf("Remember #%d: u=%+v err=%v", i, u, err)
		}
	}
	if calls != 1 {
		t.Fatalf("producer calls=%d want 1", calls)
	}
	if len(h.rememberMiss) != 1 || h.rememberMiss[0] != "u:7" {
		t.Fatalf("RememberMiss hook: %v", h.rememberMiss)
	}
	if s.runs != 3 {
		t.Fatalf("Remember should pin via Run each call: runs=%d", s.runs)
	}

	clk.Advance(time.Minute)
	if _, err := Remember(ctx, d, "u:7", produce, In(time.Minute)); err != nil {
		t.Fatalf("Remember after expiry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("producer should run again after expiry: calls=%d", calls)
	}
}

func TestRememberProducerError(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	d := newTestDriver(t, newMemStore(clk.Now), clk, nil)

	boom := errors.New("boom")
	_, err := Remember(ctx, d, "k", func(context.Context) (int, error) { return 0, boom }, Default)
	if !errors.Is(err, boom) {
		t.Fatalf("expected producer error, got %v", err)
	}
	if ok, _ := d.Has(ctx, "k"); ok {
		t.Fatalf("failed producer must not store anything")
	}
}

// ==============================
// Prefix and flush
// ==============================

func TestPrefixKeys(t *testing.T) {
	clk := newFakeClock()
	s := newMemStore(clk.Now)
	cases := map[string]string{
		"":    "k",
		"ns":  "ns.k",
		"ns1": "ns1.k",
		"ns:": "ns:k",
		"ns/": "ns/k",
	}
	for prefix, want := range cases {
		d := newTestDriver(t, s, clk, func(o *Options) { o.Prefix = prefix })
		if got := d.Key("k"); got != want {
			t.Fatalf("prefix %q: Key=%q want %q", prefix, got, want)
		}
	}
}

func TestFlushIsScopedToPrefix(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	s := newMemStore(clk.Now)
	a := newTestDriver(t, s, clk, func(o *Options) { o.Prefix = "ns" })
	b := newTestDriver(t, s, clk, func(o *Options) { o.Prefix = "nsx" })

	for _, d := range []Driver{a, b} {
		if err := d.Put(ctx, "k", 1, Default); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if ok, _ := a.Has(ctx, "k"); ok {
		t.Fatalf("flushed prefix still has key")
	}
	if ok, _ := b.Has(ctx, "k"); !ok {
		t.Fatalf("flush must not touch sibling prefix nsx")
	}

	all := newTestDriver(t, s, clk, nil)
	if err := all.Flush(ctx); err != nil {
		t.Fatalf("Flush all: %v", err)
	}
	if len(s.m) != 0 {
		t.Fatalf("unscoped flush left %d entries", len(s.m))
	}
}

// ==============================
// Decoding
// ==============================

func TestUndecodableValue(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	s := newMemStore(clk.Now)
	h := &recHooks{}
	d := newTestDriver(t, s, clk, func(o *Options) { o.Hooks = h })

	_ = s.Put(ctx, st.Entry{Key: "raw", Value: []byte("not json")})

	v, ok, err := Get[string](ctx, d, "raw")
	if err != nil || !ok || v != "not json" {
		t.Fatalf("string read of raw text: ok=%v err=%v v=%q", ok, err, v)
	}
	if _, ok, _ := Get[int](ctx, d, "raw"); ok {
		t.Fatalf("undecodable value should be a miss for non-string types")
	}
	if len(h.decodeFailed) != 2 {
		t.Fatalf("DecodeFailed calls=%d want 2", len(h.decodeFailed))
	}
}

func TestNonJSONCodecCounters(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	d := newTestDriver(t, newMemStore(clk.Now), clk, func(o *Options) { o.Codec = c.Msgpack{} })

	if _, err := d.Increment(ctx, "n", 2); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	n, err := d.Increment(ctx, "n", 3)
	if err != nil || n != 5 {
		t.Fatalf("Increment msgpack: n=%d err=%v", n, err)
	}
}

// counterStore records native counter calls.
type counterStore struct {
	*memStore
	incrs int
}

func (s *counterStore) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	s.incrs++
	return delta, nil
}

func TestLimitWrappedJSONStaysTextual(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	cs := &counterStore{memStore: newMemStore(clk.Now)}
	d := newTestDriver(t, cs, clk, func(o *Options) { o.Codec = c.Limit{Inner: c.JSON{}, MaxDecode: 1024} })

	if _, err := d.Increment(ctx, "n", 2); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if cs.incrs != 1 {
		t.Fatalf("native IncrBy calls=%d want 1", cs.incrs)
	}

	if err := d.Put(ctx, "nil", nil, Default); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, _ := d.Has(ctx, "nil"); ok {
		t.Fatalf("stored null should be a miss")
	}
}

// ==============================
// Bulk
// ==============================

func TestGetMany(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	d := newTestDriver(t, newMemStore(clk.Now), clk, nil)

	for _, id := range []int{1, 3} {
		if _, err := Put(ctx, d, id, id*10, Default); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	hits, missing, err := GetMany[int](ctx, d, []int{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(hits) != 2 || hits[1] != 10 || hits[3] != 30 {
		t.Fatalf("hits=%v", hits)
	}
	if len(missing) != 2 || missing[0] != 2 || missing[1] != 4 {
		t.Fatalf("missing=%v", missing)
	}
}

// ==============================
// Errors
// ==============================

func TestStoreErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	boom := errors.New("down")
	h := &recHooks{}
	d := newTestDriver(t, failStore{err: boom}, clk, func(o *Options) { o.Hooks = h })

	if _, _, err := Get[int](ctx, d, "k"); !errors.Is(err, boom) {
		t.Fatalf("Get err=%v", err)
	}
	if err := d.Put(ctx, "k", 1, Default); !errors.Is(err, boom) {
		t.Fatalf("Put err=%v", err)
	}
	if err := d.Flush(ctx); !errors.Is(err, boom) {
		t.Fatalf("Flush err=%v", err)
	}
	if len(h.storeErrorOps) != 3 {
		t.Fatalf("StoreError ops=%v", h.storeErrorOps)
	}
}
