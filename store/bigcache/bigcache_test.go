package bigcache

import (
	"context"
	"testing"
	"time"

	bc "github.com/allegro/bigcache/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/kvcache/internal/wire"
	"github.com/unkn0wn-root/kvcache/store"
)

func newTestStore(t *testing.T, now *time.Time) *Store {
	t.Helper()
	s, err := New(Config{Shards: 8, Clock: func() time.Time { return *now }})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestBigcacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s := newTestStore(t, &now)

	require.NoError(t, s.Put(ctx, store.Entry{Key: "ns.k", RawKey: "k", Value: []byte(`"v"`)}))
	v, ok, err := s.Get(ctx, "ns.k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `"v"`, string(v))

	raw, err := s.API().Get("ns.k")
	require.NoError(t, err)
	rawKey, exp, payload, err := wire.DecodeEntry(raw)
	require.NoError(t, err)
	assert.Equal(t, "k", rawKey)
	assert.True(t, exp.IsZero())
	assert.Equal(t, `"v"`, string(payload))

	require.NoError(t, s.Remove(ctx, "ns.k"))
	require.NoError(t, s.Remove(ctx, "ns.k"), "removing an absent key is fine")
	_, ok, _ = s.Get(ctx, "ns.k")
	assert.False(t, ok)
}

func TestBigcacheLazyExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s := newTestStore(t, &now)

	require.NoError(t, s.Put(ctx, store.Entry{Key: "k", Value: []byte("1"), Expires: now.Add(time.Minute)}))
	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, _ = s.Exists(ctx, "k")
	assert.False(t, ok)
	_, err = s.API().Get("k")
	assert.Error(t, err, "expired entry is deleted on read")
}

func TestBigcacheFlushAndPrune(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s := newTestStore(t, &now)

	past := now.Add(-time.Second)
	require.NoError(t, s.Put(ctx, store.Entry{Key: "a.1", Value: []byte("1"), Expires: past}))
	require.NoError(t, s.Put(ctx, store.Entry{Key: "a.2", Value: []byte("1")}))
	require.NoError(t, s.Put(ctx, store.Entry{Key: "b.1", Value: []byte("1"), Expires: past}))
	require.NoError(t, s.Put(ctx, store.Entry{Key: "b.2", Value: []byte("1")}))

	n, err := s.Prune(ctx, "a.")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Flush(ctx, "b."))
	assert.Equal(t, 1, s.API().Len())

	require.NoError(t, s.Flush(ctx, ""))
	assert.Equal(t, 0, s.API().Len())
}

func TestBigcacheForeignValueIsMiss(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s := newTestStore(t, &now)

	require.NoError(t, s.API().Set("ns.k", []byte("not an envelope")))
	_, ok, err := s.Get(ctx, "ns.k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.API().Get("ns.k")
	assert.ErrorIs(t, err, bc.ErrEntryNotFound, "foreign entry is deleted on read")
}
