package vercelkv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/kvcache"
	"github.com/unkn0wn-root/kvcache/internal/restkv/restkvtest"
	"github.com/unkn0wn-root/kvcache/store"
)

func newTestStore(t *testing.T) (*restkvtest.Server, *Store) {
	t.Helper()
	srv := restkvtest.New(t, "kv-token")
	t.Setenv("KV_REST_API_URL", srv.URL)
	t.Setenv("KV_REST_API_TOKEN", srv.Token)
	s, err := New(Config{})
	require.NoError(t, err)
	return srv, s
}

func TestVercelPrimitives(t *testing.T) {
	ctx := context.Background()
	srv, s := newTestStore(t)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, store.Entry{Key: "k", Value: []byte(`{"n":1}`), Expires: time.Now().Add(5 * time.Second)}))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"n":1}`, string(v))

	srv.Redis.FastForward(6 * time.Second)
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok)

	require.NoError(t, srv.Redis.Set("empty", ""))
	_, ok, _ = s.Get(ctx, "empty")
	assert.False(t, ok, "empty string is a miss")
}

func TestVercelCountersUseReadModifyWrite(t *testing.T) {
	ctx := context.Background()
	srv, s := newTestStore(t)
	d, err := kvcache.New(kvcache.Options{Store: s})
	require.NoError(t, err)

	n, err := d.Increment(ctx, "c", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = d.Decrement(ctx, "c", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	raw, err := srv.Redis.Get("c")
	require.NoError(t, err)
	assert.Equal(t, "1", raw)

	ok, err := d.Has(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, d.Flush(ctx))
	assert.Empty(t, srv.Redis.Keys())
}
