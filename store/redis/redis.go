// Package redis stores entries on a Redis server through go-redis.
//
// Expiry is native (EXPIREAT). Every primitive runs on one dedicated
// connection that is opened on demand and closed again as soon as no
// operation is in flight, unless keep-alive is on or a Run batch holds it.
package redis

import (
	"context"
	"errors"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/kvcache/store"
)

const scanCount = 500

type Redis struct {
	rdb         *goredis.Client
	closeClient bool

	mu        sync.Mutex // guards conn, inflight, pinned, keepAlive
	conn      *goredis.Conn
	inflight  int
	pinned    int
	keepAlive bool

	// A go-redis Conn is not safe for concurrent use; commands issued on the
	// shared connection run one at a time in caller order.
	cmd sync.Mutex
}

var (
	_ store.Store       = (*Redis)(nil)
	_ store.Exister     = (*Redis)(nil)
	_ store.Counter     = (*Redis)(nil)
	_ store.MultiGetter = (*Redis)(nil)
	_ store.Runner      = (*Redis)(nil)
	_ store.Closer      = (*Redis)(nil)
)

type Config struct {
	Client      *goredis.Client
	KeepAlive   bool // leave the connection open between operations
	CloseClient bool // set true only if this store exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, store.ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient, keepAlive: cfg.KeepAlive}, nil
}

// API returns the go-redis client.
func (r *Redis) API() *goredis.Client { return r.rdb }

// SetKeepAlive toggles keep-alive. Turning it off closes an idle connection.
func (r *Redis) SetKeepAlive(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keepAlive = on
	if !on && r.inflight == 0 && r.pinned == 0 {
		return r.closeLocked()
	}
	return nil
}

// Connected reports whether the managed connection is open.
func (r *Redis) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

// Disconnect closes the managed connection. Closing a closed connection is
// not an error.
func (r *Redis) Disconnect(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

// Close disconnects and releases the client when this store owns it.
// Safe to call multiple times.
func (r *Redis) Close(ctx context.Context) error {
	err := r.Disconnect(ctx)
	if r.closeClient {
		if cerr := r.rdb.Close(); cerr != nil && !errors.Is(cerr, goredis.ErrClosed) {
			return cerr
		}
	}
	return err
}

// Run pins the connection for the duration of fn. On return, success or
// not, the pin is dropped and the connection is closed when nothing else
// is in flight, regardless of keep-alive.
func (r *Redis) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	r.mu.Lock()
	r.pinned++
	oerr := r.openLocked(ctx)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.pinned--
		var cerr error
		if r.pinned == 0 && r.inflight == 0 {
			cerr = r.closeLocked()
		}
		r.mu.Unlock()
		if err == nil {
			err = cerr
		}
	}()

	if oerr != nil {
		return oerr
	}
	return fn(ctx)
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		b   []byte
		hit bool
	)
	err := r.do(ctx, func(cn *goredis.Conn) error {
		v, err := cn.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil // miss
		}
		if err != nil {
			return err
		}
		b, hit = v, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return b, hit, nil
}

// Put writes SET followed by EXPIREAT (whole seconds, floored) in one
// round trip. Redis drops keys whose EXPIREAT lies in the past.
func (r *Redis) Put(ctx context.Context, e store.Entry) error {
	return r.do(ctx, func(cn *goredis.Conn) error {
		if e.Expires.IsZero() {
			return cn.Set(ctx, e.Key, e.Value, 0).Err()
		}
		_, err := cn.Pipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, e.Key, e.Value, 0)
			p.ExpireAt(ctx, e.Key, e.Expires)
			return nil
		})
		return err
	})
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	return r.do(ctx, func(cn *goredis.Conn) error {
		return cn.Del(ctx, key).Err()
	})
}

// Flush runs FLUSHALL without a prefix, otherwise SCAN MATCH prefix* + DEL.
func (r *Redis) Flush(ctx context.Context, prefix string) error {
	return r.do(ctx, func(cn *goredis.Conn) error {
		if prefix == "" {
			return cn.FlushAll(ctx).Err()
		}
		match := escapeGlob(prefix) + "*"
		var cursor uint64
		for {
			keys, next, err := cn.Scan(ctx, cursor, match, scanCount).Result()
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				if err := cn.Del(ctx, keys...).Err(); err != nil {
					return err
				}
			}
			if next == 0 {
				return nil
			}
			cursor = next
		}
	})
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := r.do(ctx, func(cn *goredis.Conn) error {
		var err error
		n, err = cn.Exists(ctx, key).Result()
		return err
	})
	return n > 0, err
}

// IncrBy uses INCR/DECR for unit steps and INCRBY/DECRBY otherwise.
func (r *Redis) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	var n int64
	err := r.do(ctx, func(cn *goredis.Conn) error {
		var cmd *goredis.IntCmd
		switch {
		case delta == 1:
			cmd = cn.Incr(ctx, key)
		case delta == -1:
			cmd = cn.Decr(ctx, key)
		case delta < 0:
			cmd = cn.DecrBy(ctx, key, -delta)
		default:
			cmd = cn.IncrBy(ctx, key, delta)
		}
		var err error
		n, err = cmd.Result()
		return err
	})
	return n, err
}

func (r *Redis) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	err := r.do(ctx, func(cn *goredis.Conn) error {
		vals, err := cn.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		for i, v := range vals {
			if s, ok := v.(string); ok {
				out[i] = []byte(s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// do runs fn on the managed connection, opening it first if needed and
// closing it afterwards when it is no longer needed.
func (r *Redis) do(ctx context.Context, fn func(cn *goredis.Conn) error) error {
	r.mu.Lock()
	if err := r.openLocked(ctx); err != nil {
		r.mu.Unlock()
		return err
	}
	cn := r.conn
	r.inflight++
	r.mu.Unlock()

	r.cmd.Lock()
	err := fn(cn)
	r.cmd.Unlock()

	r.mu.Lock()
	r.inflight--
	var cerr error
	if r.inflight == 0 && r.pinned == 0 && !r.keepAlive {
		cerr = r.closeLocked()
	}
	r.mu.Unlock()

	if err != nil {
		return err
	}
	return cerr
}

// openLocked is idempotent: an open connection is reused as is.
func (r *Redis) openLocked(ctx context.Context) error {
	if r.conn != nil {
		return nil
	}
	cn := r.rdb.Conn()
	if err := cn.Ping(ctx).Err(); err != nil {
		_ = cn.Close()
		return err
	}
	r.conn = cn
	return nil
}

func (r *Redis) closeLocked() error {
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	if err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string { return globEscaper.Replace(s) }
