package config

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/kvcache"
	"github.com/unkn0wn-root/kvcache/codec"
	"github.com/unkn0wn-root/kvcache/store"
	"github.com/unkn0wn-root/kvcache/store/bigcache"
	"github.com/unkn0wn-root/kvcache/store/file"
	"github.com/unkn0wn-root/kvcache/store/memory"
	"github.com/unkn0wn-root/kvcache/store/redis"
	"github.com/unkn0wn-root/kvcache/store/storage"
	"github.com/unkn0wn-root/kvcache/store/upstash"
	"github.com/unkn0wn-root/kvcache/store/vercelkv"
)

const defaultTable = "kvcache"

// Build opens every configured driver and registers it under its name.
// Drivers opened before a failure are closed again.
func Build(ctx context.Context, cfg *Config, log kvcache.Logger, hooks kvcache.Hooks) (*kvcache.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	drivers := make(map[string]kvcache.Driver, len(cfg.Drivers))
	fail := func(err error) (*kvcache.Registry, error) {
		var errs []error
		for _, d := range drivers {
			errs = append(errs, d.Close(ctx))
		}
		return nil, errors.Join(append([]error{err}, errs...)...)
	}

	for _, name := range cfg.Names() {
		dc := cfg.Drivers[name]
		st, err := openStore(ctx, dc)
		if err != nil {
			return fail(fmt.Errorf("config: driver %q: %w", name, err))
		}
		cd, err := codecFor(dc.Codec)
		if err != nil {
			return fail(fmt.Errorf("config: driver %q: %w", name, err))
		}
		d, err := kvcache.New(kvcache.Options{
			Store:  st,
			Prefix: dc.Prefix,
			TTL:    dc.TTL,
			Codec:  cd,
			Logger: log,
			Hooks:  hooks,
		})
		if err != nil {
			if cl, ok := st.(store.Closer); ok {
				_ = cl.Close(ctx)
			}
			return fail(fmt.Errorf("config: driver %q: %w", name, err))
		}
		drivers[name] = d
	}

	reg, err := kvcache.NewRegistry(drivers, cfg.Default)
	if err != nil {
		return fail(err)
	}
	return reg, nil
}

func openStore(ctx context.Context, dc DriverConfig) (store.Store, error) {
	switch dc.Type {
	case TypeMemory:
		return memory.NewMap(nil), nil
	case TypeObject:
		return memory.NewObject(nil), nil
	case TypeSession:
		return storage.New(storage.NewMemoryMedium())
	case TypeSQLite:
		table := dc.Table
		if table == "" {
			table = defaultTable
		}
		m, err := storage.OpenSQLiteMedium(ctx, dc.Path, table)
		if err != nil {
			return nil, err
		}
		s, err := storage.New(m)
		if err != nil {
			_ = m.Close()
			return nil, err
		}
		return s, nil
	case TypeFile:
		return file.New(file.Config{Path: dc.Path})
	case TypeBigcache:
		return bigcache.New(bigcache.Config{})
	case TypeRedis:
		return redis.New(redis.Config{
			Client: goredis.NewClient(&goredis.Options{
				Addr:     dc.Addr,
				Username: dc.Username,
				Password: dc.Password,
				DB:       dc.DB,
			}),
			KeepAlive:   dc.KeepAlive,
			CloseClient: true,
		})
	case TypeUpstash:
		return upstash.New(upstash.Config{URL: dc.URL, Token: dc.Token})
	case TypeVercelKV:
		return vercelkv.New(vercelkv.Config{URL: dc.URL, Token: dc.Token})
	default:
		return nil, fmt.Errorf("unknown type %q", dc.Type)
	}
}

func codecFor(name string) (codec.Codec, error) {
	switch name {
	case "", "json":
		return codec.JSON{}, nil
	case "msgpack":
		return codec.Msgpack{}, nil
	case "cbor":
		return codec.NewCBOR(true)
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
