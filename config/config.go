// Package config loads driver definitions from a file and the environment
// and builds a kvcache.Registry from them.
//
//	default: main
//	drivers:
//	  main:
//	    type: redis
//	    addr: localhost:6379
//	    prefix: app
//	    ttl: 10m
//	  local:
//	    type: file
//	    path: /var/cache/app.json
//
// Every key can be overridden with a KVCACHE_ variable, e.g.
// KVCACHE_DRIVERS_MAIN_ADDR or KVCACHE_DEFAULT.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Driver types understood by Build.
const (
	TypeMemory   = "memory"
	TypeObject   = "object"
	TypeSession  = "session"
	TypeSQLite   = "sqlite"
	TypeFile     = "file"
	TypeBigcache = "bigcache"
	TypeRedis    = "redis"
	TypeUpstash  = "upstash"
	TypeVercelKV = "vercelkv"
)

var knownTypes = map[string]bool{
	TypeMemory: true, TypeObject: true, TypeSession: true, TypeSQLite: true, TypeFile: true,
	TypeBigcache: true, TypeRedis: true, TypeUpstash: true, TypeVercelKV: true,
}

var knownCodecs = map[string]bool{"": true, "json": true, "msgpack": true, "cbor": true}

type Config struct {
	Default string                  `mapstructure:"default"`
	Logging LoggingConfig           `mapstructure:"logging"`
	Drivers map[string]DriverConfig `mapstructure:"drivers"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
}

type DriverConfig struct {
	Type   string        `mapstructure:"type"`
	Prefix string        `mapstructure:"prefix"`
	TTL    time.Duration `mapstructure:"ttl"`
	Codec  string        `mapstructure:"codec"` // json (default), msgpack, cbor

	// file, sqlite
	Path  string `mapstructure:"path"`
	Table string `mapstructure:"table"`

	// redis
	Addr      string `mapstructure:"addr"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeepAlive bool   `mapstructure:"keep_alive"`

	// upstash, vercelkv
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// Load reads path, or kvcache.{yaml,toml,json} from the working directory
// and the user config directory when path is empty. A missing default file
// is not an error: the built-in memory driver is used.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("KVCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("kvcache")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "kvcache"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}
	bindDriverEnv(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", v.ConfigFileUsed(), err)
	}
	normalize(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("default", TypeMemory)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("drivers.memory.type", TypeMemory)
}

// bindDriverEnv makes KVCACHE_DRIVERS_<NAME>_<FIELD> visible to Unmarshal
// for every driver named in the file.
func bindDriverEnv(v *viper.Viper) {
	fields := []string{"type", "prefix", "ttl", "codec", "path", "table", "addr", "username", "password", "db", "keep_alive", "url", "token"}
	for name := range v.GetStringMap("drivers") {
		for _, f := range fields {
			_ = v.BindEnv("drivers." + name + "." + f)
		}
	}
}

func normalize(cfg *Config) {
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	for name, d := range cfg.Drivers {
		d.Type = strings.ToLower(strings.TrimSpace(d.Type))
		d.Codec = strings.ToLower(strings.TrimSpace(d.Codec))
		cfg.Drivers[name] = d
	}
}

// Validate checks the settings Build relies on.
func (c *Config) Validate() error {
	if len(c.Drivers) == 0 {
		return errors.New("no drivers configured")
	}
	if _, ok := c.Drivers[c.Default]; !ok {
		return fmt.Errorf("default driver %q is not configured", c.Default)
	}
	var errs []error
	for _, name := range c.Names() {
		d := c.Drivers[name]
		if !knownTypes[d.Type] {
			errs = append(errs, fmt.Errorf("driver %q: unknown type %q", name, d.Type))
			continue
		}
		if !knownCodecs[d.Codec] {
			errs = append(errs, fmt.Errorf("driver %q: unknown codec %q", name, d.Codec))
		}
		if d.TTL < 0 {
			errs = append(errs, fmt.Errorf("driver %q: negative ttl", name))
		}
		switch d.Type {
		case TypeFile, TypeSQLite:
			if d.Path == "" {
				errs = append(errs, fmt.Errorf("driver %q: path is required for %s", name, d.Type))
			}
		case TypeRedis:
			if d.Addr == "" {
				errs = append(errs, fmt.Errorf("driver %q: addr is required for redis", name))
			}
		}
	}
	return errors.Join(errs...)
}

// Names returns the configured driver names, sorted.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Drivers))
	for name := range c.Drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
