// Package sloghooks reports driver hook events as slog records.
package sloghooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/kvcache"
)

type Options struct {
	// Driver is attached to every record as driver=<name> when set.
	Driver string

	// Sampling to avoid floods; 0/1 = log all.
	DecodeFailedEvery uint64
	RememberMissEvery uint64
	StoreErrorEvery   uint64

	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	decodeCtr   atomic.Uint64
	missCtr     atomic.Uint64
	storeErrCtr atomic.Uint64
}

var _ kvcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	if l != nil && opts.Driver != "" {
		l = l.With(slog.String("driver", opts.Driver))
	}
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n <= 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) log(level slog.Level, msg, key string, attrs ...slog.Attr) {
	h.l.LogAttrs(context.Background(), level, msg, append([]slog.Attr{slog.String("key", h.redact(key))}, attrs...)...)
}

func (h *Hooks) DecodeFailed(storageKey string, err error) {
	if h.l == nil || !sample(h.opts.DecodeFailedEvery, &h.decodeCtr) {
		return
	}
	h.log(slog.LevelWarn, "kvcache.decode_failed", storageKey, slog.Any("err", err))
}

func (h *Hooks) RememberMiss(storageKey string) {
	if h.l == nil || !sample(h.opts.RememberMissEvery, &h.missCtr) {
		return
	}
	h.log(slog.LevelDebug, "kvcache.remember_miss", storageKey)
}

func (h *Hooks) ExpiredOnWrite(storageKey string) {
	if h.l == nil {
		return
	}
	h.log(slog.LevelInfo, "kvcache.expired_on_write", storageKey)
}

// StoreError logs at error level; op is the driver operation (get, put, ...).
func (h *Hooks) StoreError(op, storageKey string, err error) {
	if h.l == nil || !sample(h.opts.StoreErrorEvery, &h.storeErrCtr) {
		return
	}
	h.log(slog.LevelError, "kvcache.store_error", storageKey, slog.String("op", op), slog.Any("err", err))
}
