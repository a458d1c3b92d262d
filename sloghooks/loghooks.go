// Package sloghooks logs querycache and respcache events through log/slog.
package sloghooks

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/internal/util"
	"github.com/unkn0wn-root/querycache/respcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	FetchFailedEvery uint64
	SelfHealEvery    uint64
	// Log every fetch start and shared fetch at debug level.
	Verbose bool
	// Optional key redactor. Defaults to identity; use Fingerprint for keys
	// that carry user data.
	Redact func(string) string
}

// Fingerprint replaces a key by a short SHA-256 prefix.
func Fingerprint(k string) string { return util.Fingerprint(k) }

type Hooks struct {
	l    *slog.Logger
	opts Options

	failedCtr atomic.Uint64
	healCtr   atomic.Uint64
}

var (
	_ querycache.Hooks = (*Hooks)(nil)
	_ respcache.Hooks  = (*Hooks)(nil)
)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return k
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) FetchStarted(key string) {
	if h.l == nil || !h.opts.Verbose {
		return
	}
	h.l.Debug("querycache.fetch_started", "key", h.redact(key))
}

func (h *Hooks) FetchShared(key string) {
	if h.l == nil || !h.opts.Verbose {
		return
	}
	h.l.Debug("querycache.fetch_shared", "key", h.redact(key))
}

func (h *Hooks) FetchFailed(key string, err error) {
	if h.l == nil || !sample(h.opts.FetchFailedEvery, &h.failedCtr) {
		return
	}
	h.l.Warn("querycache.fetch_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) FetchDiscarded(key, reason string) {
	if h.l == nil {
		return
	}
	h.l.Info("querycache.fetch_discarded",
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) Invalidated(prefix string, count int) {
	if h.l == nil {
		return
	}
	h.l.Info("querycache.invalidated",
		"prefix", h.redact(prefix),
		"count", count)
}

func (h *Hooks) MutationRolledBack(id, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("querycache.mutation_rolled_back",
		"mutation", id,
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) EntryCollected(key string) {
	if h.l == nil || !h.opts.Verbose {
		return
	}
	h.l.Debug("querycache.entry_collected", "key", h.redact(key))
}

func (h *Hooks) SelfHeal(key, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.healCtr) {
		return
	}
	h.l.Debug("respcache.self_heal",
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) SetRejected(key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("respcache.set_rejected", "key", h.redact(key))
}
