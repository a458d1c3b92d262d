// Package asynchook moves hook calls off the fetch path onto worker goroutines.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{FetchFailedEvery: 10})
//	prom, err := promhooks.New(reg)
//	...
//	hooks := asynchook.New(querycache.MultiHooks{raw, prom}, 1, 1000)
//	defer hooks.Close()
//
//	client := querycache.New(querycache.Options{Hooks: hooks})
//
// Events are dropped, never blocked on, when the queue is full. Dropped counts
// the losses.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/respcache"
)

// Inner is what Hooks forwards to. respcache events are forwarded only when
// the inner value also implements respcache.Hooks.
type Inner = querycache.Hooks

type Hooks struct {
	inner   Inner
	resp    respcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var (
	_ querycache.Hooks = (*Hooks)(nil)
	_ respcache.Hooks  = (*Hooks)(nil)
)

func New(inner Inner, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	if r, ok := inner.(respcache.Hooks); ok {
		h.resp = r
	} else {
		h.resp = respcache.NopHooks{}
	}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped returns how many events were lost to a full queue or after Close.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// send on a channel closed between the check and the send
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) FetchStarted(k string) { h.try(func() { h.inner.FetchStarted(k) }) }
func (h *Hooks) FetchShared(k string)  { h.try(func() { h.inner.FetchShared(k) }) }
func (h *Hooks) FetchFailed(k string, err error) {
	h.try(func() { h.inner.FetchFailed(k, err) })
}
func (h *Hooks) FetchDiscarded(k, reason string) {
	h.try(func() { h.inner.FetchDiscarded(k, reason) })
}
func (h *Hooks) Invalidated(prefix string, n int) {
	h.try(func() { h.inner.Invalidated(prefix, n) })
}
func (h *Hooks) MutationRolledBack(id, k string, err error) {
	h.try(func() { h.inner.MutationRolledBack(id, k, err) })
}
func (h *Hooks) EntryCollected(k string) { h.try(func() { h.inner.EntryCollected(k) }) }

func (h *Hooks) SelfHeal(k, reason string) { h.try(func() { h.resp.SelfHeal(k, reason) }) }
func (h *Hooks) SetRejected(k string)      { h.try(func() { h.resp.SetRejected(k) }) }
