package querycache

import (
	"context"
	"sync"
	"testing"
	"time"
)

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
	mu         sync.Mutex
	started    []string
	shared     int
	failed     []string
	discarded  []string
	rolledBack []string
	collected  []string
	invalid    map[string]int
}

func (h *recHooks) FetchStarted(k string) {
	h.mu.Lock()
	h.started = append(h.started, k)
	h.mu.Unlock()
}

func (h *recHooks) FetchShared(string) {
	h.mu.Lock()
	h.shared++
	h.mu.Unlock()
}

func (h *recHooks) FetchFailed(k string, _ error) {
	h.mu.Lock()
	h.failed = append(h.failed, k)
	h.mu.Unlock()
}

func (h *recHooks) FetchDiscarded(k, reason string) {
	h.mu.Lock()
	h.discarded = append(h.discarded, k+":"+reason)
	h.mu.Unlock()
}

func (h *recHooks) Invalidated(prefix string, n int) {
	h.mu.Lock()
	if h.invalid == nil {
		h.invalid = map[string]int{}
	}
	h.invalid[prefix] += n
	h.mu.Unlock()
}

func (h *recHooks) MutationRolledBack(_, k string, _ error) {
	h.mu.Lock()
	h.rolledBack = append(h.rolledBack, k)
	h.mu.Unlock()
}

func (h *recHooks) EntryCollected(k string) {
	h.mu.Lock()
	h.collected = append(h.collected, k)
	h.mu.Unlock()
}

func newTestClient(t *testing.T, clk *fakeClock, hooks Hooks) *Client {
	t.Helper()
	opts := Options{SweepInterval: -1, Hooks: hooks}
	if clk != nil {
		opts.Now = clk.Now
	}
	c := New(opts)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

// countingFetch returns v and counts calls.
type countingFetch struct {
	mu    sync.Mutex
	calls int
	v     any
	err   error
}

func (f *countingFetch) Fetch(context.Context) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.v, f.err
}

func (f *countingFetch) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
