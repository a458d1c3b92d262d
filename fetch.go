package querycache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Ensure returns the entry for key, fetching only when needed:
//
//  1. a successful, non-invalidated entry younger than staleAfter is returned as is;
//  2. a fetch already in flight for key is joined, never duplicated;
//  3. otherwise fetch runs, the entry goes to loading and is settled with the
//     result (data or error).
//
// staleAfter <= 0 uses Options.DefaultStaleTime. Ensure never panics or returns
// an error separately: failures are carried by the returned Entry (Status/Err).
// If ctx ends first, Ensure returns a copy carrying ctx.Err(); the fetch keeps
// running and still settles the cache.
func (c *Client) Ensure(ctx context.Context, key Key, fetch FetchFunc, staleAfter time.Duration) Entry {
	staleAfter = c.staleAfter(staleAfter)
	id, parts, err := encodeKey(key)
	if err != nil {
		return failedEntry(key, err, c.now())
	}
	if e, ok := c.store.fresh(id, staleAfter); ok {
		return e
	}
	if c.closed.Load() {
		return failedEntry(key, ErrClosed, c.now())
	}
	return c.flight(ctx, id, key, func(fctx context.Context) Entry {
		// a flight that resolved right before this one started may have filled the entry
		if e, ok := c.store.fresh(id, staleAfter); ok {
			return e
		}
		return c.load(fctx, id, key, parts, fetch, staleAfter, revalidateIfHeld)
	})
}

// Refetch is Ensure without the freshness check: it fetches unless a fetch for
// key is already in flight, in which case it joins that one.
func (c *Client) Refetch(ctx context.Context, key Key, fetch FetchFunc, staleAfter time.Duration) Entry {
	staleAfter = c.staleAfter(staleAfter)
	id, parts, err := encodeKey(key)
	if err != nil {
		return failedEntry(key, err, c.now())
	}
	if c.closed.Load() {
		return failedEntry(key, ErrClosed, c.now())
	}
	return c.flight(ctx, id, key, func(fctx context.Context) Entry {
		return c.load(fctx, id, key, parts, fetch, staleAfter, revalidateAlways)
	})
}

// extend runs under the same flight as Ensure and Refetch for key, so it never
// overlaps a plain fetch of that key. next sees the current entry and returns the
// fetch to run; ok=false leaves the entry untouched and returns it. ran reports
// whether this call's next was used rather than a joined flight's.
func (c *Client) extend(ctx context.Context, key Key, next func(cur Entry) (fetch FetchFunc, ok bool), staleAfter time.Duration) (e Entry, ran bool) {
	staleAfter = c.staleAfter(staleAfter)
	id, parts, err := encodeKey(key)
	if err != nil {
		return failedEntry(key, err, c.now()), false
	}
	if c.closed.Load() {
		return failedEntry(key, ErrClosed, c.now()), false
	}
	var mine atomic.Bool
	e = c.flight(ctx, id, key, func(fctx context.Context) Entry {
		mine.Store(true)
		cur, _ := c.store.Read(key)
		fetch, ok := next(cur)
		if !ok {
			return cur
		}
		return c.load(fctx, id, key, parts, fetch, staleAfter, revalidateIfInvalidated)
	})
	return e, mine.Load()
}

func (c *Client) flight(ctx context.Context, id string, key Key, run func(context.Context) Entry) Entry {
	fctx := context.WithoutCancel(ctx)
	leader := false
	ch := c.flights.DoChan(id, func() (any, error) {
		leader = true
		return run(fctx), nil
	})

	select {
	case res := <-ch:
		if !leader {
			c.hooks.FetchShared(key.String())
		}
		return res.Val.(Entry)
	case <-ctx.Done():
		e, ok := c.store.Read(key)
		if !ok {
			e = Entry{Key: cloneKey(key)}
		}
		e.Err, e.Status = ctx.Err(), StatusError
		return e
	}
}

// revalidation decides when a fetch is marked with Revalidating.
type revalidation uint8

const (
	revalidateIfHeld        revalidation = iota // the entry held a result or was invalidated
	revalidateIfInvalidated                     // the entry was invalidated
	revalidateAlways
)

type revalidatingKey struct{}

// Revalidating reports whether ctx belongs to a fetch that replaces something
// the cache already knew: a stale, failed or invalidated entry, or a Refetch.
// A fetch backed by its own cache must go to the source then, or the old
// response is written back as fresh.
func Revalidating(ctx context.Context) bool {
	v, _ := ctx.Value(revalidatingKey{}).(bool)
	return v
}

func (c *Client) load(ctx context.Context, id string, key Key, parts []string, fetch FetchFunc, staleAfter time.Duration, mode revalidation) Entry {
	ks := key.String()
	t := c.store.beginFetch(id, key, parts)
	c.hooks.FetchStarted(ks)
	c.log.Debug("fetch started", Fields{"key": ks})

	switch {
	case mode == revalidateAlways,
		mode == revalidateIfHeld && (t.held || t.invalidated),
		mode == revalidateIfInvalidated && t.invalidated:
		ctx = context.WithValue(ctx, revalidatingKey{}, true)
	}
	data, err := safeFetch(ctx, fetch)
	e, discarded := c.store.settle(id, key, t, data, err, staleAfter)
	switch {
	case discarded != "":
		c.hooks.FetchDiscarded(ks, discarded)
		c.log.Debug("fetch result discarded", Fields{"key": ks, "reason": discarded})
	case err != nil:
		c.hooks.FetchFailed(ks, err)
		c.log.Warn("fetch failed", Fields{"key": ks, "err": err})
	}
	return e
}

func safeFetch(ctx context.Context, fetch FetchFunc) (data any, err error) {
	if fetch == nil {
		return nil, &ValidationError{Field: "fetch", Reason: "nil func"}
	}
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("querycache: fetch panicked: %v", r)
		}
	}()
	return fetch(ctx)
}

func (c *Client) staleAfter(d time.Duration) time.Duration {
	if d <= 0 {
		return c.staleTime
	}
	return d
}

func failedEntry(key Key, err error, now time.Time) Entry {
	return Entry{Key: cloneKey(key), Err: err, Status: StatusError, UpdatedAt: now}
}
