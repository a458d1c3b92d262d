package querycache

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultStaleTime = 10 * time.Second

// FetchFunc loads the data for one key. It runs at most once per key at a time.
type FetchFunc func(ctx context.Context) (any, error)

// Options tune a Client. The zero value is usable.
type Options struct {
	Logger           Logger           // if nil, NopLogger is used
	Hooks            Hooks            // if nil, NopHooks is used
	Now              func() time.Time // clock; nil => time.Now
	DefaultStaleTime time.Duration    // used when Ensure gets staleAfter <= 0; 0 => 10s
	GCRetention      time.Duration    // 0 => 5m
	SweepInterval    time.Duration    // 0 => 1m; negative disables the sweeper
}

// Client is the consumer-facing API: one Store plus the fetch coordinator and
// mutation entry points. Construct one per application and pass it by reference.
type Client struct {
	store     *Store
	flights   singleflight.Group
	log       Logger
	hooks     Hooks
	now       func() time.Time
	staleTime time.Duration
	closed    atomic.Bool
}

func New(opts Options) *Client {
	c := &Client{
		log:       coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:     coalesce[Hooks](opts.Hooks, NopHooks{}),
		now:       opts.Now,
		staleTime: coalesce[time.Duration](opts.DefaultStaleTime, defaultStaleTime),
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.store = NewStore(StoreOptions{
		Logger:        c.log,
		Hooks:         c.hooks,
		Now:           c.now,
		GCRetention:   opts.GCRetention,
		SweepInterval: opts.SweepInterval,
	})
	return c
}

// Store exposes the underlying Store.
func (c *Client) Store() *Store { return c.store }

// Close stops background work. Later Ensure calls resolve to ErrClosed entries;
// fetches already in flight still settle.
func (c *Client) Close(ctx context.Context) error {
	c.closed.Store(true)
	return c.store.Close(ctx)
}

// Read returns the cached entry for key without fetching.
func (c *Client) Read(key Key) (Entry, bool) { return c.store.Read(key) }

// SetData is a manual cache write; see Store.SetData.
func (c *Client) SetData(key Key, fn func(prev any) any) (Entry, error) {
	return c.store.SetData(key, fn)
}

// Invalidate marks every entry under prefix stale; see Store.Invalidate.
func (c *Client) Invalidate(prefix Key) int { return c.store.Invalidate(prefix) }

// Subscribe registers fn for changes to key; see Store.Subscribe.
func (c *Client) Subscribe(key Key, fn func(Entry)) (func(), error) {
	return c.store.Subscribe(key, fn)
}
