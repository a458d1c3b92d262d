// Package respcache is a typed, generation-checked cache for upstream
// responses, sitting below the query cache. It keeps decoded-value bytes in a
// provider.Provider so repeated fetches of the same URL skip the network even
// after the query cache entry went stale.
//
// Writes are compare-and-set on a per-key generation: take SnapshotGen before
// loading, pass it to SetWithGen after. An Invalidate in between bumps the
// generation and the late write is skipped.
package respcache

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/codec"
	"github.com/unkn0wn-root/querycache/genstore"
	"github.com/unkn0wn-root/querycache/internal/wire"
	"github.com/unkn0wn-root/querycache/provider"
)

const (
	defaultTTL          = 30 * time.Second
	defaultGenRetention = 24 * time.Hour
	defaultGenSweep     = time.Hour
)

// Self-heal reasons reported to Hooks.SelfHeal.
const (
	ReasonCorrupt = "corrupt"
	ReasonGen     = "gen_mismatch"
	ReasonExpired = "expired"
	ReasonDecode  = "decode"
)

// SetCostFunc returns the provider cost of a stored frame.
type SetCostFunc func(key string, frame []byte) int64

// Options configure a Cache. Namespace, Provider and Codec are required.
type Options[V any] struct {
	Namespace string // isolates keys of different value types, e.g. "posts"
	Provider  provider.Provider
	Codec     codec.Codec[V]

	Logger         querycache.Logger // if nil, NopLogger is used
	Hooks          Hooks             // if nil, NopHooks is used
	DefaultTTL     time.Duration     // 0 => 30s
	GenStore       genstore.GenStore // nil => in-process LocalGenStore
	GenRetention   time.Duration     // for the default GenStore; 0 => 24h
	Now            func() time.Time  // nil => time.Now
	ComputeSetCost SetCostFunc       // nil => frame length
	Disabled       bool
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	ns       string
	provider provider.Provider
	codec    codec.Codec[V]
	gen      genstore.GenStore
	ownGen   bool
	log      querycache.Logger
	hooks    Hooks
	ttl      time.Duration
	now      func() time.Time
	cost     SetCostFunc
	enabled  bool
}

func New[V any](opts Options[V]) (*Cache[V], error) {
	if opts.Provider == nil {
		return nil, errors.New("respcache: provider is required")
	}
	if opts.Codec == nil {
		return nil, errors.New("respcache: codec is required")
	}
	if opts.Namespace == "" {
		return nil, errors.New("respcache: namespace is required")
	}

	c := &Cache[V]{
		ns:       opts.Namespace,
		provider: opts.Provider,
		codec:    opts.Codec,
		gen:      opts.GenStore,
		now:      opts.Now,
		cost:     opts.ComputeSetCost,
		enabled:  !opts.Disabled,
	}
	if opts.Logger != nil {
		c.log = opts.Logger
	} else {
		c.log = querycache.NopLogger{}
	}
	if opts.Hooks != nil {
		c.hooks = opts.Hooks
	} else {
		c.hooks = NopHooks{}
	}
	c.ttl = opts.DefaultTTL
	if c.ttl <= 0 {
		c.ttl = defaultTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.cost == nil {
		c.cost = func(_ string, frame []byte) int64 { return int64(len(frame)) }
	}
	if c.gen == nil {
		retention := opts.GenRetention
		if retention <= 0 {
			retention = defaultGenRetention
		}
		c.gen = genstore.NewLocal(genstore.LocalOptions{
			CleanupInterval: defaultGenSweep,
			Retention:       retention,
			Now:             c.now,
		})
		c.ownGen = true
	}
	return c, nil
}

func (c *Cache[V]) Enabled() bool { return c.enabled }

// Close closes the GenStore it created and the provider.
func (c *Cache[V]) Close(ctx context.Context) error {
	if c.ownGen {
		_ = c.gen.Close(ctx)
	}
	return c.provider.Close(ctx)
}

// Get returns the stored value. Frames that are corrupt, from an older
// generation, expired or undecodable are deleted and reported as a miss.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if !c.enabled {
		return zero, false, nil
	}
	k := c.storageKey(key)
	raw, ok, err := c.provider.Get(ctx, k)
	if err != nil || !ok {
		return zero, false, err
	}
	f, err := wire.Decode(raw)
	if err != nil {
		c.heal(ctx, key, k, ReasonCorrupt)
		return zero, false, nil
	}
	if f.Gen != c.snapshotGen(ctx, k) {
		c.heal(ctx, key, k, ReasonGen)
		return zero, false, nil
	}
	if f.Expired(c.now()) {
		c.heal(ctx, key, k, ReasonExpired)
		return zero, false, nil
	}
	v, err := c.codec.Decode(f.Payload)
	if err != nil {
		c.heal(ctx, key, k, ReasonDecode)
		return zero, false, nil
	}
	return v, true, nil
}

// SnapshotGen returns the generation a later SetWithGen must observe.
func (c *Cache[V]) SnapshotGen(ctx context.Context, key string) uint64 {
	return c.snapshotGen(ctx, c.storageKey(key))
}

// SetWithGen stores value unless key was invalidated since observedGen was taken.
// ttl <= 0 uses DefaultTTL.
func (c *Cache[V]) SetWithGen(ctx context.Context, key string, value V, observedGen uint64, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	k := c.storageKey(key)
	if c.snapshotGen(ctx, k) != observedGen {
		c.log.Debug("SetWithGen skipped (gen mismatch)", querycache.Fields{"key": key, "obs": observedGen})
		return nil
	}
	payload, err := c.codec.Encode(value)
	if err != nil {
		return err
	}
	frame := wire.Encode(wire.Frame{Gen: observedGen, Expires: c.now().Add(ttl), Payload: payload})
	ok, err := c.provider.Set(ctx, k, frame, c.cost(k, frame), ttl)
	if err != nil {
		return err
	}
	if !ok {
		c.hooks.SetRejected(key)
		c.log.Debug("SetWithGen rejected by provider (pressure)", querycache.Fields{"key": key})
	}
	return nil
}

// Invalidate bumps the generation of key and deletes its frame.
func (c *Cache[V]) Invalidate(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	k := c.storageKey(key)
	g, err := c.gen.Bump(ctx, k)
	if err != nil {
		return err
	}
	if err := c.provider.Del(ctx, k); err != nil {
		return err
	}
	c.log.Debug("invalidated response", querycache.Fields{"key": key, "newGen": g})
	return nil
}

// GetOrLoad returns the stored value for key, or calls load and stores its
// result with the generation observed before the call. Inside a query cache
// fetch that is revalidating (see querycache.Revalidating) the stored value is
// not consulted and GetOrLoad behaves like Refresh.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) (V, error)) (V, error) {
	if querycache.Revalidating(ctx) {
		return c.Refresh(ctx, key, ttl, load)
	}
	if v, ok, err := c.Get(ctx, key); err == nil && ok {
		return v, nil
	} else if err != nil {
		c.log.Warn("response cache read failed", querycache.Fields{"key": key, "err": err})
	}
	return c.Refresh(ctx, key, ttl, load)
}

// Refresh calls load and stores its result, skipping the write if key was
// invalidated while load ran.
func (c *Cache[V]) Refresh(ctx context.Context, key string, ttl time.Duration, load func(context.Context) (V, error)) (V, error) {
	obs := c.SnapshotGen(ctx, key)
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if err := c.SetWithGen(ctx, key, v, obs, ttl); err != nil {
		c.log.Warn("response cache write failed", querycache.Fields{"key": key, "err": err})
	}
	return v, nil
}

func (c *Cache[V]) heal(ctx context.Context, key, storageKey, reason string) {
	_ = c.provider.Del(ctx, storageKey)
	c.hooks.SelfHeal(key, reason)
	c.log.Debug("response entry dropped", querycache.Fields{"key": key, "reason": reason})
}

func (c *Cache[V]) snapshotGen(ctx context.Context, storageKey string) uint64 {
	g, err := c.gen.Snapshot(ctx, storageKey)
	if err != nil {
		// treated as 0: writes observed at another gen skip, reads self-heal
		c.log.Warn("gen snapshot error", querycache.Fields{"key": storageKey, "err": err})
		return 0
	}
	return g
}

func (c *Cache[V]) storageKey(key string) string {
	return "resp:" + c.ns + ":" + key
}
