package querycache

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Mutation describes a write against the upstream and how it changes the
// cached entry at Key.
//
// With Optimistic nil the mutation is plain: Fn runs first and Reconcile is
// applied only on success. With Optimistic set, its result is written before Fn
// runs; on success Reconcile turns the provisional data into the confirmed one,
// on failure the entry is restored to the snapshot taken just before.
type Mutation[In, Out any] struct {
	Key        Key
	Fn         func(ctx context.Context, in In) (Out, error)
	Optimistic func(current any, in In) any
	Reconcile  func(current any, in In, out Out) any
}

// MutationContext holds what a single optimistic mutation needs to roll back.
// It belongs to that mutation only and is returned with its result.
type MutationContext struct {
	ID       uuid.UUID
	Key      Key
	Snapshot Entry // entry before the optimistic write
	Existed  bool  // false when the key was not cached before
}

// MutationResult is what Mutate returns instead of invoking callbacks; branch on
// Err / RolledBack.
type MutationResult[Out any] struct {
	Data       Out
	Err        error
	Status     Status // StatusSuccess or StatusError
	RolledBack bool
	Context    *MutationContext // set for optimistic mutations
}

// Mutate runs m with in. It never panics past its result: a panicking Fn is
// reported as an error (and rolled back when optimistic).
//
// Two optimistic mutations on the same key in flight at once settle in
// completion order: a later success can overwrite an earlier rollback.
func Mutate[In, Out any](ctx context.Context, c *Client, m Mutation[In, Out], in In) MutationResult[Out] {
	var res MutationResult[Out]
	id, parts, err := encodeKey(m.Key)
	if err != nil {
		res.Err, res.Status = err, StatusError
		return res
	}
	if m.Fn == nil {
		res.Err, res.Status = &ValidationError{Field: "mutation", Reason: "nil Fn"}, StatusError
		return res
	}
	ks := m.Key.String()

	var mc *MutationContext
	if m.Optimistic != nil {
		snap, existed := c.store.swap(id, m.Key, parts, func(e Entry) Entry {
			e.Data = m.Optimistic(e.Data, in)
			e.Err = nil
			e.Status = StatusSuccess
			e.FetchedAt = c.now()
			e.Invalidated = false
			return e
		})
		mc = &MutationContext{ID: uuid.New(), Key: cloneKey(m.Key), Snapshot: snap, Existed: existed}
		res.Context = mc
		c.log.Debug("optimistic update applied", Fields{"key": ks, "mutation": mc.ID.String()})
	}

	out, err := safeMutate(ctx, m.Fn, in)
	if err != nil {
		res.Err, res.Status = err, StatusError
		if mc != nil {
			c.store.restore(id, mc.Snapshot, mc.Existed)
			res.RolledBack = true
			c.hooks.MutationRolledBack(mc.ID.String(), ks, err)
			c.log.Warn("mutation failed; rolled back", Fields{"key": ks, "mutation": mc.ID.String(), "err": err})
		} else {
			c.log.Warn("mutation failed", Fields{"key": ks, "err": err})
		}
		return res
	}

	res.Data, res.Status = out, StatusSuccess
	if m.Reconcile != nil {
		if _, err := c.store.SetData(m.Key, func(cur any) any { return m.Reconcile(cur, in, out) }); err != nil {
			res.Err, res.Status = err, StatusError
		}
	}
	return res
}

func safeMutate[In, Out any](ctx context.Context, fn func(context.Context, In) (Out, error), in In) (out Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("querycache: mutation panicked: %v", r)
		}
	}()
	return fn(ctx, in)
}

// Prepend returns a new list with item first; list is not modified.
func Prepend[T any](list []*T, item *T) []*T {
	out := make([]*T, 0, len(list)+1)
	out = append(out, item)
	return append(out, list...)
}

// ReplaceRef returns a copy of list with every element that is the same pointer
// as old replaced by repl, keeping positions. Provisional items have no server id
// yet, so identity is the only reliable match.
func ReplaceRef[T any](list []*T, old, repl *T) []*T {
	out := make([]*T, len(list))
	for i, v := range list {
		if v == old {
			v = repl
		}
		out[i] = v
	}
	return out
}

// PrependMutation is a plain mutation that puts the server-returned item at the
// head of the list cached under key.
func PrependMutation[T any](key Key, fn func(context.Context, *T) (*T, error)) Mutation[*T, *T] {
	return Mutation[*T, *T]{
		Key: key,
		Fn:  fn,
		Reconcile: func(cur any, _ *T, saved *T) any {
			list, _ := cur.([]*T)
			return Prepend(list, saved)
		},
	}
}

// OptimisticPrependMutation shows the input item at the head of the list at once
// and swaps it for the server-returned item on success.
func OptimisticPrependMutation[T any](key Key, fn func(context.Context, *T) (*T, error)) Mutation[*T, *T] {
	return Mutation[*T, *T]{
		Key: key,
		Fn:  fn,
		Optimistic: func(cur any, item *T) any {
			list, _ := cur.([]*T)
			return Prepend(list, item)
		},
		Reconcile: func(cur any, item *T, saved *T) any {
			list, _ := cur.([]*T)
			return ReplaceRef(list, item, saved)
		},
	}
}
