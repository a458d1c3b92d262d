package querycache

import (
	"context"
	"fmt"
	"time"
)

// Result is the typed view of an Entry.
type Result[T any] struct {
	Key         Key
	Data        T
	Err         error
	Status      Status
	FetchedAt   time.Time
	Invalidated bool
}

// OK reports a successful result.
func (r Result[T]) OK() bool { return r.Status == StatusSuccess && r.Err == nil }

// ResultOf converts e to a typed Result. Data of another type yields ErrTypeMismatch.
func ResultOf[T any](e Entry) Result[T] {
	r := Result[T]{
		Key:         e.Key,
		Err:         e.Err,
		Status:      e.Status,
		FetchedAt:   e.FetchedAt,
		Invalidated: e.Invalidated,
	}
	if e.Data == nil {
		return r
	}
	v, ok := e.Data.(T)
	if !ok {
		r.Err = fmt.Errorf("%w: key %s holds %T", ErrTypeMismatch, e.Key, e.Data)
		r.Status = StatusError
		return r
	}
	r.Data = v
	return r
}

// Query is the typed form of Client.Ensure.
func Query[T any](ctx context.Context, c *Client, key Key, fetch func(context.Context) (T, error), staleAfter time.Duration) Result[T] {
	return ResultOf[T](c.Ensure(ctx, key, erase(fetch), staleAfter))
}

// Get returns the cached data for key without fetching.
func Get[T any](c *Client, key Key) (Result[T], bool) {
	e, ok := c.Read(key)
	if !ok {
		return Result[T]{Key: key}, false
	}
	return ResultOf[T](e), true
}

func erase[T any](fetch func(context.Context) (T, error)) FetchFunc {
	if fetch == nil {
		return nil
	}
	return func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}
