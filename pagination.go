package querycache

import (
	"context"
	"fmt"
	"time"
)

// PageQuery addresses one page of an offset-paginated resource. Each
// (Page, PageSize) pair is cached under its own key, so moving between pages
// never evicts or invalidates the others.
type PageQuery struct {
	Page     int `json:"page" cbor:"page"` // 1-based
	PageSize int `json:"pageSize" cbor:"pageSize"`
}

func (q PageQuery) Validate() error {
	if q.Page < 1 {
		return &ValidationError{Field: "page", Reason: fmt.Sprintf("must be >= 1, got %d", q.Page)}
	}
	if q.PageSize < 1 {
		return &ValidationError{Field: "pageSize", Reason: fmt.Sprintf("must be >= 1, got %d", q.PageSize)}
	}
	return nil
}

// Start is the zero-based offset of the first item: (Page-1)*PageSize.
func (q PageQuery) Start() int { return (q.Page - 1) * q.PageSize }

// Limit is the number of items requested.
func (q PageQuery) Limit() int { return q.PageSize }

// PageKey is base followed by q.
func PageKey(base Key, q PageQuery) Key { return base.Append(q) }

// QueryPage fetches one offset page through the cache.
func QueryPage[T any](ctx context.Context, c *Client, base Key, q PageQuery, fetch func(ctx context.Context, start, limit int) ([]T, error), staleAfter time.Duration) Result[[]T] {
	key := PageKey(base, q)
	if err := q.Validate(); err != nil {
		return Result[[]T]{Key: key, Err: err, Status: StatusError}
	}
	return Query(ctx, c, key, func(ctx context.Context) ([]T, error) {
		return fetch(ctx, q.Start(), q.Limit())
	}, staleAfter)
}

// InfiniteData is what an infinite query stores: the pages in fetch order and
// the page parameter each one was fetched with.
type InfiniteData[T any] struct {
	Pages  [][]T
	Params []int
}

// NextPageParam returns the parameter of the page after allPages. The upstream
// does not report totals, so an empty last page is the end of the list.
func NextPageParam[T any](lastPage []T, allPages [][]T) (int, bool) {
	if len(lastPage) == 0 {
		return 0, false
	}
	return len(allPages) + 1, true
}

func (d InfiniteData[T]) next() (int, bool) {
	if len(d.Pages) == 0 {
		return 1, true
	}
	return NextPageParam(d.Pages[len(d.Pages)-1], d.Pages)
}

// with returns a copy of d with page appended; d is left untouched.
func (d InfiniteData[T]) with(page []T, param int) InfiniteData[T] {
	out := InfiniteData[T]{
		Pages:  make([][]T, 0, len(d.Pages)+1),
		Params: make([]int, 0, len(d.Params)+1),
	}
	out.Pages = append(append(out.Pages, d.Pages...), page)
	out.Params = append(append(out.Params, d.Params...), param)
	return out
}

// PageState is the consumer view of an infinite query, rebuilt on each read.
type PageState[T any] struct {
	Pages     [][]T
	Params    []int
	Status    Status
	Err       error
	FetchedAt time.Time

	next    int
	hasNext bool
}

// NextCursor returns the next page parameter; ok is false once the list is exhausted.
func (s PageState[T]) NextCursor() (page int, ok bool) { return s.next, s.hasNext }

func (s PageState[T]) HasNext() bool { return s.hasNext }

// Page returns the i-th fetched page (0-based).
func (s PageState[T]) Page(i int) ([]T, bool) {
	if i < 0 || i >= len(s.Pages) {
		return nil, false
	}
	return s.Pages[i], true
}

// Items flattens all pages in order.
func (s PageState[T]) Items() []T {
	n := 0
	for _, p := range s.Pages {
		n += len(p)
	}
	out := make([]T, 0, n)
	for _, p := range s.Pages {
		out = append(out, p...)
	}
	return out
}

// PageFetchFunc loads the page with the given 1-based parameter.
type PageFetchFunc[T any] func(ctx context.Context, page int) ([]T, error)

// Infinite is a cursor-accumulating query: pages are appended one at a time
// under a single key until an empty page is returned.
type Infinite[T any] struct {
	c          *Client
	key        Key
	fetch      PageFetchFunc[T]
	staleAfter time.Duration
}

func NewInfinite[T any](c *Client, key Key, fetch PageFetchFunc[T], staleAfter time.Duration) *Infinite[T] {
	return &Infinite[T]{c: c, key: cloneKey(key), fetch: fetch, staleAfter: staleAfter}
}

// Load returns the cached pages while fresh. Otherwise it fetches page 1 on first
// use, or refetches every loaded page in order when the data went stale.
func (q *Infinite[T]) Load(ctx context.Context) PageState[T] {
	e := q.c.Ensure(ctx, q.key, func(ctx context.Context) (any, error) {
		cur := q.current()
		params := cur.Params
		if len(params) == 0 {
			params = []int{1}
		}
		var out InfiniteData[T]
		for _, p := range params {
			page, err := q.fetch(ctx, p)
			if err != nil {
				return nil, err
			}
			out = out.with(page, p)
		}
		return out, nil
	}, q.staleAfter)
	return stateOf[T](e)
}

// FetchNext appends the next page. Once the list is exhausted it returns the
// current state without a network call or cache write. It shares the key's
// flight with Load: concurrent FetchNext calls share one page fetch, and a call
// that lands on a Load in progress waits for it and then appends.
func (q *Infinite[T]) FetchNext(ctx context.Context) PageState[T] {
	st := q.State()
	if len(st.Pages) == 0 {
		return q.Load(ctx)
	}
	for st.hasNext {
		before := len(st.Params)
		e, ran := q.c.extend(ctx, q.key, func(cur Entry) (FetchFunc, bool) {
			d, _ := cur.Data.(InfiniteData[T])
			next, ok := d.next()
			if !ok {
				return nil, false
			}
			return func(ctx context.Context) (any, error) {
				page, err := q.fetch(ctx, next)
				if err != nil {
					return nil, err
				}
				return d.with(page, next), nil
			}, true
		}, q.staleAfter)
		st = stateOf[T](e)
		// joined flight was a reload that appended nothing: append on top of it
		if ran || st.Err != nil || len(st.Params) != before {
			return st
		}
	}
	return st
}

// State rebuilds the page view from the cache without fetching.
func (q *Infinite[T]) State() PageState[T] {
	e, ok := q.c.Read(q.key)
	if !ok {
		return PageState[T]{next: 1, hasNext: true}
	}
	return stateOf[T](e)
}

func (q *Infinite[T]) current() InfiniteData[T] {
	e, _ := q.c.Read(q.key)
	d, _ := e.Data.(InfiniteData[T])
	return d
}

func stateOf[T any](e Entry) PageState[T] {
	r := ResultOf[InfiniteData[T]](e)
	st := PageState[T]{
		Pages:     r.Data.Pages,
		Params:    r.Data.Params,
		Status:    r.Status,
		Err:       r.Err,
		FetchedAt: r.FetchedAt,
	}
	st.next, st.hasNext = r.Data.next()
	return st
}
