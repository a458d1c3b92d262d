// Package querycache implements a client-side query cache: an in-memory store of
// fetched resources addressed by structured keys, with request deduplication,
// staleness tracking, page cursors and optimistic mutations with rollback.
//
// Components:
//   - Store: owns every Entry. All mutation flows through Write with a pure updater;
//     subscribers are notified after the entry is fully updated.
//   - Client: the coordinator. Ensure serves fresh entries from the Store and
//     collapses concurrent fetches for one key into a single call.
//   - PageQuery / Infinite: offset and cursor-accumulating pagination.
//   - Mutate: plain or optimistic writes; failed optimistic writes restore the
//     snapshot taken before the local update.
//
// Keys:
//
//	Key{"posts"}                        - all posts
//	Key{"users", 1, "posts"}            - posts filtered by user
//	Key{"posts", PageQuery{1, 10}}      - one offset page
//
// Keys sharing a prefix form a family: Invalidate(Key{"posts"}) marks every
// Key{"posts", ...} stale and leaves Key{"todos"} alone.
//
// Typical use:
//
//	c := querycache.New(querycache.Options{})
//	defer c.Close(ctx)
//	res := querycache.Query(ctx, c, querycache.Key{"todos"}, api.Todos, 10*time.Second)
//	if res.Err != nil { ... }
package querycache
