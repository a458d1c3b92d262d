package jsonplaceholder

import (
	"context"
	"time"

	"github.com/unkn0wn-root/querycache"
)

// StaleTime is how long post and todo queries stay fresh.
const StaleTime = 10 * time.Second

// PostsKey is ["users", userID, "posts"] for a single author, ["posts"] otherwise.
// Invalidating ["posts"] therefore leaves per-user lists alone.
func PostsKey(userID int) querycache.Key {
	if userID > 0 {
		return querycache.Key{"users", userID, "posts"}
	}
	return querycache.Key{"posts"}
}

// TodosKey is the key of the todo list.
func TodosKey() querycache.Key { return querycache.Key{"todos"} }

// PostsFunc returns the fetch for PostsKey(userID).
func (c *Client) PostsFunc(userID int) func(context.Context) ([]Post, error) {
	return func(ctx context.Context) ([]Post, error) {
		return c.Posts(ctx, PostFilter{UserID: userID})
	}
}

// PostsRangeFunc returns an offset fetch for querycache.QueryPage.
func (c *Client) PostsRangeFunc() func(ctx context.Context, start, limit int) ([]Post, error) {
	return func(ctx context.Context, start, limit int) ([]Post, error) {
		return c.Posts(ctx, PostFilter{Start: start, Limit: limit})
	}
}

// PostPagesFunc returns the page fetch for an infinite post list: page p holds
// posts [(p-1)*pageSize, p*pageSize).
func (c *Client) PostPagesFunc(pageSize int) querycache.PageFetchFunc[Post] {
	return func(ctx context.Context, page int) ([]Post, error) {
		q := querycache.PageQuery{Page: page, PageSize: pageSize}
		if err := q.Validate(); err != nil {
			return nil, err
		}
		return c.Posts(ctx, PostFilter{Start: q.Start(), Limit: q.Limit()})
	}
}

// InfinitePostsKey is ["posts", {pageSize}].
func InfinitePostsKey(pageSize int) querycache.Key {
	return querycache.Key{"posts", map[string]int{"pageSize": pageSize}}
}

// UserPosts runs the author-filtered post query.
func (c *Client) UserPosts(ctx context.Context, qc *querycache.Client, userID int) querycache.Result[[]Post] {
	return querycache.Query(ctx, qc, PostsKey(userID), c.PostsFunc(userID), StaleTime)
}

// PostsPage runs one page of the paginated post query.
func (c *Client) PostsPage(ctx context.Context, qc *querycache.Client, q querycache.PageQuery) querycache.Result[[]Post] {
	return querycache.QueryPage(ctx, qc, PostsKey(0), q, c.PostsRangeFunc(), StaleTime)
}

// InfinitePosts returns the load-more post list.
func (c *Client) InfinitePosts(qc *querycache.Client, pageSize int) *querycache.Infinite[Post] {
	return querycache.NewInfinite(qc, InfinitePostsKey(pageSize), c.PostPagesFunc(pageSize), StaleTime)
}

// TodoList runs the todo list query.
func (c *Client) TodoList(ctx context.Context, qc *querycache.Client) querycache.Result[[]*Todo] {
	return querycache.Query(ctx, qc, TodosKey(), c.Todos, StaleTime)
}

// AddTodoMutation creates a todo and puts it at the head of the cached list.
// With optimistic set the input is shown at once and replaced by the server copy.
func (c *Client) AddTodoMutation(optimistic bool) querycache.Mutation[*Todo, *Todo] {
	if optimistic {
		return querycache.OptimisticPrependMutation(TodosKey(), c.AddTodo)
	}
	return querycache.PrependMutation(TodosKey(), c.AddTodo)
}
