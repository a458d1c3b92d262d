// Package jsonplaceholder is a small REST client for the jsonplaceholder demo
// API (/posts and /todos), shaped for use as querycache fetch functions.
package jsonplaceholder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/codec"
	"github.com/unkn0wn-root/querycache/respcache"
)

const (
	DefaultBaseURL = "https://jsonplaceholder.typicode.com"
	defaultTimeout = 10 * time.Second
	defaultMaxBody = 4 << 20
)

type Options struct {
	BaseURL    string       // "" => DefaultBaseURL
	HTTPClient *http.Client // nil => a client with Timeout
	Timeout    time.Duration
	Token      string // sent as a bearer token when set
	Logger     querycache.Logger
	MaxBody    int // response bodies above this fail with DecodeError; 0 => 4 MiB
	Retry      querycache.RetryPolicy

	// Optional second-level caches. AddTodo invalidates TodoCache.
	PostCache *respcache.Cache[[]Post]
	TodoCache *respcache.Cache[[]*Todo]
	CacheTTL  time.Duration // 0 => the cache's DefaultTTL
}

type Client struct {
	base      *url.URL
	http      *http.Client
	token     string
	log       querycache.Logger
	maxBody   int
	retry     querycache.RetryPolicy
	postCache *respcache.Cache[[]Post]
	todoCache *respcache.Cache[[]*Todo]
	cacheTTL  time.Duration
}

func New(opts Options) (*Client, error) {
	raw := opts.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("jsonplaceholder: base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, &querycache.ValidationError{Field: "baseURL", Reason: "scheme must be http or https"}
	}
	c := &Client{
		base:      base,
		http:      opts.HTTPClient,
		token:     opts.Token,
		log:       opts.Logger,
		maxBody:   opts.MaxBody,
		retry:     opts.Retry,
		postCache: opts.PostCache,
		todoCache: opts.TodoCache,
		cacheTTL:  opts.CacheTTL,
	}
	if c.http == nil {
		t := opts.Timeout
		if t <= 0 {
			t = defaultTimeout
		}
		c.http = &http.Client{Timeout: t}
	}
	if c.log == nil {
		c.log = querycache.NopLogger{}
	}
	if c.maxBody <= 0 {
		c.maxBody = defaultMaxBody
	}
	return c, nil
}

// Posts lists posts matching f.
func (c *Client) Posts(ctx context.Context, f PostFilter) ([]Post, error) {
	q := url.Values{}
	if f.UserID > 0 {
		q.Set("userId", strconv.Itoa(f.UserID))
	}
	if f.Start > 0 {
		q.Set("_start", strconv.Itoa(f.Start))
	}
	if f.Limit > 0 {
		q.Set("_limit", strconv.Itoa(f.Limit))
	}
	u := c.endpoint("/posts", q)
	load := func(ctx context.Context) ([]Post, error) {
		return getJSON[[]Post](ctx, c, u)
	}
	if c.postCache == nil {
		return load(ctx)
	}
	return c.postCache.GetOrLoad(ctx, u, c.cacheTTL, load)
}

// Todos lists all todos.
func (c *Client) Todos(ctx context.Context) ([]*Todo, error) {
	u := c.endpoint("/todos", nil)
	load := func(ctx context.Context) ([]*Todo, error) {
		return getJSON[[]*Todo](ctx, c, u)
	}
	if c.todoCache == nil {
		return load(ctx)
	}
	return c.todoCache.GetOrLoad(ctx, u, c.cacheTTL, load)
}

// AddTodo creates t and returns the server copy. t itself is not modified.
func (c *Client) AddTodo(ctx context.Context, t *Todo) (*Todo, error) {
	if t == nil || strings.TrimSpace(t.Title) == "" {
		return nil, &querycache.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	body, err := codec.JSON[*Todo]{}.Encode(t)
	if err != nil {
		return nil, err
	}
	u := c.endpoint("/todos", nil)
	saved, err := c.do(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, err
	}
	out, err := decode[*Todo](c, u, saved)
	if err != nil {
		return nil, err
	}
	if c.todoCache != nil {
		if err := c.todoCache.Invalidate(ctx, u); err != nil {
			c.log.Warn("todo cache invalidate failed", querycache.Fields{"err": err})
		}
	}
	return out, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = q.Encode()
	return u.String()
}

func getJSON[T any](ctx context.Context, c *Client, u string) (T, error) {
	get := func(ctx context.Context) (T, error) {
		b, err := c.do(ctx, http.MethodGet, u, nil)
		if err != nil {
			var zero T
			return zero, err
		}
		return decode[T](c, u, b)
	}
	return querycache.Retry(get, c.retry)(ctx)
}

func decode[T any](c *Client, u string, b []byte) (T, error) {
	v, err := codec.LimitCodec[T]{Inner: codec.JSON[T]{}, MaxDecode: c.maxBody}.Decode(b)
	if err != nil {
		return v, &querycache.DecodeError{URL: u, Err: err}
	}
	return v, nil
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, &querycache.NetworkError{Op: method, URL: u, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &querycache.NetworkError{Op: method, URL: u, Err: err}
	}
	defer resp.Body.Close()

	// one byte over the limit is enough for the codec to reject it
	b, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.maxBody)+1))
	if err != nil {
		return nil, &querycache.NetworkError{Op: method, URL: u, StatusCode: resp.StatusCode, Err: err}
	}
	c.log.Debug("http request", querycache.Fields{
		"method": method, "url": u, "status": resp.StatusCode, "bytes": len(b), "took": time.Since(start).String(),
	})
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &querycache.NetworkError{Op: method, URL: u, StatusCode: resp.StatusCode}
	}
	return b, nil
}
