package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/jsonplaceholder"
)

func showPosts(ctx context.Context, log querycache.Logger, api *jsonplaceholder.Client, qc *querycache.Client) error {
	key := jsonplaceholder.PostsKey(userFlag)
	for i := 0; i < 2; i++ {
		start := time.Now()
		r := api.UserPosts(ctx, qc, userFlag)
		if r.Err != nil {
			return r.Err
		}
		log.Info("posts", querycache.Fields{"key": key.String(), "count": len(r.Data), "took": time.Since(start).String()})
	}
	return nil
}

func showPaged(ctx context.Context, log querycache.Logger, api *jsonplaceholder.Client, qc *querycache.Client) error {
	pages := make([]int, 0, pagesFlag+1)
	for p := pageFlag; p < pageFlag+pagesFlag; p++ {
		pages = append(pages, p)
	}
	// going back to the first page is served from cache
	pages = append(pages, pageFlag)
	for _, p := range pages {
		q := querycache.PageQuery{Page: p, PageSize: sizeFlag}
		if err := q.Validate(); err != nil {
			return err
		}
		r := api.PostsPage(ctx, qc, q)
		if r.Err != nil {
			return r.Err
		}
		first := 0
		if len(r.Data) > 0 {
			first = r.Data[0].ID
		}
		log.Info("page", querycache.Fields{"page": p, "count": len(r.Data), "firstID": first, "fetchedAt": r.FetchedAt})
	}
	return nil
}

func showInfinite(ctx context.Context, log querycache.Logger, api *jsonplaceholder.Client, qc *querycache.Client) error {
	inf := api.InfinitePosts(qc, sizeFlag)
	st := inf.Load(ctx)
	for len(st.Pages) < pagesFlag && st.HasNext() && st.Err == nil {
		st = inf.FetchNext(ctx)
	}
	if st.Err != nil {
		return st.Err
	}
	next, more := st.NextCursor()
	log.Info("infinite", querycache.Fields{"pages": len(st.Pages), "items": len(st.Items()), "next": next, "hasNext": more})
	return nil
}

func addTodo(ctx context.Context, log querycache.Logger, api *jsonplaceholder.Client, qc *querycache.Client) error {
	if r := api.TodoList(ctx, qc); r.Err != nil {
		return r.Err
	}
	unsub, err := qc.Subscribe(jsonplaceholder.TodosKey(), func(e querycache.Entry) {
		list, _ := e.Data.([]*jsonplaceholder.Todo)
		head := ""
		if len(list) > 0 {
			head = list[0].Title
		}
		log.Info("todos changed", querycache.Fields{"status": e.Status.String(), "count": len(list), "head": head})
	})
	if err != nil {
		return err
	}
	defer unsub()

	res := querycache.Mutate(ctx, qc, api.AddTodoMutation(optimisticFlag), &jsonplaceholder.Todo{UserID: 1, Title: titleFlag})
	if res.Err != nil {
		log.Error("add todo failed", querycache.Fields{"err": res.Err, "rolledBack": res.RolledBack})
		return res.Err
	}
	f := querycache.Fields{"id": res.Data.ID, "title": res.Data.Title}
	if res.Context != nil {
		f["mutation"] = res.Context.ID.String()
	}
	log.Info("todo added", f)
	return nil
}

// logMetrics logs every counter series gathered from reg.
func logMetrics(log querycache.Logger, reg *prometheus.Registry, dropped uint64) {
	mfs, err := reg.Gather()
	if err != nil {
		log.Warn("gather metrics", querycache.Fields{"err": err})
		return
	}
	f := querycache.Fields{"hookEventsDropped": dropped}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, lp := range m.GetLabel() {
				name += "{" + lp.GetName() + "=" + lp.GetValue() + "}"
			}
			if c := m.GetCounter(); c != nil {
				f[name] = c.GetValue()
			}
		}
	}
	log.Info("metrics", f)
}
