// Command querydemo runs the query cache against the jsonplaceholder API.
//
//	querydemo -mode posts -user 1
//	querydemo -mode paged -page 2 -size 10 -pages 3
//	querydemo -mode infinite -size 10 -pages 4
//	querydemo -mode add -title "buy milk" -optimistic
//
// Settings come from QC_* environment variables and an optional .env file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/config"
	"github.com/unkn0wn-root/querycache/genstore"
	asynchook "github.com/unkn0wn-root/querycache/hooks/async"
	promhooks "github.com/unkn0wn-root/querycache/hooks/prom"
	"github.com/unkn0wn-root/querycache/jsonplaceholder"
	"github.com/unkn0wn-root/querycache/respcache"
	"github.com/unkn0wn-root/querycache/sloghooks"
)

var (
	modeFlag       string
	userFlag       int
	pageFlag       int
	sizeFlag       int
	pagesFlag      int
	titleFlag      string
	optimisticFlag bool
	envFileFlag    string
)

func init() {
	flag.StringVar(&modeFlag, "mode", "posts", "posts|paged|infinite|todos|add")
	flag.IntVar(&userFlag, "user", 0, "author filter for -mode posts (0 = all)")
	flag.IntVar(&pageFlag, "page", 1, "first page for -mode paged")
	flag.IntVar(&sizeFlag, "size", 10, "page size")
	flag.IntVar(&pagesFlag, "pages", 3, "number of pages to walk")
	flag.StringVar(&titleFlag, "title", "", "todo title for -mode add")
	flag.BoolVar(&optimisticFlag, "optimistic", false, "show the new todo before the server confirms it")
	flag.StringVar(&envFileFlag, "env", ".env", "env file to read before the environment")
}

// both lets one async queue carry query and response cache events.
type both struct {
	querycache.MultiHooks
	resp respcache.MultiHooks
}

func (b both) SelfHeal(key, reason string) { b.resp.SelfHeal(key, reason) }
func (b both) SetRejected(key string)      { b.resp.SetRejected(key) }

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "querydemo:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(envFileFlag)
	if err != nil {
		return err
	}
	log, flush, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer flush()
	log.Info("config loaded", querycache.Fields{"config": cfg.String()})

	reg := prometheus.NewRegistry()
	prom, err := promhooks.New(reg)
	if err != nil {
		return err
	}
	hookLog := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel(cfg.LogLevel)}))
	lh := sloghooks.New(hookLog, sloghooks.Options{FetchFailedEvery: 1, SelfHealEvery: 10, Verbose: cfg.LogLevel == "debug"})
	hooks := asynchook.New(both{
		MultiHooks: querycache.MultiHooks{prom, lh},
		resp:       respcache.MultiHooks{prom, lh},
	}, cfg.HookWorkers, cfg.HookQueue)

	gen := genstore.NewLocal(genstore.LocalOptions{CleanupInterval: time.Hour, Retention: 24 * time.Hour})
	defer gen.Close(context.Background())

	postCache, err := newRespCache[[]jsonplaceholder.Post](ctx, cfg, "posts", gen, log, hooks)
	if err != nil {
		return err
	}
	todoCache, err := newRespCache[[]*jsonplaceholder.Todo](ctx, cfg, "todos", gen, log, hooks)
	if err != nil {
		return err
	}

	api, err := jsonplaceholder.New(jsonplaceholder.Options{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.HTTPTimeout,
		Token:     cfg.APIToken,
		Logger:    log,
		MaxBody:   cfg.MaxBody,
		Retry:     querycache.RetryPolicy{Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff, MaxBackoff: cfg.RetryMaxBackoff},
		PostCache: postCache,
		TodoCache: todoCache,
		CacheTTL:  cfg.CacheTTL,
	})
	if err != nil {
		return err
	}

	qc := querycache.New(querycache.Options{
		Logger:           log,
		Hooks:            hooks,
		DefaultStaleTime: cfg.StaleTime,
		GCRetention:      cfg.GCRetention,
		SweepInterval:    cfg.SweepInterval,
	})

	runErr := runMode(ctx, log, api, qc)

	_ = qc.Close(context.Background())
	if postCache != nil {
		_ = postCache.Close(context.Background())
	}
	if todoCache != nil {
		_ = todoCache.Close(context.Background())
	}
	hooks.Close()
	logMetrics(log, reg, hooks.Dropped())
	return runErr
}

func runMode(ctx context.Context, log querycache.Logger, api *jsonplaceholder.Client, qc *querycache.Client) error {
	switch modeFlag {
	case "posts":
		return showPosts(ctx, log, api, qc)
	case "paged":
		return showPaged(ctx, log, api, qc)
	case "infinite":
		return showInfinite(ctx, log, api, qc)
	case "todos":
		r := api.TodoList(ctx, qc)
		if r.Err != nil {
			return r.Err
		}
		for _, t := range r.Data {
			log.Info("todo", querycache.Fields{"id": t.ID, "title": t.Title, "completed": t.Completed})
		}
		return nil
	case "add":
		return addTodo(ctx, log, api, qc)
	}
	return errors.New("unknown -mode " + modeFlag)
}
