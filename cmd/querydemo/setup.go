package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/codec"
	"github.com/unkn0wn-root/querycache/config"
	"github.com/unkn0wn-root/querycache/genstore"
	qclogrus "github.com/unkn0wn-root/querycache/log/logrus"
	qcslog "github.com/unkn0wn-root/querycache/log/slog"
	qczap "github.com/unkn0wn-root/querycache/log/zap"
	"github.com/unkn0wn-root/querycache/provider"
	"github.com/unkn0wn-root/querycache/provider/bigcache"
	"github.com/unkn0wn-root/querycache/provider/ristretto"
	"github.com/unkn0wn-root/querycache/respcache"
)

func slogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// newLogger returns the configured backend and a flush func.
func newLogger(cfg *config.Config) (querycache.Logger, func(), error) {
	switch cfg.LogBackend {
	case "zap":
		zc := zap.NewProductionConfig()
		lvl, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, err
		}
		zc.Level = lvl
		zl, err := zc.Build()
		if err != nil {
			return nil, nil, err
		}
		return qczap.New(zl.Named("querydemo")), func() { _ = zl.Sync() }, nil
	case "logrus":
		ll := logrus.New()
		lvl, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, err
		}
		ll.SetLevel(lvl)
		ll.SetFormatter(&logrus.JSONFormatter{})
		return qclogrus.New(ll), func() {}, nil
	case "slog":
		sl := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel(cfg.LogLevel)}))
		return qcslog.Logger{L: sl}, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown log backend %q", cfg.LogBackend)
}

func newProvider(ctx context.Context, cfg *config.Config, maxBytes int64) (provider.Provider, error) {
	switch cfg.CacheBackend {
	case "ristretto":
		return ristretto.New(ristretto.DefaultConfig(maxBytes))
	case "bigcache":
		mb := int(maxBytes >> 20)
		if mb < 1 {
			mb = 1
		}
		return bigcache.New(ctx, bigcache.Config{
			LifeWindow:         cfg.CacheTTL,
			CleanWindow:        time.Minute,
			HardMaxCacheSizeMB: mb,
		})
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}

func newCodec[V any](name string) (codec.Codec[V], error) {
	switch name {
	case "msgpack":
		return codec.Msgpack[V]{}, nil
	case "cbor":
		return codec.CanonicalCBOR[V](), nil
	case "json":
		return codec.JSON[V]{}, nil
	case "protobuf":
		return codec.NewProtoStruct[V](), nil
	}
	return nil, fmt.Errorf("unknown cache codec %q", name)
}

// newRespCache returns nil when the response cache is off.
func newRespCache[V any](ctx context.Context, cfg *config.Config, ns string, gen genstore.GenStore, log querycache.Logger, hooks respcache.Hooks) (*respcache.Cache[V], error) {
	if cfg.CacheBackend == "none" {
		return nil, nil
	}
	p, err := newProvider(ctx, cfg, cfg.CacheMaxBytes/2)
	if err != nil {
		return nil, err
	}
	c, err := newCodec[V](cfg.CacheCodec)
	if err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	rc, err := respcache.New(respcache.Options[V]{
		Namespace:  ns,
		Provider:   p,
		Codec:      c,
		Logger:     log,
		Hooks:      hooks,
		DefaultTTL: cfg.CacheTTL,
		GenStore:   gen,
	})
	if err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	return rc, nil
}
