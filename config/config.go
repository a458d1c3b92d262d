// Package config loads the demo CLI settings from QC_* environment variables,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "QC"

type Config struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIToken    string        `mapstructure:"api_token"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	MaxBody     int           `mapstructure:"max_body"`

	StaleTime     time.Duration `mapstructure:"stale_time"`
	GCRetention   time.Duration `mapstructure:"gc_retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	RetryMaxBackoff time.Duration `mapstructure:"retry_max_backoff"`

	LogLevel   string `mapstructure:"log_level"`   // debug|info|warn|error
	LogBackend string `mapstructure:"log_backend"` // zap|logrus|slog

	CacheBackend  string        `mapstructure:"cache_backend"` // none|ristretto|bigcache
	CacheCodec    string        `mapstructure:"cache_codec"`   // msgpack|cbor|json|protobuf
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	CacheMaxBytes int64         `mapstructure:"cache_max_bytes"`

	HookWorkers int `mapstructure:"hook_workers"`
	HookQueue   int `mapstructure:"hook_queue"`
}

var defaults = map[string]any{
	"base_url":          "https://jsonplaceholder.typicode.com",
	"api_token":         "",
	"http_timeout":      10 * time.Second,
	"max_body":          4 << 20,
	"stale_time":        10 * time.Second,
	"gc_retention":      5 * time.Minute,
	"sweep_interval":    time.Minute,
	"retry_attempts":    3,
	"retry_backoff":     200 * time.Millisecond,
	"retry_max_backoff": 2 * time.Second,
	"log_level":         "info",
	"log_backend":       "zap",
	"cache_backend":     "ristretto",
	"cache_codec":       "msgpack",
	"cache_ttl":         10 * time.Second,
	"cache_max_bytes":   int64(64 << 20),
	"hook_workers":      1,
	"hook_queue":        1024,
}

// Load reads envFile when it exists (variables already set win), then the
// environment. envFile "" skips the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("config: load %s: %w", envFile, err)
			}
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogBackend = strings.ToLower(cfg.LogBackend)
	cfg.CacheBackend = strings.ToLower(cfg.CacheBackend)
	cfg.CacheCodec = strings.ToLower(cfg.CacheCodec)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// responses never outlive the freshness of the queries they feed
	if cfg.CacheTTL > cfg.StaleTime {
		cfg.CacheTTL = cfg.StaleTime
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("QC_BASE_URL: %q is not an http(s) url", c.BaseURL))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("QC_HTTP_TIMEOUT: must be > 0"))
	}
	if c.StaleTime <= 0 {
		errs = append(errs, errors.New("QC_STALE_TIME: must be > 0"))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, errors.New("QC_RETRY_ATTEMPTS: must be >= 1"))
	}
	if c.RetryBackoff < 0 || c.RetryMaxBackoff < 0 {
		errs = append(errs, errors.New("QC_RETRY_BACKOFF/QC_RETRY_MAX_BACKOFF: must be >= 0"))
	}
	if !oneOf(c.LogLevel, "debug", "info", "warn", "error") {
		errs = append(errs, fmt.Errorf("QC_LOG_LEVEL: unknown level %q", c.LogLevel))
	}
	if !oneOf(c.LogBackend, "zap", "logrus", "slog") {
		errs = append(errs, fmt.Errorf("QC_LOG_BACKEND: unknown backend %q", c.LogBackend))
	}
	if !oneOf(c.CacheBackend, "none", "ristretto", "bigcache") {
		errs = append(errs, fmt.Errorf("QC_CACHE_BACKEND: unknown backend %q", c.CacheBackend))
	}
	if !oneOf(c.CacheCodec, "msgpack", "cbor", "json", "protobuf") {
		errs = append(errs, fmt.Errorf("QC_CACHE_CODEC: unknown codec %q", c.CacheCodec))
	}
	if c.CacheBackend != "none" {
		if c.CacheTTL <= 0 {
			errs = append(errs, errors.New("QC_CACHE_TTL: must be > 0"))
		}
		if c.CacheMaxBytes <= 0 {
			errs = append(errs, errors.New("QC_CACHE_MAX_BYTES: must be > 0"))
		}
	}
	return errors.Join(errs...)
}

func oneOf(v string, opts ...string) bool {
	for _, o := range opts {
		if v == o {
			return true
		}
	}
	return false
}

// String renders the config with the token masked.
func (c *Config) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "base_url=%s ", c.BaseURL)
	if c.APIToken != "" {
		sb.WriteString("api_token=******** ")
	} else {
		sb.WriteString("api_token=(empty) ")
	}
	fmt.Fprintf(&sb, "http_timeout=%s max_body=%d ", c.HTTPTimeout, c.MaxBody)
	fmt.Fprintf(&sb, "stale_time=%s gc_retention=%s sweep_interval=%s ", c.StaleTime, c.GCRetention, c.SweepInterval)
	fmt.Fprintf(&sb, "retry=%d/%s/%s ", c.RetryAttempts, c.RetryBackoff, c.RetryMaxBackoff)
	fmt.Fprintf(&sb, "log=%s/%s ", c.LogBackend, c.LogLevel)
	fmt.Fprintf(&sb, "cache=%s/%s ttl=%s max_bytes=%d", c.CacheBackend, c.CacheCodec, c.CacheTTL, c.CacheMaxBytes)
	return sb.String()
}
