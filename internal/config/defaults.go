package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/renix-codex/feedsync/internal/feed"
	"github.com/renix-codex/feedsync/internal/feed/store"
	"github.com/renix-codex/feedsync/internal/imagecache"
)

const (
	DefaultSourceURL  = "https://jsonplaceholder.typicode.com/posts"
	DefaultListenAddr = ":8080"
)

// setDefaults registers every key with viper so FEEDSYNC_* variables apply
// even without a config file.
func setDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	v.SetDefault("telemetry.insecure", d.Telemetry.Insecure)
	v.SetDefault("telemetry.sample_rate", d.Telemetry.SampleRate)

	v.SetDefault("source.url", d.Source.URL)
	v.SetDefault("source.timeout", d.Source.Timeout)
	v.SetDefault("source.skip_validation", d.Source.SkipValidation)

	v.SetDefault("store.type", string(d.Store.Type))
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.postgres.host", "")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.database", "")
	v.SetDefault("store.postgres.user", "")
	v.SetDefault("store.postgres.password", "")
	v.SetDefault("store.postgres.sslmode", "disable")

	v.SetDefault("sync.page_size", d.Sync.PageSize)
	v.SetDefault("sync.prefetch_threshold", d.Sync.PrefetchThreshold)
	v.SetDefault("sync.fetch_timeout", d.Sync.FetchTimeout)
	v.SetDefault("sync.refresh_interval", d.Sync.RefreshInterval)
	v.SetDefault("sync.refresh_on_start", d.Sync.RefreshOnStart)

	v.SetDefault("image_cache.backend", d.ImageCache.Backend)
	v.SetDefault("image_cache.max_bytes", d.ImageCache.MaxBytes)
	v.SetDefault("image_cache.fetch_timeout", d.ImageCache.FetchTimeout)
	v.SetDefault("image_cache.redis.addr", "")
	v.SetDefault("image_cache.redis.password", "")
	v.SetDefault("image_cache.redis.db", 0)
	v.SetDefault("image_cache.redis.ttl", d.ImageCache.Redis.TTL)

	v.SetDefault("server.listen_addr", d.Server.ListenAddr)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
}

// ApplyDefaults fills zero values. Explicit values are kept.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applySourceDefaults(&cfg.Source)
	applyStoreDefaults(&cfg.Store)
	applySyncDefaults(&cfg.Sync)
	applyImageCacheDefaults(&cfg.ImageCache)
	applyServerDefaults(&cfg.Server)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applySourceDefaults(cfg *SourceConfig) {
	if cfg.URL == "" {
		cfg.URL = DefaultSourceURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
}

func applyStoreDefaults(cfg *store.Config) {
	if cfg.Type == "" {
		cfg.Type = store.TypeSQLite
	}
	if cfg.Path == "" {
		switch cfg.Type {
		case store.TypeSQLite:
			cfg.Path = filepath.Join(GetConfigDir(), "posts.db")
		case store.TypeBadger:
			cfg.Path = filepath.Join(GetConfigDir(), "badger")
		}
	}
	if cfg.Type == store.TypePostgres {
		if cfg.Postgres.Port == 0 {
			cfg.Postgres.Port = 5432
		}
		if cfg.Postgres.SSLMode == "" {
			cfg.Postgres.SSLMode = "disable"
		}
	}
}

func applySyncDefaults(cfg *SyncConfig) {
	if cfg.PageSize == 0 {
		cfg.PageSize = feed.DefaultPageSize
	}
	if cfg.PrefetchThreshold == 0 {
		cfg.PrefetchThreshold = feed.DefaultPrefetchThreshold
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = feed.DefaultFetchTimeout
	}
}

func applyImageCacheDefaults(cfg *ImageCacheConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "memory"
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 64 << 20
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = imagecache.DefaultFetchTimeout
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 24 * time.Hour
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
}

// GetDefaultConfig returns a complete configuration with every default set.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Sync: SyncConfig{RefreshOnStart: true},
	}
	ApplyDefaults(cfg)
	return cfg
}
