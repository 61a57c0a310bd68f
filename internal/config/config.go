// Package config loads feedsync configuration from a YAML file, a .env file
// and FEEDSYNC_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/renix-codex/feedsync/internal/feed/store"
)

const envPrefix = "FEEDSYNC"

type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry" yaml:"telemetry"`
	Source     SourceConfig     `mapstructure:"source" yaml:"source"`
	Store      store.Config     `mapstructure:"store" yaml:"store"`
	Sync       SyncConfig       `mapstructure:"sync" yaml:"sync"`
	ImageCache ImageCacheConfig `mapstructure:"image_cache" yaml:"image_cache"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// SourceConfig points at the remote post listing.
type SourceConfig struct {
	URL     string        `mapstructure:"url" validate:"required,url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0" yaml:"timeout"`
	// SkipValidation disables the JSON schema check of the response.
	SkipValidation bool `mapstructure:"skip_validation" yaml:"skip_validation,omitempty"`
}

type SyncConfig struct {
	PageSize          int           `mapstructure:"page_size" validate:"min=1" yaml:"page_size"`
	PrefetchThreshold int           `mapstructure:"prefetch_threshold" validate:"min=0" yaml:"prefetch_threshold"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout" validate:"gt=0" yaml:"fetch_timeout"`
	// RefreshInterval triggers periodic refreshes while serving. Zero
	// disables them.
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"gte=0" yaml:"refresh_interval"`
	RefreshOnStart  bool          `mapstructure:"refresh_on_start" yaml:"refresh_on_start"`
}

type ImageCacheConfig struct {
	Backend      string        `mapstructure:"backend" validate:"required,oneof=memory ristretto redis" yaml:"backend"`
	MaxBytes     int64         `mapstructure:"max_bytes" validate:"gte=0" yaml:"max_bytes"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" validate:"gt=0" yaml:"fetch_timeout"`
	Redis        RedisConfig   `mapstructure:"redis" yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password,omitempty"`
	DB       int           `mapstructure:"db" validate:"gte=0" yaml:"db"`
	TTL      time.Duration `mapstructure:"ttl" validate:"gte=0" yaml:"ttl"`
}

type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" validate:"required" yaml:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0" yaml:"request_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins,omitempty"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load reads configuration. An empty configPath searches the default
// config directory; a missing file is not an error.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setupViper(v, configPath)
	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// SaveConfig writes cfg as YAML, creating the parent directory.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags, then the rules that depend on the selected
// backends.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	switch cfg.Store.Type {
	case store.TypeSQLite, store.TypeBadger:
		if cfg.Store.Path == "" {
			return fmt.Errorf("store.path is required for %s", cfg.Store.Type)
		}
	case store.TypePostgres:
		if cfg.Store.Postgres.Host == "" || cfg.Store.Postgres.Database == "" {
			return fmt.Errorf("store.postgres.host and store.postgres.database are required")
		}
	}

	switch cfg.ImageCache.Backend {
	case "ristretto":
		if cfg.ImageCache.MaxBytes <= 0 {
			return fmt.Errorf("image_cache.max_bytes must be positive for ristretto")
		}
	case "redis":
		if cfg.ImageCache.Redis.Addr == "" {
			return fmt.Errorf("image_cache.redis.addr is required for redis")
		}
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(GetConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// GetConfigDir returns $XDG_CONFIG_HOME/feedsync or ~/.config/feedsync.
func GetConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "feedsync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "feedsync")
}

func GetDefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}
