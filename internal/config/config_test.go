package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renix-codex/feedsync/internal/feed/store"
)

// isolate points the config dir at a temp dir and runs from a directory
// without a .env file.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Chdir(dir)
	return dir
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, DefaultSourceURL, cfg.Source.URL)
	assert.Equal(t, store.TypeSQLite, cfg.Store.Type)
	assert.Equal(t, filepath.Join(dir, "feedsync", "posts.db"), cfg.Store.Path)
	assert.Equal(t, 20, cfg.Sync.PageSize)
	assert.Equal(t, 5, cfg.Sync.PrefetchThreshold)
	assert.Equal(t, 30*time.Second, cfg.Sync.FetchTimeout)
	assert.True(t, cfg.Sync.RefreshOnStart)
	assert.Equal(t, "memory", cfg.ImageCache.Backend)
	assert.Equal(t, DefaultListenAddr, cfg.Server.ListenAddr)
}

func TestLoad_File(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
  format: json
source:
  url: http://localhost:9000/posts
  timeout: 3s
store:
  type: badger
  path: /var/lib/feedsync/badger
sync:
  page_size: 10
  fetch_timeout: 1m
  refresh_interval: 5m
image_cache:
  backend: ristretto
  max_bytes: 1048576
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "http://localhost:9000/posts", cfg.Source.URL)
	assert.Equal(t, 3*time.Second, cfg.Source.Timeout)
	assert.Equal(t, store.TypeBadger, cfg.Store.Type)
	assert.Equal(t, "/var/lib/feedsync/badger", cfg.Store.Path)
	assert.Equal(t, 10, cfg.Sync.PageSize)
	assert.Equal(t, time.Minute, cfg.Sync.FetchTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Sync.RefreshInterval)
	assert.Equal(t, "ristretto", cfg.ImageCache.Backend)
	assert.EqualValues(t, 1<<20, cfg.ImageCache.MaxBytes)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("FEEDSYNC_SYNC_PAGE_SIZE", "7")
	t.Setenv("FEEDSYNC_STORE_TYPE", "memory")
	t.Setenv("FEEDSYNC_SERVER_LISTEN_ADDR", "127.0.0.1:9999")
	t.Setenv("FEEDSYNC_SOURCE_TIMEOUT", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Sync.PageSize)
	assert.Equal(t, store.TypeMemory, cfg.Store.Type)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.ListenAddr)
	assert.Equal(t, 250*time.Millisecond, cfg.Source.Timeout)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FEEDSYNC_SYNC_PAGE_SIZE=3\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("FEEDSYNC_SYNC_PAGE_SIZE") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Sync.PageSize)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "LOUD" }, wantErr: true},
		{name: "bad source url", mutate: func(c *Config) { c.Source.URL = "not a url" }, wantErr: true},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Type = "etcd" }, wantErr: true},
		{name: "postgres without host", mutate: func(c *Config) { c.Store.Type = store.TypePostgres }, wantErr: true},
		{name: "postgres", mutate: func(c *Config) {
			c.Store.Type = store.TypePostgres
			c.Store.Postgres = store.PostgresConfig{Host: "db", Port: 5432, Database: "feed", SSLMode: "disable"}
		}},
		{name: "redis without addr", mutate: func(c *Config) { c.ImageCache.Backend = "redis" }, wantErr: true},
		{name: "negative refresh interval", mutate: func(c *Config) { c.Sync.RefreshInterval = -time.Second }, wantErr: true},
		{name: "sample rate above one", mutate: func(c *Config) { c.Telemetry.SampleRate = 2 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Sync.PageSize = 42
	cfg.Store.Type = store.TypeMemory
	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Sync.PageSize)
	assert.Equal(t, store.TypeMemory, loaded.Store.Type)
}
