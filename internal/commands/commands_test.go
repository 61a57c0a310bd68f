package commands

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with args and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile, configForce, postsAll, postsLimit, syncTimeout = "", false, false, 0, 0

	var out bytes.Buffer
	cmd := GetRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// isolate points the config directory and store at a temp dir and serves
// a small feed to sync from.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Chdir(dir)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"userId":1,"id":3,"title":"third","body":"c"},
			{"userId":1,"id":1,"title":"first","body":"a"},
			{"userId":2,"id":2,"title":"second","body":"b"}
		]`))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("FEEDSYNC_SOURCE_URL", srv.URL)
	t.Setenv("FEEDSYNC_STORE_TYPE", "sqlite")
	t.Setenv("FEEDSYNC_STORE_PATH", filepath.Join(dir, "posts.db"))
	t.Setenv("FEEDSYNC_LOGGING_LEVEL", "ERROR")
	return dir
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "feedsync "+Version)
}

func TestConfigInit(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")

	out, err := run(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = run(t, "config", "init", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = run(t, "config", "init", "--config", path, "--force")
	require.NoError(t, err)
}

func TestConfigShowMasksSecrets(t *testing.T) {
	isolate(t)
	t.Setenv("FEEDSYNC_IMAGE_CACHE_REDIS_PASSWORD", "hunter2")

	out, err := run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "page_size: 20")
	assert.NotContains(t, out, "hunter2")
}

func TestSyncListAndLike(t *testing.T) {
	isolate(t)

	out, err := run(t, "posts", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No posts stored")

	out, err = run(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "synced 3 posts")

	out, err = run(t, "posts", "like", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "post 2 liked")

	// A second sync keeps the flag.
	_, err = run(t, "sync")
	require.NoError(t, err)

	out, err = run(t, "posts", "list", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "second")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "3 of 3 posts")

	out, err = run(t, "posts", "list", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "first")
	assert.NotContains(t, out, "third")
}

func TestPostsLikeErrors(t *testing.T) {
	isolate(t)

	_, err := run(t, "posts", "like", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid post id")

	_, err = run(t, "posts", "like", "42")
	require.Error(t, err)
}

func TestSyncFailsWhenSourceDown(t *testing.T) {
	isolate(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("FEEDSYNC_SOURCE_URL", srv.URL)

	_, err := run(t, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync failed")
}

func TestMigrateSkipsNonPostgres(t *testing.T) {
	isolate(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "needs no migrations")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "a b", truncate("a\nb", 10))
}
