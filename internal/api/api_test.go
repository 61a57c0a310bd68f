package api

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renix-codex/feedsync/internal/feed"
	"github.com/renix-codex/feedsync/internal/feed/store"
	"github.com/renix-codex/feedsync/internal/imagecache"
	"github.com/renix-codex/feedsync/internal/models"
)

type stubCollector struct {
	posts []models.Post
	err   error
}

func (s stubCollector) Fetch(context.Context) ([]models.Post, error) { return s.posts, s.err }

func newTestAPI(t *testing.T, src feed.CollectorPort) (*API, *atomic.Int32) {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })

	var fetches atomic.Int32
	images := imagecache.New(imagecache.FetcherFunc(func(_ context.Context, url string) (imagecache.Image, error) {
		fetches.Add(1)
		return imagecache.Image{Data: []byte(url), ContentType: "image/jpeg"}, nil
	}))

	engine := feed.NewEngine(st, src, feed.WithPageSize(2))
	require.NoError(t, engine.Start(context.Background()))
	return New(engine, images, st), &fetches
}

func samplePosts() []models.Post {
	return []models.Post{
		{UserID: 1, ID: 3, Title: "c"},
		{UserID: 1, ID: 1, Title: "a"},
		{UserID: 2, ID: 2, Title: "b"},
	}
}

func TestAPI_SyncOnceAndPage(t *testing.T) {
	a, _ := newTestAPI(t, stubCollector{posts: samplePosts()})
	ctx := context.Background()

	n, err := a.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	page := a.Page(ctx)
	assert.Equal(t, 2, page.Visible)
	assert.Equal(t, 3, page.Total)
	assert.False(t, page.Loading)
	require.Len(t, page.Items, 2)
	assert.Equal(t, 1, page.Items[0].ID)
	assert.Equal(t, "https://i.pravatar.cc/150?img=2", page.Items[0].AvatarURL)

	grew, page := a.LoadMore(ctx, 1)
	assert.True(t, grew)
	assert.Equal(t, 3, page.Visible)
}

func TestAPI_SyncOnceReportsRemoteFailure(t *testing.T) {
	a, _ := newTestAPI(t, stubCollector{err: errors.New("offline")})

	n, err := a.SyncOnce(context.Background())
	assert.ErrorIs(t, err, feed.ErrRemoteFetch)
	assert.Zero(t, n)
}

func TestAPI_Likes(t *testing.T) {
	a, _ := newTestAPI(t, stubCollector{posts: samplePosts()})
	ctx := context.Background()
	_, err := a.SyncOnce(ctx)
	require.NoError(t, err)

	liked, err := a.ToggleLike(ctx, 2)
	require.NoError(t, err)
	assert.True(t, liked)

	liked, err = a.Liked(ctx, 2)
	require.NoError(t, err)
	assert.True(t, liked)

	_, err = a.ToggleLike(ctx, 99)
	assert.ErrorIs(t, err, feed.ErrNotFound)
}

func TestAPI_AvatarIsCached(t *testing.T) {
	a, fetches := newTestAPI(t, stubCollector{posts: samplePosts()})
	ctx := context.Background()
	_, err := a.SyncOnce(ctx)
	require.NoError(t, err)

	// Posts 1 and 3 share an author.
	img, err := a.Avatar(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.ContentType)
	_, err = a.Avatar(ctx, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 1, fetches.Load())

	_, err = a.Avatar(ctx, 42)
	assert.ErrorIs(t, err, feed.ErrNotFound)
}

func TestAPI_RefreshBusy(t *testing.T) {
	gate := make(chan struct{})
	src := collectorFunc(func(ctx context.Context) ([]models.Post, error) {
		<-gate
		return nil, nil
	})
	a, _ := newTestAPI(t, src)
	ctx := context.Background()

	require.NoError(t, a.Refresh(ctx))
	assert.ErrorIs(t, a.Refresh(ctx), ErrBusy)
	close(gate)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, a.Engine().Wait(waitCtx))
}

func TestAPI_Health(t *testing.T) {
	a, _ := newTestAPI(t, stubCollector{})
	payload, ok := a.Health(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, "feedsync", payload["app"])
}

type collectorFunc func(ctx context.Context) ([]models.Post, error)

func (f collectorFunc) Fetch(ctx context.Context) ([]models.Post, error) { return f(ctx) }
