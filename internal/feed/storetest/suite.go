// Package storetest is a conformance suite for feed.StorePort backends.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renix-codex/feedsync/internal/feed"
	"github.com/renix-codex/feedsync/internal/models"
)

// StoreFactory returns an empty store. The factory registers its own
// cleanup.
type StoreFactory func(t *testing.T) feed.StorePort

// RunConformanceSuite checks the merge and flag semantics every backend
// must provide.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Run("UpsertInsertsUnliked", func(t *testing.T) { testUpsertInsertsUnliked(t, factory) })
	t.Run("UpsertPreservesLiked", func(t *testing.T) { testUpsertPreservesLiked(t, factory) })
	t.Run("FetchAllSorted", func(t *testing.T) { testFetchAllSorted(t, factory) })
	t.Run("EmptyBatch", func(t *testing.T) { testEmptyBatch(t, factory) })
	t.Run("DuplicateIDsInBatch", func(t *testing.T) { testDuplicateIDsInBatch(t, factory) })
	t.Run("UpsertAtomic", func(t *testing.T) { testUpsertAtomic(t, factory) })
	t.Run("ToggleLiked", func(t *testing.T) { testToggleLiked(t, factory) })
	t.Run("UnknownID", func(t *testing.T) { testUnknownID(t, factory) })
	t.Run("ConcurrentToggles", func(t *testing.T) { testConcurrentToggles(t, factory) })
	t.Run("Healthcheck", func(t *testing.T) { testHealthcheck(t, factory) })
}

func post(id int, title string) models.Post {
	return models.Post{UserID: id%10 + 1, ID: id, Title: title, Body: "body " + title}
}

func testUpsertInsertsUnliked(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	require.NoError(t, store.Upsert(ctx, []models.Post{post(1, "a"), post(2, "b")}))

	all, err := store.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, rec := range all {
		assert.False(t, rec.Liked, "post %d", rec.ID)
	}
	assert.Equal(t, post(1, "a"), all[0].Post)
}

func testUpsertPreservesLiked(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	require.NoError(t, store.Upsert(ctx, []models.Post{post(1, "old"), post(2, "old")}))
	liked, err := store.ToggleLiked(ctx, 1)
	require.NoError(t, err)
	require.True(t, liked)

	updated := models.Post{UserID: 42, ID: 1, Title: "new", Body: "new body"}
	require.NoError(t, store.Upsert(ctx, []models.Post{updated, post(3, "fresh")}))

	all, err := store.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, models.PostRecord{Post: updated, Liked: true}, all[0])
	assert.Equal(t, models.PostRecord{Post: post(2, "old")}, all[1])
	assert.Equal(t, models.PostRecord{Post: post(3, "fresh")}, all[2])
}

func testFetchAllSorted(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	ids := []int{300, 7, 1000, 1, 64, 256, 2}
	batch := make([]models.Post, 0, len(ids))
	for _, id := range ids {
		batch = append(batch, post(id, fmt.Sprint(id)))
	}
	require.NoError(t, store.Upsert(ctx, batch))

	all, err := store.FetchAll(ctx)
	require.NoError(t, err)
	got := make([]int, len(all))
	for i, rec := range all {
		got[i] = rec.ID
	}
	assert.Equal(t, []int{1, 2, 7, 64, 256, 300, 1000}, got)
}

func testEmptyBatch(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	require.NoError(t, store.Upsert(ctx, nil))
	all, err := store.FetchAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testDuplicateIDsInBatch(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	require.NoError(t, store.Upsert(ctx, []models.Post{post(1, "seed")}))
	_, err := store.ToggleLiked(ctx, 1)
	require.NoError(t, err)

	batch := []models.Post{post(1, "first"), post(2, "b"), post(1, "last"), post(2, "b2")}
	require.NoError(t, store.Upsert(ctx, batch))

	all, err := store.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.PostRecord{Post: post(1, "last"), Liked: true}, all[0])
	assert.Equal(t, models.PostRecord{Post: post(2, "b2")}, all[1])
}

// cancelAfter is a context whose Err reports context.Canceled once it has
// been consulted n times, so a write stops part way through a batch.
type cancelAfter struct {
	context.Context
	mu   sync.Mutex
	left int
	done chan struct{}
}

func newCancelAfter(n int) *cancelAfter {
	return &cancelAfter{Context: context.Background(), left: n, done: make(chan struct{})}
}

func (c *cancelAfter) Done() <-chan struct{} { return c.done }

func (c *cancelAfter) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.left > 0 {
		c.left--
		return nil
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return context.Canceled
}

func testUpsertAtomic(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	require.NoError(t, store.Upsert(ctx, []models.Post{post(1, "kept"), post(2, "kept")}))
	_, err := store.ToggleLiked(ctx, 2)
	require.NoError(t, err)
	before, err := store.FetchAll(ctx)
	require.NoError(t, err)

	// Large enough to span several write chunks; the context gives out
	// after the first one.
	batch := make([]models.Post, 0, 1500)
	for id := 1; id <= 1500; id++ {
		batch = append(batch, post(id, "replaced"))
	}
	require.Error(t, store.Upsert(newCancelAfter(2), batch))

	after, err := store.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after, "a failed batch must leave no partial writes")

	require.NoError(t, store.Upsert(ctx, batch))
	all, err := store.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1500)
	assert.True(t, all[1].Liked)
	assert.Equal(t, "replaced", all[1].Title)
}

func testToggleLiked(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()
	require.NoError(t, store.Upsert(ctx, []models.Post{post(5, "x")}))

	liked, err := store.Liked(ctx, 5)
	require.NoError(t, err)
	assert.False(t, liked)

	liked, err = store.ToggleLiked(ctx, 5)
	require.NoError(t, err)
	assert.True(t, liked)

	liked, err = store.Liked(ctx, 5)
	require.NoError(t, err)
	assert.True(t, liked)

	liked, err = store.ToggleLiked(ctx, 5)
	require.NoError(t, err)
	assert.False(t, liked)
}

func testUnknownID(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	liked, err := store.Liked(ctx, 99)
	require.NoError(t, err)
	assert.False(t, liked)

	liked, err = store.ToggleLiked(ctx, 99)
	require.NoError(t, err)
	assert.False(t, liked)

	all, err := store.FetchAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "toggling an unknown id must not create it")
}

func testConcurrentToggles(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()
	require.NoError(t, store.Upsert(ctx, []models.Post{post(1, "x")}))

	const toggles = 10
	var wg sync.WaitGroup
	for range toggles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ToggleLiked(ctx, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	liked, err := store.Liked(ctx, 1)
	require.NoError(t, err)
	assert.False(t, liked, "an even number of toggles leaves the flag unset")
}

func testHealthcheck(t *testing.T, factory StoreFactory) {
	store := factory(t)
	assert.NoError(t, store.Healthcheck(t.Context()))
}
