package api

import (
	"context"
	"errors"
	"time"

	"github.com/renix-codex/feedsync/internal/feed"
	"github.com/renix-codex/feedsync/internal/imagecache"
	"github.com/renix-codex/feedsync/internal/models"
)

// ErrBusy is returned when a refresh is already in flight.
var ErrBusy = errors.New("a refresh is already in progress")

// API is the application-facing facade. All callers (HTTP, CLI) go through this.
type API struct {
	engine    *feed.Engine
	images    *imagecache.Cache
	store     feed.StorePort
	startedAt time.Time
}

func New(engine *feed.Engine, images *imagecache.Cache, store feed.StorePort) *API {
	return &API{engine: engine, images: images, store: store, startedAt: time.Now()}
}

// Health reports app status and whether the store answers.
func (a *API) Health(ctx context.Context) (map[string]any, bool) {
	payload := map[string]any{
		"app":       "feedsync",
		"startedAt": a.startedAt.Format(time.RFC3339),
		"status":    "ok",
		"loading":   a.engine.IsLoading(),
	}
	healthy := true
	if err := a.store.Healthcheck(ctx); err != nil {
		payload["status"] = "degraded"
		payload["store"] = err.Error()
		healthy = false
	}
	return payload, healthy
}

// Page is the current pagination window.
type Page struct {
	Items   []models.FeedItem `json:"items"`
	Visible int               `json:"visible"`
	Total   int               `json:"total"`
	Loading bool              `json:"loading"`
}

func (a *API) Page(ctx context.Context) Page {
	items := a.engine.Items(ctx)
	return Page{
		Items:   items,
		Visible: len(items),
		Total:   len(a.engine.All()),
		Loading: a.engine.IsLoading(),
	}
}

// LoadMore grows the window when index is near its end.
func (a *API) LoadMore(ctx context.Context, index int) (bool, Page) {
	grew := a.engine.LoadMoreIfNeeded(index)
	return grew, a.Page(ctx)
}

// Refresh starts a background refresh.
func (a *API) Refresh(ctx context.Context) error {
	if !a.engine.Refresh(ctx) {
		return ErrBusy
	}
	return nil
}

// SyncOnce runs a refresh to completion and returns the number of posts
// in the store afterwards.
func (a *API) SyncOnce(ctx context.Context) (int, error) {
	if err := a.Refresh(ctx); err != nil {
		return 0, err
	}
	if err := a.engine.Wait(ctx); err != nil {
		return 0, err
	}
	return len(a.engine.All()), a.engine.LastError()
}

// Post returns one post by id.
func (a *API) Post(id int) (models.Post, error) {
	p, ok := a.engine.Lookup(id)
	if !ok {
		return models.Post{}, feed.ErrNotFound
	}
	return p, nil
}

func (a *API) Liked(ctx context.Context, id int) (bool, error) {
	if _, err := a.Post(id); err != nil {
		return false, err
	}
	return a.engine.IsLiked(ctx, id), nil
}

func (a *API) ToggleLike(ctx context.Context, id int) (bool, error) {
	if _, err := a.Post(id); err != nil {
		return false, err
	}
	return a.engine.ToggleLike(ctx, id)
}

// Avatar returns the author's avatar through the image cache.
func (a *API) Avatar(ctx context.Context, id int) (imagecache.Image, error) {
	p, err := a.Post(id)
	if err != nil {
		return imagecache.Image{}, err
	}
	url := p.AvatarURL()
	if url == "" {
		return imagecache.Image{}, feed.ErrNotFound
	}
	return a.images.Fetch(ctx, url)
}

// Engine exposes the engine for callers that subscribe to its events.
func (a *API) Engine() *feed.Engine { return a.engine }
