package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/renix-codex/feedsync/internal/api"
	"github.com/renix-codex/feedsync/internal/config"
	"github.com/renix-codex/feedsync/internal/feed"
	"github.com/renix-codex/feedsync/internal/feed/store"
	"github.com/renix-codex/feedsync/internal/imagecache"
	"github.com/renix-codex/feedsync/internal/logger"
	"github.com/renix-codex/feedsync/internal/metrics"
)

// app bundles the wired components shared by every command.
type app struct {
	cfg     *config.Config
	store   feed.StorePort
	events  *feed.Broadcaster
	engine  *feed.Engine
	images  *imagecache.Cache
	api     *api.API
	closers []func() error
}

// loadConfig reads configuration and initialises logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// buildApp opens the store and wires the engine, image cache and facade.
// The engine is not started.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a := &app{cfg: cfg, store: st, events: feed.NewBroadcaster()}
	a.closers = append(a.closers, st.Close)

	collector := feed.NewHTTPCollector(cfg.Source.URL, cfg.Source.Timeout)
	collector.Validate = !cfg.Source.SkipValidation

	a.engine = feed.NewEngine(st, collector,
		feed.WithPageSize(cfg.Sync.PageSize),
		feed.WithPrefetchThreshold(cfg.Sync.PrefetchThreshold),
		feed.WithFetchTimeout(cfg.Sync.FetchTimeout),
		feed.WithNotifier(a.events),
		feed.WithMetrics(metrics.NewFeedMetrics()),
	)

	storage, err := a.imageStorage(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.images = imagecache.New(
		imagecache.NewHTTPFetcher(cfg.ImageCache.FetchTimeout),
		imagecache.WithStorage(storage),
		imagecache.WithFetchTimeout(cfg.ImageCache.FetchTimeout),
		imagecache.WithMetrics(metrics.NewImageCacheMetrics()),
	)
	a.api = api.New(a.engine, a.images, st)
	return a, nil
}

func (a *app) imageStorage(ctx context.Context) (imagecache.Storage, error) {
	ic := a.cfg.ImageCache
	switch ic.Backend {
	case "ristretto":
		s, err := imagecache.NewRistrettoStorage(ic.MaxBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to create image cache: %w", err)
		}
		a.closers = append(a.closers, func() error { s.Close(); return nil })
		return s, nil
	case "redis":
		client, err := imagecache.DialRedis(ctx, ic.Redis.Addr, ic.Redis.Password, ic.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect image cache: %w", err)
		}
		s := imagecache.NewRedisStorage(client, ic.Redis.TTL)
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return imagecache.NewMemoryStorage(), nil
	}
}

// Close stops background work and releases resources in reverse order.
func (a *app) Close() {
	if a.engine != nil {
		a.engine.Close()
		_ = a.engine.Wait(context.Background())
	}
	if a.images != nil {
		a.images.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("shutdown", logger.Err(err))
	}
	a.closers = nil
}

// startApp loads configuration, builds the app and opens the local feed.
func startApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.engine.Start(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load local feed: %w", err)
	}
	return a, nil
}
